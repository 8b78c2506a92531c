package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/sessions"
)

// kpiLabels maps failure-category codes to the human label used in tickets
// and technician briefs.
var kpiLabels = map[string]string{
	"kpi_no_internet":                 "Sin acceso a internet",
	"kpi_lento_todo":                  "Internet lento en todos los dispositivos",
	"kpi_wifi_lento":                  "WiFi lento",
	"kpi_lag":                         "Lag en juegos online",
	"kpi_intermitente":                "Conexión intermitente / se corta",
	"kpi_dns":                         "No carga páginas web",
	"kpi_wifi_no_aparece":             "Red WiFi no aparece",
	"ont_offline_sin_causa_aparente":  "ONT offline sin causa aparente",
	"ont_offline_confirmado":          "ONT offline confirmado por cliente",
	"senal_degradada":                 "Señal óptica degradada",
}

// EtiquetaKPI resolves a KPI code to its human label. Unknown codes pass
// through; the generic fallback covers the empty code.
func EtiquetaKPI(kpi string) string {
	if label, ok := kpiLabels[kpi]; ok {
		return label
	}
	if kpi == "" {
		return "Falla de conectividad"
	}
	return kpi
}

// ExtraerHorario detects the customer's visit-shift preference in free text.
func ExtraerHorario(texto string) string {
	lower := strings.ToLower(texto)
	for _, p := range []string{"mañana", "manana", "am"} {
		if strings.Contains(lower, p) {
			return "MAÑANA"
		}
	}
	for _, p := range []string{"tarde", "pm"} {
		if strings.Contains(lower, p) {
			return "TARDE"
		}
	}
	return "MAÑANA"
}

// Escalador builds ticket content, opens tickets and notifies the human
// destination. Shared by both state machines and the background task.
type Escalador struct {
	cfg      *config.Config
	tickets  Ticketera
	wa       Mensajeria
	notif    *Notificador
	sesiones sessions.Store
}

// NewEscalador wires the escalation protocol.
func NewEscalador(cfg *config.Config, tickets Ticketera, wa Mensajeria, notif *Notificador, sesiones sessions.Store) *Escalador {
	return &Escalador{cfg: cfg, tickets: tickets, wa: wa, notif: notif, sesiones: sesiones}
}

// ContenidoTicket renders the structured plain-text report for a ticket.
func ContenidoTicket(s *models.SesionCliente) string {
	rebootTexto := "No fue necesario"
	if s.RebootEjecutado {
		rebootTexto = "Sí, sin éxito"
	}
	serial := s.SerialONT
	if serial == "" {
		serial = "No disponible"
	}
	ip := s.IPCliente
	if ip == "" {
		ip = "No disponible"
	}

	contenido := fmt.Sprintf(
		"Reporte generado por ARIA (Soporte IA)\n"+
			"%s\n"+
			"Problema reportado: %s\n"+
			"Serial ONT: %s\n"+
			"IP cliente: %s\n"+
			"Reinicio remoto: %s\n"+
			"Atendido via: WhatsApp\n"+
			"Telefono: %s\n\n",
		strings.Repeat("=", 40), EtiquetaKPI(s.KPIActivo), serial, ip, rebootTexto, s.Phone)
	if s.DatosTecnicos != "" {
		contenido += s.DatosTecnicos
	}
	return contenido
}

// CrearTicket opens the ticket for a session and indexes it back to the
// customer phone. On failure the id is empty and the caller degrades the
// customer reply: escalation never blocks on the ticketing system.
func (e *Escalador) CrearTicket(ctx context.Context, s *models.SesionCliente, horario string) string {
	problema := EtiquetaKPI(s.KPIActivo)
	ticketID, err := e.tickets.CrearTicket(ctx, &NuevoTicket{
		ClienteID:   s.IDCliente,
		Asunto:      "Falla tecnica: " + recortar(problema, 50),
		Contenido:   ContenidoTicket(s),
		Solicitante: nombreO(s.Nombre, "Cliente"),
		Turno:       horario,
	})
	if err != nil {
		log.Printf("❌ Escalado: no se pudo crear ticket para %s: %v", s.Phone, err)
		return ""
	}
	if ticketID != "" {
		if err := e.sesiones.VincularTicket(ctx, ticketID, s.Phone); err != nil {
			log.Printf("❌ Escalado: no se pudo indexar ticket %s: %v", ticketID, err)
		}
	}
	return ticketID
}

// NotificarDestino routes the new ticket to the configured human
// destination: a full interactive brief for the field technician (creating
// their session), or a plain summary for the NOC.
func (e *Escalador) NotificarDestino(ctx context.Context, s *models.SesionCliente, ticketID string) {
	if ticketID == "" {
		return
	}

	if s.DestinoEscalado == models.DestinoNOC {
		if e.cfg.NOCWhatsApp == "" {
			return
		}
		msg := fmt.Sprintf(
			"🔔 *NUEVO TICKET #%s → NOC*\n%s\n👤 Cliente: %s\n📱 Teléfono: %s\n🔌 Serial ONT: %s\n🌐 IP: %s\n⚠️ Problema: %s\n",
			ticketID, strings.Repeat("─", 30), s.Nombre, s.Phone,
			nombreO(s.SerialONT, "N/D"), nombreO(s.IPCliente, "N/D"), EtiquetaKPI(s.KPIActivo))
		if s.DatosTecnicos != "" {
			msg += "\n📊 *Diagnóstico:*\n" + s.DatosTecnicos
		}
		if err := e.notif.Enviar(ctx, e.cfg.NOCWhatsApp, msg); err != nil {
			log.Printf("❌ Escalado: notificación NOC: %v", err)
		}
		return
	}

	if e.cfg.TecnicoWhatsApp == "" {
		return
	}
	e.NotificarTicketATecnico(ctx, e.cfg.TecnicoWhatsApp, ticketID, s)
}

// NotificarTicketATecnico sends the assignment brief, the confirm/decline
// buttons, and creates the technician session in ESPERANDO_CONFIRMACION.
func (e *Escalador) NotificarTicketATecnico(ctx context.Context, tecnicoPhone, ticketID string, s *models.SesionCliente) {
	tecnicos, err := e.sesiones.Tecnicos(ctx)
	if err != nil {
		log.Printf("❌ Escalado: registro de técnicos: %v", err)
	}
	nombreTecnico := "Técnico"
	if t, ok := tecnicos[tecnicoPhone]; ok && t.Nombre != "" {
		nombreTecnico = t.Nombre
	}

	ahora := time.Now()
	sesion := &models.SesionTecnico{
		Phone:            tecnicoPhone,
		Nombre:           nombreTecnico,
		Fase:             models.TecEsperandoConfir,
		TicketID:         ticketID,
		ClientePhone:     s.Phone,
		ClienteNombre:    nombreO(s.Nombre, "Cliente"),
		ClienteDireccion: nombreO(s.Contrato, "Ver MikroWisp"),
		Problema:         EtiquetaKPI(s.KPIActivo),
		TsAsignado:       &ahora,
	}
	if err := e.sesiones.GuardarTecnico(ctx, sesion); err != nil {
		log.Printf("❌ Escalado: guardar sesión técnico: %v", err)
	}

	mensaje := fmt.Sprintf(
		"🔔 *NUEVO TICKET #%s*\n%s\n👤 Cliente: %s\n📍 Dirección: %s\n📱 Teléfono: %s\n🔌 Serial ONT: %s\n🌐 IP: %s\n⚠️ Problema: %s\n",
		ticketID, strings.Repeat("─", 30), sesion.ClienteNombre, sesion.ClienteDireccion,
		s.Phone, nombreO(s.SerialONT, "N/D"), nombreO(s.IPCliente, "N/D"), sesion.Problema)
	if s.DatosTecnicos != "" {
		mensaje += "\n📊 *Diagnóstico:*\n" + s.DatosTecnicos
	}

	if err := e.notif.Enviar(ctx, tecnicoPhone, mensaje); err != nil {
		log.Printf("❌ Escalado: brief a técnico: %v", err)
	}

	// Confirmation buttons ride the same window-aware path as the brief.
	activa, _ := e.sesiones.VentanaActiva(ctx, tecnicoPhone)
	if activa {
		_ = e.wa.EnviarBotonesTecnico(ctx, tecnicoPhone, "¿Puedes atender este ticket?", []Boton{
			{ID: "tec_si_" + ticketID, Titulo: "✅ Sí, voy"},
			{ID: "tec_no_" + ticketID, Titulo: "❌ No puedo"},
		})
	} else {
		_ = e.notif.Enviar(ctx, tecnicoPhone,
			fmt.Sprintf("¿Puedes atender el ticket #%s? Responde *tec_si_%s* o *tec_no_%s*.", ticketID, ticketID, ticketID))
	}
}

// RespuestaCliente is the acknowledgment after escalation. A failed ticket
// creation still yields an honest reply rather than blocking.
func RespuestaCliente(ticketID, destino string) string {
	quien := "técnico"
	if destino == models.DestinoNOC {
		quien = "especialista"
	}
	if ticketID == "" {
		return fmt.Sprintf(
			"He registrado tu caso y un %s revisará tu situación a la brevedad.\n\n"+
				"Si tienes alguna consulta adicional puedes escribirnos aquí. 🙏", quien)
	}
	return fmt.Sprintf(
		"He registrado tu caso con el ticket *#%s*. 📋\n\n"+
			"Un %s revisará tu caso y se pondrá en contacto contigo a la brevedad.\n\n"+
			"Si tienes alguna consulta adicional puedes escribirnos aquí. 🙏", ticketID, quien)
}

func recortar(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func nombreO(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
