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
	"github.com/krlozs/isp-ai/internal/storage"
)

// EntradaTecnico is one inbound technician message: free text, a button id,
// or a media id when the message carried a photo.
type EntradaTecnico struct {
	Texto    string
	ImagenID string
}

// frasesFinFotos end the evidence-collection phase.
var frasesFinFotos = map[string]bool{
	"fin fotos":   true,
	"fin":         true,
	"listo":       true,
	"ya":          true,
	"eso es todo": true,
}

// FlujoTecnico is the technician-side state machine: assignment
// confirmation, arrival tracking, the closure interview and photo evidence.
type FlujoTecnico struct {
	cfg       *config.Config
	sesiones  sessions.Store
	wa        Mensajeria
	tickets   Ticketera
	media     MediaStore
	notif     *Notificador
	registros storage.Store
}

// NewFlujoTecnico wires the technician flow.
func NewFlujoTecnico(cfg *config.Config, sesiones sessions.Store, wa Mensajeria,
	tickets Ticketera, media MediaStore, notif *Notificador, registros storage.Store) *FlujoTecnico {
	return &FlujoTecnico{
		cfg:       cfg,
		sesiones:  sesiones,
		wa:        wa,
		tickets:   tickets,
		media:     media,
		notif:     notif,
		registros: registros,
	}
}

// ProcesarMensaje handles one inbound message on the technician line. Any
// inbound traffic reopens the 24h messaging window and flushes whatever was
// queued while it was closed.
func (f *FlujoTecnico) ProcesarMensaje(ctx context.Context, phone string, entrada EntradaTecnico) {
	texto := strings.TrimSpace(entrada.Texto)

	if strings.HasPrefix(texto, "!") {
		f.comandoAdmin(ctx, phone, texto)
		return
	}

	autorizado, err := f.autorizado(ctx, phone)
	if err != nil {
		log.Printf("❌ FlujoTecnico: registro de técnicos: %v", err)
	}
	if !autorizado {
		// The window opens anyway: an admin may authorize this number and
		// queued messages must still reach it.
		_ = f.notif.AbrirVentana(ctx, phone)
		f.responder(ctx, phone, "⛔ Número no autorizado. Contacta al administrador si crees que es un error.")
		return
	}

	if err := f.notif.AbrirVentana(ctx, phone); err != nil {
		log.Printf("❌ FlujoTecnico: abrir ventana de %s: %v", phone, err)
	}
	if n, err := f.notif.EntregarPendientes(ctx, phone); err != nil {
		log.Printf("❌ FlujoTecnico: entregar pendientes a %s: %v", phone, err)
	} else if n > 0 {
		log.Printf("📬 FlujoTecnico: %d notificaciones pendientes entregadas a %s", n, phone)
	}

	s, err := f.sesiones.ObtenerTecnico(ctx, phone)
	if err != nil {
		log.Printf("❌ FlujoTecnico: sesión de %s: %v", phone, err)
		return
	}
	if s == nil || s.Fase == models.TecIdle {
		f.responder(ctx, phone, "✅ Estás activo. Te avisaré aquí cuando se te asigne un ticket.")
		return
	}

	switch s.Fase {
	case models.TecEsperandoConfir:
		f.faseConfirmacion(ctx, s, texto)
	case models.TecEnCamino:
		f.faseEnCamino(ctx, s, texto)
	case models.TecEnDomicilio:
		f.faseEnDomicilio(ctx, s, texto)
	case models.TecCierreP1:
		f.faseCierrePregunta(ctx, s, texto, &s.Falla, models.TecCierreP2,
			"2/3 — ¿Cuál fue la *solución* aplicada? 🔧")
	case models.TecCierreP2:
		f.faseCierrePregunta(ctx, s, texto, &s.Solucion, models.TecCierreP3,
			"3/3 — ¿Qué *materiales* utilizaste? (escribe *ninguno* si no usaste)")
	case models.TecCierreP3:
		f.faseCierreMateriales(ctx, s, texto)
	case models.TecCierreFotos:
		f.faseCierreFotos(ctx, s, entrada)
	}
}

func (f *FlujoTecnico) responder(ctx context.Context, phone, body string) {
	if err := f.wa.EnviarTextoTecnico(ctx, phone, body); err != nil {
		log.Printf("❌ FlujoTecnico: envío a %s: %v", phone, err)
	}
}

func (f *FlujoTecnico) guardar(ctx context.Context, s *models.SesionTecnico) {
	if err := f.sesiones.GuardarTecnico(ctx, s); err != nil {
		log.Printf("❌ FlujoTecnico: guardar sesión de %s: %v", s.Phone, err)
	}
}

func (f *FlujoTecnico) autorizado(ctx context.Context, phone string) (bool, error) {
	tecnicos, err := f.sesiones.Tecnicos(ctx)
	if err != nil {
		return false, err
	}
	t, ok := tecnicos[phone]
	return ok && t.Activo, nil
}

// faseConfirmacion handles the accept/decline buttons of a new assignment.
func (f *FlujoTecnico) faseConfirmacion(ctx context.Context, s *models.SesionTecnico, texto string) {
	switch {
	case strings.HasPrefix(texto, "tec_si_"):
		// Accepting means heading out: both marks land together.
		ahora := time.Now()
		s.TsConfirmado = &ahora
		s.TsEnCamino = &ahora
		s.Fase = models.TecEnCamino
		f.guardar(ctx, s)
		f.responder(ctx, s.Phone, fmt.Sprintf(
			"✅ Ticket *#%s* confirmado.\n\nEscribe *tec_llegue_%s* o pulsa el botón cuando llegues al domicilio.",
			s.TicketID, s.TicketID))
		_ = f.wa.EnviarBotonesTecnico(ctx, s.Phone, "Avísame cuando llegues 👇", []Boton{
			{ID: "tec_llegue_" + s.TicketID, Titulo: "📍 Llegué"},
		})
		f.avisarCliente(ctx, s, fmt.Sprintf(
			"👷 El técnico *%s* confirmó tu caso (#%s) y está en camino. Te avisaré cuando llegue.",
			s.Nombre, s.TicketID))

	case strings.HasPrefix(texto, "tec_no_"):
		f.responder(ctx, s.Phone, fmt.Sprintf(
			"Entendido, el ticket *#%s* queda sin asignar. Un coordinador lo reasignará.", s.TicketID))
		if f.cfg.AdminWhatsApp != "" {
			_ = f.notif.Enviar(ctx, f.cfg.AdminWhatsApp, fmt.Sprintf(
				"⚠️ El técnico %s (%s) rechazó el ticket #%s. Requiere reasignación manual.",
				s.Nombre, s.Phone, s.TicketID))
		}
		if err := f.sesiones.BorrarTecnico(ctx, s.Phone); err != nil {
			log.Printf("❌ FlujoTecnico: borrar sesión de %s: %v", s.Phone, err)
		}

	default:
		_ = f.wa.EnviarBotonesTecnico(ctx, s.Phone,
			fmt.Sprintf("Tienes el ticket *#%s* pendiente de confirmar. ¿Puedes atenderlo?", s.TicketID),
			[]Boton{
				{ID: "tec_si_" + s.TicketID, Titulo: "✅ Sí, voy"},
				{ID: "tec_no_" + s.TicketID, Titulo: "❌ No puedo"},
			})
	}
}

func (f *FlujoTecnico) faseEnCamino(ctx context.Context, s *models.SesionTecnico, texto string) {
	if !strings.HasPrefix(texto, "tec_llegue_") && !strings.EqualFold(texto, "llegué") && !strings.EqualFold(texto, "llegue") {
		f.responder(ctx, s.Phone, fmt.Sprintf(
			"Sigues *en camino* al ticket #%s. Pulsa el botón o escribe *llegué* cuando estés en el domicilio. 📍", s.TicketID))
		return
	}

	ahora := time.Now()
	s.TsLlegada = &ahora
	s.Fase = models.TecEnDomicilio
	f.guardar(ctx, s)
	f.responder(ctx, s.Phone, fmt.Sprintf(
		"📍 Llegada registrada.\n\nCuando termines el trabajo pulsa el botón o escribe *tec_listo_%s*.", s.TicketID))
	_ = f.wa.EnviarBotonesTecnico(ctx, s.Phone, "Avísame cuando termines 👇", []Boton{
		{ID: "tec_listo_" + s.TicketID, Titulo: "✅ Trabajo listo"},
	})
	f.avisarCliente(ctx, s, fmt.Sprintf(
		"🔔 El técnico *%s* llegó a tu domicilio para atender el ticket #%s.", s.Nombre, s.TicketID))
}

func (f *FlujoTecnico) faseEnDomicilio(ctx context.Context, s *models.SesionTecnico, texto string) {
	if !strings.HasPrefix(texto, "tec_listo_") && !strings.EqualFold(texto, "listo") {
		f.responder(ctx, s.Phone, fmt.Sprintf(
			"Estás *en el domicilio* del ticket #%s. Pulsa el botón o escribe *listo* cuando termines. 🔧", s.TicketID))
		return
	}

	s.Fase = models.TecCierreP1
	f.guardar(ctx, s)
	f.responder(ctx, s.Phone,
		"¡Buen trabajo! 🎉 Tres preguntas rápidas para cerrar el ticket:\n\n1/3 — ¿Cuál era la *falla* encontrada?")
}

// faseCierrePregunta stores one free-text interview answer and asks the next
// question.
func (f *FlujoTecnico) faseCierrePregunta(ctx context.Context, s *models.SesionTecnico, texto string, destino *string, siguiente models.FaseTecnico, pregunta string) {
	if texto == "" {
		f.responder(ctx, s.Phone, "Necesito una respuesta en texto para continuar con el cierre. ✍️")
		return
	}
	*destino = texto
	s.Fase = siguiente
	f.guardar(ctx, s)
	f.responder(ctx, s.Phone, pregunta)
}

func (f *FlujoTecnico) faseCierreMateriales(ctx context.Context, s *models.SesionTecnico, texto string) {
	if texto == "" {
		f.responder(ctx, s.Phone, "Necesito una respuesta en texto para continuar con el cierre. ✍️")
		return
	}
	s.Materiales = texto
	s.Fase = models.TecCierreFotos
	f.guardar(ctx, s)
	f.responder(ctx, s.Phone,
		"📸 Por último, envía las *fotos de evidencia* del trabajo.\n\nCuando termines escribe *fin fotos*. Si no hay fotos, escribe *fin fotos* directamente.")
}

// faseCierreFotos collects evidence photos until a termination phrase, then
// runs the closure: external ticket close, durable record, both
// notifications and session teardown.
func (f *FlujoTecnico) faseCierreFotos(ctx context.Context, s *models.SesionTecnico, entrada EntradaTecnico) {
	if entrada.ImagenID != "" {
		f.subirFoto(ctx, s, entrada.ImagenID)
		return
	}

	if !frasesFinFotos[strings.ToLower(strings.TrimSpace(entrada.Texto))] {
		f.responder(ctx, s.Phone,
			"Envía más fotos o escribe *fin fotos* para cerrar el ticket. 📸")
		return
	}

	f.cerrarTicket(ctx, s)
}

func (f *FlujoTecnico) subirFoto(ctx context.Context, s *models.SesionTecnico, mediaID string) {
	if f.media == nil {
		f.responder(ctx, s.Phone, "El almacenamiento de fotos no está disponible. Escribe *fin fotos* para cerrar sin evidencias.")
		return
	}
	data, err := f.wa.DescargarMedia(ctx, mediaID)
	if err != nil {
		log.Printf("❌ FlujoTecnico: descarga de media %s: %v", mediaID, err)
		f.responder(ctx, s.Phone, "No pude descargar esa foto, inténtalo de nuevo. 🙏")
		return
	}
	url, err := f.media.SubirEvidencia(ctx, data, s.TicketID)
	if err != nil {
		log.Printf("❌ FlujoTecnico: subida de evidencia para #%s: %v", s.TicketID, err)
		f.responder(ctx, s.Phone, "No pude guardar esa foto, inténtalo de nuevo. 🙏")
		return
	}
	s.Fotos = append(s.Fotos, url)
	f.guardar(ctx, s)
	f.responder(ctx, s.Phone, fmt.Sprintf(
		"✅ Foto %d recibida. Envía más o escribe *fin fotos* para terminar.", len(s.Fotos)))
}

func (f *FlujoTecnico) cerrarTicket(ctx context.Context, s *models.SesionTecnico) {
	ahora := time.Now()
	s.TsCierre = &ahora

	motivo := ConstruirMotivoCierre(s)

	cerrado := true
	if err := f.tickets.CerrarTicket(ctx, s.TicketID, motivo); err != nil {
		cerrado = false
		log.Printf("❌ FlujoTecnico: cierre externo de #%s: %v", s.TicketID, err)
	}

	if err := f.registros.GuardarCierre(&models.CierreTicket{
		TicketID:     s.TicketID,
		TecnicoPhone: s.Phone,
		TecnicoName:  s.Nombre,
		Falla:        s.Falla,
		Solucion:     s.Solucion,
		Materiales:   s.Materiales,
		NumFotos:     len(s.Fotos),
		TTR:          CalcularTTR(s.TsAsignado, s.TsCierre),
		CerradoAt:    ahora,
	}); err != nil {
		log.Printf("❌ FlujoTecnico: guardar registro de cierre de #%s: %v", s.TicketID, err)
	}

	if cerrado {
		f.responder(ctx, s.Phone, fmt.Sprintf(
			"🎉 Ticket *#%s* cerrado correctamente.\n\n📋 Resumen:\n%s", s.TicketID, motivo))
	} else {
		f.responder(ctx, s.Phone, fmt.Sprintf(
			"⚠️ Registré tu trabajo pero el sistema de tickets no respondió: ciérralo manualmente en MikroWisp (#%s).", s.TicketID))
	}

	f.avisarClienteCierre(ctx, s)

	if err := f.sesiones.BorrarTecnico(ctx, s.Phone); err != nil {
		log.Printf("❌ FlujoTecnico: borrar sesión de %s: %v", s.Phone, err)
	}
}

// avisarClienteCierre notifies the customer and moves their session to the
// satisfaction survey.
func (f *FlujoTecnico) avisarClienteCierre(ctx context.Context, s *models.SesionTecnico) {
	if s.ClientePhone == "" {
		return
	}
	if err := f.wa.EnviarBotones(ctx, s.ClientePhone, fmt.Sprintf(
		"✅ El técnico terminó el trabajo de tu ticket *#%s*.\n\n"+
			"Prueba tu conexión y califica la atención del 1 al 5, donde 5 es excelente ⭐", s.TicketID),
		[]Boton{
			{ID: "csat_1", Titulo: "⭐ 1"},
			{ID: "csat_3", Titulo: "⭐ 3"},
			{ID: "csat_5", Titulo: "⭐ 5"},
		}); err != nil {
		log.Printf("❌ FlujoTecnico: aviso de cierre a %s: %v", s.ClientePhone, err)
	}

	cliente, err := f.sesiones.ObtenerCliente(ctx, s.ClientePhone)
	if err != nil {
		log.Printf("❌ FlujoTecnico: sesión de cliente %s: %v", s.ClientePhone, err)
		return
	}
	cliente.Fase = models.FaseCSAT
	cliente.TicketID = s.TicketID
	cliente.AgregarPaso(pasoCierreTecnico)
	if err := f.sesiones.GuardarCliente(ctx, cliente); err != nil {
		log.Printf("❌ FlujoTecnico: guardar sesión de cliente %s: %v", s.ClientePhone, err)
	}
}

func (f *FlujoTecnico) avisarCliente(ctx context.Context, s *models.SesionTecnico, body string) {
	if s.ClientePhone == "" {
		return
	}
	if err := f.wa.EnviarTexto(ctx, s.ClientePhone, body); err != nil {
		log.Printf("❌ FlujoTecnico: aviso a cliente %s: %v", s.ClientePhone, err)
	}
}

// CalcularTTR renders the elapsed time between two timeline marks as
// "XhYYm", or "N/D" if either mark is missing.
func CalcularTTR(desde, hasta *time.Time) string {
	if desde == nil || hasta == nil {
		return "N/D"
	}
	d := hasta.Sub(*desde)
	if d < 0 {
		return "N/D"
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

// ConstruirMotivoCierre renders the closure report written into the ticket.
func ConstruirMotivoCierre(s *models.SesionTecnico) string {
	fechaO := func(t *time.Time) string {
		if t == nil {
			return "N/D"
		}
		return t.Format("02/01/2006 15:04")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CIERRE DE TICKET #%s\n%s\n", s.TicketID, strings.Repeat("=", 40))
	fmt.Fprintf(&b, "Técnico: %s (%s)\n\n", s.Nombre, s.Phone)
	fmt.Fprintf(&b, "LINEA DE TIEMPO\n")
	fmt.Fprintf(&b, "  Asignado:   %s\n", fechaO(s.TsAsignado))
	fmt.Fprintf(&b, "  Confirmado: %s\n", fechaO(s.TsConfirmado))
	fmt.Fprintf(&b, "  En camino:  %s\n", fechaO(s.TsEnCamino))
	fmt.Fprintf(&b, "  Llegada:    %s\n", fechaO(s.TsLlegada))
	fmt.Fprintf(&b, "  Cierre:     %s\n", fechaO(s.TsCierre))
	fmt.Fprintf(&b, "  TTR total:    %s\n", CalcularTTR(s.TsAsignado, s.TsCierre))
	fmt.Fprintf(&b, "  TTR en sitio: %s\n\n", CalcularTTR(s.TsLlegada, s.TsCierre))
	fmt.Fprintf(&b, "DIAGNÓSTICO\n")
	fmt.Fprintf(&b, "  Falla:      %s\n", s.Falla)
	fmt.Fprintf(&b, "  Solución:   %s\n", s.Solucion)
	fmt.Fprintf(&b, "  Materiales: %s\n\n", s.Materiales)
	fmt.Fprintf(&b, "EVIDENCIAS\n")
	if len(s.Fotos) == 0 {
		b.WriteString("  Sin evidencias\n")
	} else {
		for _, url := range s.Fotos {
			fmt.Fprintf(&b, "  %s\n", url)
		}
	}
	b.WriteString("\nCerrado por: ARIA Bot (automático)")
	return b.String()
}

// comandoAdmin handles the registry commands. Only the configured
// administrator number may use them.
func (f *FlujoTecnico) comandoAdmin(ctx context.Context, phone, texto string) {
	if phone != f.cfg.AdminWhatsApp || f.cfg.AdminWhatsApp == "" {
		f.responder(ctx, phone, "⛔ No tienes permisos de administrador.")
		return
	}
	_ = f.notif.AbrirVentana(ctx, phone)

	partes := strings.Fields(texto)
	tecnicos, err := f.sesiones.Tecnicos(ctx)
	if err != nil {
		log.Printf("❌ FlujoTecnico: registro de técnicos: %v", err)
		f.responder(ctx, phone, "No pude leer el registro de técnicos. Inténtalo de nuevo.")
		return
	}
	if tecnicos == nil {
		tecnicos = map[string]models.TecnicoAutorizado{}
	}

	switch partes[0] {
	case "!addtec":
		if len(partes) < 3 {
			f.responder(ctx, phone, "Uso: *!addtec <número> <nombre>*")
			return
		}
		numero := partes[1]
		nombre := strings.Join(partes[2:], " ")
		tecnicos[numero] = models.TecnicoAutorizado{Nombre: nombre, Activo: true}
		if err := f.sesiones.GuardarTecnicos(ctx, tecnicos); err != nil {
			log.Printf("❌ FlujoTecnico: guardar registro: %v", err)
			f.responder(ctx, phone, "No pude guardar el registro. Inténtalo de nuevo.")
			return
		}
		f.responder(ctx, phone, fmt.Sprintf("✅ Técnico *%s* (%s) autorizado.", nombre, numero))

	case "!deltec":
		if len(partes) < 2 {
			f.responder(ctx, phone, "Uso: *!deltec <número>*")
			return
		}
		numero := partes[1]
		if _, ok := tecnicos[numero]; !ok {
			f.responder(ctx, phone, fmt.Sprintf("El número %s no está en el registro.", numero))
			return
		}
		delete(tecnicos, numero)
		if err := f.sesiones.GuardarTecnicos(ctx, tecnicos); err != nil {
			log.Printf("❌ FlujoTecnico: guardar registro: %v", err)
			f.responder(ctx, phone, "No pude guardar el registro. Inténtalo de nuevo.")
			return
		}
		f.responder(ctx, phone, fmt.Sprintf("✅ Técnico %s eliminado del registro.", numero))

	case "!listec":
		if len(tecnicos) == 0 {
			f.responder(ctx, phone, "No hay técnicos autorizados.")
			return
		}
		var b strings.Builder
		b.WriteString("👷 *Técnicos autorizados:*\n")
		for numero, t := range tecnicos {
			estado := "activo"
			if !t.Activo {
				estado = "inactivo"
			}
			fmt.Fprintf(&b, "• %s — %s (%s)\n", numero, t.Nombre, estado)
		}
		f.responder(ctx, phone, b.String())

	default:
		f.responder(ctx, phone, "Comando desconocido. Disponibles: *!addtec*, *!deltec*, *!listec*.")
	}
}
