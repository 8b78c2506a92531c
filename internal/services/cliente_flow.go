package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/sessions"
	"github.com/krlozs/isp-ai/internal/storage"
)

// Verificador launches the detached reboot verification task. Implemented
// by the jobs package; an interface here keeps the flow testable.
type Verificador interface {
	Lanzar(phone, serial string, s *models.SesionCliente)
}

// contratoPattern matches a contract or national-id number inside free text.
var contratoPattern = regexp.MustCompile(`\b\d{6,12}\b`)

// pasoCierreTecnico marks sessions whose ticket was closed by a field visit,
// so the CSAT record carries the right resolution type.
const pasoCierreTecnico = "cierre_tecnico"

// FlujoCliente is the customer-side state machine. One instance serves all
// conversations; all state lives in the session store.
type FlujoCliente struct {
	cfg         *config.Config
	sesiones    sessions.Store
	directorio  Directorio
	facturacion Facturacion
	telemetria  Telemetria
	wa          Mensajeria
	llm         Redactor
	prober      Prober
	escalador   *Escalador
	verificador Verificador
	registros   storage.Store
}

// NewFlujoCliente wires the customer flow.
func NewFlujoCliente(cfg *config.Config, sesiones sessions.Store, directorio Directorio,
	facturacion Facturacion, telemetria Telemetria, wa Mensajeria, llm Redactor,
	prober Prober, escalador *Escalador, verificador Verificador, registros storage.Store) *FlujoCliente {
	return &FlujoCliente{
		cfg:         cfg,
		sesiones:    sesiones,
		directorio:  directorio,
		facturacion: facturacion,
		telemetria:  telemetria,
		wa:          wa,
		llm:         llm,
		prober:      prober,
		escalador:   escalador,
		verificador: verificador,
		registros:   registros,
	}
}

// ProcesarMensaje handles one inbound customer message. Interactive replies
// arrive as their element id in texto. Phase handlers return true to
// re-dispatch on the new phase without further input; the loop is bounded so
// a transition bug cannot spin.
func (f *FlujoCliente) ProcesarMensaje(ctx context.Context, phone, texto string) {
	s, err := f.sesiones.ObtenerCliente(ctx, phone)
	if err != nil {
		log.Printf("❌ FlujoCliente: sesión de %s: %v", phone, err)
		return
	}
	if !s.Fase.Valida() {
		log.Printf("⚠️ FlujoCliente: fase desconocida %q para %s, reiniciando sesión", s.Fase, phone)
		s = models.NuevaSesionCliente(phone)
	}

	borrada := false
	for paso := 0; paso < f.cfg.MaxPasosFlujo; paso++ {
		var seguir bool
		switch s.Fase {
		case models.FaseIdentificacion:
			seguir = f.faseIdentificacion(ctx, s, texto)
		case models.FaseDiagnosticoRed:
			seguir = f.faseDiagnosticoRed(ctx, s)
		case models.FaseTroubleshootingManual:
			seguir = f.faseTroubleshootingManual(ctx, s, texto)
		case models.FaseTroubleshooting:
			seguir = f.faseTroubleshooting(ctx, s, texto)
		case models.FasePreguntasNoInet:
			seguir = f.fasePreguntasNoInet(ctx, s, texto)
		case models.FaseRebootPendiente:
			f.responder(ctx, s.Phone, "⏳ Estoy reiniciando tu equipo en este momento. Dame un par de minutos y te confirmo el resultado.")
		case models.FaseEscalado:
			seguir = f.faseEscalado(ctx, s, texto)
		case models.FaseEsperandoTecnico:
			f.faseEsperandoTecnico(ctx, s, texto)
		case models.FaseCSAT:
			borrada = f.faseCSAT(ctx, s, texto)
		case models.FaseFinalizadoMora:
			f.responder(ctx, s.Phone, "Tu servicio se encuentra suspendido por falta de pago. Se reactivará automáticamente al confirmarse el pago. 🙏")
		}
		if !seguir {
			break
		}
	}

	if borrada {
		return
	}
	if err := f.sesiones.GuardarCliente(ctx, s); err != nil {
		log.Printf("❌ FlujoCliente: guardar sesión de %s: %v", phone, err)
	}
}

func (f *FlujoCliente) responder(ctx context.Context, phone, body string) {
	if err := f.wa.EnviarTexto(ctx, phone, body); err != nil {
		log.Printf("❌ FlujoCliente: envío a %s: %v", phone, err)
	}
}

// faseIdentificacion greets until a contract number appears, then loads the
// customer and either proceeds to diagnostics or ends the flow on unpaid
// suspension.
func (f *FlujoCliente) faseIdentificacion(ctx context.Context, s *models.SesionCliente, texto string) bool {
	contrato := contratoPattern.FindString(texto)
	if contrato == "" {
		f.responder(ctx, s.Phone, f.llm.Responder(ctx, fmt.Sprintf(promptSaludo, texto), s, texto))
		return false
	}

	cliente, err := f.directorio.BuscarCliente(ctx, contrato)
	if err != nil {
		f.responder(ctx, s.Phone, "Tuve un problema consultando el sistema. ¿Puedes intentarlo de nuevo en unos minutos? 🙏")
		return false
	}
	if cliente == nil {
		f.responder(ctx, s.Phone, fmt.Sprintf(
			"No encontré ningún cliente con el número *%s*. 🔍\n\nVerifica el número de contrato o cédula e inténtalo de nuevo.", contrato))
		return false
	}

	s.Contrato = contrato
	s.IDCliente = cliente.ID
	s.Nombre = cliente.Nombre
	s.Plan = cliente.Plan
	s.SerialONT = cliente.SerialONT
	s.IPCliente = cliente.IPCliente

	saldo := f.facturacion.SaldoPendiente(ctx, cliente.ID)
	saldoTexto := fmt.Sprintf("$%.2f", saldo)
	mora := saldo > 0 && strings.Contains(strings.ToLower(cliente.Estado), "suspendido")

	estadoCuenta := "ACTIVO"
	if mora {
		estadoCuenta = "CORTADO_MORA"
	}
	prompt := fmt.Sprintf(promptClienteIdentificado,
		cliente.Nombre, cliente.Plan, cliente.Estado, saldoTexto, estadoCuenta, saldoTexto)
	f.responder(ctx, s.Phone, f.llm.Responder(ctx, prompt, s, texto))

	if mora {
		s.Fase = models.FaseFinalizadoMora
		return false
	}
	s.Fase = models.FaseDiagnosticoRed
	return true
}

// faseDiagnosticoRed runs without user input right after identification:
// sample the ONT and branch on what the optics say.
func (f *FlujoCliente) faseDiagnosticoRed(ctx context.Context, s *models.SesionCliente) bool {
	if s.SerialONT == "" {
		f.desplegarMenuKPI(ctx, s)
		return false
	}

	estado := f.telemetria.EstadoONT(ctx, s.SerialONT)
	if EstadoCritico(estado) {
		s.Fase = models.FaseTroubleshootingManual
		s.AgregarPaso("ont_estado:" + estado)
		f.responder(ctx, s.Phone,
			"Revisé tu equipo y lo veo *sin conexión* con nuestra red. 🔴\n\n"+
				"¿Podrías verificar que esté encendido y que los cables de luz y de fibra estén bien conectados? "+
				"Avísame cuando lo hayas revisado.")
		return false
	}

	if estado == "online" {
		senal := f.telemetria.SenalRx(ctx, s.SerialONT)
		if SenalDegradada(senal, f.cfg) {
			s.AgregarPaso("senal_degradada")
			s.KPIActivo = "senal_degradada"
			f.lanzarReboot(ctx, s)
			return false
		}
	}

	f.desplegarMenuKPI(ctx, s)
	return false
}

// lanzarReboot moves the session to the waiting phase, persists it and hands
// off to the background verification task.
func (f *FlujoCliente) lanzarReboot(ctx context.Context, s *models.SesionCliente) {
	s.Fase = models.FaseRebootPendiente
	f.responder(ctx, s.Phone,
		"Detecté una anomalía en tu equipo y voy a intentar corregirla con un *reinicio remoto*. 🔄\n\n"+
			"Esto toma unos 2 minutos. Te aviso apenas termine, no necesitas hacer nada. ⏳")
	if err := f.sesiones.GuardarCliente(ctx, s); err != nil {
		log.Printf("❌ FlujoCliente: guardar sesión pre-reboot de %s: %v", s.Phone, err)
	}
	f.verificador.Lanzar(s.Phone, s.SerialONT, s)
}

func (f *FlujoCliente) desplegarMenuKPI(ctx context.Context, s *models.SesionCliente) {
	s.Fase = models.FaseTroubleshooting
	s.AgregarPaso("menu_desplegado")
	err := f.wa.EnviarLista(ctx, s.Phone,
		"Diagnóstico de tu servicio",
		"Tu equipo se ve bien desde nuestra red. Para ayudarte mejor, selecciona la opción que más se parezca a tu problema 👇",
		"Ver opciones",
		[]Seccion{
			{Titulo: "Velocidad", Filas: []Fila{
				{ID: "kpi_lento_todo", Titulo: "Internet lento", Descripcion: "En todos los dispositivos"},
				{ID: "kpi_wifi_lento", Titulo: "WiFi lento", Descripcion: "Solo por WiFi"},
				{ID: "kpi_lag", Titulo: "Lag en juegos", Descripcion: "Ping alto en juegos online"},
			}},
			{Titulo: "Conexión", Filas: []Fila{
				{ID: "kpi_no_internet", Titulo: "Sin internet", Descripcion: "No navega nada"},
				{ID: "kpi_intermitente", Titulo: "Se corta", Descripcion: "Va y viene a ratos"},
			}},
			{Titulo: "Otros", Filas: []Fila{
				{ID: "kpi_dns", Titulo: "No cargan páginas", Descripcion: "Apps sí, webs no"},
				{ID: "kpi_wifi_no_aparece", Titulo: "WiFi no aparece", Descripcion: "La red no se ve"},
			}},
		})
	if err != nil {
		log.Printf("❌ FlujoCliente: menú KPI a %s: %v", s.Phone, err)
	}
}

// faseTroubleshootingManual interprets the customer's report on a dead ONT.
// "Everything looks normal" contradicts the telemetry and escalates directly;
// any reported anomaly triggers a re-sample, since the customer may have
// just fixed a loose cable or plug.
func (f *FlujoCliente) faseTroubleshootingManual(ctx context.Context, s *models.SesionCliente, texto string) bool {
	lower := strings.ToLower(strings.TrimSpace(texto))

	normal := false
	for _, palabra := range strings.Fields(lower) {
		switch palabra {
		case "sí", "si", "normal", "normales", "bien":
			normal = true
		}
	}
	if normal {
		s.KPIActivo = "ont_offline_sin_causa_aparente"
		s.DatosTecnicos = fmt.Sprintf(
			"ONT reportada OFFLINE por el sistema.\n"+
				"Pasos del cliente: %s\n"+
				"Cliente confirmó que luces y cables se ven normales.\n"+
				"Serial ONT: %s\nIP cliente: %s",
			strings.Join(s.PasosRealizados, ", "), s.SerialONT, s.IPCliente)
		s.DestinoEscalado = models.DestinoTecnico
		s.Fase = models.FaseEscalado
		return true
	}

	estado := f.telemetria.EstadoONT(ctx, s.SerialONT)
	if estado == "online" {
		s.AgregarPaso("recuperado_manual")
		s.Fase = models.FaseCSAT
		f.responder(ctx, s.Phone, "¡Excelente! Tu equipo volvió a estar *en línea*. ✅")
		f.pedirCalificacion(ctx, s, "resuelto con tu ayuda, de forma remota")
		return false
	}

	s.KPIActivo = "ont_offline_confirmado"
	s.DatosTecnicos = fmt.Sprintf(
		"ONT OFFLINE confirmado.\n"+
			"Cliente reportó anomalías en luces/cables.\n"+
			"Serial ONT: %s\nIP cliente: %s",
		s.SerialONT, s.IPCliente)
	s.DestinoEscalado = models.DestinoTecnico
	s.Fase = models.FaseEscalado
	return true
}

// kpiVelocidad groups the categories that a remote reboot can usually fix.
func kpiVelocidad(kpi string) bool {
	switch kpi {
	case "kpi_lento_todo", "kpi_wifi_lento", "kpi_lag":
		return true
	}
	return false
}

// faseTroubleshooting dispatches on the KPI the customer picked from the list.
func (f *FlujoCliente) faseTroubleshooting(ctx context.Context, s *models.SesionCliente, texto string) bool {
	kpi := strings.TrimSpace(texto)
	if _, conocido := kpiLabels[kpi]; !conocido {
		f.desplegarMenuKPI(ctx, s)
		return false
	}
	s.KPIActivo = kpi
	s.AgregarPaso("kpi:" + kpi)

	switch {
	case kpiVelocidad(kpi):
		if s.SerialONT != "" && !s.RebootEjecutado {
			f.lanzarReboot(ctx, s)
			return false
		}
		s.DestinoEscalado = models.DestinoTecnico
		s.Fase = models.FaseEscalado
		return true

	case kpi == "kpi_no_internet":
		s.DestinoEscalado = models.DestinoTecnico
		// Missing serial or an unreadable status counts as offline.
		estado := "offline"
		if s.SerialONT != "" {
			if e := f.telemetria.EstadoONT(ctx, s.SerialONT); e != "" {
				estado = e
			}
		}
		s.AgregarPaso("ont_estado:" + estado)
		if EstadoCritico(estado) {
			s.DatosTecnicos = fmt.Sprintf(
				"KPI: Sin internet.\nEstado ONT al verificar: %s\nSerial ONT: %s\nIP cliente: %s",
				estado, s.SerialONT, s.IPCliente)
			s.Fase = models.FaseEscalado
			return true
		}
		// The ONT looks online but the customer cannot navigate: interview.
		s.Fase = models.FasePreguntasNoInet
		f.preguntarLuces(ctx, s)
		return false

	case kpi == "kpi_intermitente":
		s.DatosTecnicos = f.recopilarDiagnostico(ctx, s)
		s.DestinoEscalado = models.DestinoTecnico
		s.Fase = models.FaseEscalado
		return true

	case kpi == "kpi_dns":
		s.DatosTecnicos = f.recopilarDiagnostico(ctx, s)
		s.DestinoEscalado = models.DestinoNOC
		s.Fase = models.FaseEscalado
		return true

	case kpi == "kpi_wifi_no_aparece":
		s.DestinoEscalado = models.DestinoNOC
		s.Fase = models.FaseEscalado
		return true
	}

	f.desplegarMenuKPI(ctx, s)
	return false
}

func (f *FlujoCliente) preguntarLuces(ctx context.Context, s *models.SesionCliente) {
	err := f.wa.EnviarBotones(ctx, s.Phone,
		"Para ubicar la falla necesito tu ayuda. 🔍\n\n¿Cómo ves las luces de tu equipo (router/ONT)?",
		[]Boton{
			{ID: "luces_roja", Titulo: "🔴 Hay luz roja"},
			{ID: "luces_apagadas", Titulo: "⚫ Todas apagadas"},
			{ID: "luces_normal", Titulo: "🟢 Se ven normales"},
		})
	if err != nil {
		log.Printf("❌ FlujoCliente: pregunta luces a %s: %v", s.Phone, err)
	}
}

// fasePreguntasNoInet walks the two questions for an ONT that looks online
// while the customer has no internet: equipment lights, then recent power
// cuts. Both answers travel in the findings attached to the ticket.
func (f *FlujoCliente) fasePreguntasNoInet(ctx context.Context, s *models.SesionCliente, texto string) bool {
	id := strings.TrimSpace(texto)

	if strings.HasPrefix(id, "luces_") {
		s.AgregarPaso(id)
		err := f.wa.EnviarBotones(ctx, s.Phone,
			"Entendido. Una última pregunta:\n\n¿Hubo algún corte de energía o se movieron cables recientemente? ⚡",
			[]Boton{
				{ID: "corte_si", Titulo: "Sí"},
				{ID: "corte_no", Titulo: "No"},
			})
		if err != nil {
			log.Printf("❌ FlujoCliente: pregunta corte a %s: %v", s.Phone, err)
		}
		return false
	}

	if id == "corte_si" || id == "corte_no" {
		s.AgregarPaso(id)
		luces := "desconocido"
		for _, paso := range s.PasosRealizados {
			if strings.HasPrefix(paso, "luces_") {
				luces = strings.TrimPrefix(paso, "luces_")
			}
		}
		corte := "No"
		if id == "corte_si" {
			corte = "Sí"
		}
		s.DatosTecnicos = fmt.Sprintf(
			"KPI: Sin acceso a internet (ONT aparece online).\n"+
				"Luces del equipo: %s\nCorte de luz previo: %s\nSerial ONT: %s\nIP cliente: %s",
			luces, corte, s.SerialONT, s.IPCliente)
		s.DestinoEscalado = models.DestinoTecnico
		s.Fase = models.FaseEscalado
		return true
	}

	f.preguntarLuces(ctx, s)
	return false
}

// faseEscalado executes the escalation protocol and parks the conversation
// until a human resolves the ticket.
func (f *FlujoCliente) faseEscalado(ctx context.Context, s *models.SesionCliente, texto string) bool {
	if s.DatosTecnicos == "" && s.SerialONT != "" {
		s.DatosTecnicos = f.recopilarDiagnostico(ctx, s)
	}

	ticketID := f.escalador.CrearTicket(ctx, s, ExtraerHorario(texto))
	s.TicketID = ticketID
	f.escalador.NotificarDestino(ctx, s, ticketID)

	f.responder(ctx, s.Phone, RespuestaCliente(ticketID, s.DestinoEscalado))
	s.Fase = models.FaseEsperandoTecnico
	return false
}

func (f *FlujoCliente) faseEsperandoTecnico(ctx context.Context, s *models.SesionCliente, texto string) {
	quien := "técnico asignado"
	if s.DestinoEscalado == models.DestinoNOC {
		quien = "equipo del NOC"
	}
	ticket := s.TicketID
	if ticket == "" {
		ticket = "N/D"
	}
	prompt := fmt.Sprintf(promptEsperandoTecnico, s.Nombre, ticket, quien, texto)
	f.responder(ctx, s.Phone, f.llm.Responder(ctx, prompt, s, texto))
}

func (f *FlujoCliente) pedirCalificacion(ctx context.Context, s *models.SesionCliente, resolucion string) {
	body := f.llm.Responder(ctx, fmt.Sprintf(promptCSAT, s.Nombre, resolucion), s, "")
	err := f.wa.EnviarBotones(ctx, s.Phone, body, []Boton{
		{ID: "csat_1", Titulo: "⭐ 1"},
		{ID: "csat_3", Titulo: "⭐ 3"},
		{ID: "csat_5", Titulo: "⭐ 5"},
	})
	if err != nil {
		log.Printf("❌ FlujoCliente: botones CSAT a %s: %v", s.Phone, err)
	}
}

// faseCSAT records the rating, closes what remains open and ends the
// conversation. Returns true when the session was deleted.
func (f *FlujoCliente) faseCSAT(ctx context.Context, s *models.SesionCliente, texto string) bool {
	nota := strings.TrimSpace(texto)
	switch nota {
	case "1", "2", "3", "4", "5":
	default:
		err := f.wa.EnviarBotones(ctx, s.Phone,
			"Por favor califica la atención del 1 al 5, donde 5 es excelente 😊",
			[]Boton{
				{ID: "csat_1", Titulo: "⭐ 1"},
				{ID: "csat_3", Titulo: "⭐ 3"},
				{ID: "csat_5", Titulo: "⭐ 5"},
			})
		if err != nil {
			log.Printf("❌ FlujoCliente: reintento CSAT a %s: %v", s.Phone, err)
		}
		return false
	}

	if s.TicketID != "" {
		// Best effort: tickets closed by a field visit are already closed.
		_ = f.escalador.tickets.CerrarTicket(ctx, s.TicketID, "Resuelto. CSAT: "+nota+"/5")
	}

	resolucion := "REMOTA"
	for _, paso := range s.PasosRealizados {
		if paso == pasoCierreTecnico {
			resolucion = "VISITA_TECNICA"
			break
		}
	}
	if err := f.registros.GuardarEncuesta(&models.EncuestaCSAT{
		Phone:        s.Phone,
		TicketID:     s.TicketID,
		Calificacion: int(nota[0] - '0'),
		Resolucion:   resolucion,
		RecibidoAt:   time.Now(),
	}); err != nil {
		log.Printf("❌ FlujoCliente: guardar encuesta de %s: %v", s.Phone, err)
	}

	f.responder(ctx, s.Phone,
		"¡Gracias por tu calificación! ⭐\n\nFue un gusto ayudarte. Si vuelves a tener problemas, escríbeme cuando quieras. 👋")
	if err := f.sesiones.BorrarCliente(ctx, s.Phone); err != nil {
		log.Printf("❌ FlujoCliente: borrar sesión de %s: %v", s.Phone, err)
		return false
	}
	return true
}

// recopilarDiagnostico gathers the full telemetry report for a ticket:
// full-status dump plus an ICMP probe to the customer IP.
func (f *FlujoCliente) recopilarDiagnostico(ctx context.Context, s *models.SesionCliente) string {
	if s.SerialONT == "" {
		return ""
	}
	raw := f.telemetria.FullStatus(ctx, s.SerialONT)
	if raw == "" {
		return ""
	}
	ping := "No ejecutado"
	if s.IPCliente != "" {
		ping = f.prober.Ping(ctx, s.IPCliente)
	}
	ip := s.IPCliente
	if ip == "" {
		ip = "N/D"
	}
	return FormatearDatosTecnicos(ParsearFullStatus(raw), ip, ping, s.KPIActivo)
}
