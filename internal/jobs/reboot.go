package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/services"
	"github.com/krlozs/isp-ai/internal/sessions"
)

// RebootVerifier runs the detached reboot verification task: issue the
// remote reboot, wait for the equipment to come back, re-sample the optics
// and either close the case toward CSAT or escalate with a ticket.
type RebootVerifier struct {
	cfg        *config.Config
	sesiones   sessions.Store
	telemetria services.Telemetria
	wa         services.Mensajeria
	prober     services.Prober
	escalador  *services.Escalador
}

// NewRebootVerifier wires the background task.
func NewRebootVerifier(cfg *config.Config, sesiones sessions.Store, telemetria services.Telemetria,
	wa services.Mensajeria, prober services.Prober, escalador *services.Escalador) *RebootVerifier {
	return &RebootVerifier{
		cfg:        cfg,
		sesiones:   sesiones,
		telemetria: telemetria,
		wa:         wa,
		prober:     prober,
		escalador:  escalador,
	}
}

// Lanzar starts the verification on its own goroutine. The snapshot copy
// detaches the task from the handler's session; the write-back is
// version-checked so a conversation that moved on is never clobbered.
func (r *RebootVerifier) Lanzar(phone, serial string, s *models.SesionCliente) {
	copia := *s
	go r.verificar(phone, serial, &copia)
}

func (r *RebootVerifier) verificar(phone, serial string, s *models.SesionCliente) {
	ctx := context.Background()

	if err := r.telemetria.Reiniciar(ctx, serial); err != nil {
		log.Printf("❌ Reboot: no se pudo reiniciar %s: %v", serial, err)
		s.Fase = models.FaseTroubleshooting
		r.enviar(ctx, phone,
			"No pude reiniciar tu equipo de forma remota. 😕\n\n"+
				"¿Puedes desconectarlo de la corriente, esperar 10 segundos y volver a conectarlo? "+
				"Cuando vuelva a encender, cuéntame si el problema sigue.")
		r.guardar(ctx, s)
		return
	}

	s.RebootEjecutado = true
	r.enviar(ctx, phone, "⚙️ Reiniciando tu equipo... Esto toma unos 2 minutos. ⏳")

	time.Sleep(r.cfg.RebootWait)

	estado := r.telemetria.EstadoONT(ctx, serial)
	senal := r.telemetria.SenalRx(ctx, serial)

	if estado == "online" && !services.SenalDegradada(senal, r.cfg) {
		senalTexto := "N/D"
		if senal != nil {
			senalTexto = fmt.Sprintf("%.2f", *senal)
		}
		s.Fase = models.FaseCSAT
		r.enviar(ctx, phone, fmt.Sprintf(
			"✅ ¡Tu equipo se reinició correctamente y la señal volvió a valores normales (%s dBm)!\n\n"+
				"Prueba tu conexión y califica la atención del 1 al 5, donde 5 es excelente. ⭐", senalTexto))
		r.guardar(ctx, s)
		return
	}

	// The reboot did not recover the service: escalate with full telemetry.
	log.Printf("⚠️ Reboot: %s sigue mal tras reinicio (estado=%q)", serial, estado)
	s.DatosTecnicos = r.recopilarDiagnostico(ctx, s, serial)
	s.DestinoEscalado = models.DestinoTecnico
	if s.KPIActivo == "" {
		s.KPIActivo = "senal_degradada"
	}

	ticketID := r.escalador.CrearTicket(ctx, s, "")
	s.TicketID = ticketID
	s.Fase = models.FaseEsperandoTecnico
	r.escalador.NotificarDestino(ctx, s, ticketID)

	r.enviar(ctx, phone,
		"El reinicio no fue suficiente para corregir la falla. 😕\n\n"+
			services.RespuestaCliente(ticketID, s.DestinoEscalado))
	r.guardar(ctx, s)
}

func (r *RebootVerifier) recopilarDiagnostico(ctx context.Context, s *models.SesionCliente, serial string) string {
	raw := r.telemetria.FullStatus(ctx, serial)
	if raw == "" {
		return s.DatosTecnicos
	}
	ping := "No ejecutado"
	if s.IPCliente != "" {
		ping = r.prober.Ping(ctx, s.IPCliente)
	}
	ip := s.IPCliente
	if ip == "" {
		ip = "N/D"
	}
	return services.FormatearDatosTecnicos(services.ParsearFullStatus(raw), ip, ping, s.KPIActivo)
}

func (r *RebootVerifier) enviar(ctx context.Context, phone, body string) {
	if err := r.wa.EnviarTexto(ctx, phone, body); err != nil {
		log.Printf("❌ Reboot: envío a %s: %v", phone, err)
	}
}

// guardar writes the session back only if the conversation did not move on
// while this task slept. On conflict the customer's newer state wins; the
// result is re-applied only when the session is still waiting on this task.
func (r *RebootVerifier) guardar(ctx context.Context, s *models.SesionCliente) {
	err := r.sesiones.ActualizarCliente(ctx, s)
	if err == nil {
		return
	}
	if !errors.Is(err, sessions.ErrVersionConflict) {
		log.Printf("❌ Reboot: guardar sesión de %s: %v", s.Phone, err)
		return
	}

	actual, errGet := r.sesiones.ObtenerCliente(ctx, s.Phone)
	if errGet != nil {
		log.Printf("❌ Reboot: releer sesión de %s: %v", s.Phone, errGet)
		return
	}
	if actual.Fase != models.FaseRebootPendiente {
		log.Printf("⚠️ Reboot: sesión de %s cambió de fase durante la verificación, resultado descartado", s.Phone)
		return
	}
	s.Version = actual.Version
	if err := r.sesiones.ActualizarCliente(ctx, s); err != nil {
		log.Printf("❌ Reboot: reintento de guardado de %s: %v", s.Phone, err)
	}
}
