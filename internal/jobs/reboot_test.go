package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/services"
	"github.com/krlozs/isp-ai/internal/sessions"
)

const (
	telPrueba = "5215551234567"
	snPrueba  = "HWTC12345678"
)

type telemetriaPrueba struct {
	estado    string
	senal     *float64
	rebootErr error
	reboots   int
}

func (f *telemetriaPrueba) EstadoONT(ctx context.Context, serial string) string  { return f.estado }
func (f *telemetriaPrueba) SenalRx(ctx context.Context, serial string) *float64  { return f.senal }
func (f *telemetriaPrueba) FullStatus(ctx context.Context, serial string) string { return "" }
func (f *telemetriaPrueba) Reiniciar(ctx context.Context, serial string) error {
	f.reboots++
	return f.rebootErr
}

type mensajeriaPrueba struct {
	mu     sync.Mutex
	textos []string
}

func (f *mensajeriaPrueba) EnviarTexto(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textos = append(f.textos, body)
	return nil
}

func (f *mensajeriaPrueba) EnviarBotones(ctx context.Context, to, body string, b []services.Boton) error {
	return nil
}

func (f *mensajeriaPrueba) EnviarLista(ctx context.Context, to, h, b, btn string, s []services.Seccion) error {
	return nil
}

func (f *mensajeriaPrueba) EnviarTextoTecnico(ctx context.Context, to, body string) error { return nil }

func (f *mensajeriaPrueba) EnviarBotonesTecnico(ctx context.Context, to, body string, b []services.Boton) error {
	return nil
}

func (f *mensajeriaPrueba) DescargarMedia(ctx context.Context, id string) ([]byte, error) {
	return nil, nil
}

func (f *mensajeriaPrueba) ultimo() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.textos) == 0 {
		return ""
	}
	return f.textos[len(f.textos)-1]
}

type ticketeraPrueba struct{ creados int }

func (f *ticketeraPrueba) CrearTicket(ctx context.Context, t *services.NuevoTicket) (string, error) {
	f.creados++
	return "9900", nil
}

func (f *ticketeraPrueba) CerrarTicket(ctx context.Context, id, motivo string) error { return nil }

type proberPrueba struct{}

func (proberPrueba) Ping(ctx context.Context, ip string) string { return "sin datos" }

func entornoReboot(tel *telemetriaPrueba) (*RebootVerifier, sessions.Store, *mensajeriaPrueba, *ticketeraPrueba) {
	cfg := &config.Config{
		TecnicoWhatsApp: "5215550001111",
		SenalMinDBm:     -27,
		SenalMaxDBm:     -8,
		RebootWait:      time.Millisecond,
		MaxPasosFlujo:   8,
	}
	store := sessions.NewMemoryStore(sessions.TTLs{
		Cliente:    time.Hour,
		Tecnico:    time.Hour,
		Ventana:    time.Hour,
		Pendientes: time.Hour,
	})
	wa := &mensajeriaPrueba{}
	tickets := &ticketeraPrueba{}
	notif := services.NewNotificador(store, wa)
	escalador := services.NewEscalador(cfg, tickets, wa, notif, store)
	return NewRebootVerifier(cfg, store, tel, wa, proberPrueba{}, escalador), store, wa, tickets
}

func sesionEnReboot(t *testing.T, store sessions.Store) *models.SesionCliente {
	t.Helper()
	ctx := context.Background()
	s, err := store.ObtenerCliente(ctx, telPrueba)
	require.NoError(t, err)
	s.Fase = models.FaseRebootPendiente
	s.SerialONT = snPrueba
	s.KPIActivo = "senal_degradada"
	require.NoError(t, store.GuardarCliente(ctx, s))
	return s
}

func ptr(f float64) *float64 { return &f }

func TestRebootExitosoVaACSAT(t *testing.T) {
	tel := &telemetriaPrueba{estado: "online", senal: ptr(-19.2)}
	verifier, store, wa, tickets := entornoReboot(tel)
	s := sesionEnReboot(t, store)

	verifier.Lanzar(telPrueba, snPrueba, s)
	esperarFase(t, store, models.FaseCSAT)

	assert.Equal(t, 1, tel.reboots)
	assert.Zero(t, tickets.creados)
	assert.Contains(t, wa.ultimo(), "-19.20 dBm")
}

func TestRebootSinRecuperacionEscala(t *testing.T) {
	tel := &telemetriaPrueba{estado: "online", senal: ptr(-31.0)}
	verifier, store, _, tickets := entornoReboot(tel)
	s := sesionEnReboot(t, store)

	verifier.Lanzar(telPrueba, snPrueba, s)
	esperarFase(t, store, models.FaseEsperandoTecnico)

	assert.Equal(t, 1, tickets.creados)
	final, _ := store.ObtenerCliente(context.Background(), telPrueba)
	assert.Equal(t, "9900", final.TicketID)
	assert.True(t, final.RebootEjecutado)
}

func TestRebootFallidoPideReinicioManual(t *testing.T) {
	tel := &telemetriaPrueba{estado: "online", rebootErr: assert.AnError}
	verifier, store, wa, tickets := entornoReboot(tel)
	s := sesionEnReboot(t, store)

	verifier.Lanzar(telPrueba, snPrueba, s)
	esperarFase(t, store, models.FaseTroubleshooting)

	// One attempt, no retry, no ticket: the customer reboots by hand.
	assert.Equal(t, 1, tel.reboots)
	assert.Zero(t, tickets.creados)
	assert.Contains(t, wa.ultimo(), "desconectarlo de la corriente")
}

func TestRebootDescartaResultadoSiLaSesionAvanzo(t *testing.T) {
	tel := &telemetriaPrueba{estado: "online", senal: ptr(-19.2)}
	verifier, store, _, _ := entornoReboot(tel)
	s := sesionEnReboot(t, store)
	ctx := context.Background()

	// The conversation moves on while the task holds its snapshot.
	avanzada, _ := store.ObtenerCliente(ctx, telPrueba)
	avanzada.Fase = models.FaseEsperandoTecnico
	require.NoError(t, store.GuardarCliente(ctx, avanzada))

	verifier.Lanzar(telPrueba, snPrueba, s)

	// The stale write is discarded: the phase set by the customer wins.
	require.Never(t, func() bool {
		actual, _ := store.ObtenerCliente(ctx, telPrueba)
		return actual.Fase != models.FaseEsperandoTecnico
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func esperarFase(t *testing.T, store sessions.Store, fase models.FaseCliente) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := store.ObtenerCliente(context.Background(), telPrueba)
		return err == nil && s.Fase == fase
	}, 2*time.Second, 10*time.Millisecond)
}
