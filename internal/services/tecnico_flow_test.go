package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/sessions"
	"github.com/krlozs/isp-ai/internal/storage"
)

const (
	telTecnico = "5215550001111"
	telAdmin   = "5215550009999"
)

type entornoTecnico struct {
	flujo     *FlujoTecnico
	sesiones  *sessions.MemoryStore
	wa        *fakeMensajeria
	tickets   *fakeTicketera
	media     *fakeMedia
	registros *storage.MemoryStore
}

func nuevoEntornoTecnico(t *testing.T) *entornoTecnico {
	t.Helper()
	cfg := cfgPrueba()
	sesiones := storePrueba()
	wa := nuevaFakeMensajeria()
	tickets := nuevaFakeTicketera("7701")
	media := &fakeMedia{}
	registros := storage.NewMemoryStore()

	require.NoError(t, sesiones.GuardarTecnicos(context.Background(), map[string]models.TecnicoAutorizado{
		telTecnico: {Nombre: "Carlos", Activo: true},
	}))

	return &entornoTecnico{
		flujo:     NewFlujoTecnico(cfg, sesiones, wa, tickets, media, NewNotificador(sesiones, wa), registros),
		sesiones:  sesiones,
		wa:        wa,
		tickets:   tickets,
		media:     media,
		registros: registros,
	}
}

func (e *entornoTecnico) asignarTicket(t *testing.T) {
	t.Helper()
	ahora := time.Now().Add(-2 * time.Hour)
	require.NoError(t, e.sesiones.GuardarTecnico(context.Background(), &models.SesionTecnico{
		Phone:         telTecnico,
		Nombre:        "Carlos",
		Fase:          models.TecEsperandoConfir,
		TicketID:      "7701",
		ClientePhone:  telCliente,
		ClienteNombre: "María Pérez",
		Problema:      "Sin acceso a internet",
		TsAsignado:    &ahora,
	}))
}

func texto(s string) EntradaTecnico { return EntradaTecnico{Texto: s} }

func TestNumeroNoAutorizado(t *testing.T) {
	e := nuevoEntornoTecnico(t)
	intruso := "5215559990000"

	e.flujo.ProcesarMensaje(context.Background(), intruso, texto("hola"))

	assert.Contains(t, e.wa.ultimo().Cuerpo, "⛔")
	// The window opened anyway so a later authorization can deliver queued work.
	activa, err := e.sesiones.VentanaActiva(context.Background(), intruso)
	require.NoError(t, err)
	assert.True(t, activa)
}

func TestTecnicoSinTicketActivo(t *testing.T) {
	e := nuevoEntornoTecnico(t)

	e.flujo.ProcesarMensaje(context.Background(), telTecnico, texto("buenos días"))

	assert.Contains(t, e.wa.ultimo().Cuerpo, "Estás activo")
}

func TestMensajeEntranteEntregaPendientes(t *testing.T) {
	e := nuevoEntornoTecnico(t)
	ctx := context.Background()

	notif := NewNotificador(e.sesiones, e.wa)
	require.NoError(t, notif.Enviar(ctx, telTecnico, "Ticket A"))
	require.NoError(t, notif.Enviar(ctx, telTecnico, "Ticket B"))

	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("hola"))

	envios := e.wa.paraNumero(telTecnico)
	require.True(t, len(envios) >= 3)
	assert.Contains(t, envios[0].Cuerpo, "2 ticket(s) pendiente(s)")
	assert.Contains(t, envios[1].Cuerpo, "Ticket A")
	assert.Contains(t, envios[2].Cuerpo, "Ticket B")

	// Flushed exactly once.
	pendientes, err := e.sesiones.Pendientes(ctx, telTecnico)
	require.NoError(t, err)
	assert.Empty(t, pendientes)
}

func TestRechazoDeTicket(t *testing.T) {
	e := nuevoEntornoTecnico(t)
	e.asignarTicket(t)
	ctx := context.Background()

	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("tec_no_7701"))

	s, err := e.sesiones.ObtenerTecnico(ctx, telTecnico)
	require.NoError(t, err)
	assert.Nil(t, s, "el rechazo borra la sesión")

	// The admin was alerted for manual reassignment.
	pendientes, err := e.sesiones.Pendientes(ctx, telAdmin)
	require.NoError(t, err)
	require.Len(t, pendientes, 1)
	assert.Contains(t, pendientes[0].Mensaje, "rechazó el ticket #7701")
}

func TestCicloCompletoCierreSinFotos(t *testing.T) {
	e := nuevoEntornoTecnico(t)
	e.asignarTicket(t)
	ctx := context.Background()

	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("tec_si_7701"))

	// Accepting stamps confirmation and departure together.
	enCamino, err := e.sesiones.ObtenerTecnico(ctx, telTecnico)
	require.NoError(t, err)
	require.NotNil(t, enCamino)
	require.NotNil(t, enCamino.TsConfirmado)
	require.NotNil(t, enCamino.TsEnCamino)

	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("tec_llegue_7701"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("tec_listo_7701"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("Conector dañado en la roseta"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("Se reemplazó el conector y se midió señal"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("1 conector SC/APC"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("fin fotos"))

	// External close carries the full report.
	motivo, ok := e.tickets.cerrados["7701"]
	require.True(t, ok)
	assert.Contains(t, motivo, "CIERRE DE TICKET #7701")
	assert.Contains(t, motivo, "Conector dañado en la roseta")
	assert.Contains(t, motivo, "Sin evidencias")
	assert.Contains(t, motivo, "En camino:")
	assert.NotContains(t, motivo, "En camino:  N/D")
	assert.Contains(t, motivo, "TTR total:")
	assert.Contains(t, motivo, "Cerrado por: ARIA Bot")

	// Durable record.
	cierre, err := e.registros.CierrePorTicket("7701")
	require.NoError(t, err)
	require.NotNil(t, cierre)
	assert.Equal(t, "Carlos", cierre.TecnicoName)
	assert.Equal(t, 0, cierre.NumFotos)
	assert.NotEqual(t, "N/D", cierre.TTR)

	// Technician session torn down.
	s, err := e.sesiones.ObtenerTecnico(ctx, telTecnico)
	require.NoError(t, err)
	assert.Nil(t, s)

	// The customer moved to the satisfaction survey.
	cliente, err := e.sesiones.ObtenerCliente(ctx, telCliente)
	require.NoError(t, err)
	assert.Equal(t, models.FaseCSAT, cliente.Fase)
	assert.Equal(t, "7701", cliente.TicketID)
}

func TestFotosDeEvidencia(t *testing.T) {
	e := nuevoEntornoTecnico(t)
	e.asignarTicket(t)
	ctx := context.Background()
	e.wa.media["img-1"] = []byte("jpeg-bytes")
	e.wa.media["img-2"] = []byte("jpeg-bytes")

	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("tec_si_7701"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("llegué"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("listo"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("Fibra rota"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("Empalme nuevo"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("ninguno"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, EntradaTecnico{ImagenID: "img-1"})
	e.flujo.ProcesarMensaje(ctx, telTecnico, EntradaTecnico{ImagenID: "img-2"})
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("eso es todo"))

	assert.Equal(t, 2, e.media.subidas)
	motivo := e.tickets.cerrados["7701"]
	assert.Contains(t, motivo, "res.cloudinary.test")
	assert.NotContains(t, motivo, "Sin evidencias")

	cierre, _ := e.registros.CierrePorTicket("7701")
	require.NotNil(t, cierre)
	assert.Equal(t, 2, cierre.NumFotos)
}

func TestCierreExternoFallidoAvisaAlTecnico(t *testing.T) {
	e := nuevoEntornoTecnico(t)
	e.asignarTicket(t)
	e.tickets.cerrarErr = assert.AnError
	ctx := context.Background()

	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("tec_si_7701"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("llegué"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("listo"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("Falla X"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("Solución Y"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("ninguno"))
	e.flujo.ProcesarMensaje(ctx, telTecnico, texto("fin"))

	// The work is still recorded and the technician told to close by hand.
	cierre, _ := e.registros.CierrePorTicket("7701")
	require.NotNil(t, cierre)

	envios := e.wa.paraNumero(telTecnico)
	var aviso string
	for _, env := range envios {
		if env.Cuerpo != "" {
			aviso = env.Cuerpo
		}
	}
	assert.Contains(t, aviso, "ciérralo manualmente")
}

func TestComandosAdmin(t *testing.T) {
	e := nuevoEntornoTecnico(t)
	ctx := context.Background()

	e.flujo.ProcesarMensaje(ctx, telAdmin, texto("!addtec 5215550003333 Luis Gómez"))
	tecnicos, err := e.sesiones.Tecnicos(ctx)
	require.NoError(t, err)
	require.Contains(t, tecnicos, "5215550003333")
	assert.Equal(t, "Luis Gómez", tecnicos["5215550003333"].Nombre)
	assert.True(t, tecnicos["5215550003333"].Activo)

	e.flujo.ProcesarMensaje(ctx, telAdmin, texto("!listec"))
	assert.Contains(t, e.wa.ultimo().Cuerpo, "Luis Gómez")

	e.flujo.ProcesarMensaje(ctx, telAdmin, texto("!deltec 5215550003333"))
	tecnicos, _ = e.sesiones.Tecnicos(ctx)
	assert.NotContains(t, tecnicos, "5215550003333")
}

func TestComandosAdminSoloAdmin(t *testing.T) {
	e := nuevoEntornoTecnico(t)

	e.flujo.ProcesarMensaje(context.Background(), telTecnico, texto("!addtec 5215550004444 Pepe"))

	tecnicos, _ := e.sesiones.Tecnicos(context.Background())
	assert.NotContains(t, tecnicos, "5215550004444")
	assert.Contains(t, e.wa.ultimo().Cuerpo, "permisos")
}

func TestCalcularTTR(t *testing.T) {
	inicio := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	fin := inicio.Add(2*time.Hour + 35*time.Minute)

	assert.Equal(t, "2h35m", CalcularTTR(&inicio, &fin))
	assert.Equal(t, "0h05m", CalcularTTR(&fin, ptrTime(fin.Add(5*time.Minute))))
	assert.Equal(t, "N/D", CalcularTTR(nil, &fin))
	assert.Equal(t, "N/D", CalcularTTR(&fin, nil))
	assert.Equal(t, "N/D", CalcularTTR(&fin, &inicio), "marcas invertidas")
}

func ptrTime(t time.Time) *time.Time { return &t }
