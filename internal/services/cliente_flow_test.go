package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/sessions"
	"github.com/krlozs/isp-ai/internal/storage"
)

const (
	telCliente = "5215551234567"
	contrato   = "10234567"
)

type entornoFlujo struct {
	flujo       *FlujoCliente
	sesiones    *sessions.MemoryStore
	wa          *fakeMensajeria
	telemetria  *fakeTelemetria
	tickets     *fakeTicketera
	verificador *fakeVerificador
	registros   *storage.MemoryStore
}

func nuevoEntorno(t *testing.T, cliente *Cliente, saldo float64) *entornoFlujo {
	t.Helper()
	cfg := cfgPrueba()
	sesiones := storePrueba()
	wa := nuevaFakeMensajeria()
	telemetria := &fakeTelemetria{estado: "online"}
	tickets := nuevaFakeTicketera("7701")
	verificador := &fakeVerificador{}
	registros := storage.NewMemoryStore()

	notif := NewNotificador(sesiones, wa)
	escalador := NewEscalador(cfg, tickets, wa, notif, sesiones)
	directorio := &fakeDirectorio{clientes: map[string]*Cliente{}}
	if cliente != nil {
		directorio.clientes[contrato] = cliente
	}

	flujo := NewFlujoCliente(cfg, sesiones, directorio, &fakeFacturacion{saldo: saldo},
		telemetria, wa, fakeRedactor{}, &fakeProber{resultado: "4/4 paquetes"},
		escalador, verificador, registros)

	return &entornoFlujo{
		flujo:       flujo,
		sesiones:    sesiones,
		wa:          wa,
		telemetria:  telemetria,
		tickets:     tickets,
		verificador: verificador,
		registros:   registros,
	}
}

func clienteActivo() *Cliente {
	return &Cliente{
		ID:        "314",
		Nombre:    "María Pérez",
		Estado:    "activo",
		Plan:      "- Internet: Fibra 300M (Estado: ON)",
		SerialONT: "HWTC12345678",
		IPCliente: "100.64.20.7",
	}
}

func fase(t *testing.T, e *entornoFlujo, phone string) models.FaseCliente {
	t.Helper()
	s, err := e.sesiones.ObtenerCliente(context.Background(), phone)
	require.NoError(t, err)
	return s.Fase
}

func TestIdentificacionSinContratoSaluda(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, "hola, no tengo internet")

	envios := e.wa.paraNumero(telCliente)
	require.Len(t, envios, 1)
	assert.Contains(t, envios[0].Cuerpo, "[llm]")
	assert.Equal(t, models.FaseIdentificacion, fase(t, e, telCliente))
}

func TestIdentificacionContratoDesconocido(t *testing.T) {
	e := nuevoEntorno(t, nil, 0)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, "mi contrato es 99887766")

	envios := e.wa.paraNumero(telCliente)
	require.Len(t, envios, 1)
	assert.Contains(t, envios[0].Cuerpo, "No encontré")
	assert.Equal(t, models.FaseIdentificacion, fase(t, e, telCliente))
}

func TestClienteEnMoraTerminaSinTicket(t *testing.T) {
	moroso := clienteActivo()
	moroso.Estado = "suspendido"
	e := nuevoEntorno(t, moroso, 850.00)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)

	assert.Equal(t, models.FaseFinalizadoMora, fase(t, e, telCliente))
	assert.Empty(t, e.tickets.creados, "la mora nunca abre ticket")
	assert.Zero(t, e.telemetria.reboots)

	// Follow-up messages keep getting the suspension notice.
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "y ahora qué hago")
	assert.Contains(t, e.wa.ultimo().Cuerpo, "suspendido por falta de pago")
}

func TestSenalDegradadaLanzaReboot(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	e.telemetria.senal = ptr(-29.5)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)

	assert.Equal(t, models.FaseRebootPendiente, fase(t, e, telCliente))
	require.Len(t, e.verificador.lanzados, 1)
	assert.Equal(t, "HWTC12345678", e.verificador.lanzados[0])

	// Messages during the wait get a holding reply, no second launch.
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "sigue igual")
	assert.Len(t, e.verificador.lanzados, 1)
	assert.Contains(t, e.wa.ultimo().Cuerpo, "reiniciando")
}

func TestSenalAusenteNoReboot(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	e.telemetria.senal = nil // telemetry unavailable

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)

	assert.Empty(t, e.verificador.lanzados, "sin lectura no hay reinicio")
	assert.Equal(t, models.FaseTroubleshooting, fase(t, e, telCliente))
	assert.Len(t, e.wa.listas, 1, "se despliega el menú de síntomas")
}

func TestONTCriticaEscalaTrasConfirmacion(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	e.telemetria.estado = "power fail"

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)
	assert.Equal(t, models.FaseTroubleshootingManual, fase(t, e, telCliente))

	// The customer checks cables; the ONT is still down.
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "listo, ya revisé")

	assert.Equal(t, models.FaseEsperandoTecnico, fase(t, e, telCliente))
	require.Len(t, e.tickets.creados, 1)
	assert.Contains(t, e.tickets.creados[0].Contenido, "ONT offline confirmado por cliente")

	s, _ := e.sesiones.ObtenerCliente(context.Background(), telCliente)
	assert.Equal(t, "7701", s.TicketID)

	// The technician got a session and a brief on their line.
	tec, err := e.sesiones.ObtenerTecnico(context.Background(), cfgPrueba().TecnicoWhatsApp)
	require.NoError(t, err)
	require.NotNil(t, tec)
	assert.Equal(t, models.TecEsperandoConfir, tec.Fase)
	assert.Equal(t, "7701", tec.TicketID)
	assert.Equal(t, telCliente, tec.ClientePhone)
}

func TestONTCriticaTodoNormalEscalaSinReconsulta(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	e.telemetria.estado = "power fail"

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)
	require.Equal(t, models.FaseTroubleshootingManual, fase(t, e, telCliente))

	// The customer sees nothing wrong even though the ONT is down. That
	// contradiction escalates directly, without asking the equipment again.
	e.telemetria.estado = "online" // a re-sample would wrongly resolve this
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "todo se ve normal")

	assert.Equal(t, models.FaseEsperandoTecnico, fase(t, e, telCliente))
	require.Len(t, e.tickets.creados, 1)
	assert.Contains(t, e.tickets.creados[0].Contenido, "ONT offline sin causa aparente")
	assert.Contains(t, e.tickets.creados[0].Contenido, "luces y cables se ven normales")
}

func TestONTCriticaRecuperadaVaACSAT(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	e.telemetria.estado = "offline"

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)

	// The customer reconnects the power and the ONT comes back.
	e.telemetria.estado = "online"
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "listo")

	assert.Equal(t, models.FaseCSAT, fase(t, e, telCliente))
	assert.Empty(t, e.tickets.creados)
}

func TestKPIDNSEscalaANOC(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	e.telemetria.fullStatus = fullStatusEjemplo

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)
	require.Equal(t, models.FaseTroubleshooting, fase(t, e, telCliente))

	e.flujo.ProcesarMensaje(context.Background(), telCliente, "kpi_dns")

	assert.Equal(t, models.FaseEsperandoTecnico, fase(t, e, telCliente))
	require.Len(t, e.tickets.creados, 1)
	assert.Contains(t, e.tickets.creados[0].Contenido, "No carga páginas web")

	s, _ := e.sesiones.ObtenerCliente(context.Background(), telCliente)
	assert.Equal(t, models.DestinoNOC, s.DestinoEscalado)
	assert.Contains(t, s.DatosTecnicos, "DIAGNOSTICO TECNICO AUTOMATICO")

	// The NOC got a plain summary (queued, its window is closed) and no
	// technician session.
	pendientes, err := e.sesiones.Pendientes(context.Background(), cfgPrueba().NOCWhatsApp)
	require.NoError(t, err)
	require.Len(t, pendientes, 1)
	assert.Contains(t, pendientes[0].Mensaje, "NOC")
	tec, _ := e.sesiones.ObtenerTecnico(context.Background(), cfgPrueba().NOCWhatsApp)
	assert.Nil(t, tec)
}

func TestKPIVelocidadLanzaReboot(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "kpi_lento_todo")

	assert.Equal(t, models.FaseRebootPendiente, fase(t, e, telCliente))
	assert.Len(t, e.verificador.lanzados, 1)
}

func TestNoInternetConONTCriticaEscalaDirecto(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)
	require.Equal(t, models.FaseTroubleshooting, fase(t, e, telCliente))

	// The equipment confirms the outage: no interview, straight to a visit.
	e.telemetria.estado = "los"
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "kpi_no_internet")

	assert.Equal(t, models.FaseEsperandoTecnico, fase(t, e, telCliente))
	require.Len(t, e.tickets.creados, 1)
	assert.Contains(t, e.tickets.creados[0].Contenido, "Estado ONT al verificar: los")

	s, _ := e.sesiones.ObtenerCliente(context.Background(), telCliente)
	assert.Equal(t, models.DestinoTecnico, s.DestinoEscalado)
	assert.Empty(t, e.wa.botonesPara(telCliente), "sin entrevista de luces")
}

func TestNoInternetConONTOnlineEntrevista(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)

	// The ONT answers online, so the two-question interview runs first.
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "kpi_no_internet")
	assert.Equal(t, models.FasePreguntasNoInet, fase(t, e, telCliente))
	assert.Empty(t, e.tickets.creados)

	e.flujo.ProcesarMensaje(context.Background(), telCliente, "luces_roja")
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "corte_no")

	assert.Equal(t, models.FaseEsperandoTecnico, fase(t, e, telCliente))
	require.Len(t, e.tickets.creados, 1)
	assert.Contains(t, e.tickets.creados[0].Contenido, "Sin acceso a internet")
	assert.Contains(t, e.tickets.creados[0].Contenido, "Luces del equipo: roja")
	assert.Contains(t, e.tickets.creados[0].Contenido, "Corte de luz previo: No")

	s, _ := e.sesiones.ObtenerCliente(context.Background(), telCliente)
	assert.Equal(t, models.DestinoTecnico, s.DestinoEscalado)
}

func TestTicketFallidoDegradaSinBloquear(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	e.tickets.crearErr = assert.AnError
	e.telemetria.estado = "offline"

	e.flujo.ProcesarMensaje(context.Background(), telCliente, contrato)
	e.flujo.ProcesarMensaje(context.Background(), telCliente, "no")

	// The conversation still reaches the waiting phase with an honest reply.
	assert.Equal(t, models.FaseEsperandoTecnico, fase(t, e, telCliente))
	s, _ := e.sesiones.ObtenerCliente(context.Background(), telCliente)
	assert.Empty(t, s.TicketID)
	assert.Contains(t, e.wa.ultimo().Cuerpo, "He registrado tu caso")
	assert.NotContains(t, e.wa.ultimo().Cuerpo, "#")
}

func TestCSATGuardaEncuestaYBorraSesion(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	ctx := context.Background()

	s, _ := e.sesiones.ObtenerCliente(ctx, telCliente)
	s.Fase = models.FaseCSAT
	s.Nombre = "María Pérez"
	s.TicketID = "7701"
	require.NoError(t, e.sesiones.GuardarCliente(ctx, s))

	e.flujo.ProcesarMensaje(ctx, telCliente, "5")

	encuestas, err := e.registros.EncuestasPorTicket("7701")
	require.NoError(t, err)
	require.Len(t, encuestas, 1)
	assert.Equal(t, 5, encuestas[0].Calificacion)
	assert.Equal(t, "REMOTA", encuestas[0].Resolucion)
	assert.Equal(t, "Resuelto. CSAT: 5/5", e.tickets.cerrados["7701"])

	// The session is gone: the next message starts a fresh conversation.
	assert.Equal(t, models.FaseIdentificacion, fase(t, e, telCliente))
}

func TestCSATRespuestaInvalidaReintenta(t *testing.T) {
	e := nuevoEntorno(t, clienteActivo(), 0)
	ctx := context.Background()

	s, _ := e.sesiones.ObtenerCliente(ctx, telCliente)
	s.Fase = models.FaseCSAT
	require.NoError(t, e.sesiones.GuardarCliente(ctx, s))

	e.flujo.ProcesarMensaje(ctx, telCliente, "muy buena atención")

	assert.Equal(t, models.FaseCSAT, fase(t, e, telCliente))
	ultimo := e.wa.ultimo()
	assert.Contains(t, ultimo.Cuerpo, "califica")
	require.Len(t, ultimo.Botones, 3)
	assert.Equal(t, "csat_1", ultimo.Botones[0].ID)
}
