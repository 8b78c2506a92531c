package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/sessions"
)

func cfgPrueba() *config.Config {
	return &config.Config{
		Entorno:         "test",
		NombreISP:       "FiberTest",
		HorarioTecnico:  "Lunes a Sábado, 8am - 6pm",
		TecnicoWhatsApp: "5215550001111",
		NOCWhatsApp:     "5215550002222",
		AdminWhatsApp:   "5215550009999",
		SenalMinDBm:     -27,
		SenalMaxDBm:     -8,
		RebootWait:      time.Millisecond,
		MaxPasosFlujo:   8,
	}
}

func storePrueba() *sessions.MemoryStore {
	return sessions.NewMemoryStore(sessions.TTLs{
		Cliente:    30 * time.Minute,
		Tecnico:    8 * time.Hour,
		Ventana:    24 * time.Hour,
		Pendientes: 48 * time.Hour,
		Ticket:     48 * time.Hour,
	})
}

// envio is one outbound message captured by the fake messaging client.
type envio struct {
	Para    string
	Cuerpo  string
	Botones []Boton
	Linea   string // "clientes" or "tecnicos"
}

type fakeMensajeria struct {
	mu     sync.Mutex
	envios []envio
	listas []envio
	media  map[string][]byte
	fallar bool
}

func nuevaFakeMensajeria() *fakeMensajeria {
	return &fakeMensajeria{media: map[string][]byte{}}
}

func (f *fakeMensajeria) registrar(e envio) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fallar {
		return errors.New("proveedor caído")
	}
	f.envios = append(f.envios, e)
	return nil
}

func (f *fakeMensajeria) EnviarTexto(ctx context.Context, to, body string) error {
	return f.registrar(envio{Para: to, Cuerpo: body, Linea: "clientes"})
}

func (f *fakeMensajeria) EnviarBotones(ctx context.Context, to, body string, botones []Boton) error {
	return f.registrar(envio{Para: to, Cuerpo: body, Botones: botones, Linea: "clientes"})
}

func (f *fakeMensajeria) EnviarLista(ctx context.Context, to, header, body, boton string, secciones []Seccion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listas = append(f.listas, envio{Para: to, Cuerpo: body, Linea: "clientes"})
	return nil
}

func (f *fakeMensajeria) EnviarTextoTecnico(ctx context.Context, to, body string) error {
	return f.registrar(envio{Para: to, Cuerpo: body, Linea: "tecnicos"})
}

func (f *fakeMensajeria) EnviarBotonesTecnico(ctx context.Context, to, body string, botones []Boton) error {
	return f.registrar(envio{Para: to, Cuerpo: body, Botones: botones, Linea: "tecnicos"})
}

func (f *fakeMensajeria) DescargarMedia(ctx context.Context, mediaID string) ([]byte, error) {
	if data, ok := f.media[mediaID]; ok {
		return data, nil
	}
	return nil, errors.New("media no encontrada")
}

func (f *fakeMensajeria) paraNumero(numero string) []envio {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []envio
	for _, e := range f.envios {
		if e.Para == numero {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeMensajeria) botonesPara(numero string) []envio {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []envio
	for _, e := range f.envios {
		if e.Para == numero && len(e.Botones) > 0 {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeMensajeria) ultimo() envio {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.envios) == 0 {
		return envio{}
	}
	return f.envios[len(f.envios)-1]
}

type fakeDirectorio struct {
	clientes map[string]*Cliente
	err      error
}

func (f *fakeDirectorio) BuscarCliente(ctx context.Context, contrato string) (*Cliente, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clientes[contrato], nil
}

type fakeFacturacion struct{ saldo float64 }

func (f *fakeFacturacion) SaldoPendiente(ctx context.Context, id string) float64 { return f.saldo }

type fakeTelemetria struct {
	estado     string
	senal      *float64
	fullStatus string
	rebootErr  error
	reboots    int
}

func (f *fakeTelemetria) EstadoONT(ctx context.Context, serial string) string  { return f.estado }
func (f *fakeTelemetria) SenalRx(ctx context.Context, serial string) *float64  { return f.senal }
func (f *fakeTelemetria) FullStatus(ctx context.Context, serial string) string { return f.fullStatus }
func (f *fakeTelemetria) Reiniciar(ctx context.Context, serial string) error {
	f.reboots++
	return f.rebootErr
}

type fakeTicketera struct {
	siguiente string
	crearErr  error
	cerrarErr error
	creados   []*NuevoTicket
	cerrados  map[string]string
}

func nuevaFakeTicketera(id string) *fakeTicketera {
	return &fakeTicketera{siguiente: id, cerrados: map[string]string{}}
}

func (f *fakeTicketera) CrearTicket(ctx context.Context, t *NuevoTicket) (string, error) {
	if f.crearErr != nil {
		return "", f.crearErr
	}
	f.creados = append(f.creados, t)
	return f.siguiente, nil
}

func (f *fakeTicketera) CerrarTicket(ctx context.Context, ticketID, motivo string) error {
	if f.cerrarErr != nil {
		return f.cerrarErr
	}
	f.cerrados[ticketID] = motivo
	return nil
}

// fakeRedactor echoes a marker so tests can tell LLM-composed replies apart.
type fakeRedactor struct{}

func (fakeRedactor) Responder(ctx context.Context, prompt string, s *models.SesionCliente, raw string) string {
	if len(prompt) > 40 {
		prompt = prompt[:40]
	}
	return "[llm] " + prompt
}

type fakeProber struct{ resultado string }

func (f *fakeProber) Ping(ctx context.Context, ip string) string { return f.resultado }

type fakeVerificador struct {
	mu       sync.Mutex
	lanzados []string
}

func (f *fakeVerificador) Lanzar(phone, serial string, s *models.SesionCliente) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lanzados = append(f.lanzados, serial)
}

type fakeMedia struct {
	subidas int
	err     error
}

func (f *fakeMedia) SubirEvidencia(ctx context.Context, data []byte, ticketID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.subidas++
	return fmt.Sprintf("https://res.cloudinary.test/evidencias/%s_%d.jpg", ticketID, f.subidas), nil
}
