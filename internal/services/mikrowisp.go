package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/krlozs/isp-ai/internal/config"
)

// Cliente is the directory view of a customer used by the support flow.
type Cliente struct {
	ID               string
	Nombre           string
	Estado           string // "activo", "suspendido", ...
	Plan             string // one line per contracted service
	SerialONT        string // first trackable ONT serial, may be empty
	IPCliente        string
	UltimoTicket     string
	FechaVencimiento string
}

// Directorio resolves a contract or national-id number to a customer.
// Returns (nil, nil) when no customer matches.
type Directorio interface {
	BuscarCliente(ctx context.Context, contrato string) (*Cliente, error)
}

// Facturacion reports the unpaid balance of a customer.
type Facturacion interface {
	SaldoPendiente(ctx context.Context, clienteID string) float64
}

// NuevoTicket is the payload for ticket creation.
type NuevoTicket struct {
	ClienteID   string
	Asunto      string
	Contenido   string
	Solicitante string
	Turno       string // MAÑANA or TARDE
}

// Ticketera creates and closes support tickets in the external system.
type Ticketera interface {
	CrearTicket(ctx context.Context, t *NuevoTicket) (string, error)
	CerrarTicket(ctx context.Context, ticketID, motivo string) error
}

// MikroWispService implements Directorio, Facturacion and Ticketera against
// the MikroWisp JSON API. Every endpoint is POST with the token in the body.
type MikroWispService struct {
	base   string
	token  string
	client *http.Client
}

// NewMikroWispService creates the MikroWisp client.
func NewMikroWispService(cfg *config.Config) *MikroWispService {
	return &MikroWispService{
		base:   strings.TrimSuffix(cfg.MikroWispBase, "/"),
		token:  cfg.MikroWispToken,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

func (m *MikroWispService) post(ctx context.Context, endpoint string, payload map[string]any, out any) error {
	payload["token"] = m.token
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mikrowisp %s: HTTP %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// snPattern digs the ONT serial out of MikroWisp's PHP-serialized smartolt blob.
var snPattern = regexp.MustCompile(`s:2:"sn";s:\d+:"([^"]+)"`)

// BuscarCliente looks a customer up by contract/national id. A customer can
// hold several services; each contributes a plan line, and the first service
// exposing an ONT serial becomes the session's trackable equipment.
func (m *MikroWispService) BuscarCliente(ctx context.Context, contrato string) (*Cliente, error) {
	var data struct {
		Estado string `json:"estado"`
		Datos  []struct {
			ID               json.Number `json:"id"`
			Nombre           string      `json:"nombre"`
			Estado           string      `json:"estado"`
			UltimoTicket     string      `json:"ultimo_ticket"`
			FechaVencimiento string      `json:"fecha_vencimiento"`
			Servicios        []struct {
				TipoServicio string `json:"tiposervicio"`
				Perfil       string `json:"perfil"`
				StatusUser   string `json:"status_user"`
				IP           string `json:"ip"`
				SmartOLT     string `json:"smartolt"`
			} `json:"servicios"`
		} `json:"datos"`
	}

	err := m.post(ctx, "/GetClientsDetails", map[string]any{"cedula": contrato}, &data)
	if err != nil {
		log.Printf("❌ MikroWisp GetClientsDetails: %v", err)
		return nil, err
	}
	if data.Estado != "exito" || len(data.Datos) == 0 {
		log.Printf("MikroWisp: cliente no encontrado para %s", contrato)
		return nil, nil
	}

	raw := data.Datos[0]
	cliente := &Cliente{
		ID:               raw.ID.String(),
		Nombre:           raw.Nombre,
		Estado:           raw.Estado,
		UltimoTicket:     raw.UltimoTicket,
		FechaVencimiento: raw.FechaVencimiento,
	}

	var lineas []string
	for _, serv := range raw.Servicios {
		snTexto := ""
		if match := snPattern.FindStringSubmatch(serv.SmartOLT); match != nil {
			snTexto = fmt.Sprintf(" [SN: %s]", match[1])
			if cliente.SerialONT == "" {
				cliente.SerialONT = match[1]
			}
		}
		tipo := serv.TipoServicio
		if tipo == "" {
			tipo = "General"
		}
		perfil := serv.Perfil
		if perfil == "" {
			perfil = "Sin Plan"
		}
		estado := serv.StatusUser
		if estado == "" {
			estado = "Desconocido"
		}
		lineas = append(lineas, fmt.Sprintf("- %s: %s (Estado: %s)%s", tipo, perfil, estado, snTexto))
	}
	if len(lineas) > 0 {
		cliente.Plan = strings.Join(lineas, "\n")
		cliente.IPCliente = raw.Servicios[0].IP
	} else {
		cliente.Plan = "N/A"
	}

	return cliente, nil
}

// SaldoPendiente returns the customer's unpaid total. Failures degrade to
// zero so billing never blocks the support flow.
func (m *MikroWispService) SaldoPendiente(ctx context.Context, clienteID string) float64 {
	var data struct {
		TotalPendiente float64 `json:"total_pendiente"`
	}
	err := m.post(ctx, "/GetInvoices", map[string]any{
		"idcliente": clienteID,
		"estado":    1, // unpaid only
		"limit":     10,
	}, &data)
	if err != nil {
		log.Printf("❌ MikroWisp GetInvoices: %v", err)
		return 0
	}
	return data.TotalPendiente
}

// Defaults applied when the caller leaves the ticket fields empty.
const (
	turnoDefault    = "MAÑANA"
	agendadoDefault = "VIA TELEFONICA"
)

// CrearTicket opens a support ticket and returns its external id.
func (m *MikroWispService) CrearTicket(ctx context.Context, t *NuevoTicket) (string, error) {
	turno := t.Turno
	if turno == "" {
		turno = turnoDefault
	}
	solicitante := t.Solicitante
	if solicitante == "" {
		solicitante = "ARIA Bot"
	}

	var data struct {
		Estado   string      `json:"estado"`
		Mensaje  string      `json:"mensaje"`
		ID       json.Number `json:"id"`
		TicketID json.Number `json:"idticket"`
	}
	err := m.post(ctx, "/NewTicket", map[string]any{
		"idcliente":   t.ClienteID,
		"dp":          1,
		"asunto":      t.Asunto,
		"solicitante": solicitante,
		"fechavisita": time.Now().Format("2006-01-02"),
		"turno":       turno,
		"agendado":    agendadoDefault,
		"contenido":   t.Contenido,
	}, &data)
	if err != nil {
		log.Printf("❌ MikroWisp NewTicket: %v", err)
		return "", err
	}
	if data.Estado != "exito" {
		log.Printf("❌ MikroWisp NewTicket rechazado: %s", data.Mensaje)
		return "", fmt.Errorf("mikrowisp NewTicket: %s", data.Mensaje)
	}
	if id := data.ID.String(); id != "" {
		return id, nil
	}
	return data.TicketID.String(), nil
}

// CerrarTicket closes a ticket with the given resolution note.
func (m *MikroWispService) CerrarTicket(ctx context.Context, ticketID, motivo string) error {
	var data struct {
		Estado string `json:"estado"`
	}
	err := m.post(ctx, "/CloseTicket", map[string]any{
		"idticket":      ticketID,
		"motivo_cierre": motivo,
	}, &data)
	if err != nil {
		log.Printf("❌ MikroWisp CloseTicket %s: %v", ticketID, err)
	}
	return err
}
