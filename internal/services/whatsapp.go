package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/krlozs/isp-ai/internal/config"
)

// Boton is one reply button (max 3 per message).
type Boton struct {
	ID     string
	Titulo string
}

// Fila is one row of a list section.
type Fila struct {
	ID          string
	Titulo      string
	Descripcion string
}

// Seccion groups list rows under a title (max 10 rows across sections).
type Seccion struct {
	Titulo string
	Filas  []Fila
}

// Mensajeria is the messaging capability consumed by both flows. The
// customer line and the technician line are separate phone numbers.
type Mensajeria interface {
	EnviarTexto(ctx context.Context, to, body string) error
	EnviarBotones(ctx context.Context, to, body string, botones []Boton) error
	EnviarLista(ctx context.Context, to, header, body, boton string, secciones []Seccion) error

	EnviarTextoTecnico(ctx context.Context, to, body string) error
	EnviarBotonesTecnico(ctx context.Context, to, body string, botones []Boton) error

	// DescargarMedia fetches inbound media bytes by provider media id.
	DescargarMedia(ctx context.Context, mediaID string) ([]byte, error)
}

const graphBase = "https://graph.facebook.com/v19.0"

// WhatsAppService talks to the WhatsApp Cloud API. The HTTP status of a
// send is logged but never trusted for delivery: the provider answers 200
// even when the 24h response window is closed.
type WhatsAppService struct {
	token         string
	phoneClientes string
	phoneTecnicos string
	client        *http.Client
}

// NewWhatsAppService creates the client. The technician line falls back to
// the customer line when not configured.
func NewWhatsAppService(cfg *config.Config) *WhatsAppService {
	tecnicos := cfg.PhoneIDTecnicos
	if tecnicos == "" {
		tecnicos = cfg.PhoneIDClientes
	}
	return &WhatsAppService{
		token:         cfg.WhatsAppToken,
		phoneClientes: cfg.PhoneIDClientes,
		phoneTecnicos: tecnicos,
		client:        &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

func (w *WhatsAppService) enviar(ctx context.Context, phoneID string, payload map[string]any) error {
	payload["messaging_product"] = "whatsapp"
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", graphBase, phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("❌ WhatsApp send HTTP %d: %s", resp.StatusCode, respBody)
		return fmt.Errorf("whatsapp send: HTTP %d", resp.StatusCode)
	}
	return nil
}

func textoPayload(to, body string) map[string]any {
	return map[string]any{
		"to":   to,
		"type": "text",
		"text": map[string]string{"body": body},
	}
}

func botonesPayload(to, body string, botones []Boton) map[string]any {
	if len(botones) > 3 {
		botones = botones[:3]
	}
	items := make([]map[string]any, 0, len(botones))
	for _, b := range botones {
		items = append(items, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Titulo},
		})
	}
	return map[string]any{
		"to":   to,
		"type": "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]any{"buttons": items},
		},
	}
}

func (w *WhatsAppService) EnviarTexto(ctx context.Context, to, body string) error {
	return w.enviar(ctx, w.phoneClientes, textoPayload(to, body))
}

func (w *WhatsAppService) EnviarBotones(ctx context.Context, to, body string, botones []Boton) error {
	return w.enviar(ctx, w.phoneClientes, botonesPayload(to, body, botones))
}

func (w *WhatsAppService) EnviarLista(ctx context.Context, to, header, body, boton string, secciones []Seccion) error {
	items := make([]map[string]any, 0, len(secciones))
	for _, sec := range secciones {
		filas := make([]map[string]string, 0, len(sec.Filas))
		for _, f := range sec.Filas {
			filas = append(filas, map[string]string{
				"id":          f.ID,
				"title":       f.Titulo,
				"description": f.Descripcion,
			})
		}
		items = append(items, map[string]any{"title": sec.Titulo, "rows": filas})
	}
	return w.enviar(ctx, w.phoneClientes, map[string]any{
		"to":   to,
		"type": "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"header": map[string]string{"type": "text", "text": header},
			"body":   map[string]string{"text": body},
			"footer": map[string]string{"text": "ARIA - Soporte Técnico"},
			"action": map[string]any{"button": boton, "sections": items},
		},
	})
}

func (w *WhatsAppService) EnviarTextoTecnico(ctx context.Context, to, body string) error {
	return w.enviar(ctx, w.phoneTecnicos, textoPayload(to, body))
}

func (w *WhatsAppService) EnviarBotonesTecnico(ctx context.Context, to, body string, botones []Boton) error {
	return w.enviar(ctx, w.phoneTecnicos, botonesPayload(to, body, botones))
}

// DescargarMedia resolves the media id to a download URL and fetches the
// bytes. Both requests carry the bearer token.
func (w *WhatsAppService) DescargarMedia(ctx context.Context, mediaID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBase+"/"+mediaID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whatsapp media lookup: HTTP %d", resp.StatusCode)
	}
	var meta struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, err
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("whatsapp media %s: sin URL de descarga", mediaID)
	}

	req2, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, err
	}
	req2.Header.Set("Authorization", "Bearer "+w.token)

	resp2, err := w.client.Do(req2)
	if err != nil {
		return nil, err
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whatsapp media download: HTTP %d", resp2.StatusCode)
	}
	return io.ReadAll(resp2.Body)
}
