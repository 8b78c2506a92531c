package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/services"
	"github.com/krlozs/isp-ai/internal/sessions"
)

// WebhookHandler is the inbound edge: Meta's verification handshake, the
// message webhook for both phone lines, and the ticket-closed callback from
// the ticketing system.
type WebhookHandler struct {
	cfg      *config.Config
	clientes *services.FlujoCliente
	tecnicos *services.FlujoTecnico
	sesiones sessions.Store
	wa       services.Mensajeria
	llm      services.Redactor
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(cfg *config.Config, clientes *services.FlujoCliente, tecnicos *services.FlujoTecnico,
	sesiones sessions.Store, wa services.Mensajeria, llm services.Redactor) *WebhookHandler {
	return &WebhookHandler{
		cfg:      cfg,
		clientes: clientes,
		tecnicos: tecnicos,
		sesiones: sesiones,
		wa:       wa,
		llm:      llm,
	}
}

// Verificar answers Meta's GET handshake when the webhook URL is registered.
func (h *WebhookHandler) Verificar(c *fiber.Ctx) error {
	if c.Query("hub.mode") == "subscribe" && c.Query("hub.verify_token") == h.cfg.VerifyToken {
		return c.SendString(c.Query("hub.challenge"))
	}
	return c.SendStatus(fiber.StatusForbidden)
}

// metaWebhook mirrors the slice of the Cloud API payload this system reads.
type metaWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []metaMensaje `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type metaMensaje struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Image struct {
		ID string `json:"id"`
	} `json:"image"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID string `json:"id"`
		} `json:"button_reply"`
		ListReply struct {
			ID string `json:"id"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// Recibir handles the message webhook. The provider retries on anything but
// 200, so processing is dispatched to goroutines and the response is always
// immediate.
func (h *WebhookHandler) Recibir(c *fiber.Ctx) error {
	var payload metaWebhook
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("⚠️ Webhook: payload ilegible: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			phoneID := change.Value.Metadata.PhoneNumberID
			for _, msg := range change.Value.Messages {
				h.despachar(phoneID, msg)
			}
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) despachar(phoneID string, msg metaMensaje) {
	esLineaTecnicos := h.cfg.PhoneIDTecnicos != "" && phoneID == h.cfg.PhoneIDTecnicos

	if esLineaTecnicos {
		entrada := services.EntradaTecnico{}
		switch msg.Type {
		case "text":
			entrada.Texto = msg.Text.Body
		case "image":
			entrada.ImagenID = msg.Image.ID
		case "interactive":
			entrada.Texto = idInteractivo(msg)
		default:
			return
		}
		go h.tecnicos.ProcesarMensaje(context.Background(), msg.From, entrada)
		return
	}

	var texto string
	switch msg.Type {
	case "text":
		texto = msg.Text.Body
	case "interactive":
		texto = idInteractivo(msg)
		// Rating buttons come back as csat_<n>; the flow expects the digit.
		texto = strings.TrimPrefix(texto, "csat_")
	default:
		return
	}
	if texto == "" {
		return
	}
	go h.clientes.ProcesarMensaje(context.Background(), msg.From, texto)
}

func idInteractivo(msg metaMensaje) string {
	if msg.Interactive.ListReply.ID != "" {
		return msg.Interactive.ListReply.ID
	}
	return msg.Interactive.ButtonReply.ID
}

// TicketCerrado is the callback from the ticketing system when an agent
// closes a ticket outside the bot. The customer conversation moves to the
// satisfaction survey.
func (h *WebhookHandler) TicketCerrado(c *fiber.Ctx) error {
	var payload struct {
		TicketID string `json:"idticket"`
		Phone    string `json:"telefono"`
	}
	if err := c.BodyParser(&payload); err != nil || payload.TicketID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "idticket requerido"})
	}

	ctx := c.Context()
	phone := payload.Phone
	if phone == "" {
		var err error
		phone, err = h.sesiones.TelefonoPorTicket(ctx, payload.TicketID)
		if err != nil || phone == "" {
			log.Printf("⚠️ Webhook: ticket %s cerrado sin teléfono asociado", payload.TicketID)
			return c.JSON(fiber.Map{"status": "sin_destinatario"})
		}
	}

	s, err := h.sesiones.ObtenerCliente(ctx, phone)
	if err != nil {
		log.Printf("❌ Webhook: sesión de %s: %v", phone, err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	s.Fase = models.FaseCSAT
	s.TicketID = payload.TicketID
	if err := h.sesiones.GuardarCliente(ctx, s); err != nil {
		log.Printf("❌ Webhook: guardar sesión de %s: %v", phone, err)
	}

	body := h.llm.Responder(ctx, "El ticket #"+payload.TicketID+" del cliente fue resuelto y cerrado por el equipo técnico. "+
		"Avísale con alegría y pídele que califique la atención de 1 a 5. Máximo 2 líneas.", s, "")
	if err := h.wa.EnviarBotones(ctx, phone, body, []services.Boton{
		{ID: "csat_1", Titulo: "⭐ 1"},
		{ID: "csat_3", Titulo: "⭐ 3"},
		{ID: "csat_5", Titulo: "⭐ 5"},
	}); err != nil {
		log.Printf("❌ Webhook: aviso de cierre a %s: %v", phone, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
