package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/krlozs/isp-ai/internal/sessions"
	"github.com/krlozs/isp-ai/internal/storage"
)

// AdminHandler exposes read-only inspection endpoints for operators.
type AdminHandler struct {
	sesiones  sessions.Store
	registros storage.Store
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(sesiones sessions.Store, registros storage.Store) *AdminHandler {
	return &AdminHandler{sesiones: sesiones, registros: registros}
}

// SesionCliente returns the live session of one customer phone.
func (h *AdminHandler) SesionCliente(c *fiber.Ctx) error {
	phone := c.Params("phone")
	if phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone requerido"})
	}
	s, err := h.sesiones.ObtenerCliente(c.Context(), phone)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s)
}

// Tecnicos returns the authorized technician registry.
func (h *AdminHandler) Tecnicos(c *fiber.Ctx) error {
	tecnicos, err := h.sesiones.Tecnicos(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(tecnicos)
}

// CierrePorTicket returns the durable closure record of one ticket.
func (h *AdminHandler) CierrePorTicket(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	cierre, err := h.registros.CierrePorTicket(ticketID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if cierre == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sin registro de cierre"})
	}
	return c.JSON(cierre)
}

// EncuestasPorTicket returns the satisfaction scores of one ticket.
func (h *AdminHandler) EncuestasPorTicket(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	encuestas, err := h.registros.EncuestasPorTicket(ticketID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(encuestas)
}
