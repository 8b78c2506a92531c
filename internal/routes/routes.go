package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/handlers"
	"github.com/krlozs/isp-ai/internal/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, webhook *handlers.WebhookHandler, admin *handlers.AdminHandler) {

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "ARIA - Soporte Técnico ISP",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":  "/health",
				"webhook": "/webhook",
				"admin":   "/admin",
			},
		})
	})

	health := handlers.NewHealthHandler("1.0.0")
	app.Get("/health", health.Check)

	// ========== WEBHOOK ROUTES ==========
	// Meta verification handshake plus the message webhook for both lines.
	app.Get("/webhook", webhook.Verificar)
	app.Post("/webhook", middleware.ValidarFirmaMeta(cfg), webhook.Recibir)

	// Ticket-closed callback from MikroWisp.
	app.Post("/webhook/mikrowisp/ticket-closed", webhook.TicketCerrado)

	// ========== ADMIN ROUTES ==========
	adm := app.Group("/admin")
	adm.Get("/sessions/:phone", admin.SesionCliente)
	adm.Get("/tecnicos", admin.Tecnicos)
	adm.Get("/tickets/:id/cierre", admin.CierrePorTicket)
	adm.Get("/tickets/:id/encuestas", admin.EncuestasPorTicket)
}
