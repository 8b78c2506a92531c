package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/krlozs/isp-ai/internal/config"
)

// ValidarFirmaMeta validates the X-Hub-Signature-256 header that the
// WhatsApp Cloud API attaches to every webhook POST. Disabled when no app
// secret is configured or outside production, so local testing works with
// plain curl.
func ValidarFirmaMeta(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AppSecret == "" || cfg.Entorno != "production" {
			return c.Next()
		}

		firma := c.Get("X-Hub-Signature-256")
		if !strings.HasPrefix(firma, "sha256=") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing signature",
			})
		}

		mac := hmac.New(sha256.New, []byte(cfg.AppSecret))
		mac.Write(c.Body())
		esperada := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(esperada), []byte(strings.TrimPrefix(firma, "sha256="))) {
			log.Printf("⚠️ Webhook con firma inválida desde %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid signature",
			})
		}
		return c.Next()
	}
}
