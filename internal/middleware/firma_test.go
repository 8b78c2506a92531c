package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krlozs/isp-ai/internal/config"
)

func appConFirma(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Post("/webhook", ValidarFirmaMeta(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func firmar(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestFirmaValidaPasa(t *testing.T) {
	cfg := &config.Config{Entorno: "production", AppSecret: "secreto"}
	app := appConFirma(cfg)
	body := `{"entry":[]}`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", firmar("secreto", body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestFirmaInvalidaRechaza(t *testing.T) {
	cfg := &config.Config{Entorno: "production", AppSecret: "secreto"}
	app := appConFirma(cfg)
	body := `{"entry":[]}`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", firmar("otro-secreto", body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestFirmaAusenteRechaza(t *testing.T) {
	cfg := &config.Config{Entorno: "production", AppSecret: "secreto"}
	app := appConFirma(cfg)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("{}"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestFirmaDeshabilitadaEnDesarrollo(t *testing.T) {
	cfg := &config.Config{Entorno: "development", AppSecret: "secreto"}
	app := appConFirma(cfg)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("{}"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
