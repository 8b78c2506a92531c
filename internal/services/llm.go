package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/models"
)

// Redactor generates conversational replies. Implementations never return
// an error: on any backend failure the reply degrades to a fixed apology
// and the conversation keeps advancing.
type Redactor interface {
	// Responder renders the reply for prompt, feeding the session's
	// bounded transcript as context. When rawUserMessage is non-empty the
	// user turn and the generated reply are appended to the transcript.
	Responder(ctx context.Context, prompt string, s *models.SesionCliente, rawUserMessage string) string
}

const (
	modeloGLM         = "GLM-4.5-Air"
	transcriptWindow  = 10
	transcriptMaxKeep = 40
)

// GLMService implements Redactor against the Z.AI chat-completions API.
type GLMService struct {
	apiKey  string
	baseURL string
	system  string
	client  *http.Client
}

// NewGLMService creates the language backend client.
func NewGLMService(cfg *config.Config) *GLMService {
	return &GLMService{
		apiKey:  cfg.GLMAPIKey,
		baseURL: cfg.GLMBaseURL,
		system:  fmt.Sprintf(systemPrompt, cfg.NombreISP, cfg.NombreISP, cfg.HorarioTecnico),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GLMService) Responder(ctx context.Context, prompt string, s *models.SesionCliente, rawUserMessage string) string {
	messages := []models.MensajeLLM{{Role: "system", Content: g.system}}

	historial := s.Historial
	if len(historial) > transcriptWindow {
		historial = historial[len(historial)-transcriptWindow:]
	}
	messages = append(messages, historial...)
	messages = append(messages, models.MensajeLLM{Role: "user", Content: prompt})

	body, err := json.Marshal(map[string]any{
		"model":       modeloGLM,
		"messages":    messages,
		"temperature": 0.7,
		"max_tokens":  2000,
	})
	if err != nil {
		log.Printf("❌ GLM marshal: %v", err)
		return respuestaFallback
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("❌ GLM request: %v", err)
		return respuestaFallback
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		log.Printf("❌ GLM: %v", err)
		return respuestaFallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ GLM: HTTP %d", resp.StatusCode)
		return respuestaFallback
	}

	var data struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || len(data.Choices) == 0 {
		log.Printf("❌ GLM decode: %v", err)
		return respuestaFallback
	}
	reply := data.Choices[0].Message.Content

	if rawUserMessage != "" {
		s.Historial = append(s.Historial,
			models.MensajeLLM{Role: "user", Content: rawUserMessage},
			models.MensajeLLM{Role: "assistant", Content: reply},
		)
		// Keep the transcript bounded; only the tail feeds the model anyway.
		if len(s.Historial) > transcriptMaxKeep {
			s.Historial = s.Historial[len(s.Historial)-transcriptMaxKeep:]
		}
	}
	return reply
}
