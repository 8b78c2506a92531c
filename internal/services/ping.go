package services

import (
	"context"
	"log"
	"os/exec"
	"regexp"
	"strings"

	"github.com/krlozs/isp-ai/internal/config"
)

// Prober checks host reachability and returns a human-readable summary for
// the ticket body. It never fails: errors degrade to a fixed text.
type Prober interface {
	Ping(ctx context.Context, ip string) string
}

var (
	pingResumenPat = regexp.MustCompile(`(\d+ packets transmitted.+)`)
	pingRTTPat     = regexp.MustCompile(`rtt.+?=\s*(.+)`)
)

// PingService shells out to the system ping, four probes with a short
// per-probe timeout.
type PingService struct {
	timeout timeoutFn
}

type timeoutFn func(ctx context.Context) (context.Context, context.CancelFunc)

// NewPingService creates the probe with the configured overall timeout.
func NewPingService(cfg *config.Config) *PingService {
	d := cfg.PingTimeout
	return &PingService{
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, d)
		},
	}
}

func (p *PingService) Ping(ctx context.Context, ip string) string {
	ctx, cancel := p.timeout(ctx)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ping", "-c", "4", "-W", "2", ip).Output()
	if err != nil && len(out) == 0 {
		log.Printf("❌ ping %s: %v", ip, err)
		return "No se pudo ejecutar el ping"
	}

	var lineas []string
	if m := pingResumenPat.FindStringSubmatch(string(out)); m != nil {
		lineas = append(lineas, strings.TrimSpace(m[1]))
	}
	if m := pingRTTPat.FindStringSubmatch(string(out)); m != nil {
		lineas = append(lineas, "RTT: "+strings.TrimSpace(m[1]))
	}
	if len(lineas) == 0 {
		return "Sin respuesta (host inalcanzable)"
	}
	return strings.Join(lineas, "\n  ")
}
