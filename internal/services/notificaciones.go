package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/sessions"
)

// Notificador enforces the provider's response-window rule for technician
// messages. The window flag — set only by observed inbound traffic — is
// the sole source of truth: the provider answers 200 even when delivery
// will silently fail outside the window.
type Notificador struct {
	sesiones sessions.Store
	wa       Mensajeria
}

// NewNotificador creates the window-aware delivery layer.
func NewNotificador(sesiones sessions.Store, wa Mensajeria) *Notificador {
	return &Notificador{sesiones: sesiones, wa: wa}
}

// Enviar delivers msg to a technician when their window is open, or queues
// it with a timestamp otherwise. Queued messages are never dropped; the
// queue itself carries the 48h expiry.
func (n *Notificador) Enviar(ctx context.Context, phone, msg string) error {
	activa, err := n.sesiones.VentanaActiva(ctx, phone)
	if err != nil {
		log.Printf("❌ Notificador: ventana de %s: %v", phone, err)
		// Unknown window state: queue rather than risk a silent drop.
		activa = false
	}

	if activa {
		return n.wa.EnviarTextoTecnico(ctx, phone, msg)
	}

	log.Printf("[PENDIENTE] Ventana cerrada para %s — mensaje encolado", phone)
	return n.sesiones.AgregarPendiente(ctx, phone, models.NotificacionPendiente{
		Mensaje:   msg,
		Timestamp: time.Now(),
	})
}

// AbrirVentana marks the technician's window open. Called from every
// inbound technician message.
func (n *Notificador) AbrirVentana(ctx context.Context, phone string) error {
	return n.sesiones.AbrirVentana(ctx, phone)
}

// EntregarPendientes flushes the queued messages in timestamp order and
// clears the queue. Returns the number of messages delivered.
func (n *Notificador) EntregarPendientes(ctx context.Context, phone string) (int, error) {
	pendientes, err := n.sesiones.Pendientes(ctx, phone)
	if err != nil {
		return 0, err
	}
	if len(pendientes) == 0 {
		return 0, nil
	}

	log.Printf("[PENDIENTE] Entregando %d mensajes a %s", len(pendientes), phone)
	_ = n.wa.EnviarTextoTecnico(ctx, phone,
		fmt.Sprintf("📬 Tienes *%d ticket(s) pendiente(s)* que no pudieron entregarse antes:", len(pendientes)))

	for _, item := range pendientes {
		ts := item.Timestamp.Format("2006-01-02 15:04")
		_ = n.wa.EnviarTextoTecnico(ctx, phone, fmt.Sprintf("🕐 _%s_\n%s", ts, item.Mensaje))
	}

	if err := n.sesiones.LimpiarPendientes(ctx, phone); err != nil {
		return len(pendientes), err
	}
	return len(pendientes), nil
}
