// Package sessions is the ephemeral keyed store behind both conversation
// flows: customer sessions, technician sessions, messaging-window flags,
// pending notification queues, the authorized technician registry and the
// ticket→customer index. Every key except the registry expires.
package sessions

import (
	"context"
	"errors"

	"github.com/krlozs/isp-ai/internal/models"
)

var (
	// ErrNotFound is returned when a versioned update targets a key that
	// no longer exists (expired or cleared).
	ErrNotFound = errors.New("sessions: not found")

	// ErrVersionConflict is returned by Actualizar* when the stored
	// session version moved since the caller read it.
	ErrVersionConflict = errors.New("sessions: version conflict")
)

// Store is the single owner of all conversation state. Handlers read,
// mutate a local copy and write back; nothing else keeps authoritative
// copies.
type Store interface {
	// ObtenerCliente returns the session for phone, creating and
	// persisting a fresh one in IDENTIFICACION if none exists.
	ObtenerCliente(ctx context.Context, phone string) (*models.SesionCliente, error)
	// GuardarCliente writes the session unconditionally (last write wins)
	// and bumps its version.
	GuardarCliente(ctx context.Context, s *models.SesionCliente) error
	// ActualizarCliente writes the session only if the stored version
	// still matches s.Version. Used by detached background tasks.
	ActualizarCliente(ctx context.Context, s *models.SesionCliente) error
	BorrarCliente(ctx context.Context, phone string) error

	// ObtenerTecnico returns nil (no error) when the technician has no
	// active session.
	ObtenerTecnico(ctx context.Context, phone string) (*models.SesionTecnico, error)
	GuardarTecnico(ctx context.Context, s *models.SesionTecnico) error
	BorrarTecnico(ctx context.Context, phone string) error

	// Messaging window flag, set only from observed inbound traffic.
	AbrirVentana(ctx context.Context, phone string) error
	VentanaActiva(ctx context.Context, phone string) (bool, error)

	// Pending notification queue for closed-window technicians.
	AgregarPendiente(ctx context.Context, phone string, n models.NotificacionPendiente) error
	Pendientes(ctx context.Context, phone string) ([]models.NotificacionPendiente, error)
	LimpiarPendientes(ctx context.Context, phone string) error

	// Authorized technician registry. No expiry, admin-command writes only.
	Tecnicos(ctx context.Context) (map[string]models.TecnicoAutorizado, error)
	GuardarTecnicos(ctx context.Context, tecnicos map[string]models.TecnicoAutorizado) error

	// Ticket index: external ticket id → customer phone.
	VincularTicket(ctx context.Context, ticketID, phone string) error
	TelefonoPorTicket(ctx context.Context, ticketID string) (string, error)
}
