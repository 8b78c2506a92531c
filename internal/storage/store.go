package storage

import (
	"github.com/krlozs/isp-ai/internal/models"
)

// Store persists the records that must outlive the ephemeral session store:
// satisfaction scores and field closure reports.
type Store interface {
	GuardarEncuesta(encuesta *models.EncuestaCSAT) error
	EncuestasPorTicket(ticketID string) ([]*models.EncuestaCSAT, error)

	GuardarCierre(cierre *models.CierreTicket) error
	CierrePorTicket(ticketID string) (*models.CierreTicket, error)
}
