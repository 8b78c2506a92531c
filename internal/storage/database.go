package storage

import (
	"gorm.io/gorm"

	"github.com/krlozs/isp-ai/internal/models"
)

// DatabaseStore implements Store on PostgreSQL via GORM.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed record store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (d *DatabaseStore) GuardarEncuesta(encuesta *models.EncuestaCSAT) error {
	return d.db.Create(encuesta).Error
}

func (d *DatabaseStore) EncuestasPorTicket(ticketID string) ([]*models.EncuestaCSAT, error) {
	var encuestas []*models.EncuestaCSAT
	err := d.db.Where("ticket_id = ?", ticketID).Find(&encuestas).Error
	return encuestas, err
}

func (d *DatabaseStore) GuardarCierre(cierre *models.CierreTicket) error {
	return d.db.Create(cierre).Error
}

func (d *DatabaseStore) CierrePorTicket(ticketID string) (*models.CierreTicket, error) {
	var cierre models.CierreTicket
	err := d.db.Where("ticket_id = ?", ticketID).First(&cierre).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cierre, nil
}
