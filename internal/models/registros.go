package models

import (
	"time"

	"gorm.io/gorm"
)

// EncuestaCSAT is the durable record of a satisfaction score. Conversation
// state is ephemeral; the score itself is kept for reporting.
type EncuestaCSAT struct {
	gorm.Model
	Phone        string    `json:"phone" gorm:"index"`
	TicketID     string    `json:"ticket_id" gorm:"index"`
	Calificacion int       `json:"calificacion"`
	Resolucion   string    `json:"resolucion"` // REMOTA or VISITA_TECNICA
	RecibidoAt   time.Time `json:"recibido_at"`
}

// CierreTicket is the durable record of a technician field closure.
type CierreTicket struct {
	gorm.Model
	TicketID     string    `json:"ticket_id" gorm:"index"`
	TecnicoPhone string    `json:"tecnico_phone"`
	TecnicoName  string    `json:"tecnico_nombre"`
	Falla        string    `json:"falla"`
	Solucion     string    `json:"solucion"`
	Materiales   string    `json:"materiales"`
	NumFotos     int       `json:"num_fotos"`
	TTR          string    `json:"ttr"`
	CerradoAt    time.Time `json:"cerrado_at"`
}
