package models

import "time"

// FaseTecnico is the closed set of phases for the field technician flow.
type FaseTecnico string

const (
	TecIdle            FaseTecnico = "IDLE"
	TecEsperandoConfir FaseTecnico = "ESPERANDO_CONFIRMACION"
	TecEnCamino        FaseTecnico = "EN_CAMINO"
	TecEnDomicilio     FaseTecnico = "EN_DOMICILIO"
	TecCierreP1        FaseTecnico = "CIERRE_P1"
	TecCierreP2        FaseTecnico = "CIERRE_P2"
	TecCierreP3        FaseTecnico = "CIERRE_P3"
	TecCierreFotos     FaseTecnico = "CIERRE_FOTOS"
)

// SesionTecnico is the state of one technician's active assignment. Keyed by
// the technician's phone in a keyspace independent from customer sessions.
// Deleted when the ticket closes or the technician declines.
type SesionTecnico struct {
	Phone  string      `json:"phone"`
	Nombre string      `json:"nombre"`
	Fase   FaseTecnico `json:"fase"`

	TicketID         string `json:"ticket_id,omitempty"`
	ClientePhone     string `json:"cliente_phone,omitempty"`
	ClienteNombre    string `json:"cliente_nombre,omitempty"`
	ClienteDireccion string `json:"cliente_direccion,omitempty"`
	Problema         string `json:"problema,omitempty"`

	// Timeline. Monotonically non-decreasing as the phase advances.
	TsAsignado   *time.Time `json:"ts_asignado,omitempty"`
	TsConfirmado *time.Time `json:"ts_confirmado,omitempty"`
	TsEnCamino   *time.Time `json:"ts_en_camino,omitempty"`
	TsLlegada    *time.Time `json:"ts_llegada,omitempty"`
	TsCierre     *time.Time `json:"ts_cierre,omitempty"`

	// Closure interview, collected one question at a time.
	Falla      string   `json:"falla,omitempty"`
	Solucion   string   `json:"solucion,omitempty"`
	Materiales string   `json:"materiales,omitempty"`
	Fotos      []string `json:"fotos"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TecnicoAutorizado is one entry of the authorized technician registry,
// mutated only through administrator commands.
type TecnicoAutorizado struct {
	Nombre string `json:"nombre"`
	Activo bool   `json:"activo"`
}

// NotificacionPendiente is a message queued for a technician whose
// messaging window was closed at send time.
type NotificacionPendiente struct {
	Mensaje   string    `json:"mensaje"`
	Timestamp time.Time `json:"timestamp"`
}
