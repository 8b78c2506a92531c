package models

import "time"

// FaseCliente is the closed set of phases the customer conversation can be in.
type FaseCliente string

const (
	FaseIdentificacion        FaseCliente = "IDENTIFICACION"
	FaseDiagnosticoRed        FaseCliente = "DIAGNOSTICO_RED"
	FaseTroubleshootingManual FaseCliente = "TROUBLESHOOTING_MANUAL"
	FaseTroubleshooting       FaseCliente = "TROUBLESHOOTING"
	FasePreguntasNoInet       FaseCliente = "ESPERANDO_PREGUNTAS_NOINET"
	FaseRebootPendiente       FaseCliente = "REBOOT_PENDIENTE"
	FaseEscalado              FaseCliente = "ESCALADO"
	FaseEsperandoTecnico      FaseCliente = "ESPERANDO_TECNICO"
	FaseCSAT                  FaseCliente = "CSAT"
	FaseFinalizadoMora        FaseCliente = "FINALIZADO_MORA"
)

// Valida reports whether f belongs to the phase enumeration.
func (f FaseCliente) Valida() bool {
	switch f {
	case FaseIdentificacion, FaseDiagnosticoRed, FaseTroubleshootingManual,
		FaseTroubleshooting, FasePreguntasNoInet, FaseRebootPendiente,
		FaseEscalado, FaseEsperandoTecnico, FaseCSAT, FaseFinalizadoMora:
		return true
	}
	return false
}

// Escalation destinations.
const (
	DestinoTecnico = "TECNICO"
	DestinoNOC     = "NOC"
)

// MensajeLLM is one turn of the bounded transcript kept for the language backend.
type MensajeLLM struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SesionCliente is the conversation state for one customer phone number.
// It lives in the session store under an idle TTL and is cleared when the
// CSAT phase completes.
type SesionCliente struct {
	Phone           string       `json:"phone"`
	Fase            FaseCliente  `json:"fase"`
	Contrato        string       `json:"contrato,omitempty"`
	IDCliente       string       `json:"id_cliente,omitempty"`
	Nombre          string       `json:"nombre,omitempty"`
	Plan            string       `json:"plan,omitempty"`
	SerialONT       string       `json:"serial_ont,omitempty"`
	IPCliente       string       `json:"ip_cliente,omitempty"`
	TicketID        string       `json:"ticket_id,omitempty"`
	KPIActivo       string       `json:"kpi_activo,omitempty"`
	DatosTecnicos   string       `json:"datos_tecnicos,omitempty"`
	DestinoEscalado string       `json:"destino_escalado"`
	PasosRealizados []string     `json:"pasos_realizados"`
	RebootEjecutado bool         `json:"reboot_ejecutado"`
	Historial       []MensajeLLM `json:"historial"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// Version increments on every store write. The background verification
	// task uses it to detect a session mutated underneath it.
	Version int64 `json:"version"`
}

// NuevaSesionCliente returns a fresh session in the initial phase.
func NuevaSesionCliente(phone string) *SesionCliente {
	now := time.Now()
	return &SesionCliente{
		Phone:           phone,
		Fase:            FaseIdentificacion,
		DestinoEscalado: DestinoTecnico,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AgregarPaso records a troubleshooting step already performed.
func (s *SesionCliente) AgregarPaso(paso string) {
	s.PasosRealizados = append(s.PasosRealizados, paso)
}
