package storage

import (
	"sync"

	"github.com/krlozs/isp-ai/internal/models"
)

// MemoryStore keeps records in memory. Used by tests and by deployments
// started with USE_MEMORY_STORE=true.
type MemoryStore struct {
	mu        sync.RWMutex
	encuestas []*models.EncuestaCSAT
	cierres   []*models.CierreTicket
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) GuardarEncuesta(encuesta *models.EncuestaCSAT) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	encuesta.ID = uint(len(m.encuestas) + 1)
	m.encuestas = append(m.encuestas, encuesta)
	return nil
}

func (m *MemoryStore) EncuestasPorTicket(ticketID string) ([]*models.EncuestaCSAT, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.EncuestaCSAT
	for _, e := range m.encuestas {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) GuardarCierre(cierre *models.CierreTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cierre.ID = uint(len(m.cierres) + 1)
	m.cierres = append(m.cierres, cierre)
	return nil
}

func (m *MemoryStore) CierrePorTicket(ticketID string) (*models.CierreTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cierres {
		if c.TicketID == ticketID {
			return c, nil
		}
	}
	return nil, nil
}
