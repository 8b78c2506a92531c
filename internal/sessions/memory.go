package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/krlozs/isp-ai/internal/models"
)

// MemoryStore is an in-process Store used for tests and local development
// without Redis. Expiry is checked lazily on read.
type MemoryStore struct {
	mu         sync.RWMutex
	ttl        TTLs
	clientes   map[string]*entrada[models.SesionCliente]
	tecnicos   map[string]*entrada[models.SesionTecnico]
	ventanas   map[string]time.Time
	pendientes map[string]*entrada[[]models.NotificacionPendiente]
	registro   map[string]models.TecnicoAutorizado
	tickets    map[string]string
}

type entrada[T any] struct {
	valor  T
	expira time.Time
}

func (e *entrada[T]) vigente() bool {
	return e != nil && time.Now().Before(e.expira)
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(ttl TTLs) *MemoryStore {
	if ttl.Ticket <= 0 {
		ttl.Ticket = ttl.Tecnico
	}
	return &MemoryStore{
		ttl:        ttl,
		clientes:   make(map[string]*entrada[models.SesionCliente]),
		tecnicos:   make(map[string]*entrada[models.SesionTecnico]),
		ventanas:   make(map[string]time.Time),
		pendientes: make(map[string]*entrada[[]models.NotificacionPendiente]),
		registro:   make(map[string]models.TecnicoAutorizado),
		tickets:    make(map[string]string),
	}
}

func (m *MemoryStore) ObtenerCliente(ctx context.Context, phone string) (*models.SesionCliente, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.clientes[phone]; e.vigente() {
		copia := e.valor
		return &copia, nil
	}
	s := models.NuevaSesionCliente(phone)
	m.guardarClienteLocked(s)
	return s, nil
}

func (m *MemoryStore) guardarClienteLocked(s *models.SesionCliente) {
	s.UpdatedAt = time.Now()
	s.Version++
	copia := *s
	m.clientes[s.Phone] = &entrada[models.SesionCliente]{valor: copia, expira: time.Now().Add(m.ttl.Cliente)}
}

func (m *MemoryStore) GuardarCliente(ctx context.Context, s *models.SesionCliente) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardarClienteLocked(s)
	return nil
}

func (m *MemoryStore) ActualizarCliente(ctx context.Context, s *models.SesionCliente) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.clientes[s.Phone]
	if !e.vigente() {
		return ErrNotFound
	}
	if e.valor.Version != s.Version {
		return ErrVersionConflict
	}
	m.guardarClienteLocked(s)
	return nil
}

func (m *MemoryStore) BorrarCliente(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clientes, phone)
	return nil
}

func (m *MemoryStore) ObtenerTecnico(ctx context.Context, phone string) (*models.SesionTecnico, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e := m.tecnicos[phone]; e.vigente() {
		copia := e.valor
		return &copia, nil
	}
	return nil, nil
}

func (m *MemoryStore) GuardarTecnico(ctx context.Context, s *models.SesionTecnico) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	copia := *s
	m.tecnicos[s.Phone] = &entrada[models.SesionTecnico]{valor: copia, expira: time.Now().Add(m.ttl.Tecnico)}
	return nil
}

func (m *MemoryStore) BorrarTecnico(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tecnicos, phone)
	return nil
}

func (m *MemoryStore) AbrirVentana(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ventanas[phone] = time.Now().Add(m.ttl.Ventana)
	return nil
}

func (m *MemoryStore) VentanaActiva(ctx context.Context, phone string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expira, ok := m.ventanas[phone]
	return ok && time.Now().Before(expira), nil
}

func (m *MemoryStore) AgregarPendiente(ctx context.Context, phone string, n models.NotificacionPendiente) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lista []models.NotificacionPendiente
	if e := m.pendientes[phone]; e.vigente() {
		lista = e.valor
	}
	lista = append(lista, n)
	m.pendientes[phone] = &entrada[[]models.NotificacionPendiente]{valor: lista, expira: time.Now().Add(m.ttl.Pendientes)}
	return nil
}

func (m *MemoryStore) Pendientes(ctx context.Context, phone string) ([]models.NotificacionPendiente, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e := m.pendientes[phone]; e.vigente() {
		return append([]models.NotificacionPendiente(nil), e.valor...), nil
	}
	return nil, nil
}

func (m *MemoryStore) LimpiarPendientes(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendientes, phone)
	return nil
}

func (m *MemoryStore) Tecnicos(ctx context.Context) (map[string]models.TecnicoAutorizado, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.TecnicoAutorizado, len(m.registro))
	for k, v := range m.registro {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) GuardarTecnicos(ctx context.Context, tecnicos map[string]models.TecnicoAutorizado) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registro = make(map[string]models.TecnicoAutorizado, len(tecnicos))
	for k, v := range tecnicos {
		m.registro[k] = v
	}
	return nil
}

func (m *MemoryStore) VincularTicket(ctx context.Context, ticketID, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[ticketID] = phone
	return nil
}

func (m *MemoryStore) TelefonoPorTicket(ctx context.Context, ticketID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tickets[ticketID], nil
}
