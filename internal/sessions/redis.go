package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krlozs/isp-ai/internal/models"
)

const (
	keySesion     = "session:"
	keyTecnico    = "tecnico_session:"
	keyVentana    = "ventana_tecnico:"
	keyPendientes = "pendiente_tecnico:"
	keyRegistro   = "tecnicos_autorizados"
	keyTicket     = "ticket_cliente:"
)

// TTLs groups the per-keyspace expirations the Redis store applies.
type TTLs struct {
	Cliente    time.Duration
	Tecnico    time.Duration
	Ventana    time.Duration
	Pendientes time.Duration
	Ticket     time.Duration
}

// RedisStore implements Store on Redis with JSON values and per-key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    TTLs
}

// NewRedisStore creates the store. Ticket index entries default to the
// technician session TTL when unset.
func NewRedisStore(client *redis.Client, ttl TTLs) *RedisStore {
	if ttl.Ticket <= 0 {
		ttl.Ticket = ttl.Tecnico
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) ObtenerCliente(ctx context.Context, phone string) (*models.SesionCliente, error) {
	val, err := r.client.Get(ctx, keySesion+phone).Result()
	if err == redis.Nil {
		s := models.NuevaSesionCliente(phone)
		if err := r.GuardarCliente(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var s models.SesionCliente
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) GuardarCliente(ctx context.Context, s *models.SesionCliente) error {
	s.UpdatedAt = time.Now()
	s.Version++
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keySesion+s.Phone, data, r.ttl.Cliente).Err()
}

func (r *RedisStore) ActualizarCliente(ctx context.Context, s *models.SesionCliente) error {
	key := keySesion + s.Phone
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var stored models.SesionCliente
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}
		if stored.Version != s.Version {
			return ErrVersionConflict
		}
		s.UpdatedAt = time.Now()
		s.Version++
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl.Cliente)
			return nil
		})
		return err
	}, key)
}

func (r *RedisStore) BorrarCliente(ctx context.Context, phone string) error {
	return r.client.Del(ctx, keySesion+phone).Err()
}

func (r *RedisStore) ObtenerTecnico(ctx context.Context, phone string) (*models.SesionTecnico, error) {
	val, err := r.client.Get(ctx, keyTecnico+phone).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s models.SesionTecnico
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) GuardarTecnico(ctx context.Context, s *models.SesionTecnico) error {
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyTecnico+s.Phone, data, r.ttl.Tecnico).Err()
}

func (r *RedisStore) BorrarTecnico(ctx context.Context, phone string) error {
	return r.client.Del(ctx, keyTecnico+phone).Err()
}

func (r *RedisStore) AbrirVentana(ctx context.Context, phone string) error {
	return r.client.Set(ctx, keyVentana+phone, "1", r.ttl.Ventana).Err()
}

func (r *RedisStore) VentanaActiva(ctx context.Context, phone string) (bool, error) {
	_, err := r.client.Get(ctx, keyVentana+phone).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisStore) AgregarPendiente(ctx context.Context, phone string, n models.NotificacionPendiente) error {
	pendientes, err := r.Pendientes(ctx, phone)
	if err != nil {
		return err
	}
	pendientes = append(pendientes, n)
	data, err := json.Marshal(pendientes)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPendientes+phone, data, r.ttl.Pendientes).Err()
}

func (r *RedisStore) Pendientes(ctx context.Context, phone string) ([]models.NotificacionPendiente, error) {
	val, err := r.client.Get(ctx, keyPendientes+phone).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pendientes []models.NotificacionPendiente
	if err := json.Unmarshal([]byte(val), &pendientes); err != nil {
		return nil, err
	}
	return pendientes, nil
}

func (r *RedisStore) LimpiarPendientes(ctx context.Context, phone string) error {
	return r.client.Del(ctx, keyPendientes+phone).Err()
}

func (r *RedisStore) Tecnicos(ctx context.Context) (map[string]models.TecnicoAutorizado, error) {
	val, err := r.client.Get(ctx, keyRegistro).Result()
	if err == redis.Nil {
		return map[string]models.TecnicoAutorizado{}, nil
	}
	if err != nil {
		return nil, err
	}
	tecnicos := map[string]models.TecnicoAutorizado{}
	if err := json.Unmarshal([]byte(val), &tecnicos); err != nil {
		return nil, err
	}
	return tecnicos, nil
}

func (r *RedisStore) GuardarTecnicos(ctx context.Context, tecnicos map[string]models.TecnicoAutorizado) error {
	data, err := json.Marshal(tecnicos)
	if err != nil {
		return err
	}
	// Registry never expires.
	return r.client.Set(ctx, keyRegistro, data, 0).Err()
}

func (r *RedisStore) VincularTicket(ctx context.Context, ticketID, phone string) error {
	return r.client.Set(ctx, keyTicket+ticketID, phone, r.ttl.Ticket).Err()
}

func (r *RedisStore) TelefonoPorTicket(ctx context.Context, ticketID string) (string, error) {
	val, err := r.client.Get(ctx, keyTicket+ticketID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}
