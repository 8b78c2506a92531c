package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/krlozs/isp-ai/internal/config"
)

// Telemetria is the ONT management capability consumed by the flows. All
// methods degrade gracefully: unknown state is an empty string, an absent
// signal reading is nil.
type Telemetria interface {
	// EstadoONT returns the lowercased run state ("online", "offline",
	// "power fail", "los") or "" when it cannot be determined.
	EstadoONT(ctx context.Context, serial string) string
	// SenalRx returns the optical Rx reading in dBm, nil when unavailable.
	SenalRx(ctx context.Context, serial string) *float64
	// FullStatus returns the raw full-status dump, "" when unavailable.
	FullStatus(ctx context.Context, serial string) string
	// Reiniciar issues a remote reboot. A nil error means accepted.
	Reiniciar(ctx context.Context, serial string) error
}

// SmartOLTService implements Telemetria against the SmartOLT API. Every
// operation is two-step: the serial resolves to a unique external id first.
type SmartOLTService struct {
	base   string
	key    string
	client *http.Client
}

// NewSmartOLTService creates the SmartOLT client.
func NewSmartOLTService(cfg *config.Config) *SmartOLTService {
	return &SmartOLTService{
		base:   strings.TrimSuffix(cfg.SmartOLTBase, "/"),
		key:    cfg.SmartOLTKey,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

func (s *SmartOLTService) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Token", s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("smartolt %s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// externalID resolves the ONT serial to SmartOLT's unique external id.
func (s *SmartOLTService) externalID(ctx context.Context, serial string) string {
	var data struct {
		ONUs []struct {
			UniqueExternalID string `json:"unique_external_id"`
		} `json:"onus"`
	}
	if err := s.get(ctx, "/api/onu/get_onus_details_by_sn/"+serial, &data); err != nil {
		log.Printf("❌ SmartOLT get_onus_details_by_sn %s: %v", serial, err)
		return ""
	}
	if len(data.ONUs) == 0 || data.ONUs[0].UniqueExternalID == "" {
		log.Printf("SmartOLT: sin external id para SN %s", serial)
		return ""
	}
	return data.ONUs[0].UniqueExternalID
}

func (s *SmartOLTService) EstadoONT(ctx context.Context, serial string) string {
	id := s.externalID(ctx, serial)
	if id == "" {
		return ""
	}
	var data struct {
		ONUStatus string `json:"onu_status"`
	}
	if err := s.get(ctx, "/api/onu/get_onu_status/"+id, &data); err != nil {
		log.Printf("❌ SmartOLT get_onu_status: %v", err)
		return ""
	}
	return strings.ToLower(data.ONUStatus)
}

func (s *SmartOLTService) SenalRx(ctx context.Context, serial string) *float64 {
	id := s.externalID(ctx, serial)
	if id == "" {
		return nil
	}
	var data struct {
		Senal1490 string `json:"onu_signal_1490"`
		SenalVal  string `json:"onu_signal_value"`
	}
	if err := s.get(ctx, "/api/onu/get_onu_signal/"+id, &data); err != nil {
		log.Printf("❌ SmartOLT get_onu_signal: %v", err)
		return nil
	}
	raw := data.Senal1490
	if raw == "" {
		raw = data.SenalVal
	}
	return ExtraerSenalRx(raw)
}

func (s *SmartOLTService) FullStatus(ctx context.Context, serial string) string {
	id := s.externalID(ctx, serial)
	if id == "" {
		return ""
	}
	var data struct {
		FullStatusInfo string `json:"full_status_info"`
	}
	if err := s.get(ctx, "/api/onu/get_onu_full_status_info/"+id, &data); err != nil {
		log.Printf("❌ SmartOLT full_status: %v", err)
		return ""
	}
	return data.FullStatusInfo
}

func (s *SmartOLTService) Reiniciar(ctx context.Context, serial string) error {
	id := s.externalID(ctx, serial)
	if id == "" {
		return fmt.Errorf("smartolt: sin external id para SN %s", serial)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/onu/reboot/"+id, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Token", s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("smartolt reboot: HTTP %d", resp.StatusCode)
	}
	return nil
}
