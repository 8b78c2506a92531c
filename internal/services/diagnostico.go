package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/krlozs/isp-ai/internal/config"
)

// Pure diagnostic decisions: telemetry in, classification and report text
// out. Nothing here talks to the network or mutates sessions.

var numPattern = regexp.MustCompile(`-?\d+\.?\d*`)

// ExtraerSenalRx pulls the numeric dBm value out of a raw signal field.
// A zero reading is treated as "no reading": the OLT reports 0.0 when it
// cannot sample the optics.
func ExtraerSenalRx(raw string) *float64 {
	match := numPattern.FindString(raw)
	if match == "" {
		return nil
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil || val == 0.0 {
		return nil
	}
	return &val
}

// SenalDegradada reports whether an optical reading is outside the
// configured inclusive window. An absent reading is never degraded:
// missing telemetry must not trigger a reboot.
func SenalDegradada(rx *float64, cfg *config.Config) bool {
	if rx == nil {
		return false
	}
	return !(*rx >= cfg.SenalMinDBm && *rx <= cfg.SenalMaxDBm)
}

// EstadoCritico reports whether an ONT run state means the equipment has
// no communication with the network.
func EstadoCritico(estado string) bool {
	switch estado {
	case "offline", "power fail", "los":
		return true
	}
	return false
}

// DiagnosticoONT holds the fields parsed from a full-status dump.
type DiagnosticoONT struct {
	RxPower         string
	TxPower         string
	OLTRxPower      string
	Temperatura     string
	RunState        string
	LastDownCause   string
	LastUpTime      string
	LastDownTime    string
	OnlineDuration  string
	WANStatus       string
	IPv4Address     string
	WANType         string
	HistorialCaidas string
}

var (
	rxPowerPat     = regexp.MustCompile(`Rx optical power\(dBm\)\s*:\s*(.+)`)
	txPowerPat     = regexp.MustCompile(`Tx optical power\(dBm\)\s*:\s*(.+)`)
	oltRxPat       = regexp.MustCompile(`OLT Rx ONT optical power\(dBm\)\s*:\s*(.+)`)
	temperaturaPat = regexp.MustCompile(`Temperature\(C\)\s*:\s*(.+)`)
	runStatePat    = regexp.MustCompile(`Run state\s*:\s*(.+)`)
	downCausePat   = regexp.MustCompile(`Last down cause\s*:\s*(.+)`)
	upTimePat      = regexp.MustCompile(`Last up time\s*:\s*(.+)`)
	downTimePat    = regexp.MustCompile(`Last down time\s*:\s*(.+)`)
	onlineDurPat   = regexp.MustCompile(`ONT online duration\s*:\s*(.+)`)
	wanStatusPat   = regexp.MustCompile(`IPv4 Connection status\s*:\s*(.+)`)
	ipv4Pat        = regexp.MustCompile(`IPv4 address\s*:\s*(.+)`)
	wanTypePat     = regexp.MustCompile(`IPv4 access type\s*:\s*(.+)`)
	caidasPat      = regexp.MustCompile(`DownTime\s*:\s*(.+?)\nDownCause\s*:\s*(.+)`)
)

func extraer(pat *regexp.Regexp, texto string) string {
	if m := pat.FindStringSubmatch(texto); m != nil {
		return strings.TrimSpace(m[1])
	}
	return "N/D"
}

// ParsearFullStatus extracts the fields relevant to a field technician
// from the plain-text full-status dump.
func ParsearFullStatus(raw string) *DiagnosticoONT {
	d := &DiagnosticoONT{
		RxPower:        extraer(rxPowerPat, raw),
		TxPower:        extraer(txPowerPat, raw),
		OLTRxPower:     extraer(oltRxPat, raw),
		Temperatura:    extraer(temperaturaPat, raw),
		RunState:       extraer(runStatePat, raw),
		LastDownCause:  extraer(downCausePat, raw),
		LastUpTime:     extraer(upTimePat, raw),
		LastDownTime:   extraer(downTimePat, raw),
		OnlineDuration: extraer(onlineDurPat, raw),
		WANStatus:      extraer(wanStatusPat, raw),
		IPv4Address:    extraer(ipv4Pat, raw),
		WANType:        extraer(wanTypePat, raw),
	}

	// Last 3 drops only.
	var lineas []string
	for i, m := range caidasPat.FindAllStringSubmatch(raw, -1) {
		if i >= 3 {
			break
		}
		lineas = append(lineas, fmt.Sprintf("  - %s -> %s", strings.TrimSpace(m[1]), strings.TrimSpace(m[2])))
	}
	if len(lineas) > 0 {
		d.HistorialCaidas = strings.Join(lineas, "\n")
	} else {
		d.HistorialCaidas = "Sin caídas recientes"
	}
	return d
}

// FormatearDatosTecnicos renders the parsed diagnostics as the ticket /
// technician report body.
func FormatearDatosTecnicos(d *DiagnosticoONT, ipCliente, pingResultado, kpi string) string {
	return fmt.Sprintf(
		"DIAGNOSTICO TECNICO AUTOMATICO - ARIA\n"+
			"%s\n"+
			"Problema reportado: %s\n\n"+
			"SENAL OPTICA\n"+
			"  Rx ONT (dBm):     %s\n"+
			"  Tx ONT (dBm):     %s\n"+
			"  Rx OLT (dBm):     %s\n"+
			"  Temperatura:      %s C\n\n"+
			"ESTADO WAN\n"+
			"  Conexion:         %s\n"+
			"  Tipo:             %s\n"+
			"  IP cliente:       %s / %s\n\n"+
			"HISTORIAL ONT\n"+
			"  Estado actual:    %s\n"+
			"  Ultima caida:     %s\n"+
			"  Causa:            %s\n"+
			"  Ultima subida:    %s\n"+
			"  Tiempo online:    %s\n\n"+
			"ULTIMAS CAIDAS\n%s\n\n"+
			"PING AL CLIENTE (%s)\n  %s\n",
		strings.Repeat("=", 40),
		EtiquetaKPI(kpi),
		d.RxPower, d.TxPower, d.OLTRxPower, d.Temperatura,
		d.WANStatus, d.WANType, d.IPv4Address, ipCliente,
		d.RunState, d.LastDownTime, d.LastDownCause, d.LastUpTime, d.OnlineDuration,
		d.HistorialCaidas,
		ipCliente, pingResultado,
	)
}
