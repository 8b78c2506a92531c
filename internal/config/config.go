package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the system needs, resolved once at startup
// and injected into each component. Nothing reads the environment after
// Cargar returns.
type Config struct {
	Port    string
	Entorno string

	// Session store
	RedisURL       string
	UseMemoryStore bool

	// MikroWisp (directory, billing, ticketing)
	MikroWispBase  string
	MikroWispToken string

	// SmartOLT (ONT telemetry)
	SmartOLTBase string
	SmartOLTKey  string

	// WhatsApp Cloud API
	WhatsAppToken   string
	PhoneIDClientes string
	PhoneIDTecnicos string
	VerifyToken     string
	AppSecret       string

	// Escalation destinations
	TecnicoWhatsApp string
	NOCWhatsApp     string
	AdminWhatsApp   string

	// LLM backend
	GLMAPIKey  string
	GLMBaseURL string

	// Cloudinary (photo evidence)
	CloudinaryCloud  string
	CloudinaryKey    string
	CloudinarySecret string

	// ISP identity used in prompts
	NombreISP      string
	HorarioTecnico string

	// Optical signal window (dBm, inclusive). Readings outside it are degraded.
	SenalMinDBm float64
	SenalMaxDBm float64

	// Timings
	RebootWait      time.Duration
	SesionTTL       time.Duration
	SesionTecTTL    time.Duration
	VentanaTTL      time.Duration
	PendientesTTL   time.Duration
	MaxPasosFlujo   int
	HTTPTimeout     time.Duration
	PingTimeout     time.Duration
}

// Cargar builds the configuration from environment variables with the
// same defaults the production deployment uses.
func Cargar() *Config {
	return &Config{
		Port:    envO("PORT", "8080"),
		Entorno: envO("ENVIRONMENT", "development"),

		RedisURL:       envO("REDIS_URL", "redis://localhost:6379"),
		UseMemoryStore: os.Getenv("USE_MEMORY_STORE") == "true",

		MikroWispBase:  os.Getenv("MIKROWISP_API_URL"),
		MikroWispToken: os.Getenv("MIKROWISP_API_TOKEN"),

		SmartOLTBase: os.Getenv("SMARTOLT_API_URL"),
		SmartOLTKey:  os.Getenv("SMARTOLT_API_KEY"),

		WhatsAppToken:   os.Getenv("WHATSAPP_TOKEN"),
		PhoneIDClientes: os.Getenv("WHATSAPP_PHONE_ID_CLIENTES"),
		PhoneIDTecnicos: os.Getenv("WHATSAPP_PHONE_ID_TECNICOS"),
		VerifyToken:     os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		AppSecret:       os.Getenv("WHATSAPP_APP_SECRET"),

		TecnicoWhatsApp: os.Getenv("TECNICO_WHATSAPP_NUMBER"),
		NOCWhatsApp:     os.Getenv("NOC_WHATSAPP"),
		AdminWhatsApp:   os.Getenv("ADMIN_WHATSAPP"),

		GLMAPIKey:  os.Getenv("GLM_API_KEY"),
		GLMBaseURL: envO("GLM_BASE_URL", "https://api.z.ai/api/coding/paas/v4/chat/completions"),

		CloudinaryCloud:  os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinarySecret: os.Getenv("CLOUDINARY_API_SECRET"),

		NombreISP:      envO("ISP_NAME", "Tu ISP"),
		HorarioTecnico: envO("ISP_HORARIO_TECNICO", "Lunes a Sábado, 8am - 6pm"),

		SenalMinDBm: envF("SENAL_MINIMA_DBM", -27.0),
		SenalMaxDBm: envF("SENAL_MAXIMA_DBM", -8.0),

		RebootWait:    envD("REBOOT_WAIT_SECONDS", 120) * time.Second,
		SesionTTL:     envD("SESSION_TTL_MINUTES", 30) * time.Minute,
		SesionTecTTL:  envD("TECNICO_SESSION_TTL_HOURS", 8) * time.Hour,
		VentanaTTL:    envD("VENTANA_TTL_HOURS", 24) * time.Hour,
		PendientesTTL: envD("PENDIENTES_TTL_HOURS", 48) * time.Hour,
		MaxPasosFlujo: int(envD("MAX_PASOS_FLUJO", 8)),
		HTTPTimeout:   10 * time.Second,
		PingTimeout:   15 * time.Second,
	}
}

func envO(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envF(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envD(key string, def int64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n)
		}
	}
	return time.Duration(def)
}
