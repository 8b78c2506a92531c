package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/krlozs/isp-ai/database"
	"github.com/krlozs/isp-ai/internal/config"
	"github.com/krlozs/isp-ai/internal/handlers"
	"github.com/krlozs/isp-ai/internal/jobs"
	"github.com/krlozs/isp-ai/internal/models"
	"github.com/krlozs/isp-ai/internal/routes"
	"github.com/krlozs/isp-ai/internal/services"
	"github.com/krlozs/isp-ai/internal/sessions"
	"github.com/krlozs/isp-ai/internal/storage"
)

func main() {
	// Load .env file for local development
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found - checking environment variables")
	}

	cfg := config.Cargar()

	// Session store: Redis in production, in-memory for local testing.
	ttl := sessions.TTLs{
		Cliente:    cfg.SesionTTL,
		Tecnico:    cfg.SesionTecTTL,
		Ventana:    cfg.VentanaTTL,
		Pendientes: cfg.PendientesTTL,
		Ticket:     cfg.PendientesTTL,
	}
	var sesiones sessions.Store
	if cfg.UseMemoryStore {
		log.Println("⚠️  Using in-memory session store (not for production!)")
		sesiones = sessions.NewMemoryStore(ttl)
	} else {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("Invalid REDIS_URL:", err)
		}
		sesiones = sessions.NewRedisStore(redis.NewClient(opts), ttl)
		log.Println("✅ Redis session store initialized")
	}

	// Durable records: PostgreSQL unless running fully in memory.
	var registros storage.Store
	if cfg.UseMemoryStore {
		registros = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		if err := database.Connect(); err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		log.Println("🔄 Running database migrations...")
		if err := database.DB.AutoMigrate(
			&models.EncuestaCSAT{},
			&models.CierreTicket{},
		); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")
		registros = storage.NewDatabaseStore(database.DB)
	}

	// External collaborators.
	wa := services.NewWhatsAppService(cfg)
	mikrowisp := services.NewMikroWispService(cfg)
	smartolt := services.NewSmartOLTService(cfg)
	llm := services.NewGLMService(cfg)
	prober := services.NewPingService(cfg)

	var media services.MediaStore
	cloudinary, err := services.NewCloudinaryService(cfg)
	if err != nil {
		log.Printf("⚠️  Cloudinary not configured, photo evidence disabled: %v", err)
	} else {
		media = cloudinary
		log.Println("✅ Cloudinary service initialized")
	}

	// Orchestration.
	notificador := services.NewNotificador(sesiones, wa)
	escalador := services.NewEscalador(cfg, mikrowisp, wa, notificador, sesiones)
	verificador := jobs.NewRebootVerifier(cfg, sesiones, smartolt, wa, prober, escalador)
	flujoCliente := services.NewFlujoCliente(cfg, sesiones, mikrowisp, mikrowisp, smartolt,
		wa, llm, prober, escalador, verificador, registros)
	flujoTecnico := services.NewFlujoTecnico(cfg, sesiones, wa, mikrowisp, media, notificador, registros)

	webhook := handlers.NewWebhookHandler(cfg, flujoCliente, flujoTecnico, sesiones, wa, llm)
	admin := handlers.NewAdminHandler(sesiones, registros)

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "ARIA Soporte ISP v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	routes.SetupRoutes(app, cfg, webhook, admin)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 ARIA starting on port %s", cfg.Port)
	log.Printf("🌍 Environment: %s", cfg.Entorno)
	log.Printf("🏢 ISP: %s", cfg.NombreISP)
	log.Println("========================================")

	log.Fatal(app.Listen(":" + cfg.Port))
}
