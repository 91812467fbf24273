package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/whisperline/whisperline-backend/internal/config"
	"github.com/whisperline/whisperline-backend/internal/database"
	"github.com/whisperline/whisperline-backend/internal/handlers"
	"github.com/whisperline/whisperline-backend/internal/middleware"
	"github.com/whisperline/whisperline-backend/internal/routes"
	"github.com/whisperline/whisperline-backend/internal/services"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	// Load configuration
	cfg := config.Load()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	if err := database.InitPostgresTables(); err != nil {
		log.Fatal("Failed to initialize PostgreSQL tables:", err)
	}

	// Connect to Redis
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Connect to MongoDB
	log.Printf("Connecting to MongoDB...")
	if err := database.ConnectMongo(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.DisconnectMongo()

	// Ensure MongoDB indexes for the packet history
	if err := services.EnsurePacketIndexes(context.Background()); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB packet indexes: %v", err)
	} else {
		log.Println("✅ MongoDB packet indexes ensured")
	}

	// Wire the core. The key ring lives only in process memory; a restart
	// drops all session key identities by design.
	keyRing := services.NewKeyRing()
	presence := services.NewPresenceRouter()
	custody := services.NewMessageCustody(services.NewPostgresQueueStore(), presence)
	keyRelay := services.NewKeyExchangeRelay(keyRing, presence)

	var mailer services.Mailer
	if cfg.SMTPHost != "" {
		mailer = services.NewSMTPMailer(cfg)
		log.Println("✅ SMTP mailer configured")
	} else {
		mailer = services.LogMailer{}
		log.Println("⚠️  SMTP_HOST not set; OTP codes will be logged instead of emailed")
	}

	otpService := services.NewOTPService(services.NewPostgresOTPStore(), mailer, keyRing)
	otpService.StartOTPCleanup(time.Hour)
	log.Println("✅ OTP cleanup service started (removes expired codes hourly)")

	handlers.InitServices(keyRing, presence, custody, keyRelay, otpService)

	// Setup router
	r := chi.NewRouter()

	// Custom CORS: set headers and respond to OPTIONS with 200 so preflight never gets 403
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Production: SecurityHeaders → GlobalRateLimit → LoginRateLimit
	// Non-production: Redis-based rate limit only
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity() {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, per-IP + login rate limiting)")
	} else {
		r.Use(middleware.RateLimitMiddleware)
	}

	// Health check (no auth)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Setup routes
	routes.SetupRoutes(r)

	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  POST /api/register")
	log.Println("  POST /api/login")
	log.Println("  POST /api/verify_otp")
	log.Println("  POST /api/logout")
	log.Println("  GET  /api/me")
	log.Println("  GET  /api/users")
	log.Println("  GET  /api/conversations/with/{username}")
	log.Println("  GET  /api/conversations/{id}/messages")
	log.Println("  GET  /ws/chat")

	log.Printf("🚀 Whisperline backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
