package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talkasaurus/internal/ai"
	"talkasaurus/internal/bot"
	"talkasaurus/internal/config"
	"talkasaurus/internal/crypto"
	"talkasaurus/internal/database"
	"talkasaurus/internal/handlers"
	"talkasaurus/internal/jobs"
	"talkasaurus/internal/lifecycle"
	"talkasaurus/internal/logging"
	"talkasaurus/internal/queue"
	"talkasaurus/internal/services"
	"talkasaurus/internal/telegram"
	"talkasaurus/internal/workers"
	"talkasaurus/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	logging.Init()

	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	// Keyring comes up before anything that touches data. A misconfigured
	// generation history must never reach the request path.
	keyring, err := crypto.NewKeyring(cfg.IdentitySecrets, cfg.EnvelopeSecrets, cfg.KeyVersion)
	if err != nil {
		log.Fatalf("❌ Keyring init failed: %v", err)
	}
	log.Printf("🔑 Keyring loaded: %d generations, writing with version %d", len(cfg.EnvelopeSecrets), keyring.CurrentVersion())

	db, err := database.NewMongoDB(cfg.MongoURL)
	if err != nil {
		log.Fatalf("❌ MongoDB connection failed: %v", err)
	}
	if err := db.Initialize(context.Background()); err != nil {
		log.Fatalf("❌ MongoDB index setup failed: %v", err)
	}
	log.Println("✅ MongoDB connected")

	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Redis connection failed: %v", err)
	}
	log.Println("✅ Redis connected")

	metrics := services.InitMetrics()

	// Durable queue over the jobs collection.
	jobStore := queue.NewMongoStore(db.Collection(database.CollectionJobs))
	jobQueue := queue.New(jobStore, queue.WithObserver(metrics))

	// Services.
	userService := services.NewUserService(db, keyring)
	messageService := services.NewMessageService(db, keyring)
	reminderService := services.NewReminderService(db, keyring)
	feedbackService := services.NewFeedbackService(db)
	existenceCache := services.NewRedisExistenceCache(redisService)
	identityService := services.NewIdentityService(keyring, userService, existenceCache, jobQueue)

	// Outbound channel and AI provider.
	telegramClient := telegram.NewClient(cfg.TelegramBotToken)
	aiClient := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITemperature)

	// Workers, one per lane.
	workers.Register(jobQueue,
		workers.NewActivityWorker(userService),
		workers.NewReminderWorker(reminderService, redisService, telegramClient, metrics),
		workers.NewBroadcastWorker(keyring, telegramClient),
		workers.NewDailyCreatorWorker(bot.NewDailyContent(aiClient), userService, jobQueue, cfg.InactivityThreshold, metrics),
		workers.NewDailySenderWorker(keyring, telegramClient),
	)
	jobQueue.Start()

	// Periodic ticks.
	scheduler, err := jobs.New(redisService, jobQueue, reminderService, messageService, cfg.DailyMessageCron, cfg.TemporaryRetention)
	if err != nil {
		log.Fatalf("❌ Scheduler init failed: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("❌ Scheduler start failed: %v", err)
	}

	// Conversational surface.
	chatBot := bot.New(identityService, userService, messageService, reminderService, feedbackService,
		jobQueue, aiClient, telegramClient, redisService, metrics)

	adminAuth, err := auth.NewAdminAuth(cfg.AdminJWTSecret, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Admin auth init failed: %v", err)
	}

	life := lifecycle.New()

	// HTTP surface.
	app := fiber.New(fiber.Config{
		AppName:      "Talkasaurus v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("talkasaurus")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	healthHandler := handlers.NewHealthHandler(db, redisService)
	app.Get("/health", healthHandler.Handle)

	webhookHandler := handlers.NewTelegramWebhookHandler(chatBot, cfg.TelegramWebhookToken, life)
	app.Post("/webhook/telegram", webhookHandler.Handle)

	adminHandler := handlers.NewAdminHandler(userService, messageService, reminderService, feedbackService, jobQueue, jobStore)
	admin := app.Group("/api/admin", handlers.RequireAdmin(adminAuth))
	admin.Post("/broadcast", adminHandler.Broadcast)
	admin.Get("/analytics", adminHandler.Analytics)
	admin.Get("/feedback", adminHandler.Feedback)
	admin.Post("/feedback/reviewed", adminHandler.MarkFeedbackReviewed)

	// Register the webhook with Telegram once the routes exist.
	if cfg.TelegramWebhookURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := telegramClient.SetWebhook(ctx, cfg.TelegramWebhookURL, cfg.TelegramWebhookToken); err != nil {
			log.Printf("⚠️ Webhook registration failed: %v", err)
		} else {
			log.Printf("✅ Telegram webhook registered")
		}
		cancel()
	}

	// Graceful shutdown: stop intake, drain workers, then tear down.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		if !life.BeginDrain() {
			// A second signal while already draining.
			return
		}
		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}
		jobQueue.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		if err := redisService.Close(); err != nil {
			log.Printf("⚠️ Error closing Redis: %v", err)
		}
		if err := db.Close(context.Background()); err != nil {
			log.Printf("⚠️ Error closing MongoDB: %v", err)
		}

		life.FinishStop()
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	log.Println("👋 Shutdown complete")
}
