package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"chatnil/internal/config"
	"chatnil/internal/database"
	"chatnil/internal/handlers"
	"chatnil/internal/jobs"
	"chatnil/internal/logging"
	"chatnil/internal/middleware"
	"chatnil/internal/services"
	"chatnil/internal/vectorindex"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI is required")
	}

	// MongoDB
	mongodb, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancelInit()

	if err := mongodb.Initialize(initCtx); err != nil {
		log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
	}

	// Redis
	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	// Metrics
	metrics := services.InitMetrics()

	// Core services
	index := vectorindex.New()
	embedder := services.NewEmbeddingService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel).WithMetrics(metrics)
	completion := services.NewCompletionClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.CompletionModel)

	responseCache := services.NewResponseCacheService(redisService, cfg.CacheTTL, metrics)
	knowledgeService := services.NewKnowledgeService(mongodb, embedder, index)
	memoryStorage := services.NewMemoryStorageService(mongodb, embedder, index, metrics)
	memoryExtraction := services.NewMemoryExtractionService(mongodb, completion, memoryStorage, metrics)
	memorySeed := services.NewMemorySeedService(mongodb, memoryStorage, redisService)
	memoryDecay := services.NewMemoryDecayService(mongodb, index)
	sessionSummaries := services.NewSessionSummaryService(mongodb, completion, embedder, index)
	realtimeSearch := services.NewRealtimeSearchService(cfg.RealtimeAPIKey, cfg.RealtimeBaseURL, cfg.RealtimeModel, metrics)

	contextBuilder := services.NewContextBuilderService(
		memoryStorage,
		sessionSummaries,
		knowledgeService,
		realtimeSearch,
		memorySeed,
		cfg.BranchTimeout,
		metrics,
	)

	// Rebuild the vector index from durable rows
	if err := knowledgeService.IndexAll(initCtx); err != nil {
		log.Printf("⚠️ Failed to index knowledge base: %v", err)
	}
	if err := memoryStorage.IndexAll(initCtx); err != nil {
		log.Printf("⚠️ Failed to index memories: %v", err)
	}
	if err := sessionSummaries.IndexAll(initCtx); err != nil {
		log.Printf("⚠️ Failed to index session summaries: %v", err)
	}

	// Background jobs
	scheduler, err := jobs.NewScheduler(memoryExtraction, responseCache, memoryDecay, redisService)
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("❌ Failed to start job scheduler: %v", err)
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "ChatNIL Context Service v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    4 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	prometheus := fiberprometheus.New("chatnil")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
		log.Println("⚠️ ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(mongodb, redisService)
	contextHandler := handlers.NewContextHandler(contextBuilder, responseCache)
	memoryHandler := handlers.NewMemoryHandler(memoryStorage, memoryExtraction, sessionSummaries)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	rateLimits := middleware.LoadRateLimitConfig()

	api := app.Group("/api")
	api.Use(middleware.GlobalAPIRateLimiter(rateLimits))
	api.Post("/chat/context", middleware.ContextBuildRateLimiter(rateLimits), contextHandler.BuildContext)
	api.Get("/chat/cache", contextHandler.LookupCachedResponse)
	api.Post("/chat/cache", contextHandler.StoreCachedResponse)
	api.Post("/sessions/finished", middleware.SessionFinishRateLimiter(rateLimits), memoryHandler.SessionFinished)
	api.Get("/users/:userId/memories", memoryHandler.ListMemories)
	api.Get("/users/:userId/memories/stats", memoryHandler.MemoryStats)
	api.Delete("/users/:userId/memories/:memoryId", memoryHandler.DeleteMemory)
	api.Get("/knowledge/search", knowledgeHandler.Search)
	api.Get("/knowledge/study/:topic", knowledgeHandler.StudyMaterial)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongodb.Close(shutdownCtx); err != nil {
			log.Printf("⚠️ Error closing MongoDB: %v", err)
		}
		if err := redisService.Close(); err != nil {
			log.Printf("⚠️ Error closing Redis: %v", err)
		}
	}()

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
