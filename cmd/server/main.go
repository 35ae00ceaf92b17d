package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/chunking"
	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/controllers"
	"github.com/regcheck/backend/internal/db"
	"github.com/regcheck/backend/internal/embedding"
	"github.com/regcheck/backend/internal/extraction"
	"github.com/regcheck/backend/internal/llm"
	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/middleware"
	"github.com/regcheck/backend/internal/notifier"
	"github.com/regcheck/backend/internal/routes"
	"github.com/regcheck/backend/internal/services"
	"github.com/regcheck/backend/internal/storage"
	"github.com/regcheck/backend/internal/vectorstore"
)

func main() {
	// Load environment variables before anything reads them
	envErr := godotenv.Load()

	// Initialize logger first
	logger.Initialize()
	if envErr != nil {
		logger.Warn("No .env file found, using environment variables", nil)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	// Connect to database
	db.Connect(cfg.Database.DSN())
	if cfg.Vector.Backend == "pgvector" {
		if err := db.EnableVector(); err != nil {
			logger.Fatal("Failed to enable pgvector extension", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("Failed to migrate database", map[string]interface{}{"error": err.Error()})
	}

	// Setup graceful shutdown
	stopChan := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		logger.Warn("Received shutdown signal, stopping background workers...", nil)
		close(stopChan)
	}()

	resultCache := connectCache(cfg.Cache)

	var vectors vectorstore.Store
	switch cfg.Vector.Backend {
	case "memory":
		vectors = vectorstore.NewMemoryStore()
	default:
		vectors = vectorstore.NewPGStore(db.DB)
	}

	embedder, err := embedding.New(cfg.Embedding, cfg.LLM.MaxRetries, resultCache, cfg.Cache.EmbeddingTTL)
	if err != nil {
		logger.Fatal("Failed to configure embeddings", map[string]interface{}{"error": err.Error()})
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.Fatal("Failed to configure LLM provider", map[string]interface{}{"error": err.Error()})
	}
	llmClient := llm.NewClient(provider, cfg.LLM)

	chunker, err := chunking.New(chunking.Config{
		ChunkSize:        cfg.Chunking.ChunkSize,
		ChunkOverlap:     cfg.Chunking.ChunkOverlap,
		MinChunkSize:     cfg.Chunking.MinChunkSize,
		RespectSentences: cfg.Chunking.RespectSentences,
	})
	if err != nil {
		logger.Fatal("Invalid chunking configuration", map[string]interface{}{"error": err.Error()})
	}

	files, err := storage.NewLocalFileStore(cfg.Upload.Dir)
	if err != nil {
		logger.Fatal("Failed to prepare upload directory", map[string]interface{}{"error": err.Error()})
	}

	hub := notifier.NewHub(notifier.DefaultMaxConnections)
	store := services.NewGormStore(db.DB)

	analysisService := services.NewAnalysisService(llmClient, store, resultCache, cfg.Cache.AnalysisTTL)
	jobService := services.NewJobService(services.JobDeps{
		Store:     store,
		Extractor: extraction.NewFileExtractor(),
		Chunker:   chunker,
		Embedder:  embedder,
		Vectors:   vectors,
		Retrieval: services.NewRetrievalService(vectors, cfg.Vector),
		Analysis:  analysisService,
		Notifier:  hub,
	}, cfg.Worker)
	documentService := services.NewDocumentService(store, files, jobService, vectors, analysisService, cfg.Upload)
	userService := services.NewUserService(store)

	if n, err := jobService.ResumePending(context.Background()); err != nil {
		logger.WithError(err, "server").Error("Failed to resume pending jobs")
	} else if n > 0 {
		logger.Info("Resumed unfinished jobs", map[string]interface{}{"count": n})
	}

	services.NewCleanupService(store, documentService, files, cfg.Cleanup).Start(stopChan)

	// Set Gin mode
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router without default middleware
	r := gin.New()

	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CustomLoggerMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigin, cfg.IsLocal()))
	r.Use(middleware.SecurityHeaders())
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, "/health", "/ping", "/api/v1/ws/")
		go limiter.Run(stopChan)
		r.Use(limiter.Middleware())
	}
	r.Use(gin.Recovery())

	routes.SetupRoutes(r, routes.Controllers{
		Auth:      controllers.NewAuthController(userService, cfg.Auth),
		User:      controllers.NewUserController(userService),
		Document:  controllers.NewDocumentController(documentService, cfg.Upload.MaxSize),
		WebSocket: controllers.NewWebSocketController(hub, store, cfg.Auth.JWTSecret, cfg.CORSOrigin, cfg.IsLocal()),
		LLM:       controllers.NewLLMController(llmClient),
		Cache:     controllers.NewCacheController(resultCache),
		Health:    controllers.NewHealthController(db.Ping, resultCache, vectors, llmClient, hub.ConnectionCount, cfg.Version),
	}, cfg.Auth.JWTSecret)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting RegCheck backend server", map[string]interface{}{
		"port":         cfg.Port,
		"gin_mode":     gin.Mode(),
		"llm":          provider.Name() + "/" + provider.Model(),
		"embedding":    embedder.Model(),
		"vector_store": vectors.Name(),
		"cache":        resultCache.Stats().Backend,
	})

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for shutdown signal
	<-stopChan
	logger.Info("Shutting down server gracefully...", nil)

	// Create a context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		logger.Info("Server exited gracefully", nil)
	}

	jobService.Stop()
	hub.Close()
	if err := resultCache.Close(); err != nil {
		logger.WithError(err, "server").Warn("Failed to close cache")
	}
	if err := db.Close(); err != nil {
		logger.WithError(err, "server").Warn("Failed to close database")
	}
}

// connectCache prefers Redis and falls back to the in-process tier alone
func connectCache(cfg config.CacheConfig) *cache.TieredCache {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cache.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.WithError(err, "cache").Warn("Redis unavailable, running local-only cache")
		return cache.NewTieredCache(nil, cfg.LocalSize, cfg.DefaultTTL)
	}
	return cache.NewTieredCache(client, cfg.LocalSize, cfg.DefaultTTL)
}
