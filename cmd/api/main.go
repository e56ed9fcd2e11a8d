package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transitdocs/internal/analysis"
	"transitdocs/internal/config"
	"transitdocs/internal/database"
	"transitdocs/internal/database/migration"
	"transitdocs/internal/events"
	"transitdocs/internal/gmail"
	handlers "transitdocs/internal/http/handler"
	"transitdocs/internal/http/middleware"
	"transitdocs/internal/otel"
	"transitdocs/internal/repository/postgres"
	"transitdocs/internal/service"
	"transitdocs/internal/storage"
	"transitdocs/pkg/logger"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger.Init(&logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})

	loc, err := time.LoadLocation("UTC")
	if err != nil {
		log.Fatalf("failed to load location: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := otel.Init(ctx, loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, loc, cfg.Database.Host); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	analysisClient := analysis.NewHTTPClient(cfg.Analysis)

	// OAuth completion registry: Redis when configured, in-process otherwise
	var registry gmail.Registry
	if cfg.Gmail.RedisAddr != "" {
		redisRegistry, err := gmail.NewRedisRegistry(cfg.Gmail)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		registry = redisRegistry
	} else {
		registry = gmail.NewMemoryRegistry()
	}
	bridge := gmail.NewBridge(analysisClient, registry, cfg.Gmail)

	// Lifecycle events: Kafka when brokers are configured, discarded otherwise
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	// Initialize repositories and services
	docRepo := postgres.NewDocumentPostgres(db)
	ingestSvc := service.NewIngestor(analysisClient, objStore, docRepo, bridge, publisher)
	docSvc := service.NewDocumentsService(docRepo, objStore, analysisClient, publisher)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    128 << 20,
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMiddleware, err := middleware.NewPrometheusMiddleware(promRegistry)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	// Register HTTP routes with injected services
	handlers.RegisterRoutes(app, db, cfg.Auth, ingestSvc, docSvc, analysisClient, bridge)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
