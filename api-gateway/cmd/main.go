package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronwang/bidding-app/api-gateway/internal/auction"
	"github.com/aaronwang/bidding-app/api-gateway/internal/handlers"
	"github.com/aaronwang/bidding-app/api-gateway/internal/ledger"
	redisClient "github.com/aaronwang/bidding-app/api-gateway/internal/redis"
	"github.com/aaronwang/bidding-app/api-gateway/internal/service"
	"github.com/aaronwang/bidding-app/shared/config"
	"github.com/aaronwang/bidding-app/shared/events"
	"github.com/aaronwang/bidding-app/shared/logging"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration from environment variables
	cfg := loadConfig()
	log := logging.New("api-gateway", cfg.LogLevel, cfg.LogFormat)
	log.Info("starting API gateway", "auction", cfg.AuctionID)

	ctx := context.Background()

	// Initialize Redis client
	redis, err := redisClient.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error("failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer redis.Close()
	log.Info("connected to Redis", "addr", cfg.RedisAddr)

	// Initialize NATS connection
	natsConn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Error("failed to connect to NATS", "url", cfg.NatsURL, "error", err)
		os.Exit(1)
	}
	defer natsConn.Close()

	publisher, err := service.NewNATSPublisher(ctx, natsConn)
	if err != nil {
		log.Error("failed to prepare event stream", "error", err)
		os.Exit(1)
	}
	log.Info("connected to NATS", "url", cfg.NatsURL, "stream", events.Stream)

	// Funds-transfer primitive
	var transferer auction.Transferer
	if cfg.PostgresURL != "" {
		pg, err := ledger.NewPostgres(cfg.PostgresURL)
		if err != nil {
			log.Error("failed to connect to ledger database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			log.Error("failed to initialize ledger schema", "error", err)
			os.Exit(1)
		}
		transferer = pg
		log.Info("using PostgreSQL ledger")
	} else {
		transferer = ledger.NewMemory()
		log.Warn("POSTGRES_URL not set, using in-memory ledger")
	}

	// Initialize services
	registry := prometheus.NewRegistry()
	auctionService, err := service.NewAuctionService(ctx, service.Options{
		AuctionID:  cfg.AuctionID,
		Transferer: transferer,
		Store:      redis,
		Publishers: []service.EventPublisher{publisher, redis},
		Logger:     log,
		Metrics:    service.NewMetrics(registry),

		PublishTimeout: cfg.PublishTimeout,
	})
	if err != nil {
		log.Error("failed to start auction service", "error", err)
		os.Exit(1)
	}
	defer auctionService.Close()

	// Initialize HTTP handlers
	handler := handlers.NewHandler(auctionService, log, registry, cfg.CORSOrigins)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("API gateway listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped gracefully")
}

// Config holds application configuration
type Config struct {
	ServerAddr    string
	AuctionID     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NatsURL       string
	PostgresURL   string // empty selects the in-memory ledger
	CORSOrigins   []string
	LogLevel      string
	LogFormat     string
	// PublishTimeout bounds each event publish to NATS and Redis
	PublishTimeout time.Duration
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	return &Config{
		ServerAddr:    config.GetEnv("SERVER_ADDR", ":8080"),
		AuctionID:     config.GetEnv("AUCTION_ID", "default"),
		RedisAddr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),
		NatsURL:       config.GetEnv("NATS_URL", "nats://localhost:4222"),
		PostgresURL:   config.GetEnv("POSTGRES_URL", ""),
		CORSOrigins:   config.GetEnvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:      config.GetEnv("LOG_LEVEL", "info"),
		LogFormat:     config.GetEnv("LOG_FORMAT", "text"),

		PublishTimeout: config.GetEnvDuration("PUBLISH_TIMEOUT", 5*time.Second),
	}
}
