package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/aaronwang/bidding-app/broadcast-service/internal/redis"
	wsHandler "github.com/aaronwang/bidding-app/broadcast-service/internal/websocket"
	"github.com/aaronwang/bidding-app/shared/config"
	"github.com/aaronwang/bidding-app/shared/events"
	"github.com/aaronwang/bidding-app/shared/logging"
)

func main() {
	// Load configuration
	cfg := loadConfig()
	log := logging.New("broadcast-service", cfg.LogLevel, cfg.LogFormat)
	log.Info("starting broadcast service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis subscriber
	subscriber, err := redisClient.NewSubscriber(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Error("failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer subscriber.Close()

	// Subscribe to all auction events using pattern matching
	if err := subscriber.SubscribeToPattern(ctx, events.ChannelPattern); err != nil {
		log.Error("failed to subscribe to Redis channels", "error", err)
		os.Exit(1)
	}
	log.Info("subscribed to auction events", "pattern", events.ChannelPattern)

	// Initialize WebSocket manager
	wsManager := wsHandler.NewManager(log)
	go wsManager.Run(ctx)

	messageChan := make(chan *redisClient.Message, 256)

	// Start Redis subscriber in a goroutine
	go func() {
		if err := subscriber.Listen(ctx, messageChan); err != nil && ctx.Err() == nil {
			log.Error("Redis listener error", "error", err)
		}
		close(messageChan)
	}()

	// Forward Redis Pub/Sub messages to WebSocket clients
	go func() {
		for msg := range messageChan {
			wsManager.Broadcast(msg.AuctionID, []byte(msg.Payload))
		}
	}()

	handler := wsHandler.NewHandler(wsManager, log)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Info("broadcast service listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	cancel()

	log.Info("server stopped gracefully")
}

// Config holds application configuration
type Config struct {
	ServerAddr    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogLevel      string
	LogFormat     string
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	return &Config{
		ServerAddr:    config.GetEnv("SERVER_ADDR", ":8081"),
		RedisAddr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),
		LogLevel:      config.GetEnv("LOG_LEVEL", "info"),
		LogFormat:     config.GetEnv("LOG_FORMAT", "text"),
	}
}
