package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/handler"
	"github.com/KingofLakemoor/chainlink/internal/kafka"
	"github.com/KingofLakemoor/chainlink/internal/memory"
	"github.com/KingofLakemoor/chainlink/internal/postgres"
	"github.com/KingofLakemoor/chainlink/internal/redis"
	"github.com/KingofLakemoor/chainlink/internal/service"
	"github.com/KingofLakemoor/chainlink/internal/worker"
)

// primaryStore is the squad store plus its lifecycle
type primaryStore interface {
	service.Store
	Close()
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	auth := handler.NewAuthenticator(cfg.Auth)
	if err := auth.Validate(); err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open squad store", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	deps := map[string]handler.Pinger{"store": store}

	// Redis holds the leaderboard index; without it reads go to the store
	var index service.Index
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisIndex, err := redis.NewIndex(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("failed to connect to Redis, serving leaderboard from the store", "error", err)
	} else {
		defer redisIndex.Close()
		index = redisIndex
		deps["redis"] = redisIndex
		logger.Info("connected to Redis")
	}

	// Initialize services
	squadService := service.NewSquadService(store, index, cfg.Squads, cfg.Leaderboard, logger)
	outcomeService := service.NewOutcomeService(store, index, cfg.Squads, logger)
	leaderboardService := service.NewLeaderboardService(store, index, cfg.Leaderboard, logger)

	// Rebuild the index on start and periodically afterwards
	syncWorker := worker.NewSyncWorker(leaderboardService, &cfg.Sync, logger)
	if index != nil {
		if cfg.Sync.Enabled {
			if err := syncWorker.Start(ctx); err != nil {
				logger.Error("failed to start sync worker", "error", err)
				os.Exit(1)
			}
		} else if _, err := syncWorker.RunOnce(ctx); err != nil {
			logger.Warn("failed to rebuild leaderboard index on startup", "error", err)
		}
	}

	// Kafka delivers resolved picks from the pick resolution subsystem
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, outcomeService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	httpHandler := handler.NewHandler(squadService, outcomeService, leaderboardService, auth, deps, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop intake before the store goes away
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (primaryStore, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("using in-memory squad store; data is lost on restart")
		return memory.NewStore(), nil
	}

	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to PostgreSQL")
	return repo, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
