package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/cache"
	"github.com/tradeflow/tradeflow-engine/pkg/database"
	"github.com/tradeflow/tradeflow-engine/pkg/repositories"
	"github.com/tradeflow/tradeflow-engine/services/settlement-worker/configs"
	"github.com/tradeflow/tradeflow-engine/services/settlement-worker/internal/services"
	"go.uber.org/zap"
)

// main initializes and runs the settlement worker service.
func main() {
	// Initialize global logger with default configuration
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync() // Ensure all buffered logs are flushed on exit

	// Load configuration from environment and optional config file
	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL database connection
	db, disconnect, err := database.New(ctx, logger, database.Config{
		PrimaryDSN:  cfg.PrimaryDbAddr,
		ReplicaDSNs: []string{cfg.ReplicaDbAddr},
		MaxConns:    cfg.MaxDbCons,
		MinConns:    cfg.MinDbCons,
	})
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer disconnect() // Ensure database connections are closed on shutdown

	// Initialize Redis client for cache invalidation after fills
	redisClient, redisCloser, err := cache.New(ctx, cache.Config{
		Addr: cfg.RedisAddr,
	})
	if err != nil {
		logger.Fatal("Failed to initialize redis client", zap.Error(err))
	}
	logger.Info("Redis client initialized successfully")

	// Expose worker metrics
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// Wire the settlement pipeline
	orderRepo := repositories.NewOrderRepository(db, logger)
	orderCache := cache.NewOrderCache(redisClient, 0, logger) // worker only deletes; TTL unused
	settlement := services.NewSettlementService(logger, cfg, orderRepo, orderCache)

	consumer := services.NewKafkaOrderConsumer(&services.KafkaOrderConfig{
		Context:    ctx,
		Logger:     logger,
		Config:     cfg,
		Settlement: settlement,
	})
	closeConsumer := consumer.Start()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	osSignal := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", osSignal.String()))
	cancel()        // Stop pulling new events
	closeConsumer() // Waits for in-flight settlements, then closes Kafka clients
	redisCloser()
	_ = metricsSrv.Close()
	logger.Info("Service shutdown completed successfully")
}
