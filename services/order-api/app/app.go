package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/cache"
	"github.com/tradeflow/tradeflow-engine/pkg/database"
	middleware "github.com/tradeflow/tradeflow-engine/pkg/middlewares"
	"github.com/tradeflow/tradeflow-engine/pkg/repositories"
	"github.com/tradeflow/tradeflow-engine/services/order-api/configs"
	"github.com/tradeflow/tradeflow-engine/services/order-api/internal/handlers"
	"github.com/tradeflow/tradeflow-engine/services/order-api/internal/services"
	"go.uber.org/zap"
)

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// It reads configuration from environment variables via configs.Load.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	// Load config
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	// Initialize postgres db
	dbConfig := database.Config{
		PrimaryDSN:  cfg.PrimaryDbAddr,
		ReplicaDSNs: []string{cfg.ReplicaDbAddr},
		MaxConns:    cfg.MaxDbCons,
		MinConns:    cfg.MinDbCons,
	}
	db, disconnect, err := database.New(ctx, logger, dbConfig)
	if err != nil {
		return nil, nil, err
	}

	// Run migrations on primary
	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		disconnect()
		return nil, nil, err
	}

	// Redis backs both the order cache and the intake rate limiter
	redisClient, redisCloser, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr})
	if err != nil {
		disconnect()
		return nil, nil, err
	}

	// Kafka producer for order-placed events
	publisher, err := services.NewKafkaPublisher(logger, ctx, cfg)
	if err != nil {
		redisCloser()
		disconnect()
		return nil, nil, err
	}

	// Setup dependencies
	baseHandler := handlers.NewBaseHandler(logger)
	orderRepo := repositories.NewOrderRepository(db, logger)
	orderCache := cache.NewOrderCache(redisClient, cfg.CacheTTL, logger)
	orderService := services.NewOrderService(logger, cfg, orderRepo, publisher, orderCache)
	orderHandler := handlers.NewOrderHandler(logger, orderService)
	limiter := pkg.NewDistributedLimiter(redisClient, "global:order_intake_rate",
		cfg.SubmitRatePerSec, cfg.SubmitBurst, time.Minute, logger)

	// Router
	r := gin.Default()

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics())

	orderHandler.RegisterRoutes(api, middleware.RateLimit(limiter))
	baseHandler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	cleanup := func() {
		// close kafka producer
		publisher.Close()
		// close redis client
		redisCloser()
		// close db pools
		disconnect()
	}

	return srv, cleanup, nil
}
