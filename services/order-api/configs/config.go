package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/tradeflow/tradeflow-engine/pkg/utils"
	"go.uber.org/zap"
)

// Config holds application configuration for order-api.
type Config struct {
	Port                string        `mapstructure:"PORT" validate:"required"`
	KafkaBrokers        string        `mapstructure:"KAFKA_BROKERS" validate:"required"`
	KafkaOrderTopic     string        `mapstructure:"KAFKA_ORDER_TOPIC" validate:"required"`
	KafkaPartitions     uint32        `mapstructure:"KAFKA_PARTITIONS" validate:"min=1"`
	KafkaOrderRetention time.Duration `mapstructure:"KAFKA_ORDER_RETENTION" validate:"required"`
	PublishTimeout      time.Duration `mapstructure:"PUBLISH_TIMEOUT" validate:"required"`
	PrimaryDbAddr       string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReplicaDbAddr       string        `mapstructure:"REPLICA_DB_ADDR"`
	MaxDbCons           int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons           int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	RedisAddr           string        `mapstructure:"REDIS_ADDR" validate:"required"`
	CacheTTL            time.Duration `mapstructure:"CACHE_TTL" validate:"required"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT" validate:"required"`
	SubmitRatePerSec    int           `mapstructure:"SUBMIT_RATE_PER_SEC" validate:"min=0"`
	SubmitBurst         int           `mapstructure:"SUBMIT_BURST" validate:"min=0"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("KAFKA_ORDER_TOPIC", "order.events")
	viper.SetDefault("KAFKA_PARTITIONS", "4")
	viper.SetDefault("KAFKA_ORDER_RETENTION", "168h")
	viper.SetDefault("PUBLISH_TIMEOUT", "5s")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("CACHE_TTL", "60s")
	viper.SetDefault("REQUEST_TIMEOUT", "5s")
	viper.SetDefault("SUBMIT_RATE_PER_SEC", "200")
	viper.SetDefault("SUBMIT_BURST", "400")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running in test mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running in development mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/order-api/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}
	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
