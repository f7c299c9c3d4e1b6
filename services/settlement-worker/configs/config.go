package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/tradeflow/tradeflow-engine/pkg/utils"
	"go.uber.org/zap"
)

// Config holds application configuration for settlement-worker.
type Config struct {
	MetricsAddr              string        `mapstructure:"METRICS_ADDR" validate:"required"`
	KafkaBrokers             string        `mapstructure:"KAFKA_BROKERS" validate:"required"`
	KafkaOrderTopic          string        `mapstructure:"KAFKA_ORDER_TOPIC" validate:"required"`
	KafkaDLQTopic            string        `mapstructure:"KAFKA_DLQ_TOPIC" validate:"required"`
	KafkaDLQRetention        time.Duration `mapstructure:"KAFKA_DLQ_RETENTION" validate:"required"`
	KafkaConsumerGroup       string        `mapstructure:"KAFKA_CONSUMER_GROUP" validate:"required"`
	PrimaryDbAddr            string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReplicaDbAddr            string        `mapstructure:"REPLICA_DB_ADDR"`
	MaxDbCons                int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons                int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	RedisAddr                string        `mapstructure:"REDIS_ADDR" validate:"required"`
	SettlementDelay          time.Duration `mapstructure:"SETTLEMENT_DELAY" validate:"required"`
	StoreTimeout             time.Duration `mapstructure:"STORE_TIMEOUT" validate:"required"`
	MaxConcurrentSettlements int           `mapstructure:"MAX_CONCURRENT_SETTLEMENTS" validate:"min=1"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("METRICS_ADDR", ":9102")
	viper.SetDefault("KAFKA_ORDER_TOPIC", "order.events")
	viper.SetDefault("KAFKA_DLQ_TOPIC", "order.events.dlq")
	viper.SetDefault("KAFKA_DLQ_RETENTION", "336h")
	viper.SetDefault("KAFKA_CONSUMER_GROUP", "matching-engine")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("SETTLEMENT_DELAY", "3s")
	viper.SetDefault("STORE_TIMEOUT", "5s")
	viper.SetDefault("MAX_CONCURRENT_SETTLEMENTS", "8")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/settlement-worker/configs")
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
