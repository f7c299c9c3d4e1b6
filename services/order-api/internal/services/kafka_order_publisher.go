package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/tradeflow/tradeflow-engine/pkg"
	kafkautils "github.com/tradeflow/tradeflow-engine/pkg/kafka"
	"github.com/tradeflow/tradeflow-engine/pkg/views"
	"github.com/tradeflow/tradeflow-engine/services/order-api/configs"
	"go.uber.org/zap"
)

type KafkaPublisher interface {
	// PublishOrderPlaced publishes the creation event and waits for the
	// broker's delivery report, bounded by the configured publish timeout.
	PublishOrderPlaced(event views.OrderPlacedEvent) error
	Close()
}

type KafkaPublisherImpl struct {
	logger   *zap.Logger
	producer *kafka.Producer
	cnf      *configs.Config
}

// NewKafkaPublisher creates the order topic if needed and initializes an
// idempotent producer.
func NewKafkaPublisher(logger *zap.Logger, ctx context.Context, cnf *configs.Config) (KafkaPublisher, error) {
	topicConfig := kafkautils.KafkaConfig{
		BootstrapServers: cnf.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			{
				Topic:             cnf.KafkaOrderTopic,
				NumPartitions:     int(cnf.KafkaPartitions),
				ReplicationFactor: 1,
				Config: map[string]string{
					"cleanup.policy": "delete",
					"retention.ms":   fmt.Sprintf("%d", cnf.KafkaOrderRetention.Milliseconds()),
				},
			},
		},
	}
	if err := kafkautils.InitKafkaTopics(logger, ctx, topicConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize kafka topics: %w", err)
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cnf.KafkaBrokers, // Kafka broker(s)
		"acks":               "all",            // Wait for all replicas
		"enable.idempotence": "true",           // Ensure messages are not sent twice
		"retries":            "1",              // Built-in retry mechanism
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info("kafka producer created successfully", zap.String("brokers", cnf.KafkaBrokers))
	return &KafkaPublisherImpl{
		logger:   logger,
		cnf:      cnf,
		producer: p,
	}, nil
}

func (k *KafkaPublisherImpl) PublishOrderPlaced(event views.OrderPlacedEvent) error {
	msgBytes, err := event.Encode()
	if err != nil {
		return pkg.NewAppError(pkg.ErrPublishFailedCode, "failed to encode order event", err)
	}

	// The order row is already committed when we get here; the caller needs
	// to know whether the event made it, so wait for the delivery report.
	deliveryChan := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.cnf.KafkaOrderTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   orderEventKey(event),
		Value: msgBytes,
	}, deliveryChan)
	if err != nil {
		return pkg.NewAppError(pkg.ErrPublishFailedCode, "failed to enqueue order event", err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return pkg.NewAppError(pkg.ErrPublishFailedCode, "unexpected delivery report", fmt.Errorf("%v", e))
		}
		if m.TopicPartition.Error != nil {
			return pkg.NewAppError(pkg.ErrPublishFailedCode, "broker rejected order event", m.TopicPartition.Error)
		}
		return nil
	case <-time.After(k.cnf.PublishTimeout):
		return pkg.NewAppError(pkg.ErrPublishFailedCode, "timed out waiting for delivery report", nil)
	}
}

// orderEventKey keys events by user so one user's events hash to the same
// partition and stay ordered, whatever partition count the live topic has.
func orderEventKey(event views.OrderPlacedEvent) []byte {
	return []byte(strconv.FormatInt(event.UserID, 10))
}

func (k *KafkaPublisherImpl) Close() {
	k.producer.Flush(5000)
	k.producer.Close()
}
