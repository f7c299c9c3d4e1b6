package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/tradeflow/tradeflow-engine/pkg"
	kafkautils "github.com/tradeflow/tradeflow-engine/pkg/kafka"
	"github.com/tradeflow/tradeflow-engine/pkg/utils"
	"github.com/tradeflow/tradeflow-engine/pkg/views"
	"github.com/tradeflow/tradeflow-engine/services/settlement-worker/configs"
	"github.com/tradeflow/tradeflow-engine/services/settlement-worker/internal/observability"
	"go.uber.org/zap"
)

// KafkaOrderHandler is the settlement worker's consumer loop.
type KafkaOrderHandler interface {
	Start() func()
}

// KafkaOrderConfig holds configuration and dependencies for the order-events consumer.
type KafkaOrderConfig struct {
	Context    context.Context
	Logger     *zap.Logger
	Config     *configs.Config
	Settlement SettlementService

	// internal initialization
	consumer    *kafka.Consumer
	dlqProducer *kafka.Producer
	commits     *kafkautils.CommitManager
	inflight    sync.WaitGroup
	settleSem   chan struct{} // Semaphore to limit concurrent settlements
}

// NewKafkaOrderConsumer initializes the consumer loop. It ensures the order
// and DLQ topics exist, then sets up a manual-commit consumer, the DLQ
// producer, and the concurrency semaphore. cfg is taken by pointer because
// it carries the in-flight WaitGroup.
func NewKafkaOrderConsumer(cfg *KafkaOrderConfig) KafkaOrderHandler {
	topicConfig := kafkautils.KafkaConfig{
		BootstrapServers: cfg.Config.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			{
				Topic:             cfg.Config.KafkaDLQTopic,
				NumPartitions:     1,
				ReplicationFactor: 1,
				Config: map[string]string{
					"cleanup.policy": "delete",
					"retention.ms":   fmt.Sprintf("%d", cfg.Config.KafkaDLQRetention.Milliseconds()),
				},
			},
		},
	}
	if err := kafkautils.InitKafkaTopics(cfg.Logger, cfg.Context, topicConfig); err != nil {
		cfg.Logger.Fatal("Failed to initialize DLQ topic", zap.Error(err))
	}

	kafkaConsumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,       // List of Kafka broker addresses
		"group.id":           cfg.Config.KafkaConsumerGroup, // Consumer group for partition exclusivity
		"auto.offset.reset":  "earliest",                    // Start from the earliest offset if no prior commit
		"enable.auto.commit": false,                         // Offsets commit only after side effects are applied
	})
	if err != nil {
		cfg.Logger.Fatal("Failed to create Kafka order consumer", zap.Error(err))
	}

	dlqProducer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		cfg.Logger.Fatal("Failed to create DLQ producer", zap.Error(err))
	}

	cfg.settleSem = make(chan struct{}, cfg.Config.MaxConcurrentSettlements)
	cfg.consumer = kafkaConsumer
	cfg.dlqProducer = dlqProducer
	cfg.commits = kafkautils.NewCommitManager(kafkaConsumer, cfg.Logger)
	return cfg
}

// Start runs the consumption loop in a goroutine and returns a cleanup
// function that stops pulling, waits for in-flight settlements, and closes
// the Kafka clients.
func (k *KafkaOrderConfig) Start() func() {
	if err := k.consumer.SubscribeTopics([]string{k.Config.KafkaOrderTopic}, nil); err != nil {
		k.Logger.Fatal("Failed to subscribe to Kafka topic", zap.Error(err))
	}

	k.Logger.Info("Listening to Kafka topic",
		zap.String("topic", k.Config.KafkaOrderTopic),
		zap.String("group", k.Config.KafkaConsumerGroup))

	go func() {
		readFailures := 0
		for {
			select {
			case <-k.Context.Done():
				return // stop pulling; in-flight settlements finish below
			default:
			}

			msg, err := k.consumer.ReadMessage(500 * time.Millisecond)
			if err != nil {
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
					continue // poll timeout, loop to re-check shutdown
				}
				readFailures++
				delay := utils.CalculateExponentialBackoffWithJitter(readFailures, 500*time.Millisecond, 10*time.Second)
				k.Logger.Error("Failed to read Kafka message",
					zap.Int("consecutive_failures", readFailures),
					zap.Duration("backoff", delay),
					zap.Error(err))
				time.Sleep(delay)
				continue
			}
			readFailures = 0
			observability.EventsReceived.WithLabelValues(k.Config.KafkaOrderTopic).Inc()
			k.commits.Track(msg)

			// Acquire semaphore slot, blocking if limit is reached
			k.settleSem <- struct{}{}
			observability.InflightSettlements.Inc()
			k.inflight.Add(1)
			go func(m *kafka.Message) {
				defer func() {
					<-k.settleSem
					observability.InflightSettlements.Dec()
					k.inflight.Done()
				}()
				k.processMessage(m)
			}(msg)
		}
	}()

	return func() {
		k.inflight.Wait() // finish in-flight events before tearing down
		if k.dlqProducer != nil {
			k.dlqProducer.Flush(5000)
			k.dlqProducer.Close()
		}
		if err := k.consumer.Close(); err != nil {
			k.Logger.Error("Failed to close Kafka consumer", zap.Error(err))
			return
		}
		k.Logger.Info("Kafka consumer closed successfully")
	}
}

// processMessage decodes and settles a single event. Poison payloads go to
// the DLQ and are acknowledged; settlement failures stay unacknowledged so
// the broker redelivers them.
func (k *KafkaOrderConfig) processMessage(msg *kafka.Message) {
	start := time.Now()
	traceID := uuid.New().String()

	event, err := views.DecodeOrderPlacedEvent(msg.Value)
	if err != nil {
		k.Logger.Error("Failed to decode order event",
			zap.String(pkg.TraceId, traceID), zap.Error(err))
		k.sendToDLQ(msg, "decode_error", err.Error())
		// A poison message never becomes readable; acknowledge so the
		// consumer loop is not blocked forever.
		k.commits.Ack(traceID, msg)
		return
	}

	k.Logger.Info("settling order",
		zap.String(pkg.TraceId, traceID),
		zap.Int64(pkg.OrderId, event.OrderID),
		zap.Int64(pkg.UserId, event.UserID))

	if err := k.Settlement.Settle(k.Context, traceID, event); err != nil {
		// Left unacknowledged: the broker redelivers after restart or
		// rebalance. The worker isolates the failure and keeps consuming.
		observability.SettlementsFailed.WithLabelValues(k.Config.KafkaOrderTopic, "store_error").Inc()
		k.Logger.Error("settlement failed; leaving event unacknowledged",
			zap.String(pkg.TraceId, traceID),
			zap.Int64(pkg.OrderId, event.OrderID),
			zap.Error(err))
		return
	}

	observability.OrdersFilled.WithLabelValues(k.Config.KafkaOrderTopic).Inc()
	observability.SettleLatency.WithLabelValues(k.Config.KafkaOrderTopic).Observe(time.Since(start).Seconds())
	k.commits.Ack(traceID, msg)
}

func (k *KafkaOrderConfig) sendToDLQ(original *kafka.Message, reason, errMsg string) {
	if k.dlqProducer == nil {
		k.Logger.Error("DLQ producer not initialized; dropping message", zap.String("reason", reason))
		return
	}
	// Wrap with enough metadata to replay or inspect the failure later
	payload := map[string]any{
		"original_topic":     getTopic(original),
		"original_partition": original.TopicPartition.Partition,
		"original_offset":    original.TopicPartition.Offset,
		"key":                stringOrNil(original.Key),
		"value":              string(original.Value),
		"failure_reason":     reason,
		"error":              errMsg,
		"failed_at":          time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(payload)

	err := k.dlqProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.Config.KafkaDLQTopic, Partition: kafka.PartitionAny},
		Key:            original.Key,
		Value:          b,
		Headers:        append(original.Headers, kafka.Header{Key: "x-dlq-reason", Value: []byte(reason)}),
	}, nil)
	if err != nil {
		k.Logger.Error("failed to produce to DLQ", zap.Error(err))
		return
	}
	observability.DLQPublished.WithLabelValues(k.Config.KafkaOrderTopic, reason).Inc()
}

func getTopic(msg *kafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}

func stringOrNil(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
