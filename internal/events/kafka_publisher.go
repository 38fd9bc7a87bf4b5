package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stock-ledger/internal/config"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KafkaPublisher implementa Publisher con un SyncProducer de sarama.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	cfg      config.KafkaConfig
	logger   *zap.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V2_1_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.Retries
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_movements", cfg.TopicMovements),
		zap.String("topic_sales", cfg.TopicSales))

	return newKafkaPublisher(producer, cfg, logger), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, cfg: cfg, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	topic, err := p.topicFor(event)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	kind := eventType(event)
	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(kind)},
			{Key: []byte("event-id"), Value: []byte(uuid.New().String())},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if key := partitionKey(event); key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", kind, topic, err)
	}

	p.logger.Debug("Event published to Kafka",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("event_type", kind))

	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func (p *KafkaPublisher) topicFor(event interface{}) (string, error) {
	switch event.(type) {
	case StockMovementRecordedEvent, *StockMovementRecordedEvent:
		return p.cfg.TopicMovements, nil
	case SaleCompletedEvent, *SaleCompletedEvent:
		return p.cfg.TopicSales, nil
	default:
		return "", fmt.Errorf("unknown event type: %T", event)
	}
}
