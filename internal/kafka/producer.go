package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"plasmatrader/internal/core"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher wraps a Sarama sync producer for decision events
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewPublisher connects a sync producer to brokers
func NewPublisher(brokers []string, topic string, logger *zap.Logger) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, topic, logger), nil
}

// NewPublisherWithProducer uses an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// PublishSignal sends sig keyed by symbol, so one symbol's decisions stay
// ordered within a partition.
func (p *Publisher) PublishSignal(ctx context.Context, sig core.PredictionSignal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(NewDecisionEvent(sig))
	if err != nil {
		return fmt.Errorf("encode decision event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(sig.Symbol),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish decision event: %w", err)
	}
	p.logger.Debug("decision event published",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
