package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Mirror receives a copy of every published event, e.g. the dashboard
// websocket hub. Delivery is best effort.
type Mirror interface {
	BroadcastMessage(message []byte)
}

// KafkaPublisher publishes inventory events to a single topic, keyed by the
// lot's batch key so all events for one lot land on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	mirror Mirror
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, mirror Mirror, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: publishTimeout,
	}
	return &KafkaPublisher{writer: writer, mirror: mirror, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := fmt.Sprintf("%s:%s:%s", event.ShopID, event.MedicineID, event.BatchNumber)
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	if p.mirror != nil {
		p.mirror.BroadcastMessage(payload)
	}

	p.logger.Debug("published inventory event",
		zap.String("type", event.Type),
		zap.String("key", key),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher is used when no broker is configured (local development); it
// logs events and forwards them to the mirror only.
type LogPublisher struct {
	mirror Mirror
	logger *zap.Logger
}

func NewLogPublisher(mirror Mirror, logger *zap.Logger) *LogPublisher {
	return &LogPublisher{mirror: mirror, logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if p.mirror != nil {
		p.mirror.BroadcastMessage(payload)
	}
	p.logger.Info("inventory event", zap.String("type", event.Type), zap.ByteString("payload", payload))
	return nil
}
