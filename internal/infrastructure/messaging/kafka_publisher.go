// Package messaging delivers alert timeline entries over Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher is a Kafka-backed implementation of service.AlertPublisher.
// Each alert is one JSON message keyed by entity id, so alerts of the same entity
// land on the same partition and keep their order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger logger.Logger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic.
func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.ErrInvalidConfig("kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: time.Duration(cfg.BatchTimeout) * time.Millisecond,
	}
	return newKafkaPublisher(writer, cfg.Topic, log), nil
}

func newKafkaPublisher(w messageWriter, topic string, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: log.WithComponent("KafkaPublisher"),
	}
}

// Publish implements service.AlertPublisher.
func (p *KafkaPublisher) Publish(ctx context.Context, alerts []models.AlertEntry) error {
	if len(alerts) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			return errors.WrapError(err, constants.ErrCodeServerError, "failed to encode alert").
				WithMetadata("alert_id", a.ID)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.EntityID),
			Value: payload,
			Time:  a.Date,
			Headers: []kafka.Header{
				{Key: "rule", Value: []byte(a.Rule)},
				{Key: "severity", Value: []byte(a.Severity)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error(ctx, "Failed to write alerts to Kafka", err, logger.Fields{
			"topic": p.topic,
			"count": len(alerts),
		})
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to publish alerts")
	}

	p.logger.Debug(ctx, "Alerts published", logger.Fields{"topic": p.topic, "count": len(alerts)})
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ service.AlertPublisher = (*KafkaPublisher)(nil)
