package messaging

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertHandler receives one decoded alert. Returning an error leaves the message
// uncommitted.
type AlertHandler func(ctx context.Context, alert models.AlertEntry) error

// AlertConsumer reads the alert topic, for downstream notifiers and the admin CLI.
type AlertConsumer struct {
	reader messageReader
	logger logger.Logger
}

// NewAlertConsumer creates a consumer in consumer group groupID.
func NewAlertConsumer(cfg config.KafkaConfig, groupID string, log logger.Logger) (*AlertConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.ErrInvalidConfig("kafka brokers and topic are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return newAlertConsumer(reader, log), nil
}

func newAlertConsumer(r messageReader, log logger.Logger) *AlertConsumer {
	return &AlertConsumer{reader: r, logger: log.WithComponent("AlertConsumer")}
}

// Run consumes until ctx is cancelled or the reader is closed. Malformed messages
// are logged and committed so they do not block the partition.
func (c *AlertConsumer) Run(ctx context.Context, handle AlertHandler) error {
	c.logger.Info(ctx, "Starting alert consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, io.EOF) {
				c.logger.Info(ctx, "Stopping alert consumer")
				return nil
			}
			return err
		}

		var alert models.AlertEntry
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			c.logger.Warn(ctx, "Skipping malformed alert message", logger.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"error":     err.Error(),
			})
		} else if err := handle(ctx, alert); err != nil {
			c.logger.Error(ctx, "Alert handler failed", err, logger.Fields{"alert_id": alert.ID})
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error(ctx, "Failed to commit alert message", err, logger.Fields{"offset": msg.Offset})
		}
	}
}

// Close closes the underlying reader.
func (c *AlertConsumer) Close() error {
	return c.reader.Close()
}
