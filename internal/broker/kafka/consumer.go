package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/TrackBatch/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrSkipMessage returned by an update handler marks the message as unusable:
// it is logged and committed instead of stopping the consumer.
var ErrSkipMessage = errors.New("skip message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			// commit только при успехе, иначе сообщение потеряется
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ConsumeUpdates decodes tracking.updated messages. Undecodable payloads and
// messages the handler rejects with ErrSkipMessage are logged and committed so one
// bad message cannot stall the partition.
func (c *Consumer) ConsumeUpdates(ctx context.Context, handler func(ctx context.Context, msg messages.TrackingUpdated) error) error {
	return c.Consume(ctx, func(key, value []byte) error {
		var msg messages.TrackingUpdated
		if err := json.Unmarshal(value, &msg); err != nil {
			slog.Warn("skip malformed tracking update", "key", string(key), "error", err.Error())
			return nil
		}
		if err := handler(ctx, msg); err != nil {
			if errors.Is(err, ErrSkipMessage) {
				slog.Warn("skip rejected tracking update", "key", string(key), "error", err.Error())
				return nil
			}
			return err
		}
		return nil
	})
}
