package intake

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/metrics"
)

// Handler accepts one decoded submission. A non-nil error leaves the message
// uncommitted so it is redelivered after a restart.
type Handler func(ctx context.Context, sub Submission) error

// Consumer reads the submission topic within a consumer group and hands each
// valid message to the handler. Malformed messages are logged, counted, and
// committed; there is no point redelivering them.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewConsumer(cfg common.KafkaConfig, handler Handler, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	return &Consumer{reader: reader, handler: handler, metrics: m, logger: logger}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		sub, err := DecodeSubmission(msg.Value)
		if err != nil {
			c.logger.Warn("dropping malformed submission",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			c.metrics.IntakeMessage("malformed")
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("committing malformed message", "error", err)
			}
			continue
		}

		if err := c.handler(ctx, sub); err != nil {
			c.logger.Error("submission handler failed", "job_id", sub.JobID, "error", err)
			c.metrics.IntakeMessage("error")
			continue
		}

		c.metrics.IntakeMessage("accepted")
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("committing message", "job_id", sub.JobID, "error", err)
		}
	}
}
