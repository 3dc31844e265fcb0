package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/recipeworks/photo-worker/internal/common"
)

// Producer publishes submissions to the job topic, keyed by job id so
// duplicates of the same job land on the same partition.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg common.KafkaConfig, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer, logger: logger}
}

func (p *Producer) Publish(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding submission %s: %w", sub.JobID, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sub.JobID),
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("publishing submission %s: %w", sub.JobID, err)
	}
	p.logger.Info("submission published", "job_id", sub.JobID, "bucket", sub.Bucket, "key", sub.Key)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
