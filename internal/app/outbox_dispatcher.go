package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

const (
	defaultOutboxBatchSize       = 50
	defaultOutboxStaleProcessing = 2 * time.Minute
)

// OutboxDispatcher drains the event outbox to RabbitMQ.
type OutboxDispatcher struct {
	repo                store.Repository
	publisher           rabbitmq.Publisher
	logger              *zap.Logger
	batchSize           int
	staleProcessingTime time.Duration
}

func NewOutboxDispatcher(repo store.Repository, publisher rabbitmq.Publisher, logger *zap.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:                repo,
		publisher:           publisher,
		logger:              logger.Named("outbox_dispatcher"),
		batchSize:           defaultOutboxBatchSize,
		staleProcessingTime: defaultOutboxStaleProcessing,
	}
}

// RunJob adapts FlushOnce to the cron job signature.
func (d *OutboxDispatcher) RunJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := d.FlushOnce(ctx); err != nil {
		d.logger.Error("outbox flush failed", zap.Error(err))
	}
}

// FlushOnce publishes one batch of due messages and returns how many were published.
// Failed messages are rescheduled with exponential backoff.
func (d *OutboxDispatcher) FlushOnce(ctx context.Context) (int, error) {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, message := range messages {
		if err := d.publish(ctx, message.Exchange, message.RoutingKey, message.Payload); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("outbox publish failed",
				zap.Int64("id", message.ID),
				zap.String("routing_key", message.RoutingKey),
				zap.Int("attempts", message.Attempts),
				zap.Int("retry_after_seconds", retryAfter),
				zap.Error(err),
			)
			if err := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); err != nil {
				d.logger.Error("failed to reschedule outbox message", zap.Int64("id", message.ID), zap.Error(err))
			}
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message published", zap.Int64("id", message.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

func (d *OutboxDispatcher) publish(ctx context.Context, exchange, routingKey string, raw []byte) error {
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return d.publisher.Publish(ctx, exchange, routingKey, payload)
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 8)
	if delay > 300 {
		return 300
	}
	return delay
}
