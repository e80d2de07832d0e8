package app

import (
	"context"
	"testing"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

type publisherStub struct {
	err       error
	published []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, exchange+"/"+routingKey)
	return nil
}

func (p *publisherStub) Close() {}

func TestOutboxDispatcher_PublishesPendingMessages(t *testing.T) {
	repo := store.NewMemoryRepository()
	ctx := context.Background()
	if err := repo.EnqueueOutboxEvent(ctx, "bookpay.events", domain.RoutingKeyPaymentSettled, map[string]string{"reference": "ref_1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	publisher := &publisherStub{}
	dispatcher := NewOutboxDispatcher(repo, publisher, zap.NewNop())

	published, err := dispatcher.FlushOnce(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected 1 published message, got %d", published)
	}
	if len(publisher.published) != 1 || publisher.published[0] != "bookpay.events/payment.settled" {
		t.Fatalf("unexpected publishes: %v", publisher.published)
	}
	if status := repo.OutboxStatus(1); status != "published" {
		t.Fatalf("expected published status, got %q", status)
	}

	published, err = dispatcher.FlushOnce(ctx)
	if err != nil || published != 0 {
		t.Fatalf("expected nothing left to publish, got %d (%v)", published, err)
	}
}

func TestOutboxDispatcher_ReschedulesFailedPublish(t *testing.T) {
	repo := store.NewMemoryRepository()
	ctx := context.Background()
	if err := repo.EnqueueOutboxEvent(ctx, "bookpay.events", domain.RoutingKeySubscriptionActivated, map[string]string{"reference": "ref_2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	dispatcher := NewOutboxDispatcher(repo, &publisherStub{err: rabbitmq.ErrPublisherUnavailable}, zap.NewNop())
	published, err := dispatcher.FlushOnce(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected no published messages, got %d", published)
	}
	if status := repo.OutboxStatus(1); status != "pending" {
		t.Fatalf("expected message to be pending again, got %q", status)
	}

	// The retry is scheduled in the future, so an immediate flush does not pick it up.
	healthy := &publisherStub{}
	published, _ = NewOutboxDispatcher(repo, healthy, zap.NewNop()).FlushOnce(ctx)
	if published != 0 || len(healthy.published) != 0 {
		t.Fatalf("expected backoff to hold the message, got %d publishes", published)
	}
}

func TestRetryDelaySeconds(t *testing.T) {
	cases := map[int]int{0: 1, 1: 2, 3: 8, 8: 256, 20: 256}
	for attempt, want := range cases {
		if got := retryDelaySeconds(attempt); got != want {
			t.Fatalf("attempt %d: expected %d, got %d", attempt, want, got)
		}
	}
}
