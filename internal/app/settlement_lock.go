package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"
)

// ErrSettlementLocked means another worker is settling the same reference right now.
var ErrSettlementLocked = errors.New("settlement already in progress")

// SettlementLocker serialises work on one provider reference across instances.
type SettlementLocker interface {
	Acquire(ctx context.Context, reference string) (release func(), err error)
}

// RedisSettlementLocker takes a short-lived Redis lock per reference.
type RedisSettlementLocker struct {
	locker *redislock.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisSettlementLocker(locker *redislock.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisSettlementLocker {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "bookpay"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisSettlementLocker{
		locker: locker,
		prefix: prefix + ":lock:settlement:",
		ttl:    ttl,
		logger: logger.Named("settlement_lock"),
	}
}

func (l *RedisSettlementLocker) Acquire(ctx context.Context, reference string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, l.prefix+reference, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrSettlementLocked
		}
		return nil, err
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("failed to release settlement lock", zap.String("reference", reference), zap.Error(err))
		}
	}, nil
}

// noopLocker is used when no Redis is configured; the settlement journal alone guards
// against double settlement.
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
