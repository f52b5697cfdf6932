package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerStore trips after consecutive infrastructure failures and rejects
// work with domain.ErrStorageUnavailable until the store recovers. Business
// rejections (validation, not found, conflict) never count as failures.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerStore(inner Store, log *zap.Logger) *BreakerStore {
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBusinessOutcome,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerStore{inner: inner, cb: cb}
}

func (b *BreakerStore) View(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	return b.run(func() error { return b.inner.View(ctx, fn) })
}

func (b *BreakerStore) WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	return b.run(func() error { return b.inner.WithinTx(ctx, fn) })
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}

func (b *BreakerStore) run(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}

func isBusinessOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrSignatureInvalid) ||
		errors.Is(err, context.Canceled)
}
