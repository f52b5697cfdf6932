package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	err   error
	calls int
}

func (s *stubStore) View(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	s.calls++
	return s.err
}

func (s *stubStore) WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	s.calls++
	return s.err
}

func (s *stubStore) Close() error { return nil }

func TestBreakerStore_TripsOnInfrastructureFailures(t *testing.T) {
	inner := &stubStore{err: errors.New("connection refused")}
	store := NewBreakerStore(inner, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.View(ctx, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrTimeout)
	}

	err := store.WithinTx(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 5, inner.calls)
}

func TestBreakerStore_IgnoresBusinessRejections(t *testing.T) {
	inner := &stubStore{err: domain.ErrInsufficientStock}
	store := NewBreakerStore(inner, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := store.WithinTx(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	assert.Equal(t, 10, inner.calls)
}
