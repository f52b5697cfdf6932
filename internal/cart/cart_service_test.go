package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/cache"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"github.com/fjod/go_cart/checkout-core/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	m       sync.Mutex
	carts   map[string]*domain.Cart
	getErr  error
	deletes int
	// gate, when set, holds every Set until it is closed
	gate chan struct{}
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (c *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	cart, ok := c.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (c *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	if c.gate != nil {
		<-c.gate
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.carts[userID] = cart
	return nil
}

func (c *mockCache) Delete(_ context.Context, userID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.carts, userID)
	c.deletes++
	return nil
}

func setupService(t *testing.T) (*CartService, *memory.Store, *mockCache) {
	store := memory.NewStore()
	store.SetStock(domain.Product{ID: 1, Name: "A", Price: 500000, Stock: 3})
	store.SetStock(domain.Product{ID: 2, Name: "B", Price: 600000, Stock: 1})
	store.SetStock(domain.Product{ID: 3, Name: "C", Price: 100000, Stock: 0})
	c := newMockCache()
	return NewCartService(store, c, nil), store, c
}

func TestGet_EmptyCartIsCreatedLazily(t *testing.T) {
	svc, _, _ := setupService(t)

	cart, err := svc.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", cart.UserID)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total())
}

func TestGet_FromCache(t *testing.T) {
	svc, _, c := setupService(t)
	c.carts["user-1"] = &domain.Cart{UserID: "user-1", Items: []domain.CartLineItem{{ProductID: 9, Quantity: 1}}}

	cart, err := svc.Get(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(9), cart.Items[0].ProductID)
}

func TestGet_CacheErrorFallsBackToStore(t *testing.T) {
	svc, _, c := setupService(t)
	c.getErr = errors.New("redis down")

	cart, err := svc.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestGet_RequiresUser(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Get(context.Background(), "")

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAddOrUpdate_DeltaAndAbsolute(t *testing.T) {
	svc, _, c := setupService(t)
	ctx := context.Background()

	cart, err := svc.AddOrUpdate(ctx, "user-1", 1, 1, Delta)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(500000), cart.Items[0].PriceSnapshot)

	cart, err = svc.AddOrUpdate(ctx, "user-1", 1, 2, Delta)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	cart, err = svc.AddOrUpdate(ctx, "user-1", 1, 1, Absolute)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.Equal(t, int64(500000), cart.Total())
	assert.Equal(t, 3, c.deletes)
}

func TestAddOrUpdate_ZeroRemovesLine(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.AddOrUpdate(ctx, "user-1", 1, 2, Delta)
	require.NoError(t, err)

	cart, err := svc.AddOrUpdate(ctx, "user-1", 1, -2, Delta)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = svc.AddOrUpdate(ctx, "user-1", 2, 1, Delta)
	require.NoError(t, err)
	cart, err = svc.AddOrUpdate(ctx, "user-1", 2, 0, Absolute)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestAddOrUpdate_ExceedsStock(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.AddOrUpdate(ctx, "user-1", 2, 1, Delta)
	require.NoError(t, err)

	_, err = svc.AddOrUpdate(ctx, "user-1", 2, 1, Delta)
	assert.ErrorIs(t, err, domain.ErrQuantityExceedsStock)
	assert.ErrorIs(t, err, domain.ErrConflict)

	cart, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestAddOrUpdate_UnknownProduct(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.AddOrUpdate(context.Background(), "user-1", 42, 1, Delta)

	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestAddOrUpdate_InvalidInput(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.AddOrUpdate(ctx, "user-1", 0, 1, Delta)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddOrUpdate(ctx, "user-1", 1, -1, Absolute)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRemoveMany_IgnoresMissingIDs(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	_, err := svc.AddOrUpdate(ctx, "user-1", 1, 1, Delta)
	require.NoError(t, err)
	_, err = svc.AddOrUpdate(ctx, "user-1", 2, 1, Delta)
	require.NoError(t, err)

	cart, err := svc.RemoveMany(ctx, "user-1", []int64{1, 77, 78})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(2), cart.Items[0].ProductID)

	cart, err = svc.Remove(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestMergeGuestCart(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	_, err := svc.AddOrUpdate(ctx, "user-1", 1, 2, Delta)
	require.NoError(t, err)

	cart, err := svc.MergeGuestCart(ctx, "user-1", []domain.CartLineItem{
		{ProductID: 1, Quantity: 2, PriceSnapshot: 1},
		{ProductID: 2, Quantity: 5, PriceSnapshot: 1},
		{ProductID: 3, Quantity: 1},
		{ProductID: 404, Quantity: 1},
	})
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, domain.CartLineItem{ProductID: 1, Quantity: 3, PriceSnapshot: 500000}, withoutTime(cart.Items[0]))
	assert.Equal(t, domain.CartLineItem{ProductID: 2, Quantity: 1, PriceSnapshot: 600000}, withoutTime(cart.Items[1]))

	require.NoError(t, store.View(ctx, func(ctx context.Context, q repository.Queries) error {
		persisted, err := q.GetCart(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, persisted.Items, 2)
		return nil
	}))
}

func TestGet_ConcurrentCallersShareLoad(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart, err := svc.Get(ctx, "user-1")
			assert.NoError(t, err)
			assert.NotNil(t, cart)
		}()
	}
	wg.Wait()
}

func withoutTime(item domain.CartLineItem) domain.CartLineItem {
	item.AddedAt = time.Time{}
	return item
}

func TestGet_FillDoesNotOutliveInvalidation(t *testing.T) {
	svc, _, c := setupService(t)
	ctx := context.Background()
	_, err := svc.AddOrUpdate(ctx, "user-1", 1, 1, Delta)
	require.NoError(t, err)

	c.gate = make(chan struct{})
	cart, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	_, err = svc.RemoveMany(ctx, "user-1", []int64{1})
	require.NoError(t, err)

	close(c.gate)
	svc.fills.Wait()

	cart, err = svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	svc.fills.Wait()
}

func TestGet_FillRacingInvalidateIsRemoved(t *testing.T) {
	svc, _, c := setupService(t)
	ctx := context.Background()
	_, err := svc.AddOrUpdate(ctx, "user-1", 1, 1, Delta)
	require.NoError(t, err)

	gen := svc.generation("user-1")
	cart := &domain.Cart{UserID: "user-1", Items: []domain.CartLineItem{{ProductID: 1, Quantity: 1}}}
	c.gate = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.fill("user-1", cart, gen)
	}()

	// invalidate while the fill is running
	svc.Invalidate("user-1")
	close(c.gate)
	<-done

	_, err = c.Get(ctx, "user-1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
