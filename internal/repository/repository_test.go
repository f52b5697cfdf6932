package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds, 5*time.Second)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func stockOf(t *testing.T, repo *Repository, id int64) int {
	var stock int
	require.NoError(t, repo.View(context.Background(), func(ctx context.Context, q Queries) error {
		products, err := q.GetProducts(ctx, []int64{id})
		if err != nil {
			return err
		}
		stock = products[id].Stock
		return nil
	}))
	return stock
}

func TestSeedCatalog(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.View(context.Background(), func(ctx context.Context, q Queries) error {
		products, err := q.GetProducts(ctx, []int64{1, 2, 999})
		require.NoError(t, err)
		assert.Len(t, products, 2)
		assert.Equal(t, "Laptop", products[1].Name)

		promo, err := q.GetPromo(ctx, " save500k ")
		require.NoError(t, err)
		assert.Equal(t, domain.PromoTypeFixed, promo.Type)
		assert.Equal(t, int64(1000000), promo.MinOrderTotal)

		_, err = q.GetPromo(ctx, "NOPE")
		assert.ErrorIs(t, err, domain.ErrPromoNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestWithinTx_RollbackRestoresStock(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	before := stockOf(t, repo, 1)

	err := repo.WithinTx(context.Background(), func(ctx context.Context, q Queries) error {
		if err := q.DecrementStock(ctx, 1, 2); err != nil {
			return err
		}
		return errors.New("abort")
	})

	assert.Error(t, err)
	assert.Equal(t, before, stockOf(t, repo, 1))
}

func TestDecrementStock_Insufficient(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.WithinTx(context.Background(), func(ctx context.Context, q Queries) error {
		return q.DecrementStock(ctx, 2, 100000)
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDecrementStock_ConcurrentLastUnit(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.db.ExecContext(ctx, `UPDATE products SET stock = 1 WHERE id = 3`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
				if _, err := q.LockProducts(ctx, []int64{3}); err != nil {
					return err
				}
				return q.DecrementStock(ctx, 3, 1)
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 0, stockOf(t, repo, 3))
}

func TestCartItems(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		if _, err := q.LockCart(ctx, "user-1"); err != nil {
			return err
		}
		if err := q.PutCartItem(ctx, "user-1", domain.CartLineItem{ProductID: 1, Quantity: 1, PriceSnapshot: 15000000}); err != nil {
			return err
		}
		if err := q.PutCartItem(ctx, "user-1", domain.CartLineItem{ProductID: 2, Quantity: 2, PriceSnapshot: 250000}); err != nil {
			return err
		}
		return q.PutCartItem(ctx, "user-1", domain.CartLineItem{ProductID: 1, Quantity: 4, PriceSnapshot: 15000000})
	})
	require.NoError(t, err)

	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		return q.RemoveCartItems(ctx, "user-1", []int64{2, 404})
	}))

	require.NoError(t, repo.View(ctx, func(ctx context.Context, q Queries) error {
		cart, err := q.GetCart(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 4, cart.Items[0].Quantity)

		empty, err := q.GetCart(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty.Items)
		return nil
	}))
}

func TestIncrementPromoUsage_Limit(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.db.ExecContext(ctx, `UPDATE promo_codes SET usage_limit = 1, used_count = 0 WHERE code = 'WELCOME10'`)
	require.NoError(t, err)

	first := repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		return q.IncrementPromoUsage(ctx, "welcome10")
	})
	second := repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		return q.IncrementPromoUsage(ctx, "WELCOME10")
	})

	require.NoError(t, first)
	assert.ErrorIs(t, second, domain.ErrPromoLimitExhausted)
}

func newTestOrder(number string, createdAt time.Time) *domain.Order {
	code := "SAVE500K"
	return &domain.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		UserID:      "user-1",
		Items: []domain.OrderItem{
			{ProductID: 1, ProductName: "Laptop", UnitPrice: 15000000, Quantity: 1},
		},
		Subtotal:        15000000,
		Discount:        500000,
		Total:           14500000,
		PromoCode:       &code,
		PaymentMethod:   domain.PaymentMethodEWallet,
		Customer:        domain.CustomerInfo{Name: "Lan", Phone: "0900000000"},
		ShippingAddress: domain.Address{Line: "1 Le Loi", City: "HCMC"},
		OrderStatus:     domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestOrders_CreateGetList(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	var numbers []string
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
			number, err := q.NextOrderNumber(ctx, base)
			if err != nil {
				return err
			}
			numbers = append(numbers, number)
			return q.CreateOrder(ctx, newTestOrder(number, base.Add(time.Duration(i)*time.Hour)))
		}))
	}
	assert.Regexp(t, `^ORD-20260502-\d{6}$`, numbers[0])
	assert.NotEqual(t, numbers[0], numbers[1])

	dup := repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		return q.CreateOrder(ctx, newTestOrder(numbers[0], base))
	})
	assert.ErrorIs(t, dup, ErrDuplicateOrderNumber)

	require.NoError(t, repo.View(ctx, func(ctx context.Context, q Queries) error {
		order, err := q.GetOrderByNumber(ctx, numbers[0])
		require.NoError(t, err)
		assert.Equal(t, "Laptop", order.Items[0].ProductName)
		require.NotNil(t, order.PromoCode)
		assert.Equal(t, "SAVE500K", *order.PromoCode)
		assert.Equal(t, "HCMC", order.ShippingAddress.City)

		page, total, err := q.ListOrdersByUserID(ctx, "user-1", 2, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, page, 2)
		assert.Equal(t, numbers[2], page[0].OrderNumber)

		_, err = q.GetOrderByNumber(ctx, "ORD-00000000-000000")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		return nil
	}))
}

func TestOrders_SnapshotFrozenAfterPending(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	order := newTestOrder("ORD-20260502-900001", time.Now().UTC())

	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		return q.CreateOrder(ctx, order)
	}))

	order.OrderStatus = domain.OrderStatusShipped
	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		return q.SaveOrderState(ctx, order)
	}))

	_, err := repo.db.ExecContext(ctx, `UPDATE orders SET total = 1 WHERE order_number = $1`, order.OrderNumber)
	assert.Error(t, err)
}

func TestOutbox(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	event := &OutboxEvent{AggregateId: "ORD-1", EventType: "order.created", Payload: []byte(`{"order_number":"ORD-1"}`)}
	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		return q.AddOutboxEvent(ctx, event)
	}))
	assert.NotZero(t, event.ID)

	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		events, err := q.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.JSONEq(t, `{"order_number":"ORD-1"}`, string(events[0].Payload))
		return q.MarkEventAsProcessed(ctx, events[0].ID)
	}))

	require.NoError(t, repo.View(ctx, func(ctx context.Context, q Queries) error {
		events, err := q.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
		return nil
	}))
}

func TestView_Timeout(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	repo.timeout = time.Nanosecond

	err := repo.View(context.Background(), func(ctx context.Context, q Queries) error {
		time.Sleep(time.Millisecond)
		_, err := q.GetProducts(ctx, []int64{1})
		return err
	})

	assert.ErrorIs(t, err, domain.ErrTimeout)
}
