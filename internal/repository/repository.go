package repository

import (
	"context"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Store hands out Queries scoped to a unit of work. View runs read-only work,
// WithinTx runs fn atomically: any returned error rolls back every write made
// through q.
type Store interface {
	View(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
	WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
	Close() error
}

type Queries interface {
	ProductStore
	CartStore
	PromoStore
	OrderStore
	OutboxStore
}

// ProductStore is the catalog/stock collaborator.
type ProductStore interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	// LockProducts reads the rows for update, in ascending id order.
	LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error
}

type CartStore interface {
	// GetCart returns an empty cart when the user has none yet.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// LockCart creates the cart lazily and locks it for the rest of the unit.
	LockCart(ctx context.Context, userID string) (*domain.Cart, error)
	PutCartItem(ctx context.Context, userID string, item domain.CartLineItem) error
	// RemoveCartItems ignores ids that are not in the cart.
	RemoveCartItems(ctx context.Context, userID string, productIDs []int64) error
	ReplaceCartItems(ctx context.Context, userID string, items []domain.CartLineItem) error
}

type PromoStore interface {
	GetPromo(ctx context.Context, code string) (*domain.PromoCode, error)
	LockPromo(ctx context.Context, code string) (*domain.PromoCode, error)
	// IncrementPromoUsage fails with domain.ErrPromoLimitExhausted when the
	// usage limit has been reached.
	IncrementPromoUsage(ctx context.Context, code string) error
}

type OrderStore interface {
	NextOrderNumber(ctx context.Context, now time.Time) (string, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	LockOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int, error)
	// SaveOrderState persists only the mutable status and payment fields.
	SaveOrderState(ctx context.Context, order *domain.Order) error
}

type OutboxStore interface {
	AddOutboxEvent(ctx context.Context, event *OutboxEvent) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type OutboxEvent struct {
	ID          int64
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
