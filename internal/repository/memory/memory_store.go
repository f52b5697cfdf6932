package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
)

// Store implements repository.Store in memory. Units of work are serialized
// by one mutex and run against a copy of the state that replaces the live
// state only when the unit succeeds.
type Store struct {
	mu      sync.RWMutex
	state   *state
	timeout time.Duration
	// orderSeq is not rolled back, like a postgres sequence
	orderSeq atomic.Int64
}

type state struct {
	products  map[int64]*domain.Product
	carts     map[string]*domain.Cart
	promos    map[string]*domain.PromoCode
	orders    map[string]*domain.Order // orderNumber -> order
	outbox    []*repository.OutboxEvent
	outboxSeq int64
}

func NewStore() *Store {
	return &Store{timeout: repository.DefaultTimeout, state: &state{
		products: make(map[int64]*domain.Product),
		carts:    make(map[string]*domain.Cart),
		promos:   make(map[string]*domain.PromoCode),
		orders:   make(map[string]*domain.Order),
	}}
}

// WithTimeout bounds every unit of work, lock wait included.
func (s *Store) WithTimeout(d time.Duration) *Store {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, q repository.Queries) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return repository.Classify(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return repository.Classify(err)
	}
	// reads still get a copy so callers can never alias live state
	return repository.Classify(fn(ctx, &queries{st: s.state.clone(), orderSeq: &s.orderSeq, readOnly: true}))
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, q repository.Queries) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return repository.Classify(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return repository.Classify(err)
	}

	work := s.state.clone()
	if err := fn(ctx, &queries{st: work, orderSeq: &s.orderSeq}); err != nil {
		return repository.Classify(err)
	}
	// a unit that outlived its deadline is not committed
	if err := ctx.Err(); err != nil {
		return repository.Classify(err)
	}
	s.state = work
	return nil
}

func (s *Store) Close() error {
	return nil
}

// SetStock creates or replaces a catalog product.
func (s *Store) SetStock(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := product
	s.state.products[p.ID] = &p
}

// PutPromo creates or replaces a promo code.
func (s *Store) PutPromo(promo domain.PromoCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := promo
	p.Code = domain.NormalizePromoCode(p.Code)
	s.state.promos[p.Code] = &p
}

// Stock returns the current stock of a product, or -1 if it is unknown.
func (s *Store) Stock(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.state.products[productID]; ok {
		return p.Stock
	}
	return -1
}

// Outbox returns a copy of every outbox event written so far.
func (s *Store) Outbox() []repository.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]repository.OutboxEvent, len(s.state.outbox))
	for i, e := range s.state.outbox {
		events[i] = *e
	}
	return events
}

func (st *state) clone() *state {
	c := &state{
		products:  make(map[int64]*domain.Product, len(st.products)),
		carts:     make(map[string]*domain.Cart, len(st.carts)),
		promos:    make(map[string]*domain.PromoCode, len(st.promos)),
		orders:    make(map[string]*domain.Order, len(st.orders)),
		outbox:    make([]*repository.OutboxEvent, len(st.outbox)),
		outboxSeq: st.outboxSeq,
	}
	for id, p := range st.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, cart := range st.carts {
		c.carts[id] = cloneCart(cart)
	}
	for code, p := range st.promos {
		cp := *p
		c.promos[code] = &cp
	}
	for number, o := range st.orders {
		c.orders[number] = cloneOrder(o)
	}
	for i, e := range st.outbox {
		ce := *e
		c.outbox[i] = &ce
	}
	return c
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartLineItem(nil), c.Items...)
	return &cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.PromoCode != nil {
		code := *o.PromoCode
		cp.PromoCode = &code
	}
	if o.Payment.PaidAt != nil {
		paidAt := *o.Payment.PaidAt
		cp.Payment.PaidAt = &paidAt
	}
	return &cp
}

func now() time.Time {
	return time.Now().UTC()
}
