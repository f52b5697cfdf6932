package memory

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
)

var errReadOnly = errors.New("write attempted in a read-only view")

type queries struct {
	st       *state
	orderSeq *atomic.Int64
	readOnly bool
}

func (q *queries) writable() error {
	if q.readOnly {
		return errReadOnly
	}
	return nil
}

func (q *queries) GetProducts(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	products := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := q.st.products[id]; ok {
			products[id] = *p
		}
	}
	return products, nil
}

func (q *queries) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	return q.GetProducts(ctx, ids)
}

func (q *queries) DecrementStock(_ context.Context, productID int64, quantity int) error {
	if err := q.writable(); err != nil {
		return err
	}
	p, ok := q.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock < quantity {
		return &domain.InsufficientStockError{ProductIDs: []int64{productID}}
	}
	p.Stock -= quantity
	return nil
}

func (q *queries) IncrementStock(_ context.Context, productID int64, quantity int) error {
	if err := q.writable(); err != nil {
		return err
	}
	p, ok := q.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	return nil
}

func (q *queries) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	if cart, ok := q.st.carts[userID]; ok {
		return cloneCart(cart), nil
	}
	return &domain.Cart{UserID: userID}, nil
}

func (q *queries) LockCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if _, ok := q.st.carts[userID]; !ok && !q.readOnly {
		q.st.carts[userID] = &domain.Cart{UserID: userID, UpdatedAt: now()}
	}
	return q.GetCart(ctx, userID)
}

func (q *queries) cart(userID string) *domain.Cart {
	cart, ok := q.st.carts[userID]
	if !ok {
		cart = &domain.Cart{UserID: userID}
		q.st.carts[userID] = cart
	}
	cart.UpdatedAt = now()
	return cart
}

func (q *queries) PutCartItem(_ context.Context, userID string, item domain.CartLineItem) error {
	if err := q.writable(); err != nil {
		return err
	}
	if _, ok := q.st.products[item.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = now()
	}
	cart := q.cart(userID)
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i] = item
			return nil
		}
	}
	cart.Items = append(cart.Items, item)
	sort.Slice(cart.Items, func(i, j int) bool { return cart.Items[i].ProductID < cart.Items[j].ProductID })
	return nil
}

func (q *queries) RemoveCartItems(_ context.Context, userID string, productIDs []int64) error {
	if err := q.writable(); err != nil {
		return err
	}
	if len(productIDs) == 0 {
		return nil
	}
	drop := make(map[int64]struct{}, len(productIDs))
	for _, id := range productIDs {
		drop[id] = struct{}{}
	}
	cart := q.cart(userID)
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if _, ok := drop[item.ProductID]; !ok {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	return nil
}

func (q *queries) ReplaceCartItems(ctx context.Context, userID string, items []domain.CartLineItem) error {
	if err := q.writable(); err != nil {
		return err
	}
	q.cart(userID).Items = nil
	for _, item := range items {
		if err := q.PutCartItem(ctx, userID, item); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) GetPromo(_ context.Context, code string) (*domain.PromoCode, error) {
	p, ok := q.st.promos[domain.NormalizePromoCode(code)]
	if !ok {
		return nil, domain.ErrPromoNotFound
	}
	cp := *p
	return &cp, nil
}

func (q *queries) LockPromo(ctx context.Context, code string) (*domain.PromoCode, error) {
	return q.GetPromo(ctx, code)
}

func (q *queries) IncrementPromoUsage(_ context.Context, code string) error {
	if err := q.writable(); err != nil {
		return err
	}
	p, ok := q.st.promos[domain.NormalizePromoCode(code)]
	if !ok {
		return domain.ErrPromoNotFound
	}
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return domain.ErrPromoLimitExhausted
	}
	p.UsedCount++
	return nil
}

func (q *queries) NextOrderNumber(_ context.Context, at time.Time) (string, error) {
	if err := q.writable(); err != nil {
		return "", err
	}
	return domain.FormatOrderNumber(at, q.orderSeq.Add(1)), nil
}

func (q *queries) CreateOrder(_ context.Context, order *domain.Order) error {
	if err := q.writable(); err != nil {
		return err
	}
	if _, exists := q.st.orders[order.OrderNumber]; exists {
		return repository.ErrDuplicateOrderNumber
	}
	q.st.orders[order.OrderNumber] = cloneOrder(order)
	return nil
}

func (q *queries) GetOrderByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	o, ok := q.st.orders[orderNumber]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (q *queries) LockOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return q.GetOrderByNumber(ctx, orderNumber)
}

func (q *queries) ListOrdersByUserID(_ context.Context, userID string, limit, offset int) ([]*domain.Order, int, error) {
	var owned []*domain.Order
	for _, o := range q.st.orders {
		if o.UserID == userID {
			owned = append(owned, o)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].OrderNumber > owned[j].OrderNumber
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := len(owned)
	if offset >= total {
		return []*domain.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]*domain.Order, 0, end-offset)
	for _, o := range owned[offset:end] {
		page = append(page, cloneOrder(o))
	}
	return page, total, nil
}

func (q *queries) SaveOrderState(_ context.Context, order *domain.Order) error {
	if err := q.writable(); err != nil {
		return err
	}
	stored, ok := q.st.orders[order.OrderNumber]
	if !ok {
		return domain.ErrOrderNotFound
	}
	updated := cloneOrder(stored)
	updated.OrderStatus = order.OrderStatus
	updated.PaymentStatus = order.PaymentStatus
	updated.Payment = cloneOrder(order).Payment
	updated.CancelReason = order.CancelReason
	updated.StockRestored = order.StockRestored
	updated.UpdatedAt = order.UpdatedAt
	q.st.orders[order.OrderNumber] = updated
	return nil
}

func (q *queries) AddOutboxEvent(_ context.Context, event *repository.OutboxEvent) error {
	if err := q.writable(); err != nil {
		return err
	}
	q.st.outboxSeq++
	event.ID = q.st.outboxSeq
	event.CreatedAt = now()
	stored := *event
	q.st.outbox = append(q.st.outbox, &stored)
	return nil
}

func (q *queries) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	var events []*repository.OutboxEvent
	for _, e := range q.st.outbox {
		if len(events) == limit {
			break
		}
		cp := *e
		events = append(events, &cp)
	}
	return events, nil
}

func (q *queries) MarkEventAsProcessed(_ context.Context, id int64) error {
	if err := q.writable(); err != nil {
		return err
	}
	kept := q.st.outbox[:0]
	for _, e := range q.st.outbox {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	q.st.outbox = kept
	return nil
}
