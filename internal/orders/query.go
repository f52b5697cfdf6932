package orders

import (
	"context"
	"strings"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
)

const MaxPageSize = 100

// Page is one page of a user's order history, newest first.
type Page struct {
	Orders   []*domain.Order
	Total    int
	Page     int
	PageSize int
}

type Query interface {
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) (*Page, error)
}

type QueryImpl struct {
	store repository.Store
}

func NewQuery(store repository.Store) *QueryImpl {
	return &QueryImpl{store: store}
}

func (s *QueryImpl) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, domain.Invalid("order number is required")
	}
	var order *domain.Order
	err := s.store.View(ctx, func(ctx context.Context, q repository.Queries) error {
		var err error
		order, err = q.GetOrderByNumber(ctx, orderNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *QueryImpl) ListByUser(ctx context.Context, userID string, page, pageSize int) (*Page, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Invalid("user id is required")
	}
	if page < 1 {
		return nil, domain.Invalid("page must be at least 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, domain.Invalid("page size must be between 1 and %d", MaxPageSize)
	}

	result := &Page{Page: page, PageSize: pageSize}
	err := s.store.View(ctx, func(ctx context.Context, q repository.Queries) error {
		var err error
		result.Orders, result.Total, err = q.ListOrdersByUserID(ctx, userID, pageSize, (page-1)*pageSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
