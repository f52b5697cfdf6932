package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/fjod/go_cart/checkout-core/domain"
)

// StockStore is the catalog/stock collaborator as seen from inside a unit of work.
type StockStore interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error
}

type Ledger interface {
	ReserveAndDecrement(ctx context.Context, stock StockStore, items []domain.StockLine) error
	Restore(ctx context.Context, stock StockStore, items []domain.StockLine) error
}

type LedgerImpl struct{}

func NewLedger() *LedgerImpl {
	return &LedgerImpl{}
}

// ReserveAndDecrement takes every line out of stock or none of them. When any
// product falls short the returned *domain.InsufficientStockError lists all of
// the failing ids. The caller's unit of work must roll back on error.
func (l *LedgerImpl) ReserveAndDecrement(ctx context.Context, stock StockStore, items []domain.StockLine) error {
	lines, err := mergeLines(items)
	if err != nil {
		return err
	}

	products, err := stock.LockProducts(ctx, productIDs(lines))
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}

	var short []int64
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			return domain.ErrProductNotFound
		}
		if p.Stock < line.Quantity {
			short = append(short, line.ProductID)
		}
	}
	if len(short) > 0 {
		return &domain.InsufficientStockError{ProductIDs: short}
	}

	for _, line := range lines {
		if err := stock.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Restore puts the quantities back. It is not idempotent on its own; the
// order state machine only calls it once per order.
func (l *LedgerImpl) Restore(ctx context.Context, stock StockStore, items []domain.StockLine) error {
	lines, err := mergeLines(items)
	if err != nil {
		return err
	}

	if _, err := stock.LockProducts(ctx, productIDs(lines)); err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	for _, line := range lines {
		if err := stock.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// mergeLines sums quantities per product and sorts by product id, which is
// also the row lock order.
func mergeLines(items []domain.StockLine) ([]domain.StockLine, error) {
	if len(items) == 0 {
		return nil, domain.Invalid("no stock lines given")
	}
	byID := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, domain.Invalid("quantity for product %d must be positive", item.ProductID)
		}
		byID[item.ProductID] += item.Quantity
	}

	lines := make([]domain.StockLine, 0, len(byID))
	for id, qty := range byID {
		lines = append(lines, domain.StockLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func productIDs(lines []domain.StockLine) []int64 {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	return ids
}
