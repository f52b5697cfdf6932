package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/lib/pq"
)

func (q *queries) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	return q.selectProducts(ctx, `SELECT id, name, price, stock FROM products WHERE id = ANY($1) ORDER BY id`, ids)
}

func (q *queries) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	return q.selectProducts(ctx, `SELECT id, name, price, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
}

func (q *queries) selectProducts(ctx context.Context, query string, ids []int64) (map[int64]domain.Product, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rows, err := q.db.QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

// DecrementStock only succeeds while enough stock remains, so a missed lock
// can never drive stock negative.
func (q *queries) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n == 0 {
		return &domain.InsufficientStockError{ProductIDs: []int64{productID}}
	}
	return nil
}

func (q *queries) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}
