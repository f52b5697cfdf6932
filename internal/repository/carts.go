package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/lib/pq"
)

func (q *queries) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID}
	err := q.db.QueryRowContext(ctx, `SELECT updated_at FROM carts WHERE user_id = $1`, userID).Scan(&cart.UpdatedAt)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	if err := q.loadCartItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (q *queries) LockCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO carts (user_id, updated_at) VALUES ($1, NOW()) ON CONFLICT (user_id) DO NOTHING`,
		userID); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	cart := &domain.Cart{UserID: userID}
	if err := q.db.QueryRowContext(ctx,
		`SELECT updated_at FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cart.UpdatedAt); err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	if err := q.loadCartItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (q *queries) loadCartItems(ctx context.Context, cart *domain.Cart) error {
	rows, err := q.db.QueryContext(ctx,
		`SELECT product_id, quantity, price_snapshot, added_at FROM cart_items WHERE user_id = $1 ORDER BY product_id`,
		cart.UserID)
	if err != nil {
		return fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartLineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.PriceSnapshot, &item.AddedAt); err != nil {
			return fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func (q *queries) PutCartItem(ctx context.Context, userID string, item domain.CartLineItem) error {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	if err := q.touchCart(ctx, userID); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity, price_snapshot, added_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET quantity = EXCLUDED.quantity, price_snapshot = EXCLUDED.price_snapshot, added_at = EXCLUDED.added_at`,
		userID, item.ProductID, item.Quantity, item.PriceSnapshot, item.AddedAt)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (q *queries) RemoveCartItems(ctx context.Context, userID string, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`,
		userID, pq.Array(productIDs)); err != nil {
		return fmt.Errorf("remove cart items: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func (q *queries) ReplaceCartItems(ctx context.Context, userID string, items []domain.CartLineItem) error {
	if err := q.touchCart(ctx, userID); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	for _, item := range items {
		if err := q.PutCartItem(ctx, userID, item); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) touchCart(ctx context.Context, userID string) error {
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO carts (user_id, updated_at) VALUES ($1, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()`,
		userID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
