package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/lib/pq"
)

var ErrDuplicateOrderNumber = errors.New("order number already exists")

const orderColumns = `id, order_number, user_id, items, subtotal, discount, shipping_fee, total, promo_code,
	payment_method, customer, shipping_address, notes, order_status, payment_status, payment,
	cancel_reason, stock_restored, created_at, updated_at`

func (q *queries) NextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	var seq int64
	if err := q.db.QueryRowContext(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return domain.FormatOrderNumber(now, seq), nil
}

func (q *queries) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	paymentJSON, err := json.Marshal(order.Payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment info: %w", err)
	}

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, insertErr := q.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		itemsJSON,
		order.Subtotal,
		order.Discount,
		order.ShippingFee,
		order.Total,
		order.PromoCode,
		order.PaymentMethod,
		customerJSON,
		addressJSON,
		order.Notes,
		order.OrderStatus,
		order.PaymentStatus,
		paymentJSON,
		order.CancelReason,
		order.StockRestored,
		order.CreatedAt,
		order.UpdatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (q *queries) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return scanOrder(q.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber))
}

func (q *queries) LockOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return scanOrder(q.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1 FOR UPDATE`, orderNumber))
}

func (q *queries) ListOrdersByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, int, error) {
	var total int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders by user id: %w", err)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, order_number DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, total, nil
}

func (q *queries) SaveOrderState(ctx context.Context, order *domain.Order) error {
	paymentJSON, err := json.Marshal(order.Payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment info: %w", err)
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE orders SET order_status = $2, payment_status = $3, payment = $4,
		        cancel_reason = $5, stock_restored = $6, updated_at = $7
		 WHERE id = $1`,
		order.ID, order.OrderStatus, order.PaymentStatus, paymentJSON,
		order.CancelReason, order.StockRestored, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON, customerJSON, addressJSON, paymentJSON []byte
	var promo sql.NullString
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&itemsJSON,
		&order.Subtotal,
		&order.Discount,
		&order.ShippingFee,
		&order.Total,
		&promo,
		&order.PaymentMethod,
		&customerJSON,
		&addressJSON,
		&order.Notes,
		&order.OrderStatus,
		&order.PaymentStatus,
		&paymentJSON,
		&order.CancelReason,
		&order.StockRestored,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if promo.Valid {
		order.PromoCode = &promo.String
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(customerJSON, &order.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal customer: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(paymentJSON, &order.Payment); err != nil {
		return nil, fmt.Errorf("unmarshal payment info: %w", err)
	}
	return &order, nil
}
