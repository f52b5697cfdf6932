package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/checkout-core/domain"
)

const promoColumns = `code, type, value, starts_at, ends_at, min_order_total, usage_limit, used_count, active`

func (q *queries) GetPromo(ctx context.Context, code string) (*domain.PromoCode, error) {
	return q.scanPromo(q.db.QueryRowContext(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, domain.NormalizePromoCode(code)))
}

func (q *queries) LockPromo(ctx context.Context, code string) (*domain.PromoCode, error) {
	return q.scanPromo(q.db.QueryRowContext(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1 FOR UPDATE`, domain.NormalizePromoCode(code)))
}

func (q *queries) scanPromo(row *sql.Row) (*domain.PromoCode, error) {
	var p domain.PromoCode
	var limit sql.NullInt64
	err := row.Scan(&p.Code, &p.Type, &p.Value, &p.StartsAt, &p.EndsAt, &p.MinOrderTotal, &limit, &p.UsedCount, &p.Active)
	if isNoRows(err) {
		return nil, domain.ErrPromoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query promo code: %w", err)
	}
	if limit.Valid {
		l := int(limit.Int64)
		p.UsageLimit = &l
	}
	return &p, nil
}

func (q *queries) IncrementPromoUsage(ctx context.Context, code string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE promo_codes SET used_count = used_count + 1
		 WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`,
		domain.NormalizePromoCode(code))
	if err != nil {
		return fmt.Errorf("increment promo usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment promo usage: %w", err)
	}
	if n == 0 {
		return domain.ErrPromoLimitExhausted
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
