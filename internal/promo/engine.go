package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/shopspring/decimal"
)

// PromoReader is the slice of the store the engine needs. Outside a unit of
// work it is a plain read; inside the order transaction it is the locked row.
type PromoReader interface {
	GetPromo(ctx context.Context, code string) (*domain.PromoCode, error)
}

type Engine interface {
	Validate(ctx context.Context, promos PromoReader, code string, orderSubtotal int64) (domain.PromoQuote, error)
}

type EngineImpl struct {
	now func() time.Time
}

func NewEngine() *EngineImpl {
	return &EngineImpl{now: time.Now}
}

// Validate prices code against orderSubtotal. It never mutates the promo;
// usage is counted when the order commits.
func (e *EngineImpl) Validate(ctx context.Context, promos PromoReader, code string, orderSubtotal int64) (domain.PromoQuote, error) {
	normalized := domain.NormalizePromoCode(code)
	if normalized == "" {
		return domain.PromoQuote{}, domain.Invalid("promo code must not be empty")
	}
	if orderSubtotal < 0 {
		return domain.PromoQuote{}, domain.Invalid("order subtotal must not be negative")
	}

	p, err := promos.GetPromo(ctx, normalized)
	if err != nil {
		return domain.PromoQuote{}, err
	}
	if err := e.checkEligibility(p, orderSubtotal); err != nil {
		return domain.PromoQuote{}, err
	}

	quote := domain.PromoQuote{Code: p.Code}
	switch p.Type {
	case domain.PromoTypePercentage:
		quote.DiscountAmount = clamp(percentageOf(orderSubtotal, p.Value), orderSubtotal)
	case domain.PromoTypeFixed:
		quote.DiscountAmount = clamp(p.Value.Round(0).IntPart(), orderSubtotal)
	case domain.PromoTypeFreeShip:
		quote.IsFreeShip = true
	default:
		return domain.PromoQuote{}, fmt.Errorf("promo %s has unknown type %q", p.Code, p.Type)
	}
	return quote, nil
}

func (e *EngineImpl) checkEligibility(p *domain.PromoCode, orderSubtotal int64) error {
	if !p.Active {
		return domain.ErrPromoNotFound
	}
	now := e.now()
	if now.Before(p.StartsAt) {
		return domain.ErrPromoNotYetActive
	}
	if now.After(p.EndsAt) {
		return domain.ErrPromoExpired
	}
	if orderSubtotal < p.MinOrderTotal {
		return domain.ErrPromoMinimumNotMet
	}
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return domain.ErrPromoLimitExhausted
	}
	return nil
}

// percentageOf rounds half away from zero.
func percentageOf(subtotal int64, fraction decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotal).Mul(fraction).Round(0).IntPart()
}

func clamp(discount, subtotal int64) int64 {
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}
