package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PromoType string

const (
	PromoTypePercentage PromoType = "percentage"
	PromoTypeFixed      PromoType = "fixed"
	PromoTypeFreeShip   PromoType = "freeship"
)

// PromoCode is owned by the catalog/admin side; the core only reads it and
// bumps UsedCount when an order commits.
type PromoCode struct {
	Code          string
	Type          PromoType
	Value         decimal.Decimal // fraction for percentage, amount for fixed
	StartsAt      time.Time
	EndsAt        time.Time
	MinOrderTotal int64
	UsageLimit    *int
	UsedCount     int
	Active        bool
}

// PromoQuote is the priced outcome of a successful validation.
type PromoQuote struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	IsFreeShip     bool   `json:"is_free_ship"`
}

// NormalizePromoCode trims and upper-cases a user-supplied code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
