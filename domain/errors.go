package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every rejection produced by the core matches exactly one of them.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrSignatureInvalid = errors.New("invalid signature")
	ErrTimeout          = errors.New("timeout")
)

// Error is a typed rejection reason. errors.Is matches both the reason itself
// and its category.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	if e == target {
		return true
	}
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidInput          = newError(ErrValidation, "invalid_input", "invalid input")
	ErrEmptySelection        = newError(ErrValidation, "empty_selection", "no cart items selected")
	ErrInvalidPaymentMethod  = newError(ErrValidation, "invalid_payment_method", "unsupported payment method")
	ErrAmountMismatch        = newError(ErrValidation, "amount_mismatch", "paid amount does not match order total")
	ErrPromoNotFound         = newError(ErrNotFound, "promo_not_found", "promo code not found")
	ErrProductNotFound       = newError(ErrNotFound, "product_not_found", "product not found")
	ErrOrderNotFound         = newError(ErrNotFound, "order_not_found", "order not found")
	ErrPromoExpired          = newError(ErrConflict, "promo_expired", "promo code expired")
	ErrPromoNotYetActive     = newError(ErrConflict, "promo_not_yet_active", "promo code is not active yet")
	ErrPromoMinimumNotMet    = newError(ErrConflict, "promo_minimum_not_met", "order total is below the promo minimum")
	ErrPromoLimitExhausted   = newError(ErrConflict, "promo_limit_exhausted", "promo code usage limit reached")
	ErrInsufficientStock     = newError(ErrConflict, "insufficient_stock", "insufficient stock")
	ErrQuantityExceedsStock  = newError(ErrConflict, "quantity_exceeds_stock", "requested quantity exceeds available stock")
	ErrIllegalTransition     = newError(ErrConflict, "illegal_transition", "illegal order status transition")
	ErrPaymentNotAllowed     = newError(ErrConflict, "payment_not_allowed", "order cannot be paid online")
	ErrInvalidCallback       = newError(ErrSignatureInvalid, "invalid_signature", "payment callback signature is invalid")
	ErrStorageTimeout        = newError(ErrTimeout, "storage_timeout", "storage did not respond in time")
	ErrStorageUnavailable    = newError(ErrTimeout, "storage_unavailable", "storage is temporarily unavailable")
)

// Invalid returns a validation error carrying a field-specific message.
func Invalid(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Code: ErrInvalidInput.Code, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError lists every product of a batch whose available stock
// was below the requested quantity.
type InsufficientStockError struct {
	ProductIDs []int64
}

func (e *InsufficientStockError) Error() string {
	ids := make([]string, len(e.ProductIDs))
	for i, id := range e.ProductIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("insufficient stock for products [%s]", strings.Join(ids, ","))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == ErrConflict
}

// Code returns the machine-readable reason of err, or "internal_error".
func Code(err error) string {
	var insufficient *InsufficientStockError
	if errors.As(err, &insufficient) {
		return ErrInsufficientStock.Code
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}
