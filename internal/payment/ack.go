package payment

import (
	"errors"

	"github.com/fjod/go_cart/checkout-core/domain"
)

// Ack is the acknowledgement body the provider expects from the IPN endpoint.
type Ack struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

var (
	ackConfirmed        = Ack{RspCode: "00", Message: "Confirm Success"}
	ackOrderNotFound    = Ack{RspCode: "01", Message: "Order not found"}
	ackAlreadyConfirmed = Ack{RspCode: "02", Message: "Order already confirmed"}
	ackInvalidAmount    = Ack{RspCode: "04", Message: "Invalid amount"}
	ackInvalidChecksum  = Ack{RspCode: "97", Message: "Invalid signature"}
	ackUnknownError     = Ack{RspCode: "99", Message: "Unknown error"}
)

// AckFor maps the outcome of ProcessCallback to the provider acknowledgement.
func AckFor(result CallbackResult, err error) Ack {
	switch {
	case err == nil && result.Duplicate:
		return ackAlreadyConfirmed
	case err == nil:
		return ackConfirmed
	case errors.Is(err, domain.ErrSignatureInvalid):
		return ackInvalidChecksum
	case errors.Is(err, domain.ErrOrderNotFound):
		return ackOrderNotFound
	case errors.Is(err, domain.ErrAmountMismatch):
		return ackInvalidAmount
	default:
		return ackUnknownError
	}
}
