package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/payment"
	"go.uber.org/zap"
)

// Result statuses handed to the storefront after the browser returns.
const (
	resultInvalid = "invalid"
	resultError   = "error"
)

type CallbackProcessor interface {
	ProcessCallback(ctx context.Context, cb payment.Callback) (payment.CallbackResult, error)
}

// PaymentHandler serves the provider's unauthenticated but signed endpoints.
type PaymentHandler struct {
	reconciler  CallbackProcessor
	redirectURL string
	timeout     time.Duration
	log         *zap.Logger
}

func NewPaymentHandler(reconciler CallbackProcessor, redirectURL string, timeout time.Duration, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{
		reconciler:  reconciler,
		redirectURL: redirectURL,
		timeout:     timeout,
		log:         log,
	}
}

// GET /api/v1/payments/ipn
// The provider retries until it gets a JSON acknowledgement with status 200.
func (h *PaymentHandler) IPN(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.reconciler.ProcessCallback(ctx, payment.Callback{
		Params:   payment.ParamsFromQuery(r.URL.Query()),
		Channel:  payment.ChannelIPN,
		RemoteIP: clientIP(r),
	})
	ack := payment.AckFor(result, err)
	if ack.RspCode == "99" {
		logger.WithContext(ctx, h.log).Error("payment notification failed", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, ack)
}

// GET /api/v1/payments/return
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	params := payment.ParamsFromQuery(r.URL.Query())
	result, err := h.reconciler.ProcessCallback(ctx, payment.Callback{
		Params:   params,
		Channel:  payment.ChannelReturn,
		RemoteIP: clientIP(r),
	})

	status := result.PaymentStatus.String()
	orderNumber := result.OrderNumber
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		status, orderNumber = resultInvalid, ""
	case err != nil:
		status = resultError
		orderNumber = params[payment.ParamTxnRef]
		logger.WithContext(ctx, h.log).Info("payment return not applied", zap.String("reason", domain.Code(err)))
	}

	http.Redirect(w, r, h.resultURL(orderNumber, status), http.StatusFound)
}

func (h *PaymentHandler) resultURL(orderNumber, status string) string {
	u, err := url.Parse(h.redirectURL)
	if err != nil {
		return "/"
	}
	q := u.Query()
	if orderNumber != "" {
		q.Set("order", orderNumber)
	}
	q.Set("status", status)
	u.RawQuery = q.Encode()
	return u.String()
}
