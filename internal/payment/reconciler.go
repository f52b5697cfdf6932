package payment

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/audit"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"go.uber.org/zap"
)

// Callback channels.
const (
	ChannelIPN    = "ipn"
	ChannelReturn = "return"
)

// CallbackResult is what a processed callback did to its order.
type CallbackResult struct {
	OrderNumber   string
	PaymentStatus domain.PaymentStatus
	ResponseCode  string
	// Duplicate is set when the order had already been settled and nothing was written.
	Duplicate bool
}

// Callback is one provider notification as received by a handler.
type Callback struct {
	Params   map[string]string
	Channel  string
	RemoteIP string
}

type Reconciler interface {
	StartPayment(ctx context.Context, userID, orderNumber, clientIP string) (string, error)
	ProcessCallback(ctx context.Context, cb Callback) (CallbackResult, error)
}

type ReconcilerImpl struct {
	store   repository.Store
	gateway *Gateway
	journal audit.Journal
	log     *zap.Logger
	now     func() time.Time
}

func NewReconciler(store repository.Store, gateway *Gateway, journal audit.Journal, log *zap.Logger) *ReconcilerImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if journal == nil {
		journal = audit.NewLogJournal(log)
	}
	return &ReconcilerImpl{
		store:   store,
		gateway: gateway,
		journal: journal,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// StartPayment returns the provider redirect for a pending e-wallet order of userID.
func (r *ReconcilerImpl) StartPayment(ctx context.Context, userID, orderNumber, clientIP string) (string, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return "", domain.Invalid("order number is required")
	}

	var order *domain.Order
	err := r.store.View(ctx, func(ctx context.Context, q repository.Queries) error {
		var err error
		order, err = q.GetOrderByNumber(ctx, orderNumber)
		return err
	})
	if err != nil {
		return "", err
	}
	// other users' orders do not exist as far as the caller can tell
	if order.UserID != userID {
		return "", domain.ErrOrderNotFound
	}
	if !order.PaymentMethod.IsOnline() ||
		order.OrderStatus != domain.OrderStatusPending ||
		order.PaymentStatus != domain.PaymentStatusPending {
		return "", domain.ErrPaymentNotAllowed
	}

	paymentURL, err := r.gateway.BuildPaymentURL(order, clientIP, r.now())
	if err != nil {
		return "", err
	}
	logger.WithContext(ctx, r.log).Info("payment started",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.Total))
	return paymentURL, nil
}

// ProcessCallback authenticates a provider callback and settles the order it
// refers to. Replays of an already settled order are answered from the stored
// state without writing anything.
func (r *ReconcilerImpl) ProcessCallback(ctx context.Context, cb Callback) (CallbackResult, error) {
	log := logger.WithContext(ctx, r.log).With(
		zap.String("channel", cb.Channel),
		zap.String("remote_ip", cb.RemoteIP))
	entry := audit.Entry{
		Channel:        cb.Channel,
		OrderNumber:    cb.Params[ParamTxnRef],
		TransactionRef: cb.Params[ParamTxnRef],
		ResponseCode:   cb.Params[ParamResponseCode],
		RemoteIP:       cb.RemoteIP,
		Params:         withoutSignature(cb.Params),
	}

	if err := r.gateway.Verify(cb.Params); err != nil {
		log.Warn("payment callback rejected",
			zap.String("event", "payment.signature_invalid"),
			zap.String("order_number", entry.OrderNumber))
		entry.Outcome = audit.OutcomeSignatureInvalid
		r.record(ctx, log, entry)
		return CallbackResult{}, err
	}

	orderNumber := cb.Params[ParamTxnRef]
	if orderNumber == "" {
		return CallbackResult{}, domain.Invalid("missing %s", ParamTxnRef)
	}
	amount, err := strconv.ParseInt(cb.Params[ParamAmount], 10, 64)
	if err != nil || amount < 0 {
		return CallbackResult{}, domain.Invalid("invalid %s", ParamAmount)
	}

	responseCode := cb.Params[ParamResponseCode]
	status := MapResponseCode(responseCode, cb.Params[ParamTransactionStatus])

	var result CallbackResult
	var event string
	err = r.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		order, err := q.LockOrderByNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		result = CallbackResult{
			OrderNumber:   order.OrderNumber,
			PaymentStatus: order.PaymentStatus,
			ResponseCode:  order.Payment.ResponseCode,
		}
		if order.PaymentStatus.IsTerminal() {
			result.Duplicate = true
			return nil
		}
		if !order.PaymentMethod.IsOnline() {
			return domain.ErrPaymentNotAllowed
		}
		if amount != MinorUnits(order.Total) {
			return domain.ErrAmountMismatch
		}

		now := r.now()
		order.PaymentStatus = status
		// the order was cancelled while the customer was at the provider
		if status == domain.PaymentStatusPaid && order.OrderStatus == domain.OrderStatusCancelled {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}
		order.Payment = domain.PaymentInfo{
			TransactionRef: orderNumber,
			ProviderTxnID:  cb.Params[ParamTransactionNo],
			ResponseCode:   responseCode,
			BankCode:       cb.Params[ParamBankCode],
		}
		if status == domain.PaymentStatusPaid {
			paidAt := now
			if raw := cb.Params[ParamPayDate]; raw != "" {
				if parsed, err := r.gateway.ParsePayDate(raw); err == nil {
					paidAt = parsed
				}
			}
			order.Payment.PaidAt = &paidAt
		}
		order.UpdatedAt = now
		if err := q.SaveOrderState(ctx, order); err != nil {
			return err
		}

		event = domain.EventOrderPaymentFailed
		if status == domain.PaymentStatusPaid {
			event = domain.EventOrderPaid
		}
		outbox, err := repository.NewOrderEvent(event, order, now)
		if err != nil {
			return err
		}
		if err := q.AddOutboxEvent(ctx, outbox); err != nil {
			return err
		}

		result.PaymentStatus = order.PaymentStatus
		result.ResponseCode = responseCode
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrAmountMismatch):
		log.Warn("payment callback amount mismatch",
			zap.String("order_number", orderNumber),
			zap.Int64("amount", amount))
		entry.Outcome = audit.OutcomeAmountMismatch
		r.record(ctx, log, entry)
		return CallbackResult{}, err
	case err != nil:
		log.Info("payment callback not applied",
			zap.String("order_number", orderNumber),
			zap.String("reason", domain.Code(err)),
			zap.Error(err))
		entry.Outcome = audit.OutcomeRejected
		entry.Reason = domain.Code(err)
		r.record(ctx, log, entry)
		return CallbackResult{}, err
	case result.Duplicate:
		log.Info("payment callback replayed",
			zap.String("order_number", orderNumber),
			zap.String("payment_status", result.PaymentStatus.String()))
		entry.Outcome = audit.OutcomeDuplicate
		r.record(ctx, log, entry)
		return result, nil
	}

	log.Info("payment callback applied",
		zap.String("order_number", orderNumber),
		zap.String("payment_status", result.PaymentStatus.String()),
		zap.String("response_code", responseCode),
		zap.String("response", DescribeResponseCode(responseCode)),
		zap.String("event_type", event))
	entry.Outcome = audit.OutcomeApplied
	r.record(ctx, log, entry)
	return result, nil
}

func (r *ReconcilerImpl) record(ctx context.Context, log *zap.Logger, entry audit.Entry) {
	entry.OccurredAt = r.now()
	if err := r.journal.Record(ctx, entry); err != nil {
		log.Error("failed to journal payment callback", zap.Error(err))
	}
}
