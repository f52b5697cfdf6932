package orders

import (
	"context"
	"strings"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/inventory"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"go.uber.org/zap"
)

type StateMachine interface {
	Cancel(ctx context.Context, userID, orderNumber, reason string) (*domain.Order, error)
	Advance(ctx context.Context, orderNumber string, next domain.OrderStatus) (*domain.Order, error)
	Return(ctx context.Context, orderNumber string) (*domain.Order, error)
}

type StateMachineImpl struct {
	store  repository.Store
	ledger inventory.Ledger
	log    *zap.Logger
	now    func() time.Time
}

func NewStateMachine(store repository.Store, ledger inventory.Ledger, log *zap.Logger) *StateMachineImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &StateMachineImpl{
		store:  store,
		ledger: ledger,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Cancel cancels a pending order of userID and puts its items back in stock.
// Orders of other users are reported as not found.
func (s *StateMachineImpl) Cancel(ctx context.Context, userID, orderNumber, reason string) (*domain.Order, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, domain.Invalid("order number is required")
	}
	order, err := s.transition(ctx, orderNumber, domain.OrderStatusCancelled, domain.EventOrderCancelled,
		func(order *domain.Order) error {
			if order.UserID != userID {
				return domain.ErrOrderNotFound
			}
			if order.OrderStatus != domain.OrderStatusPending {
				return domain.ErrIllegalTransition
			}
			order.CancelReason = strings.TrimSpace(reason)
			return nil
		})
	s.logOutcome(ctx, "order cancelled", orderNumber, order, err)
	return order, err
}

// Advance moves an order one step along pending → shipped → delivered.
func (s *StateMachineImpl) Advance(ctx context.Context, orderNumber string, next domain.OrderStatus) (*domain.Order, error) {
	if !next.Valid() {
		return nil, domain.Invalid("unknown order status %q", next)
	}
	if next == domain.OrderStatusReturned {
		return s.Return(ctx, orderNumber)
	}
	if next == domain.OrderStatusCancelled {
		// administrative cancel: same stock restore, no owner check
		order, err := s.transition(ctx, orderNumber, next, domain.EventOrderCancelled, requireTransition(next))
		s.logOutcome(ctx, "order cancelled by admin", orderNumber, order, err)
		return order, err
	}
	order, err := s.transition(ctx, orderNumber, next, domain.EventOrderStatusChanged,
		func(order *domain.Order) error {
			if successor, ok := domain.NextFulfillmentStatus(order.OrderStatus); !ok || successor != next {
				return domain.ErrIllegalTransition
			}
			return nil
		})
	s.logOutcome(ctx, "order status advanced", orderNumber, order, err)
	return order, err
}

// Return records a returned order and puts its items back in stock.
func (s *StateMachineImpl) Return(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderNumber, domain.OrderStatusReturned, domain.EventOrderStatusChanged,
		requireTransition(domain.OrderStatusReturned))
	s.logOutcome(ctx, "order returned", orderNumber, order, err)
	return order, err
}

func requireTransition(next domain.OrderStatus) func(*domain.Order) error {
	return func(order *domain.Order) error {
		if !domain.CanTransitionTo(order.OrderStatus, next) {
			return domain.ErrIllegalTransition
		}
		return nil
	}
}

// transition locks the order, applies check, restores stock when leaving for
// a status that gives the goods back, and writes the outbox event, all in one
// unit of work.
func (s *StateMachineImpl) transition(
	ctx context.Context,
	orderNumber string,
	next domain.OrderStatus,
	eventType string,
	check func(order *domain.Order) error,
) (*domain.Order, error) {
	var updated *domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		order, err := q.LockOrderByNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		if err := check(order); err != nil {
			return err
		}

		if restoresStock(next) && !order.StockRestored {
			if err := s.ledger.Restore(ctx, q, order.StockLines()); err != nil {
				return err
			}
			order.StockRestored = true
		}
		if restoresStock(next) && order.PaymentStatus == domain.PaymentStatusPaid {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}

		now := s.now()
		order.OrderStatus = next
		order.UpdatedAt = now
		if err := q.SaveOrderState(ctx, order); err != nil {
			return err
		}

		event, err := repository.NewOrderEvent(eventType, order, now)
		if err != nil {
			return err
		}
		if err := q.AddOutboxEvent(ctx, event); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func restoresStock(status domain.OrderStatus) bool {
	return status == domain.OrderStatusCancelled || status == domain.OrderStatusReturned
}

func (s *StateMachineImpl) logOutcome(ctx context.Context, msg, orderNumber string, order *domain.Order, err error) {
	log := logger.WithContext(ctx, s.log).With(zap.String("order_number", orderNumber))
	if err != nil {
		log.Info("order transition rejected", zap.String("reason", domain.Code(err)), zap.Error(err))
		return
	}
	log.Info(msg,
		zap.String("order_status", order.OrderStatus.String()),
		zap.String("payment_status", order.PaymentStatus.String()))
}
