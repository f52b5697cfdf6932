package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/inventory"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/promo"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxNumberAttempts = 3

// Selection picks the cart lines an order is built from.
type Selection struct {
	All        bool
	ProductIDs []int64
}

type CreateOrderRequest struct {
	UserID          string
	Selection       Selection
	ShippingAddress domain.Address
	Customer        domain.CustomerInfo
	PaymentMethod   domain.PaymentMethod
	PromoCode       *string
	Notes           string
}

// CartInvalidator drops cached carts after the assembler consumed their lines.
type CartInvalidator interface {
	Invalidate(userID string)
}

type Assembler interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error)
}

type AssemblerImpl struct {
	store    repository.Store
	promos   promo.Engine
	ledger   inventory.Ledger
	carts    CartInvalidator
	shipping ShippingConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewAssembler(
	store repository.Store,
	promos promo.Engine,
	ledger inventory.Ledger,
	carts CartInvalidator,
	shipping ShippingConfig,
	log *zap.Logger,
) *AssemblerImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssemblerImpl{
		store:    store,
		promos:   promos,
		ledger:   ledger,
		carts:    carts,
		shipping: shipping,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder turns the selected cart lines into a pending order. Pricing,
// the stock decrement, the order insert, the cart cleanup and the promo usage
// bump run in one unit of work: any failure leaves no trace.
func (a *AssemblerImpl) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	promoCode := ""
	if req.PromoCode != nil {
		promoCode = domain.NormalizePromoCode(*req.PromoCode)
	}

	var order *domain.Order
	var err error
	// a clashing order number aborts the whole unit; run it again with the next one
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		order, err = a.assemble(ctx, req, promoCode)
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
			break
		}
	}

	log := logger.WithContext(ctx, a.log)
	if err != nil {
		log.Info("order creation rejected",
			zap.String("user_id", req.UserID),
			zap.String("reason", domain.Code(err)),
			zap.Error(err))
		return nil, err
	}

	if a.carts != nil {
		a.carts.Invalidate(req.UserID)
	}
	log.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.UserID),
		zap.Int64("total", order.Total),
		zap.String("payment_method", string(order.PaymentMethod)))
	return order, nil
}

func (a *AssemblerImpl) assemble(ctx context.Context, req CreateOrderRequest, promoCode string) (*domain.Order, error) {
	var order *domain.Order
	err := a.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		cart, err := q.LockCart(ctx, req.UserID)
		if err != nil {
			return err
		}
		lines := cart.Select(req.Selection.All, req.Selection.ProductIDs)
		if len(lines) == 0 {
			return domain.ErrEmptySelection
		}

		ids := make([]int64, len(lines))
		for i, line := range lines {
			ids[i] = line.ProductID
		}
		products, err := q.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		items, subtotal, err := PriceLines(lines, products)
		if err != nil {
			return err
		}
		stock := make([]domain.StockLine, len(items))
		for i, item := range items {
			stock[i] = domain.StockLine{ProductID: item.ProductID, Quantity: item.Quantity}
		}

		var quote domain.PromoQuote
		if promoCode != "" {
			quote, err = a.promos.Validate(ctx, lockedPromos{q}, promoCode, subtotal)
			if err != nil {
				return err
			}
		}

		shippingFee := ShippingFee(a.shipping, subtotal, quote.IsFreeShip)

		if err := a.ledger.ReserveAndDecrement(ctx, q, stock); err != nil {
			return err
		}

		now := a.now()
		number, err := q.NextOrderNumber(ctx, now)
		if err != nil {
			return err
		}
		order = &domain.Order{
			ID:              uuid.New(),
			OrderNumber:     number,
			UserID:          req.UserID,
			Items:           items,
			Subtotal:        subtotal,
			Discount:        quote.DiscountAmount,
			ShippingFee:     shippingFee,
			Total:           domain.ComputeTotal(subtotal, quote.DiscountAmount, shippingFee),
			PaymentMethod:   req.PaymentMethod,
			Customer:        req.Customer,
			ShippingAddress: req.ShippingAddress,
			Notes:           strings.TrimSpace(req.Notes),
			OrderStatus:     domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if promoCode != "" {
			order.PromoCode = &quote.Code
		}
		if err := q.CreateOrder(ctx, order); err != nil {
			return err
		}

		if err := q.RemoveCartItems(ctx, req.UserID, ids); err != nil {
			return err
		}

		if promoCode != "" {
			if err := q.IncrementPromoUsage(ctx, quote.Code); err != nil {
				return err
			}
		}

		event, err := repository.NewOrderEvent(domain.EventOrderCreated, order, now)
		if err != nil {
			return err
		}
		return q.AddOutboxEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func validateRequest(req CreateOrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.Invalid("user id is required")
	}
	if !req.Selection.All && len(req.Selection.ProductIDs) == 0 {
		return domain.ErrEmptySelection
	}
	if !req.PaymentMethod.Valid() {
		return domain.ErrInvalidPaymentMethod
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return domain.Invalid("customer name is required")
	}
	if strings.TrimSpace(req.Customer.Phone) == "" {
		return domain.Invalid("customer phone is required")
	}
	if strings.TrimSpace(req.ShippingAddress.Line) == "" {
		return domain.Invalid("shipping address is required")
	}
	return nil
}

// lockedPromos makes the promo engine read the promo row under lock so the
// usage check and the increment see the same counter.
type lockedPromos struct {
	q repository.PromoStore
}

func (l lockedPromos) GetPromo(ctx context.Context, code string) (*domain.PromoCode, error) {
	return l.q.LockPromo(ctx, code)
}
