package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/checkout"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultPageSize = 20

// PaymentStarter hands out the provider redirect for an order.
type PaymentStarter interface {
	StartPayment(ctx context.Context, userID, orderNumber, clientIP string) (string, error)
}

type OrdersHandler struct {
	assembler checkout.Assembler
	machine   orders.StateMachine
	query     orders.Query
	payments  PaymentStarter
	timeout   time.Duration
	log       *zap.Logger
}

func NewOrdersHandler(
	assembler checkout.Assembler,
	machine orders.StateMachine,
	query orders.Query,
	payments PaymentStarter,
	timeout time.Duration,
	log *zap.Logger,
) *OrdersHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrdersHandler{
		assembler: assembler,
		machine:   machine,
		query:     query,
		payments:  payments,
		timeout:   timeout,
		log:       log,
	}
}

type SelectionDTO struct {
	All        bool    `json:"all"`
	ProductIDs []int64 `json:"product_ids"`
}

type CreateOrderRequestDTO struct {
	Selection       SelectionDTO        `json:"selection"`
	ShippingAddress domain.Address      `json:"shipping_address"`
	Customer        domain.CustomerInfo `json:"customer"`
	PaymentMethod   string              `json:"payment_method"`
	PromoCode       *string             `json:"promo_code"`
	Notes           string              `json:"notes"`
}

type CancelOrderRequestDTO struct {
	Reason string `json:"reason"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type OrderResponseDTO struct {
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	PaymentMethod   string              `json:"payment_method"`
	Items           []domain.OrderItem  `json:"items"`
	Subtotal        int64               `json:"subtotal"`
	Discount        int64               `json:"discount"`
	ShippingFee     int64               `json:"shipping_fee"`
	Total           int64               `json:"total"`
	PromoCode       *string             `json:"promo_code"`
	Customer        domain.CustomerInfo `json:"customer"`
	ShippingAddress domain.Address      `json:"shipping_address"`
	Notes           string              `json:"notes,omitempty"`
	CancelReason    string              `json:"cancel_reason,omitempty"`
	Payment         *domain.PaymentInfo `json:"payment,omitempty"`
	CreatedAt       string              `json:"created_at"`
}

type OrderListResponseDTO struct {
	Orders   []OrderResponseDTO `json:"orders"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

type PaymentURLResponseDTO struct {
	PaymentURL string `json:"payment_url"`
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.assembler.CreateOrder(ctx, checkout.CreateOrderRequest{
		UserID:          userID,
		Selection:       checkout.Selection{All: req.Selection.All, ProductIDs: req.Selection.ProductIDs},
		ShippingAddress: req.ShippingAddress,
		Customer:        req.Customer,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		PromoCode:       req.PromoCode,
		Notes:           req.Notes,
	})
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusCreated, convertOrder(order))
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	page, ok := intQuery(w, r, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := intQuery(w, r, "page_size", defaultPageSize)
	if !ok {
		return
	}

	result, err := h.query.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(result.Orders))
	for _, o := range result.Orders {
		dtos = append(dtos, convertOrder(o))
	}
	respondJSON(w, http.StatusOK, OrderListResponseDTO{
		Orders:   dtos,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

// GET /api/v1/orders/{number}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	number := chi.URLParam(r, "number")
	if number == "" {
		respondError(w, http.StatusBadRequest, "missing_order_number", "order number is required")
		return
	}

	order, err := h.query.GetByNumber(ctx, number)
	if err == nil && order.UserID != userID {
		err = domain.ErrOrderNotFound
	}
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

// POST /api/v1/orders/{number}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	// the body is optional
	var req CancelOrderRequestDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	order, err := h.machine.Cancel(ctx, userID, chi.URLParam(r, "number"), req.Reason)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

// POST /api/v1/orders/{number}/payment
func (h *OrdersHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	paymentURL, err := h.payments.StartPayment(ctx, userID, chi.URLParam(r, "number"), clientIP(r))
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, PaymentURLResponseDTO{PaymentURL: paymentURL})
}

// POST /api/v1/admin/orders/{number}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.machine.Advance(ctx, chi.URLParam(r, "number"), domain.OrderStatus(req.Status))
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := o.Items
	if items == nil {
		items = make([]domain.OrderItem, 0)
	}
	dto := OrderResponseDTO{
		OrderNumber:     o.OrderNumber,
		Status:          o.OrderStatus.String(),
		PaymentStatus:   o.PaymentStatus.String(),
		PaymentMethod:   string(o.PaymentMethod),
		Items:           items,
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		ShippingFee:     o.ShippingFee,
		Total:           o.Total,
		PromoCode:       o.PromoCode,
		Customer:        o.Customer,
		ShippingAddress: o.ShippingAddress,
		Notes:           o.Notes,
		CancelReason:    o.CancelReason,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
	if o.Payment != (domain.PaymentInfo{}) {
		payment := o.Payment
		dto.Payment = &payment
	}
	return dto
}

func intQuery(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+key, key+" must be an integer")
		return 0, false
	}
	return n, true
}
