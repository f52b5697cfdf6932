package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/cart"
	"github.com/fjod/go_cart/checkout-core/internal/checkout"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxLineQuantity = 99

type CartService interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	AddOrUpdate(ctx context.Context, userID string, productID int64, quantity int, mode cart.Mode) (*domain.Cart, error)
	Remove(ctx context.Context, userID string, productID int64) (*domain.Cart, error)
	RemoveMany(ctx context.Context, userID string, productIDs []int64) (*domain.Cart, error)
	MergeGuestCart(ctx context.Context, userID string, guestItems []domain.CartLineItem) (*domain.Cart, error)
}

type CartHandler struct {
	carts    CartService
	shipping checkout.ShippingConfig
	timeout  time.Duration
	log      *zap.Logger
}

func NewCartHandler(carts CartService, shipping checkout.ShippingConfig, timeout time.Duration, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		carts:    carts,
		shipping: shipping,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type RemoveItemsRequestDTO struct {
	ProductIDs []int64 `json:"product_ids"`
}

type MergeCartRequestDTO struct {
	Items []AddItemRequestDTO `json:"items"`
}

type CartResponseDTO struct {
	Items       []domain.CartLineItem `json:"items"`
	Subtotal    int64                 `json:"subtotal"`
	ShippingFee int64                 `json:"shipping_fee"`
	Total       int64                 `json:"total"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	c, err := h.carts.Get(ctx, userID)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, h.toDTO(c))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	c, err := h.carts.AddOrUpdate(ctx, userID, req.ProductID, req.Quantity, cart.Delta)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusCreated, h.toDTO(c))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	// zero removes the line
	if req.Quantity < 0 || req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	c, err := h.carts.AddOrUpdate(ctx, userID, productID, req.Quantity, cart.Absolute)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, h.toDTO(c))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	c, err := h.carts.Remove(ctx, userID, productID)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, h.toDTO(c))
}

// POST /api/v1/cart/remove
func (h *CartHandler) RemoveItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req RemoveItemsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.ProductIDs) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_ids must not be empty")
		return
	}

	c, err := h.carts.RemoveMany(ctx, userID, req.ProductIDs)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, h.toDTO(c))
}

// POST /api/v1/cart/merge
func (h *CartHandler) MergeCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req MergeCartRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	items := make([]domain.CartLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "guest items need a positive product_id and quantity")
			return
		}
		items = append(items, domain.CartLineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	c, err := h.carts.MergeGuestCart(ctx, userID, items)
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	respondJSON(w, http.StatusOK, h.toDTO(c))
}

func (h *CartHandler) toDTO(c *domain.Cart) CartResponseDTO {
	items := c.Items
	if items == nil {
		items = []domain.CartLineItem{}
	}
	subtotal := c.Total()
	var shippingFee int64
	if len(items) > 0 {
		shippingFee = checkout.ShippingFee(h.shipping, subtotal, false)
	}
	return CartResponseDTO{
		Items:       items,
		Subtotal:    subtotal,
		ShippingFee: shippingFee,
		Total:       domain.ComputeTotal(subtotal, 0, shippingFee),
		UpdatedAt:   c.UpdatedAt,
	}
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}
