package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/checkout"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/promo"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"go.uber.org/zap"
)

// PromoHandler quotes a promo code against the caller's current cart, priced
// from the catalog the way an order would be.
type PromoHandler struct {
	store    repository.Store
	engine   promo.Engine
	shipping checkout.ShippingConfig
	timeout  time.Duration
	log      *zap.Logger
}

func NewPromoHandler(
	store repository.Store,
	engine promo.Engine,
	shipping checkout.ShippingConfig,
	timeout time.Duration,
	log *zap.Logger,
) *PromoHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PromoHandler{
		store:    store,
		engine:   engine,
		shipping: shipping,
		timeout:  timeout,
		log:      log,
	}
}

type ValidatePromoRequestDTO struct {
	Code      string       `json:"code"`
	Selection SelectionDTO `json:"selection"`
}

type PromoQuoteResponseDTO struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	IsFreeShip     bool   `json:"is_free_ship"`
	Subtotal       int64  `json:"subtotal"`
	ShippingFee    int64  `json:"shipping_fee"`
	Total          int64  `json:"total"`
}

// POST /api/v1/promos/validate
// An empty selection quotes the whole cart.
func (h *PromoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ValidatePromoRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondError(w, http.StatusBadRequest, domain.ErrInvalidInput.Code, "code is required")
		return
	}

	log := logger.WithContext(ctx, h.log)
	all := req.Selection.All || len(req.Selection.ProductIDs) == 0

	var (
		subtotal int64
		quote    domain.PromoQuote
	)
	err := h.store.View(ctx, func(ctx context.Context, q repository.Queries) error {
		c, err := q.GetCart(ctx, userID)
		if err != nil {
			return err
		}
		lines := c.Select(all, req.Selection.ProductIDs)
		if len(lines) == 0 {
			return domain.ErrEmptySelection
		}
		ids := make([]int64, len(lines))
		for i, line := range lines {
			ids[i] = line.ProductID
		}
		products, err := q.GetProducts(ctx, ids)
		if err != nil {
			return err
		}
		if _, subtotal, err = checkout.PriceLines(lines, products); err != nil {
			return err
		}
		quote, err = h.engine.Validate(ctx, q, req.Code, subtotal)
		return err
	})
	if err != nil {
		handleDomainError(w, log, err)
		return
	}

	shippingFee := checkout.ShippingFee(h.shipping, subtotal, quote.IsFreeShip)
	respondJSON(w, http.StatusOK, PromoQuoteResponseDTO{
		Code:           quote.Code,
		DiscountAmount: quote.DiscountAmount,
		IsFreeShip:     quote.IsFreeShip,
		Subtotal:       subtotal,
		ShippingFee:    shippingFee,
		Total:          domain.ComputeTotal(subtotal, quote.DiscountAmount, shippingFee),
	})
}
