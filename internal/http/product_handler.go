package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductHandler struct {
	store   repository.Store
	timeout time.Duration
	log     *zap.Logger
}

func NewProductHandler(store repository.Store, timeout time.Duration, log *zap.Logger) *ProductHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductHandler{
		store:   store,
		timeout: timeout,
		log:     log,
	}
}

type StockResponse struct {
	ProductID int64 `json:"product_id"`
	Stock     int   `json:"stock"`
	InStock   bool  `json:"in_stock"`
}

// GET /api/v1/products/{id}/stock
func (h *ProductHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "id must be a positive integer")
		return
	}

	var product domain.Product
	err = h.store.View(ctx, func(ctx context.Context, q repository.Queries) error {
		products, err := q.GetProducts(ctx, []int64{id})
		if err != nil {
			return err
		}
		p, ok := products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = p
		return nil
	})
	if err != nil {
		handleDomainError(w, logger.WithContext(ctx, h.log), err)
		return
	}

	respondJSON(w, http.StatusOK, StockResponse{
		ProductID: product.ID,
		Stock:     product.Stock,
		InStock:   product.Stock > 0,
	})
}
