package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/checkout-core/domain"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error      string  `json:"error"`
	Code       string  `json:"code,omitempty"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleDomainError maps an error category to an HTTP status. Messages of
// unclassified errors never reach the client.
func handleDomainError(w http.ResponseWriter, log *zap.Logger, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:      "insufficient stock",
			Code:       domain.ErrInsufficientStock.Code,
			ProductIDs: insufficient.ProductIDs,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		respondError(w, http.StatusBadRequest, domain.ErrInvalidCallback.Code, "invalid request")
	case errors.Is(err, domain.ErrValidation):
		respondError(w, http.StatusBadRequest, domain.Code(err), publicMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, domain.Code(err), publicMessage(err))
	case errors.Is(err, domain.ErrConflict):
		respondError(w, http.StatusConflict, domain.Code(err), publicMessage(err))
	case errors.Is(err, domain.ErrTimeout):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable")
	default:
		log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// publicMessage returns the message of the typed reason, not of any wrapping.
func publicMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "request rejected"
}
