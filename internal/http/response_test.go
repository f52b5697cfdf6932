package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleDomainError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", domain.Invalid("customer phone is required"), http.StatusBadRequest, "invalid_input", "customer phone is required"},
		{"empty selection", domain.ErrEmptySelection, http.StatusBadRequest, "empty_selection", "no cart items selected"},
		{"not found", fmt.Errorf("lookup: %w", domain.ErrOrderNotFound), http.StatusNotFound, "order_not_found", "order not found"},
		{"conflict", domain.ErrPromoExpired, http.StatusConflict, "promo_expired", "promo code expired"},
		{"signature", domain.ErrInvalidCallback, http.StatusBadRequest, "invalid_signature", "invalid request"},
		{"timeout", domain.ErrStorageUnavailable, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable"},
		{"internal", errors.New("pq: relation does not exist"), http.StatusInternalServerError, "internal_error", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()

			handleDomainError(recorder, zap.NewNop(), tt.err)

			assert.Equal(t, tt.status, recorder.Code)
			var response ErrorResponse
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
			assert.Equal(t, tt.code, response.Code)
			assert.Equal(t, tt.message, response.Error)
		})
	}
}
