package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/payment"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"github.com/fjod/go_cart/checkout-core/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultPage = "https://shop.example.com/checkout/result"

func setupPayments(t *testing.T) (*PaymentHandler, *payment.Gateway, *memory.Store) {
	store := memory.NewStore()
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, q repository.Queries) error {
		return q.CreateOrder(ctx, &domain.Order{
			ID:            uuid.New(),
			OrderNumber:   "ORD-20260301-000001",
			UserID:        "user-1",
			Total:         250000,
			PaymentMethod: domain.PaymentMethodEWallet,
			OrderStatus:   domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusPending,
		})
	}))

	gw := payment.NewGateway(payment.Config{HashSecret: "ipn-secret", PayURL: "https://pay.example.com"})
	reconciler := payment.NewReconciler(store, gw, nil, nil)
	return NewPaymentHandler(reconciler, resultPage, 5*time.Second, nil), gw, store
}

func signedQuery(gw *payment.Gateway, amount, responseCode string) string {
	params := gw.Sign(map[string]string{
		payment.ParamTxnRef:            "ORD-20260301-000001",
		payment.ParamAmount:            amount,
		payment.ParamResponseCode:      responseCode,
		payment.ParamTransactionStatus: responseCode,
		payment.ParamTransactionNo:     "14000123",
	})
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

func decodeAck(t *testing.T, recorder *httptest.ResponseRecorder) payment.Ack {
	require.Equal(t, http.StatusOK, recorder.Code)
	var ack payment.Ack
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&ack))
	return ack
}

func TestIPN_ConfirmsThenReportsDuplicate(t *testing.T) {
	handler, gw, _ := setupPayments(t)
	query := signedQuery(gw, "25000000", "00")

	recorder := httptest.NewRecorder()
	handler.IPN(recorder, httptest.NewRequest("GET", "/api/v1/payments/ipn?"+query, nil))
	assert.Equal(t, "00", decodeAck(t, recorder).RspCode)

	recorder = httptest.NewRecorder()
	handler.IPN(recorder, httptest.NewRequest("GET", "/api/v1/payments/ipn?"+query, nil))
	assert.Equal(t, "02", decodeAck(t, recorder).RspCode)
}

func TestIPN_InvalidSignature(t *testing.T) {
	handler, gw, store := setupPayments(t)
	query := signedQuery(gw, "25000000", "00")
	tampered, err := url.ParseQuery(query)
	require.NoError(t, err)
	tampered.Set(payment.ParamAmount, "100")

	recorder := httptest.NewRecorder()
	handler.IPN(recorder, httptest.NewRequest("GET", "/api/v1/payments/ipn?"+tampered.Encode(), nil))

	ack := decodeAck(t, recorder)
	assert.Equal(t, "97", ack.RspCode)
	assert.NotContains(t, recorder.Body.String(), "ipn-secret")
	assert.Empty(t, store.Outbox())
}

func TestIPN_AmountMismatch(t *testing.T) {
	handler, gw, _ := setupPayments(t)

	recorder := httptest.NewRecorder()
	handler.IPN(recorder, httptest.NewRequest("GET", "/api/v1/payments/ipn?"+signedQuery(gw, "250000", "00"), nil))

	assert.Equal(t, "04", decodeAck(t, recorder).RspCode)
}

func TestIPN_InternalErrorIsOpaque(t *testing.T) {
	handler := NewPaymentHandler(&CallbackProcessorMock{err: errors.New("pq: connection reset")}, resultPage, time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.IPN(recorder, httptest.NewRequest("GET", "/api/v1/payments/ipn", nil))

	ack := decodeAck(t, recorder)
	assert.Equal(t, "99", ack.RspCode)
	assert.NotContains(t, recorder.Body.String(), "pq:")
}

func TestReturn_RedirectsWithStatus(t *testing.T) {
	handler, gw, _ := setupPayments(t)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/v1/payments/return?"+signedQuery(gw, "25000000", "24"), nil)
	request.RemoteAddr = "198.51.100.7:40000"
	handler.Return(recorder, request)

	require.Equal(t, http.StatusFound, recorder.Code)
	location, err := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", location.Host)
	assert.Equal(t, "ORD-20260301-000001", location.Query().Get("order"))
	assert.Equal(t, "failed", location.Query().Get("status"))
}

func TestReturn_InvalidSignature(t *testing.T) {
	mock := &CallbackProcessorMock{err: domain.ErrInvalidCallback}
	handler := NewPaymentHandler(mock, resultPage, time.Second, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/v1/payments/return?vnp_TxnRef=ORD-20260301-000001", nil)
	request.RemoteAddr = "198.51.100.7:40000"
	handler.Return(recorder, request)

	require.Equal(t, http.StatusFound, recorder.Code)
	location, err := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid", location.Query().Get("status"))
	assert.Empty(t, location.Query().Get("order"))
	assert.Equal(t, payment.ChannelReturn, mock.last.Channel)
	assert.Equal(t, "198.51.100.7", mock.last.RemoteIP)
}
