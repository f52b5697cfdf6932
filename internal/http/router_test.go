package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/cart"
	"github.com/fjod/go_cart/checkout-core/internal/checkout"
	"github.com/fjod/go_cart/checkout-core/internal/inventory"
	"github.com/fjod/go_cart/checkout-core/internal/orders"
	"github.com/fjod/go_cart/checkout-core/internal/payment"
	"github.com/fjod/go_cart/checkout-core/internal/promo"
	"github.com/fjod/go_cart/checkout-core/internal/repository/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (http.Handler, *memory.Store) {
	store := memory.NewStore()
	t.Cleanup(func() { store.Close() })
	store.SetStock(domain.Product{ID: 1, Name: "Headphones", Price: 700000, Stock: 5})
	store.PutPromo(domain.PromoCode{
		Code:     "TENOFF",
		Type:     domain.PromoTypePercentage,
		Value:    decimal.RequireFromString("0.1"),
		StartsAt: time.Now().Add(-time.Hour),
		EndsAt:   time.Now().Add(time.Hour),
		Active:   true,
	})

	carts := cart.NewCartService(store, nil, nil)
	ledger := inventory.NewLedger()
	engine := promo.NewEngine()
	gw := payment.NewGateway(payment.Config{HashSecret: "secret", PayURL: "https://pay.example.com/vpcpay.html"})
	reconciler := payment.NewReconciler(store, gw, nil, nil)

	handlers := Handlers{
		Cart: NewCartHandler(carts, testShipping, 5*time.Second, nil),
		Orders: NewOrdersHandler(
			checkout.NewAssembler(store, engine, ledger, carts, testShipping, nil),
			orders.NewStateMachine(store, ledger, nil),
			orders.NewQuery(store),
			reconciler,
			5*time.Second,
			nil,
		),
		Payments: NewPaymentHandler(reconciler, resultPage, 5*time.Second, nil),
		Promos:   NewPromoHandler(store, engine, testShipping, 5*time.Second, nil),
		Products: NewProductHandler(store, 5*time.Second, nil),
	}
	router := NewRouter(RouterConfig{
		JWTSecret:         testSecret,
		AllowedOrigins:    []string{"https://shop.example.com"},
		CallbackRateLimit: 100,
		CallbackRateBurst: 100,
		RequestTimeout:    10 * time.Second,
	}, handlers, nil)
	return router, store
}

func call(t *testing.T, router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, nil)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestRouter_Health(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := call(t, router, "GET", "/health", "", "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))
}

func TestRouter_RequiresAuth(t *testing.T) {
	router, _ := setupRouter(t)

	assert.Equal(t, http.StatusUnauthorized, call(t, router, "GET", "/api/v1/cart", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, router, "POST", "/api/v1/orders", "{}", "").Code)

	user := signToken(t, jwt.SigningMethodHS256, testSecret, "user-1")
	assert.Equal(t, http.StatusForbidden, call(t, router, "POST", "/api/v1/admin/orders/ORD-1/status", `{"status":"shipped"}`, user).Code)
}

func TestRouter_PublicStock(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := call(t, router, "GET", "/api/v1/products/1/stock", "", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var stock StockResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&stock))
	assert.Equal(t, 5, stock.Stock)
	assert.True(t, stock.InStock)

	assert.Equal(t, http.StatusNotFound, call(t, router, "GET", "/api/v1/products/99/stock", "", "").Code)
}

func TestRouter_CheckoutFlow(t *testing.T) {
	router, store := setupRouter(t)
	user := signToken(t, jwt.SigningMethodHS256, testSecret, "user-1")
	admin := signToken(t, jwt.SigningMethodHS256, testSecret, "staff-1", "admin")

	recorder := call(t, router, "POST", "/api/v1/cart/items", `{"product_id": 1, "quantity": 2}`, user)
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = call(t, router, "POST", "/api/v1/promos/validate", `{"code": "tenoff"}`, user)
	require.Equal(t, http.StatusOK, recorder.Code)
	var quote PromoQuoteResponseDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&quote))
	assert.Equal(t, int64(140000), quote.DiscountAmount)
	assert.Equal(t, int64(0), quote.ShippingFee)
	assert.Equal(t, int64(1260000), quote.Total)

	recorder = call(t, router, "POST", "/api/v1/orders", `{
		"selection": {"all": true},
		"shipping_address": {"line": "1 Trang Tien"},
		"customer": {"name": "Binh", "phone": "0911111111"},
		"payment_method": "e-wallet",
		"promo_code": "TENOFF"
	}`, user)
	require.Equal(t, http.StatusCreated, recorder.Code)
	var order OrderResponseDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&order))
	assert.Equal(t, int64(1260000), order.Total)
	assert.Equal(t, 3, store.Stock(1))

	recorder = call(t, router, "GET", "/api/v1/cart", "", user)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"items":[]`)

	recorder = call(t, router, "POST", "/api/v1/orders/"+order.OrderNumber+"/payment", "", user)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "vnp_Amount=126000000")

	recorder = call(t, router, "GET", "/api/v1/orders?page=1&page_size=10", "", user)
	require.Equal(t, http.StatusOK, recorder.Code)
	var list OrderListResponseDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&list))
	assert.Equal(t, 1, list.Total)

	recorder = call(t, router, "POST", "/api/v1/admin/orders/"+order.OrderNumber+"/status", `{"status": "shipped"}`, admin)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = call(t, router, "POST", "/api/v1/orders/"+order.OrderNumber+"/cancel", "", user)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, 3, store.Stock(1))
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _ := setupRouter(t)
	request := httptest.NewRequest("OPTIONS", "/api/v1/cart", nil)
	request.Header.Set("Origin", "https://shop.example.com")
	request.Header.Set("Access-Control-Request-Method", "GET")
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)

	assert.Equal(t, "https://shop.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
}
