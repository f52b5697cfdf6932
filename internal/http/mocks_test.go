package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/cart"
	"github.com/fjod/go_cart/checkout-core/internal/checkout"
	"github.com/fjod/go_cart/checkout-core/internal/orders"
	"github.com/fjod/go_cart/checkout-core/internal/payment"
	"github.com/go-chi/chi/v5"
)

type CartServiceMock struct {
	cart *domain.Cart
	err  error

	lastProductID  int64
	lastQuantity   int
	lastMode       cart.Mode
	lastRemoved    []int64
	lastGuestItems []domain.CartLineItem
}

func (m *CartServiceMock) Get(context.Context, string) (*domain.Cart, error) {
	return m.cart, m.err
}

func (m *CartServiceMock) AddOrUpdate(_ context.Context, _ string, productID int64, quantity int, mode cart.Mode) (*domain.Cart, error) {
	m.lastProductID, m.lastQuantity, m.lastMode = productID, quantity, mode
	return m.cart, m.err
}

func (m *CartServiceMock) Remove(_ context.Context, _ string, productID int64) (*domain.Cart, error) {
	m.lastProductID = productID
	return m.cart, m.err
}

func (m *CartServiceMock) RemoveMany(_ context.Context, _ string, productIDs []int64) (*domain.Cart, error) {
	m.lastRemoved = productIDs
	return m.cart, m.err
}

func (m *CartServiceMock) MergeGuestCart(_ context.Context, _ string, guestItems []domain.CartLineItem) (*domain.Cart, error) {
	m.lastGuestItems = guestItems
	return m.cart, m.err
}

type AssemblerMock struct {
	order   *domain.Order
	err     error
	lastReq checkout.CreateOrderRequest
}

func (m *AssemblerMock) CreateOrder(_ context.Context, req checkout.CreateOrderRequest) (*domain.Order, error) {
	m.lastReq = req
	return m.order, m.err
}

type StateMachineMock struct {
	order      *domain.Order
	err        error
	lastUserID string
	lastNumber string
	lastReason string
	lastStatus domain.OrderStatus
}

func (m *StateMachineMock) Cancel(_ context.Context, userID, orderNumber, reason string) (*domain.Order, error) {
	m.lastUserID, m.lastNumber, m.lastReason = userID, orderNumber, reason
	return m.order, m.err
}

func (m *StateMachineMock) Advance(_ context.Context, orderNumber string, next domain.OrderStatus) (*domain.Order, error) {
	m.lastNumber, m.lastStatus = orderNumber, next
	return m.order, m.err
}

func (m *StateMachineMock) Return(_ context.Context, orderNumber string) (*domain.Order, error) {
	m.lastNumber = orderNumber
	return m.order, m.err
}

type QueryMock struct {
	order        *domain.Order
	page         *orders.Page
	err          error
	lastPage     int
	lastPageSize int
}

func (m *QueryMock) GetByNumber(context.Context, string) (*domain.Order, error) {
	return m.order, m.err
}

func (m *QueryMock) ListByUser(_ context.Context, _ string, page, pageSize int) (*orders.Page, error) {
	m.lastPage, m.lastPageSize = page, pageSize
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

type PaymentStarterMock struct {
	url      string
	err      error
	lastIP   string
	lastUser string
}

func (m *PaymentStarterMock) StartPayment(_ context.Context, userID, _ string, clientIP string) (string, error) {
	m.lastUser, m.lastIP = userID, clientIP
	return m.url, m.err
}

type CallbackProcessorMock struct {
	result payment.CallbackResult
	err    error
	last   payment.Callback
}

func (m *CallbackProcessorMock) ProcessCallback(_ context.Context, cb payment.Callback) (payment.CallbackResult, error) {
	m.last = cb
	return m.result, m.err
}

// --- helpers ---

func withUser(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, "user-1")
	return r.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
