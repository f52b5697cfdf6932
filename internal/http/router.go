package http

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	JWTSecret          []byte
	AllowedOrigins     []string
	CallbackRateLimit  float64
	CallbackRateBurst  int
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	// TrustedProxies may set the client address through X-Forwarded-For.
	TrustedProxies []*net.IPNet
}

type Handlers struct {
	Cart     *CartHandler
	Orders   *OrdersHandler
	Payments *PaymentHandler
	Promos   *PromoHandler
	Products *ProductHandler
}

// NewRouter wires every route of the public API.
func NewRouter(cfg RouterConfig, h Handlers, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20 // 1MB
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(ForwardedFor(cfg.TrustedProxies))
	r.Use(RequestIDMiddleware)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	callbackLimiter := NewRateLimiter(cfg.CallbackRateLimit, cfg.CallbackRateBurst)
	auth := AuthMiddleware(cfg.JWTSecret)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products/{id}/stock", h.Products.GetStock)

		r.Route("/payments", func(r chi.Router) {
			r.Use(callbackLimiter.Limit)
			r.Get("/ipn", h.Payments.IPN)
			r.Get("/return", h.Payments.Return)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Post("/items", h.Cart.AddItem)
				r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", h.Cart.RemoveItem)
				r.Post("/remove", h.Cart.RemoveItems)
				r.Post("/merge", h.Cart.MergeCart)
			})

			r.Post("/promos/validate", h.Promos.Validate)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.Orders.CreateOrder)
				r.Get("/", h.Orders.ListOrders)
				r.Get("/{number}", h.Orders.GetOrder)
				r.Post("/{number}/cancel", h.Orders.CancelOrder)
				r.Post("/{number}/payment", h.Orders.StartPayment)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/orders/{number}/status", h.Orders.UpdateStatus)
			})
		})
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).Handler(r)

	return otelhttp.NewHandler(corsHandler, "checkout-core")
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", w.Header().Get("X-Request-ID")))
		})
	}
}
