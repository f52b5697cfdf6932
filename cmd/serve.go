package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fjod/go_cart/checkout-core/internal/audit"
	"github.com/fjod/go_cart/checkout-core/internal/cache"
	"github.com/fjod/go_cart/checkout-core/internal/cart"
	"github.com/fjod/go_cart/checkout-core/internal/checkout"
	"github.com/fjod/go_cart/checkout-core/internal/config"
	admingrpc "github.com/fjod/go_cart/checkout-core/internal/grpc"
	h "github.com/fjod/go_cart/checkout-core/internal/http"
	"github.com/fjod/go_cart/checkout-core/internal/inventory"
	"github.com/fjod/go_cart/checkout-core/internal/logger"
	"github.com/fjod/go_cart/checkout-core/internal/orders"
	"github.com/fjod/go_cart/checkout-core/internal/payment"
	"github.com/fjod/go_cart/checkout-core/internal/promo"
	"github.com/fjod/go_cart/checkout-core/internal/publisher"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"github.com/fjod/go_cart/checkout-core/internal/repository/memory"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func serveCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the admin gRPC server and the outbox publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Environment, cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()
			zap.ReplaceGlobals(log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func openStore(cfg *config.AppConfig, log *zap.Logger) (repository.Store, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore().WithTimeout(cfg.Storage.Timeout), nil
	}

	creds := cfg.Database.Credentials()
	repo, err := repository.NewRepository(creds, cfg.Storage.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.RunMigrations(creds); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")
	return repo, nil
}

func openCartCache(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (cache.CartCache, func()) {
	if cfg.Redis.Addr == "" {
		return cache.NoopCache{}, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	if err := client.Ping(ctx).Err(); err != nil {
		// the cache is optional; carts are read from the store
		log.Warn("redis unavailable, cart cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		client.Close()
		return cache.NoopCache{}, func() {}
	}
	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	return cache.NewRedisCache(client), func() { client.Close() }
}

func openJournal(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (audit.Journal, func(), error) {
	if cfg.Mongo.URI == "" {
		return audit.NewLogJournal(log), func() {}, nil
	}
	db, err := audit.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		return nil, nil, err
	}
	journal := audit.NewMongoJournal(db, audit.DefaultRetention)
	if err := journal.CreateIndexes(ctx); err != nil {
		_ = db.Client().Disconnect(ctx)
		return nil, nil, fmt.Errorf("create journal indexes: %w", err)
	}
	log.Info("payment audit journal on mongodb", zap.String("db", cfg.Mongo.DBName))
	return journal, func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Client().Disconnect(dctx)
	}, nil
}

func serve(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) error {
	inner, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer inner.Close()
	store := repository.NewBreakerStore(inner, log)

	cartCache, closeCache := openCartCache(ctx, cfg, log)
	defer closeCache()

	journal, closeJournal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	shipping := checkout.ShippingConfig{
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		FlatShippingFee:       cfg.Checkout.FlatShippingFee,
	}
	carts := cart.NewCartService(store, cartCache, log)
	engine := promo.NewEngine()
	ledger := inventory.NewLedger()
	assembler := checkout.NewAssembler(store, engine, ledger, carts, shipping, log)
	machine := orders.NewStateMachine(store, ledger, log)
	query := orders.NewQuery(store)
	gateway := payment.NewGateway(payment.Config{
		TmnCode:    cfg.Payment.TmnCode,
		HashSecret: cfg.Payment.HashSecret,
		PayURL:     cfg.Payment.URL,
		ReturnURL:  cfg.Payment.ReturnURL,
		Locale:     cfg.Payment.Locale,
		Currency:   cfg.Payment.Currency,
		Expire:     cfg.Payment.Expire,
	})
	reconciler := payment.NewReconciler(store, gateway, journal, log)

	trusted, err := h.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	router := h.NewRouter(h.RouterConfig{
		JWTSecret:          []byte(cfg.JWTSecret),
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		CallbackRateLimit:  cfg.Payment.CallbackRateLimit,
		CallbackRateBurst:  cfg.Payment.CallbackRateBurst,
		RequestTimeout:     requestTimeout,
		MaxRequestBodySize: 1 << 20, // 1MB
		TrustedProxies:     trusted,
	}, h.Handlers{
		Cart:     h.NewCartHandler(carts, shipping, requestTimeout, log),
		Orders:   h.NewOrdersHandler(assembler, machine, query, reconciler, requestTimeout, log),
		Payments: h.NewPaymentHandler(reconciler, cfg.Payment.ResultRedirectURL, requestTimeout, log),
		Promos:   h.NewPromoHandler(store, engine, shipping, requestTimeout, log),
		Products: h.NewProductHandler(store, requestTimeout, log),
	}, log)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	admin := admingrpc.NewAdminServer(store, log)
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("admin grpc server listening", zap.Int("port", cfg.GRPCPort))
		if err := admin.Server.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		admin.Run(gctx)
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		poller := publisher.NewOutboxPoller(store, publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...), log)
		g.Go(func() error {
			poller.Run(gctx)
			return poller.Close()
		})
	} else {
		log.Warn("no kafka brokers configured, outbox events stay unpublished")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down checkout core")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		admin.Server.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("checkout core stopped with error", zap.Error(err))
		return err
	}
	log.Info("checkout core stopped")
	return nil
}
