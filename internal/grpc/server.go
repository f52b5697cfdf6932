package grpc

import (
	"context"
	"time"

	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the checkout core.
const ServiceName = "checkout.core"

// AdminServer is the operational gRPC listener: standard health checks backed
// by a storage probe, plus reflection for grpcurl/grpcui.
type AdminServer struct {
	Server *grpc.Server
	health *health.Server
	store  repository.Store
	log    *zap.Logger
	every  time.Duration
}

func NewAdminServer(store repository.Store, log *zap.Logger) *AdminServer {
	if log == nil {
		log = zap.NewNop()
	}
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &AdminServer{Server: srv, health: hs, store: store, log: log, every: 5 * time.Second}
}

// Probe checks the store once and publishes the result.
func (s *AdminServer) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := s.store.View(ctx, func(ctx context.Context, q repository.Queries) error {
		_, err := q.GetProducts(ctx, []int64{0})
		return err
	})
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.Warn("storage probe failed", zap.Error(err))
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Run probes the store until ctx is done, then reports NOT_SERVING for good.
func (s *AdminServer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.Probe(ctx)
	for {
		select {
		case <-ticker.C:
			s.Probe(ctx)
		case <-ctx.Done():
			s.health.Shutdown()
			return
		}
	}
}
