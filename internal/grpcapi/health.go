// Package grpcapi exposes the standard grpc.health.v1 service so
// orchestrators can probe docbeacon over gRPC as well as HTTP.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported alongside the overall ("") status.
const ServiceName = "docbeacon.v1.Tracking"

// HealthServer serves grpc.health.v1.Health. It reports SERVING while Serve
// runs and NOT_SERVING once shutdown starts.
type HealthServer struct {
	addr   string
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

func NewHealthServer(addr string, logger zerolog.Logger) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		addr:   addr,
		server: srv,
		health: hs,
		logger: logger.With().Str("component", "grpc_health").Logger(),
	}
}

// SetServing flips both the overall and the named service status.
func (s *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve listens on the configured address until ctx is cancelled.
func (s *HealthServer) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener. Tests use it with :0.
func (s *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
		errCh <- s.server.Serve(lis)
	}()
	s.SetServing(true)

	select {
	case err := <-errCh:
		s.SetServing(false)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.SetServing(false)
		s.server.GracefulStop()
		s.logger.Info().Msg("grpc health server stopped")
		return ctx.Err()
	}
}

func (s *HealthServer) String() string {
	return "grpc-health"
}
