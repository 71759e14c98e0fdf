package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the service reported by Check besides the empty server-wide
// name.
const ServiceName = "rinha.Repository"

// Pinger checks the store with a single round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server answers health checks by pinging the store on demand.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger  Pinger
	timeout time.Duration
}

func NewServer(pinger Pinger, timeout time.Duration) *Server {
	return &Server{pinger: pinger, timeout: timeout}
}

func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.pinger.Ping(ctx); err != nil {
		slog.Warn("Health check failed", "error", err)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// Register adds s to gs.
func Register(gs *grpc.Server, s *Server) {
	healthpb.RegisterHealthServer(gs, s)
}
