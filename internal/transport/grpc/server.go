package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service key for the realtime engine.
const ServiceName = "chat.sync.v1.Realtime"

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// Server exposes grpc health checking and reflection for operators.
type Server struct {
	srv    *grpc.Server
	health *health.Server

	mu     sync.Mutex
	probes []Probe
}

func NewServer() *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	reflection.Register(srv)

	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{srv: srv, health: h}
}

// AddProbe registers a dependency check consulted by Check.
func (s *Server) AddProbe(p Probe) {
	s.mu.Lock()
	s.probes = append(s.probes, p)
	s.mu.Unlock()
}

// Check runs every probe and flips the serving status accordingly.
func (s *Server) Check(ctx context.Context) error {
	s.mu.Lock()
	probes := append([]Probe(nil), s.probes...)
	s.mu.Unlock()

	var errs []error
	for _, p := range probes {
		if err := p(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	s.SetServing(err == nil)
	if err != nil {
		slog.Warn("health probe failed", "err", err)
	}
	return err
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("grpc listen", "addr", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the server unhealthy and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
