package api

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// ServiceName is the grpc.health.v1 service reporting the group state
const ServiceName = "tunnelgroup"

// GRPCServer exposes the standard gRPC health service. Both the overall
// status ("") and ServiceName are SERVING only while the group is RUNNING.
type GRPCServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewGRPCServer creates a server reporting NOT_SERVING
func NewGRPCServer() *GRPCServer {
	s := &GRPCServer{
		grpc:   grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor())),
		health: health.NewServer(),
		logger: log.WithComponent("grpc"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetState(types.StateUninitialized)
	return s
}

// SetState maps a group state onto the serving status
func (s *GRPCServer) SetState(state types.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == types.StateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Follow updates the serving status from group.state events until the
// subscription is closed
func (s *GRPCServer) Follow(sub events.Subscriber) {
	for ev := range sub {
		if ev.Type != events.EventGroupState {
			continue
		}
		s.SetState(types.State(ev.Metadata["to"]))
	}
}

// Start serves on addr until Stop is called
func (s *GRPCServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentGRPC, false, err.Error())
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *GRPCServer) Serve(lis net.Listener) error {
	metrics.UpdateComponent(metrics.ComponentGRPC, true, "serving")
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	metrics.RemoveComponent(metrics.ComponentGRPC)
}
