package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/roulette/logger"
)

// ServiceName is the health service name reported for the game gateway.
const ServiceName = "roulette.Gateway"

// HealthServer exposes the standard gRPC health protocol for probes.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	return &HealthServer{
		grpcServer: grpcServer,
		health:     hs,
		listener:   listener,
	}, nil
}

func (s *HealthServer) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *HealthServer) Start() {
	logger.Log.Infof("Health server listening on %s", s.listener.Addr())
	if err := s.grpcServer.Serve(s.listener); err != nil {
		logger.Log.Warnf("Health server stopped: %v", err)
	}
}

// SetServing flips both the gateway and the overall ("") status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.Stop()
}
