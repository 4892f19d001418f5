package server

import (
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the service identifier reported to gRPC health probes.
const HealthServiceName = "voxlay.whisperbridge.daemon"

// healthStopTimeout bounds how long Shutdown waits for in-flight RPCs.
const healthStopTimeout = 5 * time.Second

// HealthServer exposes the standard gRPC health service so supervisors can
// probe daemon readiness.
type HealthServer struct {
	log    *slog.Logger
	grpc   *grpc.Server
	health *health.Server
}

// NewHealthServer returns a health server that starts in NOT_SERVING.
func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthServer{
		log:    logger.With("component", "server.HealthServer"),
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.SetServing(false)
	return h
}

// SetServing flips the reported status for both the empty service name and
// HealthServiceName.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthServiceName, status)
}

// Serve blocks serving health RPCs on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// Shutdown drains the server. Probes see NOT_SERVING immediately, then the
// server stops gracefully with a hard stop after healthStopTimeout.
func (h *HealthServer) Shutdown() {
	h.SetServing(false)

	stopped := make(chan struct{})
	go func() {
		h.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(healthStopTimeout):
		h.log.Warn("graceful stop timed out, forcing stop")
		h.grpc.Stop()
	}
}
