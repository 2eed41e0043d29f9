package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the notes API.
const ServiceName = "securenotes.v1.Notes"

// Health serves grpc.health.v1 for orchestrator probes.
type Health struct {
	srv *grpc.Server
	hs  *health.Server
	log *zap.Logger
}

// NewHealth builds the admin server with recover and logging interceptors.
// Both the overall status and ServiceName start as SERVING.
func NewHealth(log *zap.Logger, opts ...grpc.ServerOption) *Health {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	h := &Health{srv: s, hs: hs, log: log}
	h.SetServing(true)
	return h
}

// SetServing flips the reported status.
func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Monitor runs check every interval and mirrors its result into the serving
// status until ctx is done.
func (h *Health) Monitor(ctx context.Context, check func(context.Context) error, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cctx, cancel := context.WithTimeout(ctx, every)
			err := check(cctx)
			cancel()
			if ok := err == nil; ok != healthy {
				healthy = ok
				h.SetServing(ok)
				if err != nil {
					h.log.Warn("dependency check failed", zap.Error(err))
				} else {
					h.log.Info("dependency check recovered")
				}
			}
		}
	}
}

// Serve blocks serving on lis.
func (h *Health) Serve(lis net.Listener) error {
	return h.srv.Serve(lis)
}

// Shutdown reports NOT_SERVING and stops gracefully, forcing after timeout.
func (h *Health) Shutdown(timeout time.Duration) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		h.srv.Stop()
	}
}
