// Package grpcserver runs the gRPC admin endpoint (standard health service)
// and the interceptors used on it.
package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
// Successful calls are logged at debug level so probes do not flood the log.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(ctx, log, info.FullMethod, status.Code(err), time.Since(start))
		return resp, err
	}
}

// LoggingStream is LoggingUnary for streaming calls (health Watch).
func LoggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		logCall(ss.Context(), log, info.FullMethod, status.Code(err), time.Since(start))
		return err
	}
}

func logCall(ctx context.Context, log *zap.Logger, method string, code codes.Code, dur time.Duration) {
	lvl := zapcore.DebugLevel
	if code != codes.OK {
		lvl = zapcore.WarnLevel
	}
	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	// metadata only, never payloads
	log.Log(lvl, "grpc",
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("dur", dur),
		zap.String("peer", remote),
	)
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer recoverInto(log, info.FullMethod, &err)
		return next(ctx, req)
	}
}

// RecoverStream returns a stream server interceptor that recovers from panics.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer recoverInto(log, info.FullMethod, &err)
		return next(srv, ss)
	}
}

func recoverInto(log *zap.Logger, method string, err *error) {
	if r := recover(); r != nil {
		log.Error("panic",
			zap.Any("reason", r),
			zap.ByteString("stack", debug.Stack()),
			zap.String("method", method),
		)
		*err = status.Error(codes.Internal, "internal error")
	}
}
