package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/chat-sync/pkg/logger"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultDeadline = 10 * time.Second
	mdRequestID     = "x-request-id"
)

// UnaryServerInterceptor logs each call, recovers panics and applies a
// deadline when the caller did not set one.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultDeadline)
			defer cancel()
		}
		ctx = logger.With(ctx, "req_id", requestID(ctx), "method", info.FullMethod)

		defer func() {
			if r := recover(); r != nil {
				logger.From(ctx).Error("grpc unary panic",
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, "grpc unary", start, err)
		}()

		return handler(ctx, req)
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		ctx := logger.With(ss.Context(), "req_id", requestID(ss.Context()), "method", info.FullMethod)

		defer func() {
			if r := recover(); r != nil {
				logger.From(ctx).Error("grpc stream panic",
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, "grpc stream", start, err)
		}()

		return handler(srv, ss)
	}
}

// health probes poll often
func logCall(ctx context.Context, msg string, start time.Time, err error) {
	lvl := slog.LevelDebug
	if err != nil {
		lvl = slog.LevelWarn
	}
	logger.From(ctx).Log(ctx, lvl, msg,
		"dur_ms", time.Since(start).Milliseconds(),
		"code", status.Code(err).String(),
		"err", errString(err))
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(mdRequestID); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
