package telemetry

import (
	"context"
	"log/slog"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// GRPCServerInterceptor logs every unary call with its code. Client-side mistakes are logged at
// info so only server faults reach the error level.
func GRPCServerInterceptor(l *slog.Logger) grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
		logging.WithLevels(grpcCodeToLevel),
	}

	return grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(grpcServerLogger(l), opts...),
	)
}

func grpcCodeToLevel(c codes.Code) logging.Level {
	switch c {
	case codes.OK, codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition,
		codes.Unauthenticated, codes.PermissionDenied, codes.AlreadyExists:
		return logging.LevelInfo
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return logging.LevelWarn
	default:
		return logging.LevelError
	}
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}
