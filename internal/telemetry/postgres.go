package telemetry

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/tracelog"
)

// PostgresTracer logs pgx queries through slog. Query text is logged at debug, failures at error.
func PostgresTracer(l *slog.Logger, level slog.Level) *tracelog.TraceLog {
	return &tracelog.TraceLog{
		Logger:   tracelog.LoggerFunc(pgxLogger(l)),
		LogLevel: pgxLevel(level),
	}
}

func pgxLogger(l *slog.Logger) func(ctx context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
	return func(ctx context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
		attrs := make([]any, 0, 2*len(data))
		for k, v := range data {
			if k == "args" {
				continue
			}
			attrs = append(attrs, k, v)
		}
		l.Log(ctx, slogLevel(lvl), "postgres: "+msg, attrs...)
	}
}

func slogLevel(lvl tracelog.LogLevel) slog.Level {
	switch lvl {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		return slog.LevelDebug
	case tracelog.LogLevelInfo:
		return slog.LevelInfo
	case tracelog.LogLevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func pgxLevel(lvl slog.Level) tracelog.LogLevel {
	switch {
	case lvl <= slog.LevelDebug:
		return tracelog.LogLevelDebug
	case lvl <= slog.LevelInfo:
		return tracelog.LogLevelInfo
	case lvl <= slog.LevelWarn:
		return tracelog.LogLevelWarn
	default:
		return tracelog.LogLevelError
	}
}
