package middleware

import (
	"log/slog"
	"time"

	"github.com/broady/soagw"
)

// LoggingInterceptor creates an interceptor that logs operation invocations using slog.
// It logs the start and end of each invocation, including duration and error status.
func LoggingInterceptor(logger *slog.Logger) soagw.UnaryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx *soagw.Call, req any, next soagw.HandlerFunc) (any, error) {
		start := time.Now()

		logger.InfoContext(ctx, "invocation started",
			slog.String("operation", ctx.Operation()),
		)

		res, err := next(ctx, req)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "invocation failed",
				slog.String("operation", ctx.Operation()),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "invocation completed",
				slog.String("operation", ctx.Operation()),
				slog.Duration("duration", duration),
			)
		}

		return res, err
	}
}
