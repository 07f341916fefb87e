package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging records the invoked path, duration, and any error for each call.
// It captures the start time before calling next, and logs the elapsed time
// after next returns.
func Logging(logger *zap.Logger) Handler {
	return func(ctx context.Context, ic InvocationContext, next Next) (any, error) {
		start := time.Now()

		result, err := next(ctx, ic)

		duration := time.Since(start)
		fields := []zap.Field{zap.String("path", ic.Path), zap.Duration("duration", duration)}
		if err != nil {
			logger.Info("invoke failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("invoke completed", fields...)
		}
		return result, err
	}
}
