package middleware

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimit creates an invocation middleware backed by a token bucket.
// Tokens are added at rate r per second, up to burst. Each invocation
// consumes one token; if the bucket is empty the invocation is rejected as
// an InvokeError without calling next.
//
// The limiter is created once, in the outer closure, and shared by every
// invocation through this route — creating it per-call would hand out a
// fresh full bucket on every request and defeat the limiter entirely.
func RateLimit(r float64, burst int) Handler {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(ctx context.Context, ic InvocationContext, next Next) (any, error) {
		if !limiter.Allow() {
			return nil, &InvokeError{Status: 429, Message: "Too Many Requests"}
		}
		return next(ctx, ic)
	}
}
