package middleware

import (
	"context"
	"fmt"
	"time"
)

type timeoutResult struct {
	value any
	err   error
}

// Timeout enforces a maximum duration for each invocation. If the handler
// doesn't complete within the timeout, the client's outstanding invocation
// slot is resolved with an error immediately; the core imposes no further
// cancellation on the handler goroutine itself (spec.md §5).
//
// Note: the handler goroutine is NOT cancelled — it keeps running in the
// background. The timeout only controls when the caller gives up waiting.
// For true cancellation the handler must check ctx.Done() internally.
func Timeout(timeout time.Duration) Handler {
	return func(ctx context.Context, ic InvocationContext, next Next) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		done := make(chan timeoutResult, 1) // buffered: avoid leaking the goroutine if we give up first
		go func() {
			v, err := next(ctx, ic)
			done <- timeoutResult{v, err}
		}()

		select {
		case r := <-done:
			return r.value, r.err
		case <-ctx.Done():
			return nil, fmt.Errorf("middleware: invocation timed out after %s", timeout)
		}
	}
}
