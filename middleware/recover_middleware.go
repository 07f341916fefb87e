package middleware

import (
	"context"
	"fmt"
)

// Recover converts a panicking handler into a generic error instead of
// crashing the connection's dispatch goroutine. The source this package was
// adapted from could only throw/reject; a Go handler can also panic, and
// spec.md §7 requires that a handler failure never terminate the connection.
func Recover() Handler {
	return func(ctx context.Context, ic InvocationContext, next Next) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("middleware: handler panicked: %v", r)
			}
		}()
		return next(ctx, ic)
	}
}
