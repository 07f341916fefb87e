package middleware

import "fmt"

// InvokeError is the typed carrier for a handler rejection that wants to
// control its own wire status, matching spec.md §7's "HandlerRejection with
// explicit status" error kind. Handlers that want a generic 500 (with
// development-mode diagnostics) should just return a plain error instead.
type InvokeError struct {
	Status  int
	Message string
	Body    any
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("invoke error %d: %s", e.Status, e.Message)
}
