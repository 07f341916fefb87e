package nydusserver

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/tec27/nydus/middleware"
)

// ErrorPayload is what actually goes on the wire in an Error frame's body.
type ErrorPayload struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Body    any    `json:"body,omitempty"`
}

// ErrorConverter turns a handler's returned error into a wire payload. The
// default implementation recognizes *middleware.InvokeError and passes it
// through verbatim; anything else becomes a generic 500 (spec.md §4.6/§7).
type ErrorConverter func(err error, clientID string) ErrorPayload

// DefaultErrorConverter builds the converter described in spec.md §4.6. In
// development mode (the common case: devMode defaults to true unless the
// caller says otherwise, mirroring "absent or non-production") it attaches
// the human message and, absent an explicit Body, a stack trace — useful
// for local debugging, stripped in production to avoid leaking internals.
func DefaultErrorConverter(devMode bool) ErrorConverter {
	return func(err error, clientID string) ErrorPayload {
		var ie *middleware.InvokeError
		if errors.As(err, &ie) {
			return ErrorPayload{Status: ie.Status, Message: ie.Message, Body: ie.Body}
		}

		payload := ErrorPayload{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
		if devMode {
			payload.Body = map[string]any{
				"message": err.Error(),
				"stack":   string(debug.Stack()),
			}
		}
		return payload
	}
}

var errNotFound = &middleware.InvokeError{Status: http.StatusNotFound, Message: "Not Found"}
