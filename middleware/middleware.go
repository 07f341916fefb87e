// Package middleware implements the invocation middleware chain for nydus.
//
// Middleware wraps the business handler to add cross-cutting concerns
// (logging, timeouts, rate limiting) without modifying the handler itself.
//
// Composition order mirrors the onion model of the teacher repo this package
// was adapted from:
//
//	Compose(A, B, C)(ctx, ic, terminal)  ->  A(ctx, ic, next1)
//	  next1 calls B(ctx, ic', next2); next2 calls C(ctx, ic'', terminal)
//
// Each handler can do pre-processing, call next with a (possibly replaced)
// InvocationContext, do post-processing on the returned value/error, or
// short-circuit by never calling next.
package middleware

import (
	"context"
	"fmt"
)

// InvocationContext is the immutable bag of values passed through the chain.
// A handler that wants to change it for downstream handlers calls next with
// a copy (via WithBody), never mutates the value it was given.
type InvocationContext struct {
	Server  any
	Client  any
	Path    string
	Params  map[string]string
	Splats  []string
	Body    any
	HasBody bool
}

// WithBody returns a copy of ic with Body/HasBody replaced.
func (ic InvocationContext) WithBody(body any) InvocationContext {
	ic.Body = body
	ic.HasBody = true
	return ic
}

// Next is the continuation a Handler invokes to run the rest of the chain.
type Next func(ctx context.Context, ic InvocationContext) (any, error)

// Handler is a single middleware layer, or the composed result of several.
type Handler func(ctx context.Context, ic InvocationContext, next Next) (any, error)

// terminal is the default continuation at the end of any chain: it returns
// an empty result, matching spec.md's choice that a handler returning
// nothing produces an empty-body Result rather than no Result at all.
func terminal(ctx context.Context, ic InvocationContext) (any, error) {
	return nil, nil
}

// Compose folds handlers into a single Handler. Composing zero handlers is
// rejected here so that nydusserver.Server.RegisterRoute can surface the
// failure at registration time, per spec.md §4.3.
func Compose(handlers ...Handler) (Handler, error) {
	if len(handlers) == 0 {
		return nil, fmt.Errorf("middleware: Compose requires at least one handler")
	}

	return func(ctx context.Context, ic InvocationContext, next Next) (any, error) {
		return chain(ctx, ic, handlers, next)
	}, nil
}

func chain(ctx context.Context, ic InvocationContext, handlers []Handler, final Next) (any, error) {
	if len(handlers) == 0 {
		return final(ctx, ic)
	}
	head, rest := handlers[0], handlers[1:]
	return head(ctx, ic, func(ctx context.Context, ic InvocationContext) (any, error) {
		return chain(ctx, ic, rest, final)
	})
}

// Invoke runs a fully composed Handler to completion, supplying the terminal
// continuation. This is what nydusserver calls once per dispatched Invoke.
func Invoke(ctx context.Context, h Handler, ic InvocationContext) (any, error) {
	return h(ctx, ic, terminal)
}
