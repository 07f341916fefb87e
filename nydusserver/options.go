package nydusserver

import (
	"github.com/tec27/nydus/connection"
	"github.com/tec27/nydus/internal/iopool"
	"github.com/tec27/nydus/registry"
	"github.com/tec27/nydus/subscription"
	"go.uber.org/zap"
)

// Option configures a Server at construction time, mirroring the
// functional-options style the teacher repo uses for its own constructors
// (explicit, validated fields rather than a config file format).
type Option func(*Server)

// WithLogger injects a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithErrorConverter overrides the default error converter (spec.md §6
// "invokeErrorConverter").
func WithErrorConverter(c ErrorConverter) Option {
	return func(s *Server) { s.errorConverter = c }
}

// WithDevMode controls whether the default error converter attaches
// diagnostic detail to generic 500s. Defaults to true ("absent or
// non-production" per spec.md §7).
func WithDevMode(dev bool) Option {
	return func(s *Server) { s.devMode = dev }
}

// WithIDGenerator overrides the default client id generator.
func WithIDGenerator(gen connection.IDGenerator) Option {
	return func(s *Server) { s.idGen = gen }
}

// WithPublishWorkers replaces the default synchronous publish fan-out with
// one backed by a sharded worker pool of the given size, useful once a
// server carries subscriber counts large enough that a single Publish call
// sending to each of them in turn becomes a bottleneck on the server's
// single logical thread.
func WithPublishWorkers(workers, queueDepth int) Option {
	return func(s *Server) {
		s.subs = subscription.NewWithPool(iopool.New(workers, queueDepth))
	}
}

// WithRegistry enables optional multi-instance presence: the server
// registers advertiseAddr under instanceName in reg at Start and
// deregisters it at Close. This never shares subscription state (Non-goal);
// it is discovery metadata only (see SPEC_FULL.md Domain Stack).
func WithRegistry(reg registry.Registry, instanceName, advertiseAddr string) Option {
	return func(s *Server) {
		s.presenceRegistry = reg
		s.presenceName = instanceName
		s.advertiseAddr = advertiseAddr
	}
}
