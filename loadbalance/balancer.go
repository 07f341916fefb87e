// Package loadbalance picks which server instance a new connection should be
// made to, in deployments where multiple nydus server processes register
// themselves in the presence registry. A connection, once established, keeps
// its entire subscription state on that single instance for its lifetime —
// this package is only consulted once, before the socket is opened (spec.md's
// Non-goal on multi-process subscription state means there is nothing to
// rebalance after that).
//
// Three strategies are implemented:
//   - RoundRobin:      stateless instances, equal capacity
//   - WeightedRandom:  favour instances with fewer live connections
//   - ConsistentHash:  pin a given subscriber key to the same instance across
//     reconnects, so a client's deferred-initial-data sources stay warm
package loadbalance

import "github.com/tec27/nydus/registry"

// Balancer picks an instance from the set the presence registry currently
// reports. A wsclient dialer calls Pick once before each connection attempt.
type Balancer interface {
	// Pick selects one instance from the available list. Must be
	// goroutine-safe: a client library may dial several connections
	// concurrently.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
