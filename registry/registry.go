// Package registry defines the optional multi-instance presence interface
// and data types.
//
// A nydusserver.Server with a registry configured advertises its own address
// under a shared service name at Start and withdraws it at Close, refreshing
// its live connection count on every call to Heartbeat; a wsclient dialer
// (paired with loadbalance) discovers the live instance set before opening a
// connection, or watches it to keep a locally cached set warm. This is
// presence/discovery metadata only — no subscription or connection state is
// shared through it, since each connection's subscriptions live only on the
// single instance that accepted it.
package registry

// ServiceInstance is one running nydus server process's advertised presence.
// ConnectionCount lets a dialer prefer an underloaded instance instead of
// routing blind; ProtocolVersion lets a dialer refuse to pin a reconnecting
// client to an instance running a wire protocol it can no longer speak, since
// a consistent-hash pick (loadbalance.ConsistentHashBalancer) would otherwise
// silently route it to a stale instance left over from a partial rollout.
type ServiceInstance struct {
	Addr            string // Network address, e.g., "127.0.0.1:8080"
	ConnectionCount int    // Live client connections accepted by this instance
	ProtocolVersion int    // frame.ProtocolVersion this instance speaks
}

// Registry is the interface for instance registration and discovery.
// EtcdRegistry is the implementation in this package.
type Registry interface {
	// Register adds a service instance to the registry with a TTL lease.
	// The instance will be automatically removed once the lease stops being
	// renewed (e.g., server crashes).
	Register(serviceName string, instance ServiceInstance, ttl int64) error

	// Heartbeat refreshes a registered instance's advertised ConnectionCount
	// so dialers making a load-aware pick see current occupancy rather than
	// the count at Register time. It does not renew the lease itself — that
	// happens independently, in the background, once Register succeeds.
	Heartbeat(serviceName string, instance ServiceInstance) error

	// Deregister removes a service instance from the registry.
	// Called during graceful shutdown BEFORE closing the listener.
	Deregister(serviceName string, addr string) error

	// Discover returns all currently registered instances for a service.
	// The client calls this to get the instance list for load balancing.
	Discover(serviceName string) ([]ServiceInstance, error)

	// Watch returns a channel that emits updated instance lists whenever
	// the service's instances change (new instances, removals, a
	// Heartbeat's connection count changing).
	// This enables real-time service discovery without polling.
	Watch(serviceName string) <-chan []ServiceInstance
}
