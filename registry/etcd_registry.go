// Package registry provides the etcd-based implementation of the Registry
// interface.
//
// etcd is a distributed key-value store that provides strong consistency
// (Raft protocol). We use it as a "distributed phonebook" for nydus server
// instances:
//
//	Key:   /nydus/{ServiceName}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if a server crashes, its lease expires
// and the entry is automatically removed — preventing "ghost" instances from
// being handed out to new connections.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // "{serviceName}/{addr}" -> lease backing that Put
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, leases: make(map[string]clientv3.LeaseID)}, nil
}

// Register adds a service instance to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// The lease id is recorded under mu so a later Heartbeat can re-Put the same
// key on the same lease (refreshing ConnectionCount without granting a new
// TTL), rather than the caller re-registering from scratch on every
// heartbeat tick.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	if err := r.put(ctx, serviceName, instance, lease.ID); err != nil {
		return err
	}

	r.mu.Lock()
	r.leases[instanceKey(serviceName, instance.Addr)] = lease.ID
	r.mu.Unlock()

	// Start background lease renewal — KeepAlive sends heartbeats to etcd
	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Heartbeat re-Puts instance's current metadata (notably ConnectionCount) on
// the lease Register already established, so a dialer using Discover or
// Watch sees up-to-date occupancy without instance re-registering and
// resetting its TTL lease each time.
func (r *EtcdRegistry) Heartbeat(serviceName string, instance ServiceInstance) error {
	r.mu.Lock()
	leaseID, ok := r.leases[instanceKey(serviceName, instance.Addr)]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: heartbeat for unregistered instance %s/%s", serviceName, instance.Addr)
	}
	return r.put(context.TODO(), serviceName, instance, leaseID)
}

func (r *EtcdRegistry) put(ctx context.Context, serviceName string, instance ServiceInstance, leaseID clientv3.LeaseID) error {
	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, "/nydus/"+instanceKey(serviceName, instance.Addr), string(val), clientv3.WithLease(leaseID))
	return err
}

func instanceKey(serviceName, addr string) string {
	return serviceName + "/" + addr
}

// Deregister removes a service instance from etcd.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	ctx := context.TODO()
	_, err := r.client.Delete(ctx, "/nydus/"+instanceKey(serviceName, addr))
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.leases, instanceKey(serviceName, addr))
	r.mu.Unlock()
	return nil
}

// Watch monitors a service prefix in etcd and emits updated instance lists
// whenever changes occur (new registrations, deregistrations, lease expirations).
//
// Uses etcd's Watch API (server-push), which is more efficient than polling.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ctx := context.TODO()
	ch := make(chan []ServiceInstance, 1)
	prefix := "/nydus/" + serviceName + "/"

	go func() {
		// Watch all keys under the service prefix
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full instance list
			// (simpler than parsing individual watch events)
			instances, _ := r.Discover(serviceName)
			ch <- instances
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a service.
// Queries etcd with a key prefix to find all instances under /nydus/{serviceName}/.
func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	ctx := context.TODO()
	prefix := "/nydus/" + serviceName + "/"

	// Get all keys with the prefix
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	// Deserialize each value into a ServiceInstance
	instances := make([]ServiceInstance, 0)
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, instance)
	}

	return instances, nil
}
