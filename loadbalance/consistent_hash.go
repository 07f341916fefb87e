package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/tec27/nydus/registry"
)

// ConsistentHashBalancer pins a reconnecting client to the same nydus
// instance it was on before, so long as that instance is still registered
// and no instance has been added since: removing other instances does not
// move it, while a newly added instance takes over the clients whose hashes
// fall just before its ring points. This matters because a connection's
// subscriptions and any deferred initialData sources it warmed up live only
// on the instance that accepted it — landing a reconnect somewhere else
// means resubscribing and recomputing everything from scratch even though
// the client never meant to migrate.
//
// Unlike RoundRobinBalancer and WeightedRandomBalancer, a hash-ring pick
// needs a stable per-client key, not just the instance list, so it does not
// implement Balancer; wsclient.DialViaRegistryWithAffinity calls PickForClient
// directly with the id the caller intends to keep reconnecting as.
//
// The ring is rebuilt fresh on every call from the instances passed in,
// rather than maintained incrementally via an Add method, so a pick never
// returns an instance that has since deregistered — correctness over the
// small cost of re-hashing replicas*len(instances) values per call.
//
// Virtual nodes: each real instance maps to N points on the ring. Without
// them, a handful of instances can cluster together on the ring and take an
// uneven share of client ids. 100 virtual nodes per instance keeps that
// roughly uniform.
type ConsistentHashBalancer struct {
	replicas int // Virtual nodes per real instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

// PickForClient hashes clientID onto a ring built from instances and returns
// the instance owning the nearest point clockwise. instances with a lower
// ProtocolVersion than minProtocolVersion are excluded, so a client never
// gets pinned back onto an instance mid-rollout to an older build that can no
// longer serve it.
func (b *ConsistentHashBalancer) PickForClient(instances []registry.ServiceInstance, clientID string, minProtocolVersion int) (*registry.ServiceInstance, error) {
	eligible := make([]*registry.ServiceInstance, 0, len(instances))
	for i := range instances {
		if instances[i].ProtocolVersion >= minProtocolVersion {
			eligible = append(eligible, &instances[i])
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no eligible instances available")
	}

	type ringEntry struct {
		hash uint32
		node *registry.ServiceInstance
	}
	ring := make([]ringEntry, 0, len(eligible)*b.replicas)
	for _, inst := range eligible {
		for i := 0; i < b.replicas; i++ {
			key := fmt.Sprintf("%s#%d", inst.Addr, i)
			ring = append(ring, ringEntry{hash: crc32.ChecksumIEEE([]byte(key)), node: inst})
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })

	hash := crc32.ChecksumIEEE([]byte(clientID))
	idx := sort.Search(len(ring), func(i int) bool { return ring[i].hash >= hash })
	if idx == len(ring) {
		idx = 0
	}
	return ring[idx].node, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
