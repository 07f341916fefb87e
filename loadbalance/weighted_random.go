package loadbalance

import (
	"fmt"
	"math/rand"

	"github.com/tec27/nydus/registry"
)

// WeightedRandomBalancer biases new connections away from instances that
// already carry more subscribers, using each instance's self-reported
// ConnectionCount (refreshed by registry.Registry.Heartbeat) as an inverse
// weight. An idle instance is several times more likely to receive the next
// connection than one already holding hundreds of subscriptions.
//
// Algorithm:
//  1. Give each instance a weight of 1/(1+ConnectionCount) — never zero, so
//     a fully loaded instance can still receive new connections
//  2. Sum the weights → totalWeight
//  3. Generate a random point r in [0, totalWeight)
//  4. Subtract each instance's weight from r until r < 0
//  5. The instance that makes r negative is selected
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}

	weights := make([]float64, len(instances))
	totalWeight := 0.0
	for i, v := range instances {
		weights[i] = 1 / float64(1+v.ConnectionCount)
		totalWeight += weights[i]
	}

	r := rand.Float64() * totalWeight
	for i, v := range instances {
		r -= weights[i]
		if r < 0 {
			return &v, nil
		}
	}

	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
