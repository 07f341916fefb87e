// Package subscription implements the bidirectional mapping between publish
// paths and the set of subscribed clients, plus the fan-out of published
// payloads to them.
//
// Registry is not safe for concurrent use: nydusserver.Server serializes all
// mutation on its single logical thread. Registry itself never spawns
// goroutines or otherwise escapes that thread; a caller that wants to resolve
// an InitialDataFunc off-thread (nydusserver.Server.SubscribeDeferred does)
// must re-acquire its own lock before calling back into Registry once the
// value resolves.
package subscription

import (
	"context"

	"github.com/tec27/nydus/internal/iopool"
)

// Subscriber is anything that can receive an encoded publish frame and is
// comparable by identity. nydusserver's connection.Connection satisfies this.
type Subscriber interface {
	ID() string
	SendPublish(path string, data any) error
}

// InitialDataFunc computes the initial value to publish to a freshly
// subscribed client. It returns (value, ok, err); ok=false or a non-nil err
// means nothing is sent. Registry never calls this itself — it is a caller
// concern, since resolving it may block and Registry's methods must not.
type InitialDataFunc func(ctx context.Context) (data any, ok bool, err error)

// Registry is the bidirectional subscription map described in spec.md §4.4.
type Registry struct {
	// byPath maps a publish path to the set of its current subscribers.
	byPath map[string]map[string]Subscriber
	// byClient maps a client id to the set of paths it is subscribed to,
	// maintaining the bidirectional invariant in spec.md §3.
	byClient map[string]map[string]struct{}

	// pool fans Publish's per-subscriber sends out across workers, sharded by
	// client id, so a large subscriber set doesn't serialize on the caller.
	// nil means send synchronously on the calling goroutine.
	pool *iopool.Pool
}

// New returns an empty Registry that sends publishes synchronously.
func New() *Registry {
	return &Registry{
		byPath:   make(map[string]map[string]Subscriber),
		byClient: make(map[string]map[string]struct{}),
	}
}

// NewWithPool returns an empty Registry that fans Publish sends out across
// pool's workers instead of sending them synchronously.
func NewWithPool(pool *iopool.Pool) *Registry {
	r := New()
	r.pool = pool
	return r
}

// Subscribe adds client to path's subscriber set. If client is already
// subscribed to path this is a no-op. Callers that also have a deferred
// InitialDataFunc to resolve must do so off this call, then deliver it
// through SubscribeValue (or a direct SendPublish) after re-checking
// IsSubscribed under their own lock — see
// nydusserver.Server.SubscribeDeferred.
func (r *Registry) Subscribe(client Subscriber, path string) {
	r.subscribe(client, path)
}

// SubscribeValue is a convenience for the common case where initialData is
// already resolved (not deferred).
func (r *Registry) SubscribeValue(client Subscriber, path string, data any, hasData bool) {
	r.subscribe(client, path)
	if !hasData {
		return
	}
	_ = client.SendPublish(path, data)
}

func (r *Registry) subscribe(client Subscriber, path string) {
	subs, ok := r.byPath[path]
	if !ok {
		subs = make(map[string]Subscriber)
		r.byPath[path] = subs
	}
	if _, already := subs[client.ID()]; already {
		return
	}
	subs[client.ID()] = client

	paths, ok := r.byClient[client.ID()]
	if !ok {
		paths = make(map[string]struct{})
		r.byClient[client.ID()] = paths
	}
	paths[path] = struct{}{}
}

// IsSubscribed reports whether clientID is currently subscribed to path.
func (r *Registry) IsSubscribed(clientID, path string) bool {
	subs, ok := r.byPath[path]
	if !ok {
		return false
	}
	_, ok = subs[clientID]
	return ok
}

// UnsubscribeClient removes the (client, path) pairing if present, pruning
// the path's subscriber set once it becomes empty. It reports whether a
// change occurred.
func (r *Registry) UnsubscribeClient(clientID, path string) bool {
	subs, ok := r.byPath[path]
	if !ok {
		return false
	}
	if _, ok := subs[clientID]; !ok {
		return false
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(r.byPath, path)
	}

	if paths, ok := r.byClient[clientID]; ok {
		delete(paths, path)
		if len(paths) == 0 {
			delete(r.byClient, clientID)
		}
	}
	return true
}

// UnsubscribeAll removes path's entire subscriber set, also removing path
// from each formerly-subscribed client's own subscription set. It reports
// whether a change occurred.
func (r *Registry) UnsubscribeAll(path string) bool {
	subs, ok := r.byPath[path]
	if !ok {
		return false
	}
	for clientID := range subs {
		if paths, ok := r.byClient[clientID]; ok {
			delete(paths, path)
			if len(paths) == 0 {
				delete(r.byClient, clientID)
			}
		}
	}
	delete(r.byPath, path)
	return true
}

// UnsubscribeClientAll removes every subscription held by clientID, as
// happens on disconnect (spec.md §3: "all its subscriptions are removed
// from the registry in the same step").
func (r *Registry) UnsubscribeClientAll(clientID string) {
	paths, ok := r.byClient[clientID]
	if !ok {
		return
	}
	for path := range paths {
		if subs, ok := r.byPath[path]; ok {
			delete(subs, clientID)
			if len(subs) == 0 {
				delete(r.byPath, path)
			}
		}
	}
	delete(r.byClient, clientID)
}

// Publish sends data to every current subscriber of path. An empty/absent
// subscriber set is a no-op. With a pool configured, each subscriber's send
// is submitted keyed by its client id rather than run on the caller, so
// Publish does not wait for the sends themselves; it blocks only while a
// worker's queue is full.
func (r *Registry) Publish(path string, data any) {
	subs, ok := r.byPath[path]
	if !ok {
		return
	}
	for _, sub := range subs {
		sub := sub
		if r.pool == nil {
			_ = sub.SendPublish(path, data)
			continue
		}
		r.pool.Submit(sub.ID(), func() { _ = sub.SendPublish(path, data) })
	}
}

// SubscriberCount reports how many clients are currently subscribed to path.
func (r *Registry) SubscriberCount(path string) int {
	return len(r.byPath[path])
}
