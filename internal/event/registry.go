// Package event fans seller notifications out to connected buyers.
package event

import (
	"log/slog"
	"sync"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/infra"
)

// Subscriber is the outbound side of one buyer connection.
type Subscriber interface {
	ID() string
	Send(msg string) error
}

// Registry is the set of buyers that receive broadcasts.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]Subscriber
	metrics *infra.Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *infra.Metrics) *Registry {
	return &Registry{
		subs:    make(map[string]Subscriber),
		metrics: metrics,
	}
}

// Register adds s. A subscriber registered again under the same id replaces the old entry.
func (r *Registry) Register(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.ID()] = s
}

// Unregister removes the subscriber with id and reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Broadcast sends msg to every registered subscriber and returns how many
// deliveries succeeded. Sends happen outside the registry lock. A subscriber
// whose Send fails is logged and removed; the others still receive msg.
func (r *Registry) Broadcast(msg string) int {
	r.mu.RLock()
	targets := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	var failed []Subscriber
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			derr := &domain.DeliveryError{SubscriberID: s.ID(), Err: err}
			slog.Warn("Dropping buyer after failed broadcast", slog.Any("error", derr))
			failed = append(failed, s)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for _, s := range failed {
			// Only drop the entry we actually failed on; the id may have re-registered.
			if cur, ok := r.subs[s.ID()]; ok && cur == s {
				delete(r.subs, s.ID())
			}
		}
		r.mu.Unlock()
	}

	if r.metrics != nil {
		r.metrics.RecordBroadcast(delivered, len(failed))
	}
	return delivered
}
