package event

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher is an ordered, unbounded queue in front of a Registry.
// Broadcast only appends, so the market engine can call it while holding its
// lock; Run delivers messages in the order they were queued.
type Dispatcher struct {
	registry *Registry

	mu    sync.Mutex
	queue []string
	wake  chan struct{}
}

// NewDispatcher creates a dispatcher delivering into r.
func NewDispatcher(r *Registry) *Dispatcher {
	return &Dispatcher{
		registry: r,
		wake:     make(chan struct{}, 1),
	}
}

// Broadcast queues msg for delivery to every registered buyer. Never blocks, never drops.
func (d *Dispatcher) Broadcast(msg string) {
	d.mu.Lock()
	d.queue = append(d.queue, msg)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued, undelivered messages.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run delivers queued messages until ctx is cancelled. Messages queued before
// cancellation is observed are flushed before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("Broadcast dispatcher started")
	for {
		d.flush()
		select {
		case <-ctx.Done():
			d.flush()
			slog.Info("Broadcast dispatcher stopping...")
			return nil
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, msg := range batch {
			d.registry.Broadcast(msg)
		}
	}
}
