package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	purchasesOK      atomic.Uint64
	purchasesFailed  atomic.Uint64
	unitsSold        atomic.Uint64
	rotations        atomic.Uint64
	broadcasts       atomic.Uint64
	deliveries       atomic.Uint64
	deliveryFailures atomic.Uint64
	ledgerDropped    atomic.Uint64
	invalidRequests  atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// NewMetrics creates a zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordPurchase records the outcome of one purchase attempt.
func (m *Metrics) RecordPurchase(ok bool, qty int) {
	if !ok {
		m.purchasesFailed.Add(1)
		return
	}
	m.purchasesOK.Add(1)
	m.unitsSold.Add(uint64(qty))
}

// RecordRotation records a change of the item on sale.
func (m *Metrics) RecordRotation() {
	m.rotations.Add(1)
}

// RecordBroadcast records one fan-out and its per-buyer outcome.
func (m *Metrics) RecordBroadcast(delivered, failed int) {
	m.broadcasts.Add(1)
	m.deliveries.Add(uint64(delivered))
	m.deliveryFailures.Add(uint64(failed))
}

// RecordLedgerDrop records a purchase the ledger could not accept.
func (m *Metrics) RecordLedgerDrop() {
	m.ledgerDropped.Add(1)
}

// RecordInvalidRequest records a malformed request line.
func (m *Metrics) RecordInvalidRequest() {
	m.invalidRequests.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	PurchasesOK       uint64
	PurchasesFailed   uint64
	UnitsSold         uint64
	Rotations         uint64
	Broadcasts        uint64
	Deliveries        uint64
	DeliveryFailures  uint64
	LedgerDropped     uint64
	InvalidRequests   uint64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		PurchasesOK:       m.purchasesOK.Load(),
		PurchasesFailed:   m.purchasesFailed.Load(),
		UnitsSold:         m.unitsSold.Load(),
		Rotations:         m.rotations.Load(),
		Broadcasts:        m.broadcasts.Load(),
		Deliveries:        m.deliveries.Load(),
		DeliveryFailures:  m.deliveryFailures.Load(),
		LedgerDropped:     m.ledgerDropped.Load(),
		InvalidRequests:   m.invalidRequests.Load(),
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.purchasesOK.Store(0)
	m.purchasesFailed.Store(0)
	m.unitsSold.Store(0)
	m.rotations.Store(0)
	m.broadcasts.Store(0)
	m.deliveries.Store(0)
	m.deliveryFailures.Store(0)
	m.ledgerDropped.Store(0)
	m.invalidRequests.Store(0)
	m.activeConnections.Store(0)
}
