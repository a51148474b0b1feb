package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/infra"
	"github.com/AdamOShea/food-market-simulator/internal/protocol"
)

const (
	DefaultTimeLimit         = 60 * time.Second
	DefaultCheckInterval     = 1 * time.Second
	DefaultCountdownInterval = 12 * time.Second
)

// Config holds the market engine's tunables. Zero durations fall back to the defaults.
type Config struct {
	SellerID          int
	TimeLimit         time.Duration // How long one item stays on sale
	CheckInterval     time.Duration // Rotation check cadence
	CountdownInterval time.Duration // "Time left" broadcast cadence
}

func (c Config) withDefaults() Config {
	if c.TimeLimit <= 0 {
		c.TimeLimit = DefaultTimeLimit
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.CountdownInterval <= 0 {
		c.CountdownInterval = DefaultCountdownInterval
	}
	return c
}

// Snapshot is a consistent view of what is on sale.
type Snapshot struct {
	Item      string
	Stock     int
	StartedAt time.Time
	OnSale    bool // false once every item has sold out
}

// Market is the seller's engine. It owns the inventory and the item on sale.
//
// One mutex covers the purchase check, the stock decrement and queueing the
// purchase broadcast, so concurrent buyers can never oversell. The notifier is
// called with the lock held and must only enqueue.
type Market struct {
	cfg Config

	mu        sync.Mutex
	inv       *domain.Inventory
	cursor    int // Index of the item on sale, or of the last one tried
	current   string
	onSale    bool
	startedAt time.Time

	notifier domain.Broadcaster
	recorder domain.PurchaseRecorder // optional
	metrics  *infra.Metrics          // optional
	now      func() time.Time
}

// NewMarket creates the engine and puts the first item with stock on sale.
// recorder and metrics may be nil.
func NewMarket(cfg Config, items []domain.Item, notifier domain.Broadcaster, recorder domain.PurchaseRecorder, metrics *infra.Metrics) (*Market, error) {
	return newMarket(cfg, items, notifier, recorder, metrics, time.Now)
}

func newMarket(cfg Config, items []domain.Item, notifier domain.Broadcaster, recorder domain.PurchaseRecorder, metrics *infra.Metrics, now func() time.Time) (*Market, error) {
	inv, err := domain.NewInventory(items)
	if err != nil {
		return nil, err
	}

	m := &Market{
		cfg:      cfg.withDefaults(),
		inv:      inv,
		cursor:   -1,
		notifier: notifier,
		recorder: recorder,
		metrics:  metrics,
		now:      now,
	}

	m.mu.Lock()
	m.selectNextItemLocked()
	m.mu.Unlock()
	return m, nil
}

// SellerID returns the seller identity used in purchase notifications.
func (m *Market) SellerID() int {
	return m.cfg.SellerID
}

// ProcessPurchase buys qty units of item for buyerID. It succeeds only if item
// is the one on sale and enough stock remains; otherwise nothing changes.
// Every success decrements stock once and queues exactly one broadcast.
func (m *Market) ProcessPurchase(item string, qty, buyerID int) bool {
	m.mu.Lock()
	if !m.onSale || item != m.current || !m.inv.Take(item, qty) {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.RecordPurchase(false, qty)
		}
		return false
	}

	left, _ := m.inv.Stock(item)
	m.notifier.Broadcast(protocol.PurchaseNotice(buyerID, qty, item, m.cfg.SellerID, left))

	price := m.inv.Price(item)
	rec := domain.Purchase{
		ID:        uuid.NewString(),
		SellerID:  m.cfg.SellerID,
		BuyerID:   buyerID,
		Item:      item,
		Quantity:  qty,
		UnitPrice: price,
		Total:     price.Mul(decimal.NewFromInt(int64(qty))),
		StockLeft: left,
		CreatedAt: m.now(),
	}
	m.mu.Unlock()

	slog.Info("Purchase completed",
		slog.Int("buyer_id", buyerID),
		slog.String("item", item),
		slog.Int("qty", qty),
		slog.Int("stock_left", left))

	if m.recorder != nil {
		m.recorder.Record(rec)
	}
	if m.metrics != nil {
		m.metrics.RecordPurchase(true, qty)
	}
	return true
}

// Buy is ProcessPurchase for a parsed request.
func (m *Market) Buy(req domain.PurchaseRequest) bool {
	return m.ProcessPurchase(req.Item, req.Quantity, req.BuyerID)
}

// Snapshot returns the item on sale and its remaining stock.
func (m *Market) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.onSale {
		return Snapshot{}
	}
	stock, _ := m.inv.Stock(m.current)
	return Snapshot{Item: m.current, Stock: stock, StartedAt: m.startedAt, OnSale: true}
}

// Inventory returns a copy of all items and their remaining stock.
func (m *Market) Inventory() []domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inv.Items()
}

// selectNextItemLocked walks the cursor at most one full cycle and puts the
// first item with stock on sale. If none has stock the market enters the
// no-item state. Caller must hold m.mu.
func (m *Market) selectNextItemLocked() bool {
	n := m.inv.Len()
	for i := 1; i <= n; i++ {
		idx := (m.cursor + i) % n
		name := m.inv.NameAt(idx)
		stock, _ := m.inv.Stock(name)
		if stock <= 0 {
			continue
		}

		m.cursor = idx
		m.current = name
		m.onSale = true
		m.startedAt = m.now()
		m.notifier.Broadcast(protocol.SellingNotice(name, stock))
		if m.metrics != nil {
			m.metrics.RecordRotation()
		}
		slog.Info("Seller is now selling", slog.String("item", name), slog.Int("stock", stock))
		return true
	}

	m.current = ""
	m.onSale = false
	m.notifier.Broadcast(protocol.OutOfStockNotice)
	slog.Warn("Every item is sold out, nothing left on sale")
	return false
}

// checkRotation switches items when the time limit has passed or the current
// item is sold out. It reports whether a switch happened.
func (m *Market) checkRotation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.onSale {
		return false
	}

	stock, _ := m.inv.Stock(m.current)
	if m.now().Sub(m.startedAt) <= m.cfg.TimeLimit && stock > 0 {
		return false
	}

	m.notifier.Broadcast(protocol.SwitchingNotice)
	m.selectNextItemLocked()
	return true
}

// announceTimeLeft broadcasts the remaining selling time of the current item.
// It never changes market state.
func (m *Market) announceTimeLeft() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.onSale {
		return
	}
	left := m.cfg.TimeLimit - m.now().Sub(m.startedAt)
	if left < 0 {
		left = 0
	}
	m.notifier.Broadcast(protocol.TimeLeftNotice(int64(left / time.Second)))
}

// Run drives the rotation check and the countdown until ctx is cancelled.
func (m *Market) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.tick(ctx, m.cfg.CheckInterval, func() { m.checkRotation() }) })
	g.Go(func() error { return m.tick(ctx, m.cfg.CountdownInterval, m.announceTimeLeft) })

	slog.Info("Market timers started",
		slog.Duration("time_limit", m.cfg.TimeLimit),
		slog.Duration("check_interval", m.cfg.CheckInterval),
		slog.Duration("countdown_interval", m.cfg.CountdownInterval))
	return g.Wait()
}

func (m *Market) tick(ctx context.Context, every time.Duration, fn func()) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
