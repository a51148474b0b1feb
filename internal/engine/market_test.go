package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/infra"
	"github.com/AdamOShea/food-market-simulator/internal/protocol"
)

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) Broadcast(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *notices) All() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func (n *notices) Count(msg string) int {
	c := 0
	for _, m := range n.All() {
		if m == msg {
			c++
		}
	}
	return c
}

type ledger struct {
	mu   sync.Mutex
	recs []domain.Purchase
}

func (l *ledger) Record(p domain.Purchase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, p)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func flourSugar() []domain.Item {
	return []domain.Item{
		{Name: "flour", Stock: 50, Price: decimal.RequireFromString("1.50")},
		{Name: "sugar", Stock: 40},
	}
}

func newTestMarket(t *testing.T, items []domain.Item) (*Market, *notices, *fakeClock) {
	t.Helper()
	n := &notices{}
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m, err := newMarket(Config{SellerID: 17}, items, n, nil, nil, clock.Now)
	require.NoError(t, err)
	return m, n, clock
}

func TestNewMarket_SelectsFirstItem(t *testing.T) {
	m, n, clock := newTestMarket(t, flourSugar())

	snap := m.Snapshot()
	assert.True(t, snap.OnSale)
	assert.Equal(t, "flour", snap.Item)
	assert.Equal(t, 50, snap.Stock)
	assert.Equal(t, clock.Now(), snap.StartedAt)
	assert.Equal(t, []string{"Seller is now selling flour, Amount left: 50"}, n.All())
}

func TestNewMarket_SkipsEmptyLeadingItems(t *testing.T) {
	m, _, _ := newTestMarket(t, []domain.Item{{Name: "oil", Stock: 0}, {Name: "potato", Stock: 60}})
	assert.Equal(t, "potato", m.Snapshot().Item)
}

func TestNewMarket_RejectsBadInventory(t *testing.T) {
	_, err := NewMarket(Config{}, []domain.Item{{Name: "oil", Stock: -3}}, &notices{}, nil, nil)
	assert.Error(t, err)
}

func TestBuy_UsesParsedRequest(t *testing.T) {
	m, n, _ := newTestMarket(t, flourSugar())

	assert.True(t, m.Buy(domain.PurchaseRequest{Item: "flour", Quantity: 5, BuyerID: 8}))
	assert.False(t, m.Buy(domain.PurchaseRequest{Item: "sugar", Quantity: 5, BuyerID: 8}))
	assert.Equal(t, 45, m.Snapshot().Stock)
	assert.Equal(t, 1, n.Count("BuyerID: 8 purchased 5 unit(s) of flour from SellerID: 17. Stock left: 45"))
}

func TestProcessPurchase(t *testing.T) {
	led := &ledger{}
	metrics := infra.NewMetrics()
	n := &notices{}
	m, err := NewMarket(Config{SellerID: 17}, flourSugar(), n, led, metrics)
	require.NoError(t, err)

	t.Run("success decrements and broadcasts once", func(t *testing.T) {
		ok := m.ProcessPurchase("flour", 30, 3)
		require.True(t, ok)
		assert.Equal(t, 20, m.Snapshot().Stock)
		assert.Equal(t, 1, n.Count("BuyerID: 3 purchased 30 unit(s) of flour from SellerID: 17. Stock left: 20"))

		require.Len(t, led.recs, 1)
		rec := led.recs[0]
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, 17, rec.SellerID)
		assert.Equal(t, 20, rec.StockLeft)
		assert.True(t, rec.Total.Equal(decimal.RequireFromString("45")), "total was %s", rec.Total)
	})

	t.Run("wrong item fails without side effects", func(t *testing.T) {
		before := len(n.All())
		assert.False(t, m.ProcessPurchase("sugar", 5, 4))
		assert.Equal(t, 20, m.Snapshot().Stock)
		assert.Len(t, n.All(), before)
		for _, it := range m.Inventory() {
			if it.Name == "sugar" {
				assert.Equal(t, 40, it.Stock)
			}
		}
	})

	t.Run("insufficient stock fails", func(t *testing.T) {
		assert.False(t, m.ProcessPurchase("flour", 21, 5))
		assert.Equal(t, 20, m.Snapshot().Stock)
	})

	t.Run("non-positive quantity fails", func(t *testing.T) {
		assert.False(t, m.ProcessPurchase("flour", 0, 5))
		assert.False(t, m.ProcessPurchase("flour", -10, 5))
		assert.Equal(t, 20, m.Snapshot().Stock)
	})

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.PurchasesOK)
	assert.Equal(t, uint64(4), snap.PurchasesFailed)
	assert.Equal(t, uint64(30), snap.UnitsSold)
	assert.Len(t, led.recs, 1, "failed purchases are not recorded")
}

func TestProcessPurchase_TwoBuyersRaceForLastUnits(t *testing.T) {
	for round := 0; round < 50; round++ {
		m, n, _ := newTestMarket(t, flourSugar())

		var wg sync.WaitGroup
		results := make([]bool, 2)
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i] = m.ProcessPurchase("flour", 30, i+1)
			}(i)
		}
		close(start)
		wg.Wait()

		assert.NotEqual(t, results[0], results[1], "exactly one purchase must win")
		assert.Equal(t, 20, m.Snapshot().Stock)

		purchases := 0
		for _, msg := range n.All() {
			if len(msg) > 8 && msg[:8] == "BuyerID:" {
				purchases++
			}
		}
		assert.Equal(t, 1, purchases)
	}
}

func TestProcessPurchase_NoOversellUnderLoad(t *testing.T) {
	m, n, _ := newTestMarket(t, []domain.Item{{Name: "potato", Stock: 60}})

	var sold atomic.Int64
	var okCount atomic.Int64
	var wg sync.WaitGroup
	for buyer := 0; buyer < 64; buyer++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				qty := 1 + (buyer+i)%4
				if m.ProcessPurchase("potato", qty, buyer) {
					sold.Add(int64(qty))
					okCount.Add(1)
				}
			}
		}(buyer)
	}
	wg.Wait()

	assert.Equal(t, int64(60), sold.Load()+int64(m.Snapshot().Stock))
	assert.GreaterOrEqual(t, m.Snapshot().Stock, 0)

	purchases := 0
	for _, msg := range n.All() {
		if len(msg) > 8 && msg[:8] == "BuyerID:" {
			purchases++
		}
	}
	assert.Equal(t, int(okCount.Load()), purchases, "one broadcast per successful purchase")
}

func TestCheckRotation_TimeLimit(t *testing.T) {
	m, n, clock := newTestMarket(t, flourSugar())

	clock.Advance(DefaultTimeLimit)
	assert.False(t, m.checkRotation(), "exactly at the limit the item stays")

	clock.Advance(time.Second)
	require.True(t, m.checkRotation())

	snap := m.Snapshot()
	assert.Equal(t, "sugar", snap.Item)
	assert.Equal(t, clock.Now(), snap.StartedAt)

	msgs := n.All()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, protocol.SwitchingNotice, msgs[len(msgs)-2])
	assert.Equal(t, "Seller is now selling sugar, Amount left: 40", msgs[len(msgs)-1])
}

func TestCheckRotation_SoldOut(t *testing.T) {
	m, _, _ := newTestMarket(t, flourSugar())

	require.True(t, m.ProcessPurchase("flour", 50, 1))
	assert.Equal(t, "flour", m.Snapshot().Item, "rotation waits for the next check")
	assert.False(t, m.ProcessPurchase("flour", 1, 2))

	require.True(t, m.checkRotation())
	assert.Equal(t, "sugar", m.Snapshot().Item)
}

func TestCheckRotation_CyclesBackAndSkipsEmpty(t *testing.T) {
	items := []domain.Item{
		{Name: "flour", Stock: 5},
		{Name: "sugar", Stock: 0},
		{Name: "oil", Stock: 3},
	}
	m, _, clock := newTestMarket(t, items)
	require.Equal(t, "flour", m.Snapshot().Item)

	clock.Advance(2 * DefaultTimeLimit)
	m.checkRotation()
	assert.Equal(t, "oil", m.Snapshot().Item)

	clock.Advance(2 * DefaultTimeLimit)
	m.checkRotation()
	assert.Equal(t, "flour", m.Snapshot().Item, "cursor wraps around")
}

func TestCheckRotation_SingleItemReselectsItself(t *testing.T) {
	m, _, clock := newTestMarket(t, []domain.Item{{Name: "oil", Stock: 30}})

	clock.Advance(DefaultTimeLimit + time.Second)
	require.True(t, m.checkRotation())

	snap := m.Snapshot()
	assert.Equal(t, "oil", snap.Item)
	assert.Equal(t, clock.Now(), snap.StartedAt)
}

func TestNoItemState(t *testing.T) {
	m, n, clock := newTestMarket(t, []domain.Item{{Name: "oil", Stock: 2}, {Name: "sugar", Stock: 0}})

	require.True(t, m.ProcessPurchase("oil", 2, 1))
	require.True(t, m.checkRotation())

	snap := m.Snapshot()
	assert.False(t, snap.OnSale)
	assert.Empty(t, snap.Item)
	assert.Equal(t, 1, n.Count(protocol.OutOfStockNotice))

	assert.False(t, m.ProcessPurchase("oil", 1, 2))
	assert.False(t, m.ProcessPurchase("", 1, 2))

	// Further checks are no-ops and do not spam switch notices.
	before := len(n.All())
	clock.Advance(10 * DefaultTimeLimit)
	for i := 0; i < 5; i++ {
		assert.False(t, m.checkRotation())
	}
	m.announceTimeLeft()
	assert.Len(t, n.All(), before)
}

func TestNewMarket_AllEmptyStartsWithoutItem(t *testing.T) {
	m, n, _ := newTestMarket(t, []domain.Item{{Name: "oil", Stock: 0}})
	assert.False(t, m.Snapshot().OnSale)
	assert.Equal(t, []string{protocol.OutOfStockNotice}, n.All())
}

func TestAnnounceTimeLeft(t *testing.T) {
	m, n, clock := newTestMarket(t, flourSugar())

	clock.Advance(12*time.Second + 400*time.Millisecond)
	m.announceTimeLeft()
	assert.Equal(t, "Time left on current item: 47 seconds", n.All()[len(n.All())-1])

	clock.Advance(2 * DefaultTimeLimit)
	m.announceTimeLeft()
	assert.Equal(t, "Time left on current item: 0 seconds", n.All()[len(n.All())-1])
	assert.Equal(t, "flour", m.Snapshot().Item, "countdown never rotates")
}

func TestRun_RotatesOnTimer(t *testing.T) {
	n := &notices{}
	m, err := NewMarket(Config{
		SellerID:          1,
		TimeLimit:         30 * time.Millisecond,
		CheckInterval:     5 * time.Millisecond,
		CountdownInterval: 10 * time.Millisecond,
	}, flourSugar(), n, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return n.Count("Seller is now selling sugar, Amount left: 40") >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, n.Count(protocol.SwitchingNotice), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
