package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/engine"
	"github.com/AdamOShea/food-market-simulator/internal/event"
	"github.com/AdamOShea/food-market-simulator/internal/infra"
	"github.com/AdamOShea/food-market-simulator/internal/infra/storage"
	"github.com/AdamOShea/food-market-simulator/internal/server"
	"github.com/AdamOShea/food-market-simulator/internal/service"
)

// maxRandomSellerID bounds the seller id picked when none is configured
const maxRandomSellerID = 999

// Bootstrap orchestrates the seller startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Metrics *infra.Metrics

	Registry   *event.Registry
	Dispatcher *event.Dispatcher
	Market     *engine.Market
	Ledger     *service.LedgerService

	TCP *server.TCPServer
	WS  *server.WSServer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and builds every component. Listeners are
// bound here so a port conflict fails startup instead of a background task.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, found, err := infra.LoadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping food market seller...",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version))
	if !found {
		slog.Warn("Config file not found, using defaults", slog.String("path", configPath))
	}

	if cfg.Seller.ID == 0 {
		cfg.Seller.ID = rand.IntN(maxRandomSellerID)
	}

	// 3. Initialize Storage (DB)
	b.Metrics = infra.NewMetrics()
	var recorder domain.PurchaseRecorder
	if cfg.Storage.Path != "" {
		store, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.Storage = store
		b.Ledger = service.NewLedgerService(store, 0, b.Metrics)
		recorder = b.Ledger
		slog.Info("✅ Purchase ledger initialized", slog.String("path", cfg.Storage.Path))
		b.logSales(context.Background(), "Ledger history")
	}

	// 4. Market engine and broadcast path
	b.Registry = event.NewRegistry(b.Metrics)
	b.Dispatcher = event.NewDispatcher(b.Registry)

	market, err := engine.NewMarket(engine.Config{
		SellerID:          cfg.Seller.ID,
		TimeLimit:         cfg.Market.TimeLimit,
		CheckInterval:     cfg.Market.CheckInterval,
		CountdownInterval: cfg.Market.CountdownInterval,
	}, cfg.Market.Items, b.Dispatcher, recorder, b.Metrics)
	if err != nil {
		b.Close()
		return fmt.Errorf("create market: %w", err)
	}
	b.Market = market

	// 5. Listeners
	handler := server.NewHandler(market, b.Registry, b.Metrics)

	b.TCP = server.NewTCPServer(cfg.Server.Addr, handler, cfg.Server.IdleTimeout, cfg.Server.WriteTimeout)
	if err := b.TCP.Listen(); err != nil {
		b.Close()
		return err
	}

	if cfg.Server.WSAddr != "" {
		b.WS = server.NewWSServer(cfg.Server.WSAddr, handler, cfg.Server.WriteTimeout)
		if err := b.WS.Listen(); err != nil {
			b.Close()
			return err
		}
	}

	slog.Info("✅ Seller initialized",
		slog.Int("seller_id", cfg.Seller.ID),
		slog.Int("items", len(cfg.Market.Items)),
		slog.String("addr", b.TCP.Addr().String()))
	return nil
}

// Run starts every background task and blocks until ctx is cancelled or one
// of them fails. Storage is closed before returning.
func (b *Bootstrap) Run(ctx context.Context) error {
	defer b.Close()

	// Sessions can still buy until the listeners return, so the dispatcher and
	// the ledger stop only after them.
	front := []task{b.Market.Run, b.TCP.Serve}
	if b.WS != nil {
		front = append(front, b.WS.Serve)
	}
	back := []task{b.Dispatcher.Run}
	if b.Ledger != nil {
		back = append(back, b.Ledger.Run)
	}

	err := runPhases(ctx, front, back)

	snap := b.Metrics.Snapshot()
	slog.Info("📊 Session summary",
		slog.Uint64("purchases_ok", snap.PurchasesOK),
		slog.Uint64("purchases_failed", snap.PurchasesFailed),
		slog.Uint64("units_sold", snap.UnitsSold),
		slog.Uint64("rotations", snap.Rotations),
		slog.Uint64("broadcasts", snap.Broadcasts),
		slog.Uint64("delivery_failures", snap.DeliveryFailures),
		slog.Uint64("ledger_dropped", snap.LedgerDropped))
	b.logSales(context.WithoutCancel(ctx), "Ledger totals")

	return err
}

type task func(ctx context.Context) error

// runPhases runs front and back tasks together. Front tasks stop with ctx (or
// the first failure); back tasks are stopped only once every front task has
// returned.
func runPhases(ctx context.Context, front, back []task) error {
	backCtx, stopBack := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBack()

	var bg errgroup.Group
	for _, fn := range back {
		bg.Go(func() error { return fn(backCtx) })
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range front {
		g.Go(func() error { return fn(gctx) })
	}
	err := g.Wait()

	stopBack()
	if backErr := bg.Wait(); err == nil {
		err = backErr
	}
	return err
}

// Close releases listeners and storage. It is safe to call more than once.
func (b *Bootstrap) Close() {
	// Serve has usually closed the listeners already; a second close is harmless.
	if b.TCP != nil {
		_ = b.TCP.Close()
	}
	if b.WS != nil {
		_ = b.WS.Close()
	}

	if b.Storage == nil {
		return
	}
	if err := b.Storage.Close(); err != nil {
		slog.Warn("Failed to close storage", slog.Any("error", err))
	}
	b.Storage = nil
}

func (b *Bootstrap) logSales(ctx context.Context, msg string) {
	if b.Storage == nil {
		return
	}
	sales, err := b.Storage.SalesByItem(ctx)
	if err != nil {
		slog.Warn("Failed to read ledger totals", slog.Any("error", err))
		return
	}
	for _, s := range sales {
		slog.Info(msg,
			slog.String("item", s.Item),
			slog.Int64("units", s.Units),
			slog.Int64("purchases", s.Purchases))
	}
}
