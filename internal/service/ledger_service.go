package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/infra"
)

// PurchaseStore persists ledger rows
type PurchaseStore interface {
	SavePurchase(ctx context.Context, p *domain.Purchase) error
}

const (
	defaultLedgerBuffer = 1024
	saveTimeout         = 5 * time.Second
)

// LedgerService writes successful purchases to the store in the background
type LedgerService struct {
	store   PurchaseStore
	records chan domain.Purchase
	metrics *infra.Metrics
}

// NewLedgerService creates a ledger service. metrics may be nil.
func NewLedgerService(store PurchaseStore, buffer int, metrics *infra.Metrics) *LedgerService {
	if buffer <= 0 {
		buffer = defaultLedgerBuffer
	}
	return &LedgerService{
		store:   store,
		records: make(chan domain.Purchase, buffer),
		metrics: metrics,
	}
}

// Record queues p for persistence. It never blocks: when the buffer is full
// the record is dropped and counted.
func (s *LedgerService) Record(p domain.Purchase) {
	select {
	case s.records <- p:
	default:
		slog.Warn("Ledger buffer full, dropping purchase record",
			slog.String("id", p.ID), slog.String("item", p.Item), slog.Int("buyer_id", p.BuyerID))
		if s.metrics != nil {
			s.metrics.RecordLedgerDrop()
		}
	}
}

// Run persists queued records until ctx is cancelled, then drains what is left.
func (s *LedgerService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx)
			return nil
		case p := <-s.records:
			s.save(ctx, p)
		}
	}
}

func (s *LedgerService) drain(ctx context.Context) {
	for {
		select {
		case p := <-s.records:
			s.save(ctx, p)
		default:
			return
		}
	}
}

// save writes one record. Writes outlive shutdown of the run context so a
// record accepted by Record is not lost to cancellation.
func (s *LedgerService) save(ctx context.Context, p domain.Purchase) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.store.SavePurchase(ctx, &p); err != nil {
		slog.Error("Failed to save purchase", slog.String("id", p.ID), slog.Any("error", err))
	}
}
