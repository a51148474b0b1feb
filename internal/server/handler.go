// Package server connects buyers to the market engine over TCP and WebSocket.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/engine"
	"github.com/AdamOShea/food-market-simulator/internal/event"
	"github.com/AdamOShea/food-market-simulator/internal/infra"
	"github.com/AdamOShea/food-market-simulator/internal/protocol"
)

// Market is what a buyer session needs from the engine
type Market interface {
	Buy(req domain.PurchaseRequest) bool
	Snapshot() engine.Snapshot
}

// Handler runs buyer sessions against one market
type Handler struct {
	market   Market
	registry *event.Registry
	metrics  *infra.Metrics
}

// NewHandler creates a handler. metrics may be nil.
func NewHandler(market Market, registry *event.Registry, metrics *infra.Metrics) *Handler {
	return &Handler{market: market, registry: registry, metrics: metrics}
}

// session is one connected buyer; it is also its own broadcast subscriber.
type session struct {
	id string
	t  Transport
}

func (s *session) ID() string { return s.id }

func (s *session) Send(msg string) error { return s.t.WriteLine(msg) }

// Serve runs the session loop for t until the buyer disconnects or ctx is
// cancelled. The buyer is registered for broadcasts before the first request
// is read and unregistered on the way out. Serve closes t.
func (h *Handler) Serve(ctx context.Context, t Transport) {
	s := &session{id: uuid.NewString(), t: t}
	log := slog.With(slog.String("session", s.id), slog.String("remote", t.RemoteAddr()))

	if h.metrics != nil {
		h.metrics.IncrementConnections()
	}
	h.registry.Register(s)
	stop := context.AfterFunc(ctx, func() { t.Close() })

	defer func() {
		stop()
		h.registry.Unregister(s.id)
		t.Close()
		if h.metrics != nil {
			h.metrics.DecrementConnections()
		}
		log.Info("Buyer disconnected")
	}()
	log.Info("Buyer connected")

	for {
		line, err := t.ReadLine()
		if errors.Is(err, domain.ErrInvalidRequest) {
			log.Debug("Rejected request", slog.Any("error", err))
			h.recordInvalid()
			if err := t.WriteLine(protocol.InvalidRequestReply(err)); err != nil {
				log.Warn("Reply to buyer failed", slog.Any("error", err))
				return
			}
			continue
		}
		if err != nil {
			if !isClosed(err) && ctx.Err() == nil {
				log.Warn("Read from buyer failed", slog.Any("error", err))
			}
			return
		}

		reply := h.handleLine(line)
		if reply == "" {
			continue
		}
		if err := t.WriteLine(reply); err != nil {
			log.Warn("Reply to buyer failed", slog.Any("error", err))
			return
		}
	}
}

// handleLine executes one request line and returns the direct reply ("" for blank lines).
func (h *Handler) handleLine(line string) string {
	if strings.TrimSpace(line) == "" {
		return ""
	}

	req, err := protocol.ParseRequest(line)
	if err != nil {
		slog.Debug("Rejected request", slog.String("line", line), slog.Any("error", err))
		h.recordInvalid()
		return protocol.InvalidRequestReply(err)
	}

	switch req.Command {
	case protocol.CommandBuy:
		if h.market.Buy(req.Purchase()) {
			return protocol.PurchaseOKReply(req.Quantity, req.Item)
		}
		slog.Debug("Purchase refused",
			slog.String("command", req.Command.String()),
			slog.Int("buyer_id", req.BuyerID), slog.String("item", req.Item), slog.Int("qty", req.Quantity))
		return protocol.PurchaseFailedReply

	case protocol.CommandItem:
		snap := h.market.Snapshot()
		if !snap.OnSale {
			return protocol.NoItemReply
		}
		return protocol.CurrentItemReply(snap.Item, snap.Stock)
	}

	slog.Warn("Unhandled command", slog.String("command", req.Command.String()))
	return ""
}

func (h *Handler) recordInvalid() {
	if h.metrics != nil {
		h.metrics.RecordInvalidRequest()
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
