package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
)

// WSPath is the HTTP path buyers upgrade on
const WSPath = "/ws"

// WSServer exposes the same line protocol over WebSocket, one line per text message
type WSServer struct {
	addr         string
	handler      *Handler
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	ln  net.Listener
	srv *http.Server
	wg  sync.WaitGroup
}

// NewWSServer creates a WebSocket server for addr
func NewWSServer(addr string, h *Handler, writeTimeout time.Duration) *WSServer {
	return &WSServer{
		addr:         addr,
		handler:      h,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// No authentication: any origin may join the market.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Listen binds the listening socket
func (s *WSServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return domain.NewFatalNetworkError("listen "+s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address
func (s *WSServer) Addr() net.Addr {
	return s.ln.Addr()
}

// Close releases the listening socket. Serve closes it on its own when its
// context ends.
func (s *WSServer) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Serve handles upgrades until ctx is cancelled, then waits for every session.
func (s *WSServer) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, s.handleUpgrade)

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts derive from ctx so hijacked sessions see shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.ln)
	}()
	slog.Info("WebSocket listener started", slog.String("addr", s.ln.Addr().String()), slog.String("path", WSPath))

	var serveErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("WebSocket listener shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = domain.NewFatalNetworkError("serve "+s.addr, err)
		}
	}

	s.wg.Wait()
	slog.Info("WebSocket listener stopped")
	return serveErr
}

func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		slog.Debug("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	s.handler.Serve(r.Context(), newWSTransport(conn, s.writeTimeout))
}
