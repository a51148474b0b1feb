package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
)

// TCPServer accepts buyer connections and runs one session per connection
type TCPServer struct {
	addr         string
	handler      *Handler
	idleTimeout  time.Duration
	writeTimeout time.Duration

	ln net.Listener
	wg sync.WaitGroup
}

// NewTCPServer creates a server for addr. Zero timeouts disable the deadline.
func NewTCPServer(addr string, h *Handler, idleTimeout, writeTimeout time.Duration) *TCPServer {
	return &TCPServer{
		addr:         addr,
		handler:      h,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

// Listen binds the listening socket. Failure here is fatal for the seller.
func (s *TCPServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return domain.NewFatalNetworkError("listen "+s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address (useful with port 0)
func (s *TCPServer) Addr() net.Addr {
	return s.ln.Addr()
}

// Close releases the listening socket without waiting for sessions.
// Serve closes it on its own when its context ends.
func (s *TCPServer) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Serve accepts connections until ctx is cancelled, then waits for every
// session to finish. Listen must have been called.
func (s *TCPServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	slog.Info("Seller is ready and waiting for buyers", slog.String("addr", s.ln.Addr().String()))

	retry := 0
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Warn("Accept failed", slog.Any("error", err))
			retry++
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(min(retry, 20)) * 50 * time.Millisecond):
			}
			continue
		}
		retry = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler.Serve(ctx, newTCPTransport(conn, s.idleTimeout, s.writeTimeout))
		}()
	}

	s.wg.Wait()
	slog.Info("TCP listener stopped")
	return nil
}
