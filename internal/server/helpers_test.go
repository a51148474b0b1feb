package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/engine"
)

// lineClient is the buyer side of a connection in tests.
type lineClient struct {
	conn  net.Conn
	lines chan string
}

func newLineClient(conn net.Conn) *lineClient {
	c := &lineClient{conn: conn, lines: make(chan string, 64)}
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			c.lines <- sc.Text()
		}
	}()
	return c
}

func (c *lineClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *lineClient) next(t *testing.T) string {
	t.Helper()
	select {
	case line, ok := <-c.lines:
		require.True(t, ok, "connection closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a line")
		return ""
	}
}

// collect reads n lines.
func (c *lineClient) collect(t *testing.T, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.next(t))
	}
	return out
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

type stubMarket struct {
	mu    sync.Mutex
	snap  engine.Snapshot
	ok    bool
	calls int
	last  domain.PurchaseRequest
}

func (m *stubMarket) Buy(req domain.PurchaseRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = req
	return m.ok
}

func (m *stubMarket) Last() domain.PurchaseRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *stubMarket) Snapshot() engine.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *stubMarket) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
