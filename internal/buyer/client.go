// Package buyer is the interactive buyer client: it forwards typed commands to
// the seller and prints every line the seller sends back.
package buyer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/infra"
	"github.com/AdamOShea/food-market-simulator/internal/protocol"
)

const (
	prompt    = "Enter: "
	usageHint = "Unknown command. Please use 'buy <item> <quantity>', 'item' or 'exit' to quit."
)

// ErrConnectionLost is returned by Run when the seller goes away
var ErrConnectionLost = errors.New("connection to the seller lost")

// Dial connects to the seller, retrying with exponential backoff up to attempts times.
func Dial(ctx context.Context, addr string, attempts int) (net.Conn, error) {
	var d net.Dialer
	var lastErr error
	attempts = max(attempts, 1)
	for i := 0; i < attempts; i++ {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		delay := infra.CalculateBackoff(i)
		slog.Warn("Seller not reachable, retrying", slog.String("addr", addr), slog.Duration("delay", delay), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, domain.NewNetworkError("dial "+addr, lastErr)
}

// AskToJoin asks whether the user wants to enter the market
func AskToJoin(in *bufio.Reader, out io.Writer) bool {
	fmt.Fprintln(out, "Would you like to join the market? Enter Yes or No.")
	fmt.Fprint(out, prompt)
	answer, _ := in.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}

// Client is one buyer's session with the seller
type Client struct {
	id   int
	conn net.Conn

	// leaving is set before Run closes conn, so the receiver can tell an exit
	// from a dropped seller.
	leaving atomic.Bool

	outMu sync.Mutex
	out   io.Writer
}

// New creates a client for buyer id over conn, printing to out
func New(id int, conn net.Conn, out io.Writer) *Client {
	return &Client{id: id, conn: conn, out: out}
}

// Run prints seller notifications in the background and forwards commands
// read from in until the user exits, in ends, or the seller disconnects.
// The connection is closed on return.
func (c *Client) Run(in io.Reader) error {
	defer func() {
		c.leaving.Store(true)
		c.conn.Close()
	}()

	lost := make(chan struct{})
	go c.receive(lost)

	c.println(fmt.Sprintf("Welcome, Buyer %d! You can enter 'buy <item> <quantity>' to make a purchase, "+
		"'item' to see the current item on sale or 'exit' to leave.", c.id))

	sc := bufio.NewScanner(in)
	for {
		c.print(prompt)
		if !sc.Scan() {
			return sc.Err()
		}

		select {
		case <-lost:
			return ErrConnectionLost
		default:
		}

		req, quit, err := c.translate(sc.Text())
		switch {
		case quit:
			c.println("Exiting the marketplace.")
			return nil
		case err != nil:
			c.println(err.Error())
			continue
		case req == "":
			continue
		}

		if _, err := io.WriteString(c.conn, req+"\n"); err != nil {
			return ErrConnectionLost
		}
	}
}

// translate turns a typed command into a request line, validating it locally
// so the seller never sees a malformed buy.
func (c *Client) translate(input string) (request string, quit bool, err error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "buy":
		if len(fields) != 3 {
			return "", false, errors.New(usageHint)
		}
		qty, err := protocol.ParseQuantity(fields[2])
		if err != nil {
			return "", false, errors.New(usageHint)
		}
		return protocol.FormatBuy(fields[1], qty, c.id), false, nil
	case "item":
		return protocol.FormatItemQuery(c.id), false, nil
	case "exit":
		return "", true, nil
	default:
		return "", false, errors.New(usageHint)
	}
}

func (c *Client) receive(lost chan<- struct{}) {
	defer close(lost)

	sc := bufio.NewScanner(c.conn)
	for sc.Scan() {
		// Clear the pending prompt so the notification starts on a clean line.
		c.print("\r" + strings.Repeat(" ", 50) + "\r")
		c.println("Notification: " + sc.Text())
		c.print(prompt)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("Notification reader stopped", slog.Any("error", err))
	}
	if c.leaving.Load() {
		return
	}
	c.println("")
	c.println("Connection to the seller lost.")
}

func (c *Client) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprint(c.out, s)
}

func (c *Client) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, s)
}
