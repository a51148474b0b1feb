package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdamOShea/food-market-simulator/internal/buyer"
	"github.com/AdamOShea/food-market-simulator/internal/domain"
	"github.com/AdamOShea/food-market-simulator/internal/protocol"
)

const (
	dialAttempts     = 5
	maxRandomBuyerID = 9999
)

func main() {
	addr := flag.String("addr", fmt.Sprintf("localhost:%d", protocol.DefaultPort), "seller address")
	id := flag.Int("id", -1, "buyer id (random when negative)")
	flag.Parse()

	// Diagnostics go to stderr so they never interleave with the prompt.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	in := bufio.NewReader(os.Stdin)
	if !buyer.AskToJoin(in, os.Stdout) {
		fmt.Println("Maybe next time. Goodbye!")
		return
	}

	buyerID := *id
	if buyerID < 0 {
		buyerID = rand.IntN(maxRandomBuyerID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := buyer.Dial(ctx, *addr, dialAttempts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not reach the seller at %s: %v\n", *addr, err)
		if domain.IsRetriable(err) {
			fmt.Fprintln(os.Stderr, "Is the seller running? Try again later.")
		}
		os.Exit(1)
	}

	// Stdin cannot be interrupted, so Ctrl+C leaves directly.
	context.AfterFunc(ctx, func() {
		conn.Close()
		fmt.Println("\nExiting the marketplace.")
		os.Exit(0)
	})

	if err := buyer.New(buyerID, conn, os.Stdout).Run(in); err != nil && !errors.Is(err, buyer.ErrConnectionLost) {
		fmt.Fprintf(os.Stderr, "Session ended: %v\n", err)
		os.Exit(1)
	}
}
