// Package protocol defines the line-oriented text protocol spoken between
// buyers and the seller: request parsing on the seller side, request
// formatting on the buyer side, and every reply and notification line.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
)

// DefaultPort is the TCP port the seller listens on.
const DefaultPort = 5000

// Command identifies a buyer request.
type Command int

const (
	CommandBuy Command = iota + 1
	CommandItem
)

// String returns the wire verb of the command
func (c Command) String() string {
	switch c {
	case CommandBuy:
		return "buy"
	case CommandItem:
		return "item"
	default:
		return "unknown"
	}
}

// Request is a parsed buyer line.
// Item and Quantity are only set for CommandBuy.
type Request struct {
	Command  Command
	Item     string
	Quantity int
	BuyerID  int
}

// Purchase converts a buy request into the engine's purchase request.
func (r Request) Purchase() domain.PurchaseRequest {
	return domain.PurchaseRequest{Item: r.Item, Quantity: r.Quantity, BuyerID: r.BuyerID}
}

// ParseRequest parses one request line. Verbs are case-insensitive and fields
// are separated by whitespace. Errors wrap domain.ErrInvalidRequest or
// domain.ErrUnknownCommand.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("%w: empty line", domain.ErrInvalidRequest)
	}

	switch strings.ToLower(fields[0]) {
	case "buy":
		if len(fields) != 4 {
			return Request{}, fmt.Errorf("%w: usage: buy <item> <quantity> <buyerId>", domain.ErrInvalidRequest)
		}
		qty, err := ParseQuantity(fields[2])
		if err != nil {
			return Request{}, err
		}
		id, err := parseBuyerID(fields[3])
		if err != nil {
			return Request{}, err
		}
		return Request{Command: CommandBuy, Item: fields[1], Quantity: qty, BuyerID: id}, nil

	case "item":
		if len(fields) != 2 {
			return Request{}, fmt.Errorf("%w: usage: item <buyerId>", domain.ErrInvalidRequest)
		}
		id, err := parseBuyerID(fields[1])
		if err != nil {
			return Request{}, err
		}
		return Request{Command: CommandItem, BuyerID: id}, nil

	default:
		return Request{}, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, fields[0])
	}
}

// ParseQuantity parses a purchase quantity, which must be a positive integer.
func ParseQuantity(s string) (int, error) {
	qty, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q is not a number", domain.ErrInvalidRequest, s)
	}
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidRequest, qty)
	}
	return qty, nil
}

func parseBuyerID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: buyer id %q is not a number", domain.ErrInvalidRequest, s)
	}
	return id, nil
}

// FormatBuy renders a buy request line.
func FormatBuy(item string, qty, buyerID int) string {
	return fmt.Sprintf("buy %s %d %d", item, qty, buyerID)
}

// FormatItemQuery renders an item request line.
func FormatItemQuery(buyerID int) string {
	return fmt.Sprintf("item %d", buyerID)
}
