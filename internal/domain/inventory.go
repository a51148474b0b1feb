package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Item is one line of the seller's starting inventory.
type Item struct {
	Name  string          `yaml:"name" json:"name"`
	Stock int             `yaml:"stock" json:"stock"`
	Price decimal.Decimal `yaml:"price" json:"price"` // Unit price, ledger only
}

// Inventory maps item names to remaining stock and keeps the configured order,
// which is the order the seller rotates through.
//
// Inventory is not safe for concurrent use. The market engine owns it and
// guards every access with its own lock.
type Inventory struct {
	order  []string
	stock  map[string]int
	prices map[string]decimal.Decimal
}

// NewInventory builds an inventory from items. Names must be unique and
// non-empty; stock must not be negative.
func NewInventory(items []Item) (*Inventory, error) {
	inv := &Inventory{
		order:  make([]string, 0, len(items)),
		stock:  make(map[string]int, len(items)),
		prices: make(map[string]decimal.Decimal, len(items)),
	}
	for _, it := range items {
		if it.Name == "" {
			return nil, fmt.Errorf("item name is empty")
		}
		if _, dup := inv.stock[it.Name]; dup {
			return nil, fmt.Errorf("duplicate item %q", it.Name)
		}
		if it.Stock < 0 {
			return nil, fmt.Errorf("item %q has negative stock %d", it.Name, it.Stock)
		}
		inv.order = append(inv.order, it.Name)
		inv.stock[it.Name] = it.Stock
		inv.prices[it.Name] = it.Price
	}
	return inv, nil
}

// Len returns the number of distinct items.
func (inv *Inventory) Len() int {
	return len(inv.order)
}

// NameAt returns the i-th item name in rotation order.
func (inv *Inventory) NameAt(i int) string {
	return inv.order[i]
}

// Stock returns the remaining quantity of name.
func (inv *Inventory) Stock(name string) (int, bool) {
	n, ok := inv.stock[name]
	return n, ok
}

// Price returns the unit price of name (zero if unknown).
func (inv *Inventory) Price(name string) decimal.Decimal {
	return inv.prices[name]
}

// Take removes qty units of name if at least that many remain.
// It returns false, leaving stock untouched, for unknown items,
// non-positive quantities or insufficient stock.
func (inv *Inventory) Take(name string, qty int) bool {
	if qty <= 0 {
		return false
	}
	n, ok := inv.stock[name]
	if !ok || n < qty {
		return false
	}
	inv.stock[name] = n - qty
	return true
}

// Items returns a copy of the current inventory in rotation order.
func (inv *Inventory) Items() []Item {
	out := make([]Item, 0, len(inv.order))
	for _, name := range inv.order {
		out = append(out, Item{Name: name, Stock: inv.stock[name], Price: inv.prices[name]})
	}
	return out
}
