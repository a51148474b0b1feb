package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRequest is a parsed "buy" command. It is never persisted.
type PurchaseRequest struct {
	Item     string
	Quantity int
	BuyerID  int
}

// Purchase is the audit record of one successful purchase.
// It is written to the ledger and never read back into market state.
type Purchase struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	SellerID  int             `json:"seller_id"`
	BuyerID   int             `json:"buyer_id" gorm:"index"`
	Item      string          `json:"item" gorm:"index"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	StockLeft int             `json:"stock_left"`
	CreatedAt time.Time       `json:"created_at"`
}

// ItemSales aggregates ledger rows for one item.
type ItemSales struct {
	Item      string `json:"item"`
	Units     int64  `json:"units"`
	Purchases int64  `json:"purchases"`
}
