package protocol

import (
	"fmt"
	"strings"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
)

// Direct replies, sent only to the requesting buyer.

const (
	PurchaseFailedReply = "Purchase failed. Item unavailable or insufficient stock."
	NoItemReply         = "No item is currently on sale."
)

func PurchaseOKReply(qty int, item string) string {
	return fmt.Sprintf("Purchase successful. %d units of %s bought.", qty, item)
}

func CurrentItemReply(item string, stock int) string {
	return fmt.Sprintf("Current item on sale is %s. Stock left: %d", item, stock)
}

func InvalidRequestReply(err error) string {
	reason := strings.TrimPrefix(err.Error(), domain.ErrInvalidRequest.Error()+": ")
	return "Invalid request: " + reason
}

// Broadcast notifications, sent to every connected buyer.

const (
	SwitchingNotice  = "Time is up or item sold out. Switching to next item..."
	OutOfStockNotice = "Seller is out of stock. No item on sale."
)

func SellingNotice(item string, left int) string {
	return fmt.Sprintf("Seller is now selling %s, Amount left: %d", item, left)
}

func PurchaseNotice(buyerID, qty int, item string, sellerID, left int) string {
	return fmt.Sprintf("BuyerID: %d purchased %d unit(s) of %s from SellerID: %d. Stock left: %d",
		buyerID, qty, item, sellerID, left)
}

func TimeLeftNotice(seconds int64) string {
	return fmt.Sprintf("Time left on current item: %d seconds", seconds)
}
