package domain

// Broadcaster delivers a notification line to every connected buyer.
// Implementations called by the market engine must not block on the network.
type Broadcaster interface {
	Broadcast(msg string)
}

// PurchaseRecorder accepts successful purchases for the audit ledger.
// Record must not block the caller.
type PurchaseRecorder interface {
	Record(p Purchase)
}
