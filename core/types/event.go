package types

// Event represents a typed event emitted during a ledger transaction. TxID
// links every event back to the transaction that produced it.
type Event struct {
	Type       string            `json:"type"`
	TxID       string            `json:"txId,omitempty"`
	Attributes map[string]string `json:"attributes"`
}
