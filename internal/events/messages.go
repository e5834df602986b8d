// Package events publishes committed-ledger events to the message
// broker and consumes them in the worker. The ledger never blocks on a
// publish failure; events are a read-only feed for downstream
// consumers.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	KindTransactionCommitted = "transaction-committed"
	KindDebtCleared          = "debt-cleared"
)

// LedgerEvent is the wire message emitted after every successful
// commit. It carries enough for consumers to update read models
// without querying the ledger back.
type LedgerEvent struct {
	EventID         string    `json:"event_id"`
	Kind            string    `json:"kind"`
	UserID          string    `json:"user_id"`
	CommitID        string    `json:"commit_id"`
	TransactionKind string    `json:"transaction_kind"`
	Amount          string    `json:"amount"`
	Category        string    `json:"category,omitempty"`
	Merchant        string    `json:"merchant,omitempty"`
	Counterparty    string    `json:"counterparty,omitempty"`
	Surplus         string    `json:"surplus,omitempty"`
	OccurredAt      string    `json:"occurred_at"`
	BalanceTotal    string    `json:"balance_total"`
	BalanceWallet   string    `json:"balance_wallet"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps a fresh event with an ID and timestamp.
func NewLedgerEvent(kind string) *LedgerEvent {
	return &LedgerEvent{
		EventID:   uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
