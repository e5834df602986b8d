package events

import (
	"context"

	"paylog/internal/core"
	"paylog/internal/store"
)

// Publisher is the outbound event port. A nil-safe no-op implementation
// backs deployments without a broker.
type Publisher interface {
	Publish(ctx context.Context, event *LedgerEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *LedgerEvent) error { return nil }
func (NopPublisher) Close() error                                { return nil }

// FromCommit builds the events a successful commit produces: always a
// transaction-committed event, plus a debt-cleared event when a
// payment drove the principal to zero.
func FromCommit(tx core.Transaction, result *store.CommitResult) []*LedgerEvent {
	committed := NewLedgerEvent(KindTransactionCommitted)
	committed.UserID = tx.UserID
	committed.CommitID = result.CommitID
	committed.TransactionKind = string(tx.Kind)
	committed.Amount = tx.Amount.String()
	committed.Category = tx.Category
	committed.Merchant = tx.Merchant
	committed.Counterparty = tx.Counterparty
	committed.OccurredAt = tx.OccurredAt.Format("2006-01-02")
	committed.BalanceTotal = result.Wallets.TotalStack.String()
	committed.BalanceWallet = result.Wallets.Wallet.String()
	if result.Surplus.IsPositive() {
		committed.Surplus = result.Surplus.String()
	}

	out := []*LedgerEvent{committed}
	if result.DebtCleared {
		cleared := NewLedgerEvent(KindDebtCleared)
		cleared.UserID = tx.UserID
		cleared.CommitID = result.CommitID
		cleared.TransactionKind = string(tx.Kind)
		cleared.Amount = tx.Amount.String()
		cleared.Counterparty = tx.Counterparty
		cleared.OccurredAt = tx.OccurredAt.Format("2006-01-02")
		cleared.BalanceTotal = result.Wallets.TotalStack.String()
		cleared.BalanceWallet = result.Wallets.Wallet.String()
		if result.Surplus.IsPositive() {
			cleared.Surplus = result.Surplus.String()
		}
		out = append(out, cleared)
	}
	return out
}
