// Package sheets defines the ports to the spreadsheet mirror. The
// mirror is a human-readable copy of the ledger, fed by the worker; it
// is never read back into ledger state.
package sheets

import "context"

// TransactionRow is one mirrored ledger entry, formatted for humans.
type TransactionRow struct {
	Date          string
	Kind          string
	Amount        string
	Category      string
	Merchant      string
	Counterparty  string
	BalanceTotal  string
	BalanceWallet string
	Note          string
}

// LendingRow mirrors a loan or repayment movement.
type LendingRow struct {
	Date         string
	Counterparty string
	Amount       string
	Status       string
	Remaining    string
	Note         string
}

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, row TransactionRow) error
	}

	LendingWriter interface {
		AppendLending(ctx context.Context, row LendingRow) error
	}

	// Mirror is the full spreadsheet contract.
	Mirror interface {
		TransactionWriter
		LendingWriter
	}
)
