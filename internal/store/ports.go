// Package store defines the ports to the durable-storage collaborator.
// The ledger engine talks to storage exclusively through these
// interfaces; concrete backends live in store/memory and storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
)

// Window bounds a history query: at most MaxCount transactions, none
// older than MaxAge. Whichever limit is hit first wins.
type Window struct {
	MaxCount int
	MaxAge   time.Duration
}

// LendingDelta describes the lending-record part of a mutation set.
type LendingDelta struct {
	Counterparty    string
	PrincipalDelta  decimal.Decimal
	Movements       []core.LendingMovement
	CreateIfMissing bool
}

// MutationSet is everything a single committed transaction changes.
// A backend must apply the whole set atomically or not at all.
type MutationSet struct {
	Transaction  core.Transaction
	WalletDeltas map[core.WalletName]decimal.Decimal
	Lending      *LendingDelta
	// DebtCleared and Surplus are computed by the ledger engine for
	// receive-payment transactions and echoed back in the result.
	DebtCleared bool
	Surplus     decimal.Decimal
}

// CommitResult is the post-commit view returned to the caller. Replayed
// is set when the idempotency token had already been committed and the
// stored result was returned without re-applying effects.
type CommitResult struct {
	CommitID    string
	Wallets     core.WalletPair
	Lending     *core.LendingRecord
	DebtCleared bool
	Surplus     decimal.Decimal
	Replayed    bool
}

type (
	TransactionReader interface {
		// RecentTransactions returns committed transactions for the
		// user, most recent first, bounded by the window.
		RecentTransactions(ctx context.Context, userID string, w Window) ([]core.Transaction, error)
	}

	WalletReader interface {
		Wallets(ctx context.Context, userID string) (core.WalletPair, error)
	}

	LendingReader interface {
		// Lending returns the record for one counterparty, or nil when
		// no loan was ever granted to them.
		Lending(ctx context.Context, userID, counterparty string) (*core.LendingRecord, error)
		ListLending(ctx context.Context, userID string) ([]core.LendingRecord, error)
	}

	AliasReader interface {
		Aliases(ctx context.Context, userID string) (core.AliasMap, error)
	}

	Committer interface {
		// Commit applies the mutation set atomically and persists the
		// idempotency token alongside the result. A replayed token with
		// a matching transaction returns the original result; a replayed
		// token with a different transaction is rejected.
		Commit(ctx context.Context, userID string, set MutationSet, token string) (*CommitResult, error)
	}

	// Store is the full storage-collaborator contract.
	Store interface {
		TransactionReader
		WalletReader
		LendingReader
		AliasReader
		Committer
	}
)

// TransientError marks a storage failure worth retrying with the same
// idempotency token.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient storage error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a retryable storage failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
