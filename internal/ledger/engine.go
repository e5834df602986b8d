// Package ledger is the authoritative state machine over wallet pairs
// and lending records. It is the only writer of ledger state.
package ledger

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/store"
)

const lockStripes = 64

// Config bounds the commit retry loop for transient storage failures.
type Config struct {
	CommitRetries int
	RetryBackoff  time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		CommitRetries: 3,
		RetryBackoff:  100 * time.Millisecond,
	}
}

// Engine validates a fully resolved transaction against current
// balances and applies it atomically. Per-user commits are serialized
// through striped locks; different users proceed in parallel.
type Engine struct {
	store  store.Store
	cfg    Config
	logger *log.Logger
	locks  [lockStripes]sync.Mutex
}

func New(s store.Store, cfg Config, logger *log.Logger) *Engine {
	if cfg.CommitRetries <= 0 {
		cfg.CommitRetries = DefaultConfig().CommitRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	return &Engine{
		store:  s,
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentLedger),
	}
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &e.locks[h.Sum32()%lockStripes]
}

// Commit validates the transaction, applies it as one atomic mutation
// set, and returns the post-commit view. Validation happens wholly
// before any write; a rejection guarantees untouched state.
func (e *Engine) Commit(ctx context.Context, tx core.Transaction, token string) (*store.CommitResult, error) {
	if err := tx.Validate(); err != nil {
		return nil, core.Reject(core.ReasonInvalidTransaction, "", "%v", err)
	}

	mu := e.userLock(tx.UserID)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set, err := e.buildMutationSet(ctx, tx)
	if err != nil {
		return nil, err
	}

	result, err := e.commitWithRetry(ctx, tx.UserID, *set, token)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Transaction committed",
		log.FieldUserID, tx.UserID,
		log.FieldKind, string(tx.Kind),
		log.FieldAmount, tx.Amount.String(),
		log.FieldToken, token,
		"replayed", result.Replayed)
	return result, nil
}

// buildMutationSet runs the per-kind precondition checks against a
// consistent read of current state and describes every change the
// commit must apply.
func (e *Engine) buildMutationSet(ctx context.Context, tx core.Transaction) (*store.MutationSet, error) {
	wallets, err := e.store.Wallets(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}

	set := &store.MutationSet{
		Transaction:  tx,
		WalletDeltas: map[core.WalletName]decimal.Decimal{},
		Surplus:      decimal.Zero,
	}

	switch tx.Kind {
	case core.KindExpense:
		source := tx.WalletSource
		if !source.Valid() {
			source = core.Wallet
		}
		if wallets.Balance(source).LessThan(tx.Amount) {
			return nil, core.Reject(core.ReasonInsufficientFunds, "amount",
				"%s balance %s cannot cover %s", source, wallets.Balance(source), tx.Amount)
		}
		set.WalletDeltas[source] = tx.Amount.Neg()

	case core.KindIncome:
		set.WalletDeltas[tx.Target()] = tx.Amount

	case core.KindTransfer:
		if tx.WalletSource == tx.WalletTarget {
			return nil, core.Reject(core.ReasonSelfTransfer, "wallet_target",
				"cannot transfer from %s to itself", tx.WalletSource)
		}
		if wallets.Balance(tx.WalletSource).LessThan(tx.Amount) {
			return nil, core.Reject(core.ReasonInsufficientFunds, "amount",
				"%s balance %s cannot cover %s", tx.WalletSource, wallets.Balance(tx.WalletSource), tx.Amount)
		}
		set.WalletDeltas[tx.WalletSource] = tx.Amount.Neg()
		set.WalletDeltas[tx.WalletTarget] = tx.Amount

	case core.KindLend:
		if wallets.Wallet.LessThan(tx.Amount) {
			return nil, core.Reject(core.ReasonInsufficientFunds, "amount",
				"wallet balance %s cannot cover loan of %s", wallets.Wallet, tx.Amount)
		}
		set.WalletDeltas[core.Wallet] = tx.Amount.Neg()
		set.Lending = &store.LendingDelta{
			Counterparty:    tx.Counterparty,
			PrincipalDelta:  tx.Amount,
			CreateIfMissing: true,
			Movements: []core.LendingMovement{{
				Kind:   core.MovementLoan,
				Amount: tx.Amount,
				Date:   tx.OccurredAt,
				Note:   tx.RawText,
			}},
		}

	case core.KindReceivePayment:
		record, err := e.store.Lending(ctx, tx.UserID, tx.Counterparty)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, core.Reject(core.ReasonUnknownCounterparty, "counterparty",
				"no lending record for %q", tx.Counterparty)
		}
		e.applyReceivePayment(set, tx, record)
	}

	return set, nil
}

// applyReceivePayment splits an incoming payment: up to the outstanding
// principal repays the loan, any excess lands on the total stack as
// income. Driving the principal to exactly zero flags the debt cleared.
func (e *Engine) applyReceivePayment(set *store.MutationSet, tx core.Transaction, record *core.LendingRecord) {
	applied := decimal.Min(tx.Amount, record.Principal)
	surplus := tx.Amount.Sub(applied)

	target := tx.WalletTarget
	if !target.Valid() {
		target = core.Wallet
	}

	movements := []core.LendingMovement{}
	if applied.IsPositive() {
		set.WalletDeltas[target] = set.WalletDeltas[target].Add(applied)
		movements = append(movements, core.LendingMovement{
			Kind:   core.MovementPayment,
			Amount: applied,
			Date:   tx.OccurredAt,
			Note:   tx.RawText,
		})
	}
	if surplus.IsPositive() {
		set.WalletDeltas[core.TotalStack] = set.WalletDeltas[core.TotalStack].Add(surplus)
		movements = append(movements, core.LendingMovement{
			Kind:   core.MovementSurplus,
			Amount: surplus,
			Date:   tx.OccurredAt,
			Note:   tx.RawText,
		})
	}

	set.Lending = &store.LendingDelta{
		Counterparty:   tx.Counterparty,
		PrincipalDelta: applied.Neg(),
		Movements:      movements,
	}
	set.DebtCleared = record.Principal.Sub(applied).IsZero() && applied.IsPositive()
	set.Surplus = surplus
}

// commitWithRetry retries transient storage failures a bounded number
// of times with the same idempotency token, so a retry can never
// double-apply.
func (e *Engine) commitWithRetry(ctx context.Context, userID string, set store.MutationSet, token string) (*store.CommitResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.CommitRetries; attempt++ {
		result, err := e.store.Commit(ctx, userID, set, token)
		if err == nil {
			return result, nil
		}
		if !store.IsTransient(err) {
			return nil, err
		}
		lastErr = err

		e.logger.WarnContext(ctx, "Transient commit failure, retrying",
			log.FieldUserID, userID,
			log.FieldToken, token,
			log.FieldAttempt, attempt,
			log.FieldError, err)

		if attempt == e.cfg.CommitRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}
