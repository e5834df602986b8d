// Package memory is the in-process store backend. It backs tests and
// the default zero-config deployment; state is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/store"
)

type committedTx struct {
	tx          core.Transaction
	commitID    string
	committedAt time.Time
}

type storedCommit struct {
	fingerprint string
	result      store.CommitResult
}

type userState struct {
	wallets core.WalletPair
	lending map[string]*core.LendingRecord
	history []committedTx
	aliases core.AliasMap
	commits map[string]storedCommit
}

// Store keeps all ledger state in memory behind one mutex. Commits are
// applied against a scratch copy and swapped in, so a failure can never
// leave partial state behind.
type Store struct {
	mu    sync.Mutex
	users map[string]*userState

	// failCommits makes the next N commits fail with a transient
	// error, for exercising the engine's retry path.
	failCommits int
}

func New() *Store {
	return &Store{users: make(map[string]*userState)}
}

func (s *Store) user(id string) *userState {
	u, ok := s.users[id]
	if !ok {
		u = &userState{
			lending: make(map[string]*core.LendingRecord),
			aliases: core.AliasMap{},
			commits: make(map[string]storedCommit),
		}
		s.users[id] = u
	}
	return u
}

// SeedWallets sets a user's starting balances.
func (s *Store) SeedWallets(userID string, w core.WalletPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).wallets = w
}

// SetAliases replaces a user's alias map. This is the explicit-config
// write path; the parsing pipeline never calls it.
func (s *Store) SetAliases(userID string, m core.AliasMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := core.AliasMap{}
	for k, v := range m {
		cp[k] = v
	}
	s.user(userID).aliases = cp
}

// FailCommits makes the next n commits return a transient error.
func (s *Store) FailCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

func (s *Store) Wallets(_ context.Context, userID string) (core.WalletPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(userID).wallets, nil
}

func (s *Store) Lending(_ context.Context, userID, counterparty string) (*core.LendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.user(userID).lending[core.NormalizeCounterparty(counterparty)]
	if !ok {
		return nil, nil
	}
	cp := copyRecord(rec)
	return &cp, nil
}

func (s *Store) ListLending(_ context.Context, userID string) ([]core.LendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	out := make([]core.LendingRecord, 0, len(u.lending))
	for _, rec := range u.lending {
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (s *Store) Aliases(_ context.Context, userID string) (core.AliasMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	cp := core.AliasMap{}
	for k, v := range u.aliases {
		cp[k] = v
	}
	return cp, nil
}

func (s *Store) RecentTransactions(_ context.Context, userID string, w store.Window) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)

	cutoff := time.Time{}
	if w.MaxAge > 0 {
		cutoff = time.Now().Add(-w.MaxAge)
	}

	var out []core.Transaction
	for i := len(u.history) - 1; i >= 0; i-- {
		if w.MaxCount > 0 && len(out) >= w.MaxCount {
			break
		}
		entry := u.history[i]
		if !cutoff.IsZero() && entry.tx.OccurredAt.Before(cutoff) {
			continue
		}
		out = append(out, entry.tx)
	}
	return out, nil
}

func (s *Store) Commit(_ context.Context, userID string, set store.MutationSet, token string) (*store.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommits > 0 {
		s.failCommits--
		return nil, store.Transient(fmt.Errorf("injected commit failure"))
	}

	u := s.user(userID)
	fp := fingerprint(set.Transaction)

	if prev, ok := u.commits[token]; ok {
		if prev.fingerprint != fp {
			return nil, core.Reject(core.ReasonDuplicateMismatch, "",
				"idempotency token %q was committed with a different transaction", token)
		}
		res := prev.result
		res.Replayed = true
		return &res, nil
	}

	// Apply deltas to a scratch copy; nothing is visible until the
	// whole set has been validated.
	wallets := u.wallets
	for name, delta := range set.WalletDeltas {
		switch name {
		case core.TotalStack:
			wallets.TotalStack = wallets.TotalStack.Add(delta)
		case core.Wallet:
			wallets.Wallet = wallets.Wallet.Add(delta)
		default:
			return nil, fmt.Errorf("unknown wallet %q in mutation set", name)
		}
	}
	if err := wallets.Validate(); err != nil {
		return nil, fmt.Errorf("mutation set violates balance invariant: %w", err)
	}

	var lendingAfter *core.LendingRecord
	if set.Lending != nil {
		key := core.NormalizeCounterparty(set.Lending.Counterparty)
		var rec core.LendingRecord
		if existing, ok := u.lending[key]; ok {
			rec = copyRecord(existing)
		} else {
			if !set.Lending.CreateIfMissing {
				return nil, fmt.Errorf("no lending record for %q", set.Lending.Counterparty)
			}
			rec = core.LendingRecord{Counterparty: key, Principal: decimal.Zero}
		}
		rec.Principal = rec.Principal.Add(set.Lending.PrincipalDelta)
		if rec.Principal.IsNegative() {
			return nil, fmt.Errorf("mutation set drives principal negative for %q", key)
		}
		rec.History = append(rec.History, set.Lending.Movements...)
		u.lending[key] = &rec
		cp := copyRecord(&rec)
		lendingAfter = &cp
	}

	u.wallets = wallets
	commitID := uuid.NewString()
	u.history = append(u.history, committedTx{
		tx:          set.Transaction,
		commitID:    commitID,
		committedAt: time.Now(),
	})

	result := store.CommitResult{
		CommitID:    commitID,
		Wallets:     wallets,
		Lending:     lendingAfter,
		DebtCleared: set.DebtCleared,
		Surplus:     set.Surplus,
	}
	u.commits[token] = storedCommit{fingerprint: fp, result: result}

	res := result
	return &res, nil
}

func fingerprint(tx core.Transaction) string {
	return fmt.Sprintf("%s|%s|%s|%s", tx.Kind, tx.Amount.String(), tx.Counterparty, tx.RawText)
}

func copyRecord(rec *core.LendingRecord) core.LendingRecord {
	cp := *rec
	cp.History = append([]core.LendingMovement(nil), rec.History...)
	return cp
}
