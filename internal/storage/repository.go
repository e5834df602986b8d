// Package storage is the SQLite store backend. All mutation happens
// inside a single transaction per commit, so a crash mid-commit can
// never leave partial ledger state.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/store"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Wallets(ctx context.Context, userID string) (core.WalletPair, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT total_stack, wallet FROM wallets WHERE user_id = ?`, userID)

	var totalStack, wallet string
	switch err := row.Scan(&totalStack, &wallet); {
	case errors.Is(err, sql.ErrNoRows):
		return core.WalletPair{TotalStack: decimal.Zero, Wallet: decimal.Zero}, nil
	case err != nil:
		return core.WalletPair{}, wrapSQLErr("read wallets", err)
	}

	return parseWalletPair(totalStack, wallet)
}

func (r *SQLiteRepository) Lending(ctx context.Context, userID, counterparty string) (*core.LendingRecord, error) {
	key := core.NormalizeCounterparty(counterparty)

	row := r.db.QueryRowContext(ctx,
		`SELECT principal FROM lending_records WHERE user_id = ? AND counterparty = ?`,
		userID, key)

	var principal string
	switch err := row.Scan(&principal); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, wrapSQLErr("read lending record", err)
	}

	rec := core.LendingRecord{Counterparty: key}
	var err error
	if rec.Principal, err = decimal.NewFromString(principal); err != nil {
		return nil, fmt.Errorf("corrupt principal for %q: %w", key, err)
	}

	if rec.History, err = r.movements(ctx, userID, key); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLiteRepository) ListLending(ctx context.Context, userID string) ([]core.LendingRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT counterparty, principal FROM lending_records WHERE user_id = ? ORDER BY counterparty`,
		userID)
	if err != nil {
		return nil, wrapSQLErr("list lending records", err)
	}
	defer rows.Close()

	var out []core.LendingRecord
	for rows.Next() {
		var rec core.LendingRecord
		var principal string
		if err := rows.Scan(&rec.Counterparty, &principal); err != nil {
			return nil, wrapSQLErr("scan lending record", err)
		}
		if rec.Principal, err = decimal.NewFromString(principal); err != nil {
			return nil, fmt.Errorf("corrupt principal for %q: %w", rec.Counterparty, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLErr("list lending records", err)
	}

	for i := range out {
		if out[i].History, err = r.movements(ctx, userID, out[i].Counterparty); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepository) movements(ctx context.Context, userID, counterparty string) ([]core.LendingMovement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, amount, moved_on, note
		 FROM lending_movements
		 WHERE user_id = ? AND counterparty = ?
		 ORDER BY id`,
		userID, counterparty)
	if err != nil {
		return nil, wrapSQLErr("read lending movements", err)
	}
	defer rows.Close()

	var out []core.LendingMovement
	for rows.Next() {
		var m core.LendingMovement
		var kind, amount, movedOn string
		if err := rows.Scan(&kind, &amount, &movedOn, &m.Note); err != nil {
			return nil, wrapSQLErr("scan lending movement", err)
		}
		m.Kind = core.MovementKind(kind)
		if m.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt movement amount: %w", err)
		}
		if m.Date, err = parseDate(movedOn); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Aliases(ctx context.Context, userID string) (core.AliasMap, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, category, merchant FROM aliases WHERE user_id = ?`, userID)
	if err != nil {
		return nil, wrapSQLErr("read aliases", err)
	}
	defer rows.Close()

	out := core.AliasMap{}
	for rows.Next() {
		var token string
		var target core.AliasTarget
		if err := rows.Scan(&token, &target.Category, &target.Merchant); err != nil {
			return nil, wrapSQLErr("scan alias", err)
		}
		out[strings.ToLower(token)] = target
	}
	return out, rows.Err()
}

// SetAliases replaces a user's alias map. This is the explicit-config
// write path; the parsing pipeline never calls it.
func (r *SQLiteRepository) SetAliases(ctx context.Context, userID string, m core.AliasMap) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLErr("begin alias update", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE user_id = ?`, userID); err != nil {
		return wrapSQLErr("clear aliases", err)
	}
	for token, target := range m {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO aliases (user_id, token, category, merchant) VALUES (?, ?, ?, ?)`,
			userID, strings.ToLower(token), target.Category, target.Merchant)
		if err != nil {
			return wrapSQLErr("insert alias", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) RecentTransactions(ctx context.Context, userID string, w store.Window) ([]core.Transaction, error) {
	query := `SELECT kind, amount, category, merchant, counterparty,
	                 wallet_source, wallet_target, occurred_at, raw_text, sources
	          FROM transactions
	          WHERE user_id = ?`
	args := []any{userID}

	if w.MaxAge > 0 {
		query += ` AND occurred_at >= ?`
		args = append(args, time.Now().Add(-w.MaxAge).Format(dateLayout))
	}
	query += ` ORDER BY id DESC`
	if w.MaxCount > 0 {
		query += ` LIMIT ?`
		args = append(args, w.MaxCount)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLErr("read recent transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Commit applies the whole mutation set in one database transaction:
// either every balance, lending row and history entry updates, or the
// rollback leaves nothing behind.
func (r *SQLiteRepository) Commit(ctx context.Context, userID string, set store.MutationSet, token string) (*store.CommitResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapSQLErr("begin commit", err)
	}
	defer tx.Rollback()

	if result, done, err := replayToken(ctx, tx, userID, set, token); done {
		return result, err
	}

	wallets, err := walletsForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
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

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallets (user_id, total_stack, wallet, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id) DO UPDATE SET
		   total_stack = excluded.total_stack,
		   wallet = excluded.wallet,
		   updated_at = CURRENT_TIMESTAMP`,
		userID, wallets.TotalStack.String(), wallets.Wallet.String())
	if err != nil {
		return nil, wrapSQLErr("update wallets", err)
	}

	var lendingAfter *core.LendingRecord
	if set.Lending != nil {
		if lendingAfter, err = applyLendingDelta(ctx, tx, userID, set.Lending); err != nil {
			return nil, err
		}
	}

	commitID := uuid.NewString()
	if err := insertTransaction(ctx, tx, userID, commitID, set.Transaction); err != nil {
		return nil, err
	}

	result := store.CommitResult{
		CommitID:    commitID,
		Wallets:     wallets,
		Lending:     lendingAfter,
		DebtCleared: set.DebtCleared,
		Surplus:     set.Surplus,
	}
	if err := storeToken(ctx, tx, userID, token, fingerprint(set.Transaction), result); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapSQLErr("commit", err)
	}

	slog.InfoContext(ctx, "Ledger mutation committed to SQLite",
		"user_id", userID,
		"commit_id", commitID,
		"kind", string(set.Transaction.Kind))
	return &result, nil
}

func replayToken(ctx context.Context, tx *sql.Tx, userID string, set store.MutationSet, token string) (*store.CommitResult, bool, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT fingerprint, result FROM commits WHERE user_id = ? AND token = ?`,
		userID, token)

	var fp, resultJSON string
	switch err := row.Scan(&fp, &resultJSON); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, true, wrapSQLErr("read commit token", err)
	}

	if fp != fingerprint(set.Transaction) {
		return nil, true, core.Reject(core.ReasonDuplicateMismatch, "",
			"idempotency token %q was committed with a different transaction", token)
	}

	var stored storedResult
	if err := json.Unmarshal([]byte(resultJSON), &stored); err != nil {
		return nil, true, fmt.Errorf("corrupt stored commit result: %w", err)
	}
	result, err := stored.toCommitResult()
	if err != nil {
		return nil, true, err
	}
	result.Replayed = true
	return result, true, nil
}

func walletsForUpdate(ctx context.Context, tx *sql.Tx, userID string) (core.WalletPair, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT total_stack, wallet FROM wallets WHERE user_id = ?`, userID)

	var totalStack, wallet string
	switch err := row.Scan(&totalStack, &wallet); {
	case errors.Is(err, sql.ErrNoRows):
		return core.WalletPair{TotalStack: decimal.Zero, Wallet: decimal.Zero}, nil
	case err != nil:
		return core.WalletPair{}, wrapSQLErr("read wallets for update", err)
	}
	return parseWalletPair(totalStack, wallet)
}

func applyLendingDelta(ctx context.Context, tx *sql.Tx, userID string, delta *store.LendingDelta) (*core.LendingRecord, error) {
	key := core.NormalizeCounterparty(delta.Counterparty)

	row := tx.QueryRowContext(ctx,
		`SELECT principal FROM lending_records WHERE user_id = ? AND counterparty = ?`,
		userID, key)

	var principalStr string
	principal := decimal.Zero
	switch err := row.Scan(&principalStr); {
	case errors.Is(err, sql.ErrNoRows):
		if !delta.CreateIfMissing {
			return nil, fmt.Errorf("no lending record for %q", delta.Counterparty)
		}
	case err != nil:
		return nil, wrapSQLErr("read lending record for update", err)
	default:
		var perr error
		if principal, perr = decimal.NewFromString(principalStr); perr != nil {
			return nil, fmt.Errorf("corrupt principal for %q: %w", key, perr)
		}
	}

	principal = principal.Add(delta.PrincipalDelta)
	if principal.IsNegative() {
		return nil, fmt.Errorf("mutation set drives principal negative for %q", key)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO lending_records (user_id, counterparty, principal, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id, counterparty) DO UPDATE SET
		   principal = excluded.principal,
		   updated_at = CURRENT_TIMESTAMP`,
		userID, key, principal.String())
	if err != nil {
		return nil, wrapSQLErr("update lending record", err)
	}

	for _, m := range delta.Movements {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lending_movements (user_id, counterparty, kind, amount, moved_on, note)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			userID, key, string(m.Kind), m.Amount.String(), m.Date.Format(dateLayout), m.Note)
		if err != nil {
			return nil, wrapSQLErr("insert lending movement", err)
		}
	}

	rec := core.LendingRecord{Counterparty: key, Principal: principal}
	return &rec, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, userID, commitID string, t core.Transaction) error {
	sources, err := json.Marshal(t.Sources)
	if err != nil {
		return fmt.Errorf("marshal field sources: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions
		   (user_id, commit_id, kind, amount, category, merchant, counterparty,
		    wallet_source, wallet_target, occurred_at, raw_text, sources)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, commitID, string(t.Kind), t.Amount.String(),
		t.Category, t.Merchant, t.Counterparty,
		string(t.WalletSource), string(t.WalletTarget),
		t.OccurredAt.Format(dateLayout), t.RawText, string(sources))
	if err != nil {
		return wrapSQLErr("insert transaction", err)
	}
	return nil
}

// storedResult is the JSON shape of a commit result persisted for
// idempotent replay.
type storedResult struct {
	CommitID     string `json:"commit_id"`
	TotalStack   string `json:"total_stack"`
	Wallet       string `json:"wallet"`
	Counterparty string `json:"counterparty,omitempty"`
	Principal    string `json:"principal,omitempty"`
	DebtCleared  bool   `json:"debt_cleared"`
	Surplus      string `json:"surplus"`
}

func storeToken(ctx context.Context, tx *sql.Tx, userID, token, fp string, result store.CommitResult) error {
	stored := storedResult{
		CommitID:    result.CommitID,
		TotalStack:  result.Wallets.TotalStack.String(),
		Wallet:      result.Wallets.Wallet.String(),
		DebtCleared: result.DebtCleared,
		Surplus:     result.Surplus.String(),
	}
	if result.Lending != nil {
		stored.Counterparty = result.Lending.Counterparty
		stored.Principal = result.Lending.Principal.String()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal commit result: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO commits (user_id, token, fingerprint, result) VALUES (?, ?, ?, ?)`,
		userID, token, fp, string(data))
	if err != nil {
		return wrapSQLErr("store commit token", err)
	}
	return nil
}

func (s storedResult) toCommitResult() (*store.CommitResult, error) {
	var result store.CommitResult
	var err error

	result.CommitID = s.CommitID
	result.DebtCleared = s.DebtCleared
	if result.Wallets.TotalStack, err = decimal.NewFromString(s.TotalStack); err != nil {
		return nil, fmt.Errorf("corrupt stored total stack: %w", err)
	}
	if result.Wallets.Wallet, err = decimal.NewFromString(s.Wallet); err != nil {
		return nil, fmt.Errorf("corrupt stored wallet: %w", err)
	}
	if result.Surplus, err = decimal.NewFromString(s.Surplus); err != nil {
		return nil, fmt.Errorf("corrupt stored surplus: %w", err)
	}
	if s.Counterparty != "" {
		rec := core.LendingRecord{Counterparty: s.Counterparty}
		if rec.Principal, err = decimal.NewFromString(s.Principal); err != nil {
			return nil, fmt.Errorf("corrupt stored principal: %w", err)
		}
		result.Lending = &rec
	}
	return &result, nil
}

func fingerprint(tx core.Transaction) string {
	return fmt.Sprintf("%s|%s|%s|%s", tx.Kind, tx.Amount.String(), tx.Counterparty, tx.RawText)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner, userID string) (core.Transaction, error) {
	var tx core.Transaction
	var kind, amount, walletSource, walletTarget, occurredAt, sources string

	err := row.Scan(&kind, &amount, &tx.Category, &tx.Merchant, &tx.Counterparty,
		&walletSource, &walletTarget, &occurredAt, &tx.RawText, &sources)
	if err != nil {
		return tx, wrapSQLErr("scan transaction", err)
	}

	tx.UserID = userID
	tx.Kind = core.Kind(kind)
	tx.WalletSource = core.WalletName(walletSource)
	tx.WalletTarget = core.WalletName(walletTarget)
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("corrupt transaction amount: %w", err)
	}
	if tx.OccurredAt, err = parseDate(occurredAt); err != nil {
		return tx, err
	}
	if err := json.Unmarshal([]byte(sources), &tx.Sources); err != nil {
		return tx, fmt.Errorf("corrupt field sources: %w", err)
	}
	return tx, nil
}

func parseWalletPair(totalStack, wallet string) (core.WalletPair, error) {
	var pair core.WalletPair
	var err error
	if pair.TotalStack, err = decimal.NewFromString(totalStack); err != nil {
		return pair, fmt.Errorf("corrupt total stack balance: %w", err)
	}
	if pair.Wallet, err = decimal.NewFromString(wallet); err != nil {
		return pair, fmt.Errorf("corrupt wallet balance: %w", err)
	}
	return pair, nil
}

func parseDate(s string) (core.Date, error) {
	// SQLite may hand back either the bare date or a full timestamp.
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("unparseable date %q", s)
}

// wrapSQLErr classifies locking and busy errors as transient so the
// ledger engine retries them with the same token.
func wrapSQLErr(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return store.Transient(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
