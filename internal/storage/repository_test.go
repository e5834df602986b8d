package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/store"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "paylog.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func incomeSet(amount string) store.MutationSet {
	return store.MutationSet{
		Transaction: core.Transaction{
			UserID:     "u1",
			Kind:       core.KindIncome,
			Amount:     dec(amount),
			OccurredAt: core.NewDate(2024, 6, 10),
			RawText:    "received " + amount,
		},
		WalletDeltas: map[core.WalletName]decimal.Decimal{
			core.TotalStack: dec(amount),
		},
		Surplus: decimal.Zero,
	}
}

func TestCommitAndReadBack(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	res, err := repo.Commit(ctx, "u1", incomeSet("1000"), "tok-1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.CommitID == "" {
		t.Error("empty commit ID")
	}
	if res.Wallets.TotalStack.String() != "1000" {
		t.Errorf("total stack = %s, want 1000", res.Wallets.TotalStack)
	}

	wallets, err := repo.Wallets(ctx, "u1")
	if err != nil {
		t.Fatalf("read wallets: %v", err)
	}
	if wallets.TotalStack.String() != "1000" || !wallets.Wallet.IsZero() {
		t.Errorf("balances = %s/%s, want 1000/0", wallets.TotalStack, wallets.Wallet)
	}

	history, err := repo.RecentTransactions(ctx, "u1", store.Window{MaxCount: 10})
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d entries, want 1", len(history))
	}
	if history[0].Kind != core.KindIncome || history[0].Amount.String() != "1000" {
		t.Errorf("history entry = %+v, want committed income", history[0])
	}
}

func TestCommitTokenReplay(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first, err := repo.Commit(ctx, "u1", incomeSet("1000"), "tok-1")
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	second, err := repo.Commit(ctx, "u1", incomeSet("1000"), "tok-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if !second.Replayed {
		t.Error("Replayed = false, want true")
	}
	if second.CommitID != first.CommitID {
		t.Errorf("CommitID = %s, want original %s", second.CommitID, first.CommitID)
	}

	wallets, err := repo.Wallets(ctx, "u1")
	if err != nil {
		t.Fatalf("read wallets: %v", err)
	}
	if wallets.TotalStack.String() != "1000" {
		t.Errorf("total stack = %s, want 1000 (not double-applied)", wallets.TotalStack)
	}
}

func TestCommitTokenMismatch(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if _, err := repo.Commit(ctx, "u1", incomeSet("1000"), "tok-1"); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := repo.Commit(ctx, "u1", incomeSet("2000"), "tok-1")

	var rej *core.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectionError", err)
	}
	if rej.Reason != core.ReasonDuplicateMismatch {
		t.Errorf("reason = %q, want %q", rej.Reason, core.ReasonDuplicateMismatch)
	}
}

func TestCommitLendingLifecycle(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if _, err := repo.Commit(ctx, "u1", incomeSet("10000"), "tok-0"); err != nil {
		t.Fatalf("seed income: %v", err)
	}

	loan := store.MutationSet{
		Transaction: core.Transaction{
			UserID:       "u1",
			Kind:         core.KindLend,
			Amount:       dec("5000"),
			Counterparty: "John",
			OccurredAt:   core.NewDate(2024, 6, 10),
		},
		WalletDeltas: map[core.WalletName]decimal.Decimal{
			core.TotalStack: dec("-5000"),
		},
		Lending: &store.LendingDelta{
			Counterparty:    "John",
			PrincipalDelta:  dec("5000"),
			CreateIfMissing: true,
			Movements: []core.LendingMovement{{
				Kind:   core.MovementLoan,
				Amount: dec("5000"),
				Date:   core.NewDate(2024, 6, 10),
			}},
		},
		Surplus: decimal.Zero,
	}
	res, err := repo.Commit(ctx, "u1", loan, "tok-1")
	if err != nil {
		t.Fatalf("lend commit: %v", err)
	}
	if res.Lending == nil || res.Lending.Principal.String() != "5000" {
		t.Fatalf("lending = %+v, want principal 5000", res.Lending)
	}

	rec, err := repo.Lending(ctx, "u1", "JOHN")
	if err != nil {
		t.Fatalf("read lending: %v", err)
	}
	if rec == nil {
		t.Fatal("record not found under normalized counterparty")
	}
	if rec.Principal.String() != "5000" {
		t.Errorf("principal = %s, want 5000", rec.Principal)
	}
	if len(rec.History) != 1 || rec.History[0].Kind != core.MovementLoan {
		t.Errorf("history = %+v, want one loan movement", rec.History)
	}

	all, err := repo.ListLending(ctx, "u1")
	if err != nil {
		t.Fatalf("list lending: %v", err)
	}
	if len(all) != 1 || all[0].Counterparty != "john" {
		t.Errorf("list = %+v, want one record for john", all)
	}
}

func TestCommitRollbackOnInvariantViolation(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	overdraw := store.MutationSet{
		Transaction: core.Transaction{
			UserID:     "u1",
			Kind:       core.KindExpense,
			Amount:     dec("500"),
			Category:   "food",
			OccurredAt: core.NewDate(2024, 6, 10),
		},
		WalletDeltas: map[core.WalletName]decimal.Decimal{
			core.Wallet: dec("-500"),
		},
		Surplus: decimal.Zero,
	}
	if _, err := repo.Commit(ctx, "u1", overdraw, "tok-1"); err == nil {
		t.Fatal("expected error driving wallet negative")
	}

	history, err := repo.RecentTransactions(ctx, "u1", store.Window{MaxCount: 10})
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history = %d entries after failed commit, want 0", len(history))
	}
}

func TestAliasesRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	err := repo.SetAliases(ctx, "u1", core.AliasMap{
		"Gro": {Category: "groceries", Merchant: "DMart"},
	})
	if err != nil {
		t.Fatalf("set aliases: %v", err)
	}

	aliases, err := repo.Aliases(ctx, "u1")
	if err != nil {
		t.Fatalf("read aliases: %v", err)
	}
	target, ok := aliases.Lookup("GRO")
	if !ok {
		t.Fatal("alias not found case-insensitively")
	}
	if target.Category != "groceries" || target.Merchant != "DMart" {
		t.Errorf("target = %+v, want groceries/DMart", target)
	}
}

func TestRecentTransactionsOrderAndLimit(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for i, amount := range []string{"100", "200", "300"} {
		set := incomeSet(amount)
		if _, err := repo.Commit(ctx, "u1", set, "tok-"+amount); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	history, err := repo.RecentTransactions(ctx, "u1", store.Window{MaxCount: 2})
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	if history[0].Amount.String() != "300" || history[1].Amount.String() != "200" {
		t.Errorf("order = %s,%s, want most recent first 300,200", history[0].Amount, history[1].Amount)
	}
}
