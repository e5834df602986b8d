package worker

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/events"
	"paylog/internal/ledger"
	"paylog/internal/log"
	"paylog/internal/sheets"
	"paylog/internal/store/memory"
)

type fakeMirror struct {
	transactions []sheets.TransactionRow
	lending      []sheets.LendingRow
}

func (f *fakeMirror) AppendTransaction(_ context.Context, row sheets.TransactionRow) error {
	f.transactions = append(f.transactions, row)
	return nil
}

func (f *fakeMirror) AppendLending(_ context.Context, row sheets.LendingRow) error {
	f.lending = append(f.lending, row)
	return nil
}

func testMirrorWorker(t *testing.T) (*MirrorWorker, *memory.Store, *ledger.Engine, *fakeMirror) {
	t.Helper()
	st := memory.New()
	logger := log.New(log.Config{Level: slog.LevelError})
	mirror := &fakeMirror{}
	engine := ledger.New(st, ledger.Config{CommitRetries: 1, RetryBackoff: 1}, logger)
	return NewMirrorWorker(st, mirror, logger), st, engine, mirror
}

func commit(t *testing.T, engine *ledger.Engine, tx core.Transaction, token string) []*events.LedgerEvent {
	t.Helper()
	result, err := engine.Commit(context.Background(), tx, token)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return events.FromCommit(tx, result)
}

func TestMirrorExpenseEvent(t *testing.T) {
	w, st, engine, mirror := testMirrorWorker(t)
	st.SeedWallets("u1", core.WalletPair{
		TotalStack: decimal.NewFromInt(10000),
		Wallet:     decimal.NewFromInt(2000),
	})

	evts := commit(t, engine, core.Transaction{
		UserID:     "u1",
		Kind:       core.KindExpense,
		Amount:     decimal.NewFromInt(500),
		Category:   "groceries",
		Merchant:   "DMart",
		OccurredAt: core.NewDate(2024, 6, 10),
	}, "tok-1")

	for _, e := range evts {
		if err := w.HandleEvent(context.Background(), e); err != nil {
			t.Fatalf("handle event: %v", err)
		}
	}

	if len(mirror.transactions) != 1 {
		t.Fatalf("mirrored transactions = %d, want 1", len(mirror.transactions))
	}
	row := mirror.transactions[0]
	if row.Kind != "expense" || row.Amount != "500" || row.Merchant != "DMart" {
		t.Errorf("row = %+v, want expense/500/DMart", row)
	}
	if row.BalanceWallet != "1500" {
		t.Errorf("wallet balance = %s, want post-commit 1500", row.BalanceWallet)
	}
	if len(mirror.lending) != 0 {
		t.Errorf("lending rows = %d for an expense, want 0", len(mirror.lending))
	}
}

func TestMirrorLendingLifecycle(t *testing.T) {
	w, st, engine, mirror := testMirrorWorker(t)
	st.SeedWallets("u1", core.WalletPair{Wallet: decimal.NewFromInt(10000)})

	lendEvts := commit(t, engine, core.Transaction{
		UserID:       "u1",
		Kind:         core.KindLend,
		Amount:       decimal.NewFromInt(2000),
		Counterparty: "John",
		OccurredAt:   core.NewDate(2024, 6, 10),
	}, "tok-1")
	payEvts := commit(t, engine, core.Transaction{
		UserID:       "u1",
		Kind:         core.KindReceivePayment,
		Amount:       decimal.NewFromInt(2000),
		Counterparty: "John",
		OccurredAt:   core.NewDate(2024, 6, 11),
	}, "tok-2")

	for _, e := range append(lendEvts, payEvts...) {
		if err := w.HandleEvent(context.Background(), e); err != nil {
			t.Fatalf("handle event: %v", err)
		}
	}

	if len(mirror.lending) != 2 {
		t.Fatalf("lending rows = %d, want 2", len(mirror.lending))
	}
	if mirror.lending[0].Status != "lent" || mirror.lending[0].Remaining != "2000" {
		t.Errorf("loan row = %+v, want lent/2000", mirror.lending[0])
	}
	if mirror.lending[1].Status != "returned" || mirror.lending[1].Remaining != "0" {
		t.Errorf("payment row = %+v, want returned/0", mirror.lending[1])
	}

	// The debt-cleared event logs only; both commits still mirror one
	// transaction row each.
	if len(mirror.transactions) != 2 {
		t.Errorf("transaction rows = %d, want 2", len(mirror.transactions))
	}
}
