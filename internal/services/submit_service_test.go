package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/events"
	"paylog/internal/ledger"
	"paylog/internal/log"
	"paylog/internal/parser"
	"paylog/internal/resolver"
	"paylog/internal/store/memory"
)

type capturePublisher struct {
	published []*events.LedgerEvent
}

func (c *capturePublisher) Publish(_ context.Context, e *events.LedgerEvent) error {
	c.published = append(c.published, e)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func testService(t *testing.T) (*SubmitService, *memory.Store, *capturePublisher) {
	t.Helper()
	st := memory.New()
	logger := log.New(log.Config{Level: slog.LevelError})
	pub := &capturePublisher{}

	// No providers configured: the deterministic fallback parser does
	// all the extraction in these tests.
	svc := NewSubmitService(
		parser.New(nil, parser.Config{Timeout: time.Second}),
		resolver.New(st, resolver.DefaultConfig(), logger),
		ledger.New(st, ledger.Config{CommitRetries: 3, RetryBackoff: 1}, logger),
		pub,
		decimal.NewFromInt(500),
		logger,
	)
	return svc, st, pub
}

func seed(st *memory.Store, totalStack, wallet int64) {
	st.SeedWallets("u1", core.WalletPair{
		TotalStack: decimal.NewFromInt(totalStack),
		Wallet:     decimal.NewFromInt(wallet),
	})
}

func TestSubmitExpenseEndToEnd(t *testing.T) {
	svc, st, pub := testService(t)
	seed(st, 10000, 2000)

	res, err := svc.Submit(context.Background(), "Spent 500 on groceries at DMart", "u1", time.Now(), "tok-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if res.Transaction.Kind != core.KindExpense {
		t.Errorf("kind = %q, want expense", res.Transaction.Kind)
	}
	if res.Commit.Wallets.Wallet.String() != "1500" {
		t.Errorf("wallet = %s, want 1500", res.Commit.Wallets.Wallet)
	}
	if len(pub.published) != 1 || pub.published[0].Kind != events.KindTransactionCommitted {
		t.Errorf("published = %+v, want one transaction-committed event", pub.published)
	}
}

func TestSubmitLendThenOverpayPublishesDebtCleared(t *testing.T) {
	svc, st, pub := testService(t)
	seed(st, 0, 10000)

	if _, err := svc.Submit(context.Background(), "Lent 2000 to John", "u1", time.Now(), "tok-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	res, err := svc.Submit(context.Background(), "Received 2500 from John", "u1", time.Now(), "tok-2")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if !res.Commit.DebtCleared {
		t.Error("DebtCleared = false, want true")
	}
	if res.Commit.Surplus.String() != "500" {
		t.Errorf("surplus = %s, want 500", res.Commit.Surplus)
	}

	var kinds []string
	for _, e := range pub.published {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 3 || kinds[2] != events.KindDebtCleared {
		t.Errorf("event kinds = %v, want committed,committed,debt-cleared", kinds)
	}
}

func TestSubmitReplayDoesNotRepublish(t *testing.T) {
	svc, st, pub := testService(t)
	seed(st, 10000, 2000)

	raw := "Spent 500 on groceries"
	received := time.Now()
	if _, err := svc.Submit(context.Background(), raw, "u1", received, "tok-1"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res, err := svc.Submit(context.Background(), raw, "u1", received, "tok-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if !res.Commit.Replayed {
		t.Error("Replayed = false, want true")
	}
	if res.Commit.Wallets.Wallet.String() != "1500" {
		t.Errorf("wallet = %s, want 1500 (not double-applied)", res.Commit.Wallets.Wallet)
	}
	if len(pub.published) != 1 {
		t.Errorf("published = %d events, want 1 (replay is silent)", len(pub.published))
	}
}

func TestSubmitUnresolvedSurfacesToCaller(t *testing.T) {
	svc, st, _ := testService(t)
	seed(st, 10000, 2000)

	_, err := svc.Submit(context.Background(), "spent 500", "u1", time.Now(), "tok-1")

	var unresolved *core.UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("err = %v, want UnresolvedError", err)
	}
}

func TestSubmitRejectionSurfacesToCaller(t *testing.T) {
	svc, st, pub := testService(t)
	seed(st, 10000, 100)

	_, err := svc.Submit(context.Background(), "Spent 500 on groceries", "u1", time.Now(), "tok-1")

	var rej *core.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectionError", err)
	}
	if rej.Reason != core.ReasonInsufficientFunds {
		t.Errorf("reason = %q, want insufficient-funds", rej.Reason)
	}
	if len(pub.published) != 0 {
		t.Errorf("published = %d events on rejection, want 0", len(pub.published))
	}
}

func TestSubmitLowWalletHint(t *testing.T) {
	svc, st, _ := testService(t)
	seed(st, 10000, 700)

	res, err := svc.Submit(context.Background(), "Spent 400 on groceries", "u1", time.Now(), "tok-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Hint == "" {
		t.Error("expected low-wallet hint, got none")
	}
}

func TestSubmitEmptyTokenRejected(t *testing.T) {
	svc, _, _ := testService(t)

	if _, err := svc.Submit(context.Background(), "Spent 100 on food", "u1", time.Now(), ""); err == nil {
		t.Fatal("expected error for empty idempotency token")
	}
}
