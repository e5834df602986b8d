package ledger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/store"
	"paylog/internal/store/memory"
)

func testEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	logger := log.New(log.Config{Level: slog.LevelError})
	return New(st, Config{CommitRetries: 3, RetryBackoff: 1}, logger), st
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seed(st *memory.Store, userID string, totalStack, wallet string) {
	st.SeedWallets(userID, core.WalletPair{
		TotalStack: dec(totalStack),
		Wallet:     dec(wallet),
	})
}

func expense(userID, amount, category string) core.Transaction {
	return core.Transaction{
		UserID:     userID,
		Kind:       core.KindExpense,
		Amount:     dec(amount),
		Category:   category,
		OccurredAt: core.NewDate(2024, 6, 10),
		RawText:    "spent " + amount + " on " + category,
	}
}

func lend(userID, amount, counterparty string) core.Transaction {
	return core.Transaction{
		UserID:       userID,
		Kind:         core.KindLend,
		Amount:       dec(amount),
		Counterparty: counterparty,
		OccurredAt:   core.NewDate(2024, 6, 10),
		RawText:      "lent " + amount + " to " + counterparty,
	}
}

func receive(userID, amount, counterparty string) core.Transaction {
	return core.Transaction{
		UserID:       userID,
		Kind:         core.KindReceivePayment,
		Amount:       dec(amount),
		Counterparty: counterparty,
		OccurredAt:   core.NewDate(2024, 6, 11),
		RawText:      "received " + amount + " from " + counterparty,
	}
}

func TestCommitExpense(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "10000", "2000")

	res, err := e.Commit(context.Background(), expense("u1", "500", "groceries"), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Wallets.Wallet.String() != "1500" {
		t.Errorf("wallet = %s, want 1500", res.Wallets.Wallet)
	}
	if res.Wallets.TotalStack.String() != "10000" {
		t.Errorf("total stack = %s, want untouched 10000", res.Wallets.TotalStack)
	}
}

func TestCommitIncomeDefaultsToTotalStack(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "1000", "0")

	tx := core.Transaction{
		UserID:     "u1",
		Kind:       core.KindIncome,
		Amount:     dec("45000"),
		OccurredAt: core.NewDate(2024, 6, 10),
	}
	res, err := e.Commit(context.Background(), tx, "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Wallets.TotalStack.String() != "46000" {
		t.Errorf("total stack = %s, want 46000", res.Wallets.TotalStack)
	}
}

func TestCommitTransfer(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "5000", "100")

	tx := core.Transaction{
		UserID:       "u1",
		Kind:         core.KindTransfer,
		Amount:       dec("1000"),
		WalletSource: core.TotalStack,
		WalletTarget: core.Wallet,
		OccurredAt:   core.NewDate(2024, 6, 10),
	}
	res, err := e.Commit(context.Background(), tx, "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Wallets.TotalStack.String() != "4000" || res.Wallets.Wallet.String() != "1100" {
		t.Errorf("balances = %s/%s, want 4000/1100", res.Wallets.TotalStack, res.Wallets.Wallet)
	}
}

func TestCommitTransferMayDrainSourceToZero(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "1000", "0")

	tx := core.Transaction{
		UserID:       "u1",
		Kind:         core.KindTransfer,
		Amount:       dec("1000"),
		WalletSource: core.TotalStack,
		WalletTarget: core.Wallet,
		OccurredAt:   core.NewDate(2024, 6, 10),
	}
	res, err := e.Commit(context.Background(), tx, "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Wallets.TotalStack.IsZero() {
		t.Errorf("total stack = %s, want exactly zero", res.Wallets.TotalStack)
	}
}

func TestCommitSelfTransferRejected(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "5000", "100")

	tx := core.Transaction{
		UserID:       "u1",
		Kind:         core.KindTransfer,
		Amount:       dec("100"),
		WalletSource: core.Wallet,
		WalletTarget: core.Wallet,
		OccurredAt:   core.NewDate(2024, 6, 10),
	}
	_, err := e.Commit(context.Background(), tx, "tok-1")
	assertRejection(t, err, core.ReasonSelfTransfer)
}

func TestRejectionWithoutMutation(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "10000", "400")

	_, err := e.Commit(context.Background(), expense("u1", "500", "groceries"), "tok-1")
	assertRejection(t, err, core.ReasonInsufficientFunds)

	wallets, err := st.Wallets(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wallets.Wallet.String() != "400" || wallets.TotalStack.String() != "10000" {
		t.Errorf("balances = %s/%s, want unchanged 10000/400", wallets.TotalStack, wallets.Wallet)
	}
}

func TestLendCreatesRecord(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "0", "8000")

	res, err := e.Commit(context.Background(), lend("u1", "5000", "John"), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Wallets.Wallet.String() != "3000" {
		t.Errorf("wallet = %s, want 3000", res.Wallets.Wallet)
	}
	if res.Lending == nil || res.Lending.Principal.String() != "5000" {
		t.Fatalf("lending = %+v, want principal 5000", res.Lending)
	}
	if len(res.Lending.History) != 1 || res.Lending.History[0].Kind != core.MovementLoan {
		t.Errorf("history = %+v, want one loan movement", res.Lending.History)
	}
}

func TestLendInsufficientWallet(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "100000", "100")

	_, err := e.Commit(context.Background(), lend("u1", "5000", "John"), "tok-1")
	assertRejection(t, err, core.ReasonInsufficientFunds)
}

func TestReceivePaymentUnknownCounterparty(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "0", "1000")

	_, err := e.Commit(context.Background(), receive("u1", "500", "Nobody"), "tok-1")
	assertRejection(t, err, core.ReasonUnknownCounterparty)
}

func TestReceivePaymentPartial(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "0", "8000")

	if _, err := e.Commit(context.Background(), lend("u1", "5000", "John"), "tok-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}

	res, err := e.Commit(context.Background(), receive("u1", "2000", "John"), "tok-2")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if res.Lending.Principal.String() != "3000" {
		t.Errorf("principal = %s, want 3000", res.Lending.Principal)
	}
	if res.DebtCleared {
		t.Error("DebtCleared = true, want false on partial payment")
	}
	if res.Wallets.Wallet.String() != "5000" {
		t.Errorf("wallet = %s, want 3000+2000=5000", res.Wallets.Wallet)
	}
}

func TestReceivePaymentOverpaymentSplit(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "0", "8000")

	if _, err := e.Commit(context.Background(), lend("u1", "5000", "John"), "tok-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	if _, err := e.Commit(context.Background(), receive("u1", "3000", "John"), "tok-2"); err != nil {
		t.Fatalf("first payment: %v", err)
	}

	// Principal is now 2000; a payment of 2500 clears the debt and
	// books the extra 500 as income on the total stack.
	res, err := e.Commit(context.Background(), receive("u1", "2500", "John"), "tok-3")
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if !res.Lending.Principal.IsZero() {
		t.Errorf("principal = %s, want 0", res.Lending.Principal)
	}
	if !res.DebtCleared {
		t.Error("DebtCleared = false, want true")
	}
	if res.Surplus.String() != "500" {
		t.Errorf("surplus = %s, want 500", res.Surplus)
	}
	if res.Wallets.TotalStack.String() != "500" {
		t.Errorf("total stack = %s, want surplus 500", res.Wallets.TotalStack)
	}
	if !res.Lending.Closed() {
		t.Error("record not closed after full repayment")
	}
}

func TestReceivePaymentRecordSurvivesZero(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "0", "8000")

	if _, err := e.Commit(context.Background(), lend("u1", "5000", "John"), "tok-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	if _, err := e.Commit(context.Background(), receive("u1", "5000", "John"), "tok-2"); err != nil {
		t.Fatalf("payment: %v", err)
	}

	rec, err := st.Lending(context.Background(), "u1", "john")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("record deleted after full repayment, want it retained")
	}
	if !rec.Principal.IsZero() {
		t.Errorf("principal = %s, want 0", rec.Principal)
	}
}

func TestIdempotentReplay(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "10000", "2000")

	tx := expense("u1", "500", "groceries")
	first, err := e.Commit(context.Background(), tx, "tok-1")
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	second, err := e.Commit(context.Background(), tx, "tok-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if !second.Replayed {
		t.Error("Replayed = false, want true")
	}
	if second.CommitID != first.CommitID {
		t.Errorf("CommitID = %s, want original %s", second.CommitID, first.CommitID)
	}
	if second.Wallets.Wallet.String() != "1500" {
		t.Errorf("wallet = %s, want 1500 (not double-applied)", second.Wallets.Wallet)
	}
}

func TestIdempotencyTokenMismatchRejected(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "10000", "2000")

	if _, err := e.Commit(context.Background(), expense("u1", "500", "groceries"), "tok-1"); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := e.Commit(context.Background(), expense("u1", "900", "fuel"), "tok-1")
	assertRejection(t, err, core.ReasonDuplicateMismatch)
}

func TestTransientFailureRetriedWithSameToken(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "10000", "2000")
	st.FailCommits(2)

	res, err := e.Commit(context.Background(), expense("u1", "500", "groceries"), "tok-1")
	if err != nil {
		t.Fatalf("commit after retries: %v", err)
	}
	if res.Wallets.Wallet.String() != "1500" {
		t.Errorf("wallet = %s, want 1500 applied exactly once", res.Wallets.Wallet)
	}
}

func TestTransientFailureExhaustsRetries(t *testing.T) {
	e, st := testEngine(t)
	seed(st, "u1", "10000", "2000")
	st.FailCommits(10)

	_, err := e.Commit(context.Background(), expense("u1", "500", "groceries"), "tok-1")
	if !store.IsTransient(err) {
		t.Fatalf("err = %v, want transient after exhausting retries", err)
	}

	st.FailCommits(0)
	wallets, werr := st.Wallets(context.Background(), "u1")
	if werr != nil {
		t.Fatalf("unexpected error: %v", werr)
	}
	if wallets.Wallet.String() != "2000" {
		t.Errorf("wallet = %s, want unchanged 2000 (not committed)", wallets.Wallet)
	}
}

func TestInvalidTransactionRejected(t *testing.T) {
	e, _ := testEngine(t)

	tx := core.Transaction{
		UserID:     "u1",
		Kind:       core.Kind("refund"),
		Amount:     dec("100"),
		OccurredAt: core.NewDate(2024, 6, 10),
	}
	_, err := e.Commit(context.Background(), tx, "tok-1")
	assertRejection(t, err, core.ReasonInvalidTransaction)
}

func assertRejection(t *testing.T, err error, reason core.RejectionReason) {
	t.Helper()
	var rej *core.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectionError", err)
	}
	if rej.Reason != reason {
		t.Errorf("reason = %q, want %q", rej.Reason, reason)
	}
}
