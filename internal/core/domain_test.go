package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validExpense() Transaction {
	return Transaction{
		UserID:     "u1",
		Kind:       KindExpense,
		Amount:     decimal.NewFromInt(500),
		Category:   "groceries",
		OccurredAt: NewDate(2024, 6, 10),
		RawText:    "Spent 500 on groceries",
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{name: "valid expense", mutate: func(tx *Transaction) {}},
		{
			name:    "unknown kind",
			mutate:  func(tx *Transaction) { tx.Kind = "refund" },
			wantErr: ErrInvalidKind,
		},
		{
			name:    "zero amount",
			mutate:  func(tx *Transaction) { tx.Amount = decimal.Zero },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "expense without category",
			mutate:  func(tx *Transaction) { tx.Category = "  " },
			wantErr: ErrEmptyCategory,
		},
		{
			name:    "zero date",
			mutate:  func(tx *Transaction) { tx.OccurredAt = Date{} },
			wantErr: ErrZeroDate,
		},
		{
			name: "transfer without wallets",
			mutate: func(tx *Transaction) {
				tx.Kind = KindTransfer
				tx.WalletSource = ""
				tx.WalletTarget = ""
			},
			wantErr: ErrInvalidWallet,
		},
		{
			name: "lend without counterparty",
			mutate: func(tx *Transaction) {
				tx.Kind = KindLend
				tx.Counterparty = ""
			},
			wantErr: ErrEmptyCounterpart,
		},
		{
			name: "valid receive-payment",
			mutate: func(tx *Transaction) {
				tx.Kind = KindReceivePayment
				tx.Counterparty = "john"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validExpense()
			tt.mutate(&tx)
			err := tx.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIncomeTargetDefaultsToTotalStack(t *testing.T) {
	tx := Transaction{Kind: KindIncome}
	if got := tx.Target(); got != TotalStack {
		t.Errorf("Target() = %q, want %q", got, TotalStack)
	}

	tx.WalletTarget = Wallet
	if got := tx.Target(); got != Wallet {
		t.Errorf("Target() with explicit wallet = %q, want %q", got, Wallet)
	}
}

func TestMissingRequired(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		partial PartialTransaction
		want    []string
	}{
		{
			name:    "unknown kind short-circuits",
			partial: PartialTransaction{RawText: "hm", ReceivedAt: now},
			want:    []string{"kind"},
		},
		{
			name: "expense missing amount and category",
			partial: PartialTransaction{
				Kind: KnownField(KindExpense, SourceFallback),
			},
			want: []string{"amount", "category"},
		},
		{
			name: "lend missing counterparty",
			partial: PartialTransaction{
				Kind:   KnownField(KindLend, SourceFallback),
				Amount: KnownField(decimal.NewFromInt(5000), SourceFallback),
			},
			want: []string{"counterparty"},
		},
		{
			name: "complete expense",
			partial: PartialTransaction{
				Kind:     KnownField(KindExpense, SourceFallback),
				Amount:   KnownField(decimal.NewFromInt(500), SourceFallback),
				Category: KnownField("groceries", SourceFallback),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.partial.MissingRequired()
			if len(got) != len(tt.want) {
				t.Fatalf("MissingRequired() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("MissingRequired()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAliasLookup(t *testing.T) {
	m := AliasMap{
		"gro": {Category: "groceries", Merchant: "DMart"},
	}

	if _, ok := m.Lookup("unknown"); ok {
		t.Error("Lookup(unknown) = true, want false")
	}
	got, ok := m.Lookup("  GRO ")
	if !ok {
		t.Fatal("Lookup(GRO) = false, want true")
	}
	if got.Category != "groceries" || got.Merchant != "DMart" {
		t.Errorf("Lookup(GRO) = %+v", got)
	}
}
