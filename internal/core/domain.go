package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindExpense        Kind = "expense"
	KindIncome         Kind = "income"
	KindTransfer       Kind = "transfer"
	KindLend           Kind = "lend"
	KindReceivePayment Kind = "receive-payment"
)

const (
	TotalStack WalletName = "total_stack"
	Wallet     WalletName = "wallet"
)

type (
	Kind string

	WalletName string

	Date struct {
		time.Time
	}

	// Transaction is one fully resolved, committable money event.
	Transaction struct {
		UserID       string
		Kind         Kind
		Amount       decimal.Decimal
		Category     string
		Merchant     string
		Counterparty string
		WalletSource WalletName
		WalletTarget WalletName
		OccurredAt   Date
		RawText      string
		Sources      FieldSources
	}

	// WalletPair is the per-user dual balance: long-horizon total stack
	// and day-to-day wallet. Mutated only by the ledger engine.
	WalletPair struct {
		TotalStack decimal.Decimal
		Wallet     decimal.Decimal
	}

	// AliasTarget is the canonical expansion of a user-defined shorthand.
	AliasTarget struct {
		Category string
		Merchant string
	}

	// AliasMap maps shorthand tokens ("gro") to canonical targets.
	// Written only through explicit user configuration, never by parsing.
	AliasMap map[string]AliasTarget
)

var (
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidWallet    = errors.New("invalid wallet name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyCounterpart = errors.New("empty counterparty")
	ErrZeroDate         = errors.New("date cannot be zero")
)

func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindTransfer, KindLend, KindReceivePayment:
		return true
	default:
		return false
	}
}

func (w WalletName) Valid() bool {
	return w == TotalStack || w == Wallet
}

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// RequiredFields lists the fields a transaction of the given kind must
// carry before it is committable, beyond kind and amount.
func RequiredFields(k Kind) []string {
	switch k {
	case KindExpense:
		return []string{"category"}
	case KindTransfer:
		return []string{"wallet_source", "wallet_target"}
	case KindLend, KindReceivePayment:
		return []string{"counterparty"}
	default:
		return nil
	}
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if err := t.OccurredAt.Validate(); err != nil {
		return err
	}
	switch t.Kind {
	case KindExpense:
		if strings.TrimSpace(t.Category) == "" {
			return ErrEmptyCategory
		}
	case KindTransfer:
		if !t.WalletSource.Valid() || !t.WalletTarget.Valid() {
			return ErrInvalidWallet
		}
	case KindLend, KindReceivePayment:
		if strings.TrimSpace(t.Counterparty) == "" {
			return ErrEmptyCounterpart
		}
	}
	return nil
}

// Target returns the wallet an income transaction pays into.
// The total stack is the default unless the user named a wallet.
func (t Transaction) Target() WalletName {
	if t.Kind == KindIncome && !t.WalletTarget.Valid() {
		return TotalStack
	}
	return t.WalletTarget
}

func (w WalletPair) Balance(name WalletName) decimal.Decimal {
	if name == TotalStack {
		return w.TotalStack
	}
	return w.Wallet
}

func (w WalletPair) Validate() error {
	if w.TotalStack.IsNegative() || w.Wallet.IsNegative() {
		return errors.New("wallet balance cannot be negative")
	}
	return nil
}

// Lookup resolves a shorthand token, case-insensitively.
func (m AliasMap) Lookup(token string) (AliasTarget, bool) {
	t, ok := m[strings.ToLower(strings.TrimSpace(token))]
	return t, ok
}
