package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MovementLoan    MovementKind = "loan"
	MovementPayment MovementKind = "payment"
	MovementSurplus MovementKind = "surplus"
)

type (
	MovementKind string

	// LendingMovement is one entry in a counterparty's history: a loan
	// granted, a payment received, or the surplus part of an overpayment.
	LendingMovement struct {
		Kind   MovementKind
		Amount decimal.Decimal
		Date   Date
		Note   string
	}

	// LendingRecord tracks outstanding principal per counterparty.
	// Records are never deleted; a fully repaid record stays queryable
	// with zero principal.
	LendingRecord struct {
		Counterparty string
		Principal    decimal.Decimal
		History      []LendingMovement
	}
)

// Closed reports whether the debt has been driven to zero.
func (r LendingRecord) Closed() bool {
	return r.Principal.IsZero()
}

func (r LendingRecord) Validate() error {
	if strings.TrimSpace(r.Counterparty) == "" {
		return ErrEmptyCounterpart
	}
	if r.Principal.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeCounterparty canonicalizes a counterparty identity so that
// "John", "john" and " JOHN " address the same record.
func NormalizeCounterparty(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
