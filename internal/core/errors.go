package core

import (
	"fmt"
	"strings"
)

// RejectionReason is the machine-readable reason code on a ledger rejection.
type RejectionReason string

const (
	ReasonInsufficientFunds   RejectionReason = "insufficient-funds"
	ReasonUnknownCounterparty RejectionReason = "unknown-counterparty"
	ReasonSelfTransfer        RejectionReason = "self-transfer"
	ReasonDuplicateMismatch   RejectionReason = "duplicate-commit-mismatch"
	ReasonInvalidTransaction  RejectionReason = "invalid-transaction"
)

// RejectionError reports a ledger precondition violation. No state has
// been mutated when one of these is returned.
type RejectionError struct {
	Reason  RejectionReason
	Field   string
	Message string
}

func (e *RejectionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rejected (%s): %s: %s", e.Reason, e.Field, e.Message)
	}
	return fmt.Sprintf("rejected (%s): %s", e.Reason, e.Message)
}

// Reject builds a RejectionError.
func Reject(reason RejectionReason, field, format string, args ...any) *RejectionError {
	return &RejectionError{
		Reason:  reason,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// UnresolvedError reports fields that stayed unknown after every
// resolution rule ran. The caller is expected to ask the user a
// clarifying follow-up instead of committing a partial record.
type UnresolvedError struct {
	Fields []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved required fields: " + strings.Join(e.Fields, ", ")
}
