// Package parser turns free text into a candidate transaction. A
// prioritized ladder of language-model providers is tried in order,
// with a deterministic pattern parser as the floor, so parsing never
// fails outright.
package parser

import (
	"context"
	"fmt"
	"time"
)

// Schema is the fixed extraction schema every provider must fill.
// Values are raw strings as returned by the model; empty string means
// the provider could not determine the field.
type Schema struct {
	TransactionType string `json:"transaction_type"`
	Amount          string `json:"amount"`
	Category        string `json:"category"`
	Merchant        string `json:"merchant"`
	Counterparty    string `json:"counterparty"`
	TimeReference   string `json:"time_reference"`
	WalletType      string `json:"wallet_type"`
}

// Provider is one language-model backend. Extract must respect the
// context deadline; the orchestrator gives each call a strict timeout.
type Provider interface {
	Name() string
	Extract(ctx context.Context, rawText string, now time.Time) (*Schema, error)
}

// Failure wraps a single provider's error. It is caught inside the
// orchestrator and triggers fallthrough to the next provider; callers
// of Parse never see one.
type Failure struct {
	Provider string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("provider %s: %v", f.Provider, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(provider string, err error) error {
	return &Failure{Provider: provider, Err: err}
}
