package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// FieldSource records which layer produced a field's value, so audits
// can tell a model-inferred field from a pattern-matched or defaulted one.
type FieldSource string

const (
	SourceFallback FieldSource = "fallback-parser"
	SourceResolver FieldSource = "context-resolver"
	SourceDefault  FieldSource = "default"
)

// ProviderSource tags a field as produced by a named model provider.
func ProviderSource(name string) FieldSource {
	return FieldSource("provider-" + name)
}

// FieldSources maps field names to their provenance.
type FieldSources map[string]FieldSource

// Field is a candidate value plus its provenance. An unset field stays
// explicitly unknown rather than being guessed downstream.
type Field[T any] struct {
	Value  T
	Source FieldSource
	Known  bool
}

// KnownField builds a filled field with the given provenance.
func KnownField[T any](v T, src FieldSource) Field[T] {
	return Field[T]{Value: v, Source: src, Known: true}
}

// PartialTransaction is the parser's best-effort candidate. Unknown
// fields are left for the context resolver; the ledger never sees one
// of these directly.
type PartialTransaction struct {
	RawText    string
	ReceivedAt time.Time

	Kind         Field[Kind]
	Amount       Field[decimal.Decimal]
	Category     Field[string]
	Merchant     Field[string]
	Counterparty Field[string]
	WalletSource Field[WalletName]
	WalletTarget Field[WalletName]
	// DateExpr is the raw time reference from the utterance, e.g.
	// "yesterday" or "2 days ago". Resolved against ReceivedAt later.
	DateExpr Field[string]
}

// MissingRequired lists the required fields that are still unknown for
// the candidate's kind. An unknown kind or amount is always missing.
func (p PartialTransaction) MissingRequired() []string {
	var missing []string
	if !p.Kind.Known {
		return []string{"kind"}
	}
	if !p.Amount.Known {
		missing = append(missing, "amount")
	}
	for _, f := range RequiredFields(p.Kind.Value) {
		switch f {
		case "category":
			if !p.Category.Known {
				missing = append(missing, f)
			}
		case "counterparty":
			if !p.Counterparty.Known {
				missing = append(missing, f)
			}
		case "wallet_source":
			if !p.WalletSource.Known {
				missing = append(missing, f)
			}
		case "wallet_target":
			if !p.WalletTarget.Known {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// FieldSources collects the provenance of every known field.
func (p PartialTransaction) FieldSources() FieldSources {
	out := FieldSources{}
	put := func(name string, src FieldSource, known bool) {
		if known {
			out[name] = src
		}
	}
	put("kind", p.Kind.Source, p.Kind.Known)
	put("amount", p.Amount.Source, p.Amount.Known)
	put("category", p.Category.Source, p.Category.Known)
	put("merchant", p.Merchant.Source, p.Merchant.Known)
	put("counterparty", p.Counterparty.Source, p.Counterparty.Known)
	put("wallet_source", p.WalletSource.Source, p.WalletSource.Known)
	put("wallet_target", p.WalletTarget.Source, p.WalletTarget.Known)
	put("date", p.DateExpr.Source, p.DateExpr.Known)
	return out
}
