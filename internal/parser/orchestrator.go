package parser

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"paylog/internal/core"
	"paylog/internal/log"
)

// Config tunes the orchestrator. Timeout bounds each provider call;
// MinRequestInterval paces outbound calls across all providers.
type Config struct {
	Timeout            time.Duration
	MinRequestInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:            30 * time.Second,
		MinRequestInterval: 500 * time.Millisecond,
	}
}

// Orchestrator tries providers strictly in configured order and falls
// back to deterministic pattern rules when every provider fails. Parse
// never returns an error: the worst case is a candidate full of
// unknowns.
type Orchestrator struct {
	providers []Provider
	fallback  Fallback
	timeout   time.Duration
	pacer     *pacer
}

func New(providers []Provider, cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Orchestrator{
		providers: providers,
		timeout:   cfg.Timeout,
		pacer:     newPacer(cfg.MinRequestInterval),
	}
}

// Parse resolves raw text into a best-effort candidate. Providers are
// never raced: sequential trial keeps provider attribution
// deterministic and bounds cost.
func (o *Orchestrator) Parse(ctx context.Context, rawText string, now time.Time) core.PartialTransaction {
	for _, p := range o.providers {
		if err := o.pacer.wait(ctx); err != nil {
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		schema, err := p.Extract(callCtx, rawText, now)
		cancel()

		if err != nil {
			slog.WarnContext(ctx, "Provider failed, trying next",
				log.FieldProvider, p.Name(),
				log.FieldError, err)
			continue
		}

		partial, ok := schemaToPartial(schema, p.Name(), rawText, now)
		if !ok {
			slog.WarnContext(ctx, "Provider returned non-conforming schema, trying next",
				log.FieldProvider, p.Name())
			continue
		}

		slog.DebugContext(ctx, "Provider extraction succeeded",
			log.FieldProvider, p.Name())
		return partial
	}

	slog.InfoContext(ctx, "All providers failed, using fallback parser")
	return o.fallback.Parse(rawText, now)
}

// schemaToPartial maps a provider response onto the candidate, tagging
// every filled field with the provider's name. A response that names an
// unknown kind or an unparseable amount is non-conforming and rejected.
func schemaToPartial(s *Schema, provider, rawText string, now time.Time) (core.PartialTransaction, bool) {
	src := core.ProviderSource(provider)
	p := core.PartialTransaction{RawText: rawText, ReceivedAt: now}

	if v := strings.TrimSpace(s.TransactionType); v != "" {
		kind := core.Kind(v)
		if !kind.Valid() {
			return p, false
		}
		p.Kind = core.KnownField(kind, src)
	}

	if v := strings.TrimSpace(s.Amount); v != "" {
		amount, err := core.ParseAmount(v)
		if err != nil {
			return p, false
		}
		p.Amount = core.KnownField(amount, src)
	}

	if v := strings.TrimSpace(s.Category); v != "" {
		p.Category = core.KnownField(strings.ToLower(v), src)
	}
	if v := strings.TrimSpace(s.Merchant); v != "" {
		p.Merchant = core.KnownField(v, src)
	}
	if v := strings.TrimSpace(s.Counterparty); v != "" {
		p.Counterparty = core.KnownField(v, src)
	}
	if v := strings.TrimSpace(s.TimeReference); v != "" {
		p.DateExpr = core.KnownField(strings.ToLower(v), src)
	}

	if v := normalizeWallet(s.WalletType); v != "" {
		switch p.Kind.Value {
		case core.KindIncome:
			p.WalletTarget = core.KnownField(v, src)
		case core.KindTransfer:
			// A single wallet_type cannot describe both ends; the
			// deterministic rules below handle transfers.
		default:
			p.WalletSource = core.KnownField(v, src)
		}
	}

	// Transfers name both ends in the utterance itself; fill them with
	// the same pattern rules the fallback uses.
	if p.Kind.Known && p.Kind.Value == core.KindTransfer && !p.WalletSource.Known {
		if src2, dst, ok := inferTransferWallets(strings.ToLower(rawText)); ok {
			p.WalletSource = core.KnownField(src2, core.SourceFallback)
			p.WalletTarget = core.KnownField(dst, core.SourceFallback)
		}
	}

	return p, true
}

func normalizeWallet(v string) core.WalletName {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "wallet":
		return core.Wallet
	case "total", "total_stack", "total stack", "stack":
		return core.TotalStack
	default:
		return ""
	}
}
