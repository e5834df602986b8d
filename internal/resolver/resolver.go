// Package resolver fills the unknown fields of a parsed candidate from
// the user's recent history and stored aliases. It reads ledger state
// but never writes it.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paylog/internal/cache"
	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/store"
)

// Reader is the read-only slice of storage the resolver needs.
type Reader interface {
	store.TransactionReader
	store.AliasReader
}

// Config bounds the lookback windows for history-based rules and sizes
// the alias cache.
type Config struct {
	UsualAmountWindow store.Window
	SamePlaceWindow   store.Window
	AliasCacheSize    int
	AliasCacheTTL     time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		UsualAmountWindow: store.Window{MaxCount: 50, MaxAge: 90 * 24 * time.Hour},
		SamePlaceWindow:   store.Window{MaxCount: 20, MaxAge: 30 * 24 * time.Hour},
		AliasCacheSize:    256,
		AliasCacheTTL:     5 * time.Minute,
	}
}

// Resolver applies the resolution rules in fixed precedence: alias
// lookups, then "same X" references, then "usual amount", then
// defaults. A required field still unknown after all rules yields an
// UnresolvedError.
type Resolver struct {
	reader  Reader
	cfg     Config
	aliases *cache.LRUCache[core.AliasMap]
	logger  *log.Logger
}

func New(reader Reader, cfg Config, logger *log.Logger) *Resolver {
	if cfg.AliasCacheSize <= 0 {
		cfg.AliasCacheSize = DefaultConfig().AliasCacheSize
	}
	if cfg.AliasCacheTTL <= 0 {
		cfg.AliasCacheTTL = DefaultConfig().AliasCacheTTL
	}
	return &Resolver{
		reader:  reader,
		cfg:     cfg,
		aliases: cache.NewLRUCache[core.AliasMap](cfg.AliasCacheSize, cfg.AliasCacheTTL),
		logger:  logger.WithComponent(log.ComponentResolver),
	}
}

// Resolve completes the candidate into a committable transaction, or
// returns an UnresolvedError naming what is still missing.
func (r *Resolver) Resolve(ctx context.Context, userID string, p core.PartialTransaction) (core.Transaction, error) {
	lower := strings.ToLower(p.RawText)

	if err := r.applyAliases(ctx, userID, &p, lower); err != nil {
		return core.Transaction{}, err
	}
	if err := r.applySameReferences(ctx, userID, &p, lower); err != nil {
		return core.Transaction{}, err
	}
	if err := r.applyUsualAmount(ctx, userID, &p, lower); err != nil {
		return core.Transaction{}, err
	}
	r.applyDefaults(&p)

	if missing := p.MissingRequired(); len(missing) > 0 {
		r.logger.DebugContext(ctx, "Candidate still incomplete after resolution",
			log.FieldUserID, userID,
			"missing", strings.Join(missing, ","))
		return core.Transaction{}, &core.UnresolvedError{Fields: missing}
	}

	occurredAt, ok := ResolveDate(p.DateExpr.Value, p.ReceivedAt)
	if !ok {
		occurredAt = core.DateOf(p.ReceivedAt)
	}

	tx := core.Transaction{
		UserID:       userID,
		Kind:         p.Kind.Value,
		Amount:       p.Amount.Value,
		Category:     p.Category.Value,
		Merchant:     p.Merchant.Value,
		Counterparty: p.Counterparty.Value,
		WalletSource: p.WalletSource.Value,
		WalletTarget: p.WalletTarget.Value,
		OccurredAt:   occurredAt,
		RawText:      p.RawText,
		Sources:      p.FieldSources(),
	}
	return tx, nil
}

// applyAliases expands shorthand tokens appearing verbatim in the raw
// text into their configured category and merchant.
func (r *Resolver) applyAliases(ctx context.Context, userID string, p *core.PartialTransaction, lower string) error {
	if p.Category.Known && p.Merchant.Known {
		return nil
	}

	aliases, err := r.aliasMap(ctx, userID)
	if err != nil {
		return err
	}
	if len(aliases) == 0 {
		return nil
	}

	for _, token := range strings.Fields(lower) {
		target, ok := aliases.Lookup(strings.Trim(token, ".,!?"))
		if !ok {
			continue
		}
		if !p.Category.Known && target.Category != "" {
			p.Category = core.KnownField(target.Category, core.SourceResolver)
		}
		if !p.Merchant.Known && target.Merchant != "" {
			p.Merchant = core.KnownField(target.Merchant, core.SourceResolver)
		}
	}
	return nil
}

// applySameReferences handles "same place" style references by copying
// the field from the most recent matching transaction in the window.
func (r *Resolver) applySameReferences(ctx context.Context, userID string, p *core.PartialTransaction, lower string) error {
	samePlace := strings.Contains(lower, "same place")
	sameCategory := strings.Contains(lower, "same category") || strings.Contains(lower, "same thing")
	if !samePlace && !sameCategory {
		return nil
	}

	history, err := r.reader.RecentTransactions(ctx, userID, r.cfg.SamePlaceWindow)
	if err != nil {
		return err
	}

	for _, tx := range history {
		if p.Kind.Known && tx.Kind != p.Kind.Value {
			continue
		}
		if p.Category.Known && tx.Category != p.Category.Value {
			continue
		}
		if samePlace && !p.Merchant.Known && tx.Merchant != "" {
			p.Merchant = core.KnownField(tx.Merchant, core.SourceResolver)
			if !p.Category.Known && tx.Category != "" {
				p.Category = core.KnownField(tx.Category, core.SourceResolver)
			}
			return nil
		}
		if sameCategory && !p.Category.Known && tx.Category != "" {
			p.Category = core.KnownField(tx.Category, core.SourceResolver)
			return nil
		}
	}
	return nil
}

// applyUsualAmount resolves "usual amount" to the median amount for the
// candidate's category over the bounded window.
func (r *Resolver) applyUsualAmount(ctx context.Context, userID string, p *core.PartialTransaction, lower string) error {
	if p.Amount.Known || !strings.Contains(lower, "usual") {
		return nil
	}
	if !p.Category.Known {
		return nil
	}

	history, err := r.reader.RecentTransactions(ctx, userID, r.cfg.UsualAmountWindow)
	if err != nil {
		return err
	}

	var amounts []decimal.Decimal
	for _, tx := range history {
		if tx.Category == p.Category.Value {
			amounts = append(amounts, tx.Amount)
		}
	}
	if len(amounts) == 0 {
		return nil
	}

	p.Amount = core.KnownField(core.Median(amounts), core.SourceResolver)
	r.logger.DebugContext(ctx, "Resolved usual amount from history",
		log.FieldUserID, userID,
		log.FieldCategory, p.Category.Value,
		log.FieldAmount, p.Amount.Value.String())
	return nil
}

// applyDefaults fills the optional fields that carry a fixed default.
func (r *Resolver) applyDefaults(p *core.PartialTransaction) {
	if !p.Kind.Known {
		return
	}
	switch p.Kind.Value {
	case core.KindIncome:
		if !p.WalletTarget.Known {
			p.WalletTarget = core.KnownField(core.TotalStack, core.SourceDefault)
		}
	case core.KindExpense, core.KindLend:
		if !p.WalletSource.Known {
			p.WalletSource = core.KnownField(core.Wallet, core.SourceDefault)
		}
	case core.KindReceivePayment:
		if !p.WalletTarget.Known {
			p.WalletTarget = core.KnownField(core.Wallet, core.SourceDefault)
		}
	}
	if !p.DateExpr.Known {
		p.DateExpr = core.KnownField("today", core.SourceDefault)
	}
}

func (r *Resolver) aliasMap(ctx context.Context, userID string) (core.AliasMap, error) {
	if m, ok := r.aliases.Get(userID); ok {
		return m, nil
	}
	m, err := r.reader.Aliases(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.aliases.Set(userID, m)
	return m, nil
}

// Invalidate drops the cached alias map for a user, for callers that
// just changed the configuration.
func (r *Resolver) Invalidate(userID string) {
	r.aliases.Delete(userID)
}
