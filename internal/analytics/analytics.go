// Package analytics derives read-only spending insights from committed
// transactions. It consumes ledger history and events; it never writes
// ledger state.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/store"
)

// Reader is the read-only slice of storage analytics needs.
type Reader interface {
	store.TransactionReader
	store.WalletReader
	store.LendingReader
}

// CategoryTotal is one category's spend over a period.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Share    decimal.Decimal // percent of total spend
}

// BurnRate describes how fast the wallet drains and how long it lasts
// at the current pace. DaysLeft is -1 when there is no recent spend.
type BurnRate struct {
	DailyBurn decimal.Decimal
	DaysLeft  int
}

// Summary is the weekly digest payload.
type Summary struct {
	Wallets       core.WalletPair
	TotalSpent    decimal.Decimal
	TotalReceived decimal.Decimal
	DailyAverage  decimal.Decimal
	Burn          BurnRate
	TopCategories []CategoryTotal
	OpenLoans     []core.LendingRecord
}

// Engine computes insights over a bounded history window.
type Engine struct {
	reader Reader
}

func New(reader Reader) *Engine {
	return &Engine{reader: reader}
}

// DailyAverage is the mean daily expense spend over the past days.
// Days without spend count toward the divisor.
func (e *Engine) DailyAverage(ctx context.Context, userID string, days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, nil
	}
	history, err := e.reader.RecentTransactions(ctx, userID, store.Window{
		MaxAge: time.Duration(days) * 24 * time.Hour,
	})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, tx := range history {
		if tx.Kind == core.KindExpense {
			total = total.Add(tx.Amount)
		}
	}
	return total.DivRound(decimal.NewFromInt(int64(days)), 2), nil
}

// CategoryTotals sums expense spend per category over the period,
// sorted by total descending, with each category's share of the whole.
func (e *Engine) CategoryTotals(ctx context.Context, userID string, days int) ([]CategoryTotal, error) {
	history, err := e.reader.RecentTransactions(ctx, userID, store.Window{
		MaxAge: time.Duration(days) * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	totals := map[string]decimal.Decimal{}
	grand := decimal.Zero
	for _, tx := range history {
		if tx.Kind != core.KindExpense {
			continue
		}
		category := tx.Category
		if category == "" {
			category = "other"
		}
		totals[category] = totals[category].Add(tx.Amount)
		grand = grand.Add(tx.Amount)
	}

	out := make([]CategoryTotal, 0, len(totals))
	for category, total := range totals {
		ct := CategoryTotal{Category: category, Total: total}
		if grand.IsPositive() {
			ct.Share = total.Div(grand).Mul(decimal.NewFromInt(100)).Round(1)
		}
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// Burn estimates the wallet's daily drain over the past days and how
// many whole days the current balance lasts at that pace.
func (e *Engine) Burn(ctx context.Context, userID string, days int) (BurnRate, error) {
	if days <= 0 {
		return BurnRate{DaysLeft: -1}, nil
	}
	history, err := e.reader.RecentTransactions(ctx, userID, store.Window{
		MaxAge: time.Duration(days) * 24 * time.Hour,
	})
	if err != nil {
		return BurnRate{}, err
	}

	spent := decimal.Zero
	for _, tx := range history {
		if tx.Kind == core.KindExpense || tx.Kind == core.KindLend {
			spent = spent.Add(tx.Amount)
		}
	}

	burn := BurnRate{
		DailyBurn: spent.DivRound(decimal.NewFromInt(int64(days)), 2),
		DaysLeft:  -1,
	}
	if !burn.DailyBurn.IsPositive() {
		return burn, nil
	}

	wallets, err := e.reader.Wallets(ctx, userID)
	if err != nil {
		return BurnRate{}, err
	}
	burn.DaysLeft = int(wallets.Wallet.Div(burn.DailyBurn).IntPart())
	return burn, nil
}

// WeeklySummary assembles the digest for the past seven days.
func (e *Engine) WeeklySummary(ctx context.Context, userID string) (*Summary, error) {
	const days = 7

	history, err := e.reader.RecentTransactions(ctx, userID, store.Window{
		MaxAge: days * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalSpent:    decimal.Zero,
		TotalReceived: decimal.Zero,
	}
	for _, tx := range history {
		switch tx.Kind {
		case core.KindExpense, core.KindLend:
			summary.TotalSpent = summary.TotalSpent.Add(tx.Amount)
		case core.KindIncome, core.KindReceivePayment:
			summary.TotalReceived = summary.TotalReceived.Add(tx.Amount)
		}
	}
	summary.DailyAverage = summary.TotalSpent.DivRound(decimal.NewFromInt(days), 2)

	if summary.Wallets, err = e.reader.Wallets(ctx, userID); err != nil {
		return nil, err
	}
	if summary.Burn, err = e.Burn(ctx, userID, days); err != nil {
		return nil, err
	}
	if summary.TopCategories, err = e.CategoryTotals(ctx, userID, days); err != nil {
		return nil, err
	}
	if len(summary.TopCategories) > 5 {
		summary.TopCategories = summary.TopCategories[:5]
	}

	loans, err := e.reader.ListLending(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, rec := range loans {
		if !rec.Closed() {
			summary.OpenLoans = append(summary.OpenLoans, rec)
		}
	}
	return summary, nil
}
