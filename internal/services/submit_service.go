// Package services wires the parsing, resolution and ledger stages
// into the submit pipeline the transport layer calls.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/events"
	"paylog/internal/ledger"
	"paylog/internal/log"
	"paylog/internal/parser"
	"paylog/internal/resolver"
	"paylog/internal/store"
)

// SubmitResult is the post-commit view handed back to the transport
// layer, plus an optional wallet hint for the reply message.
type SubmitResult struct {
	Transaction core.Transaction
	Commit      *store.CommitResult
	// Hint is a human-readable nudge, e.g. to top up a nearly empty
	// wallet from the total stack. Empty when there is nothing to say.
	Hint string
}

// SubmitService runs raw text through parse, resolve and commit, then
// publishes the resulting ledger events. Event publishing is
// best-effort: a broker outage never fails a committed transaction.
type SubmitService struct {
	parser    *parser.Orchestrator
	resolver  *resolver.Resolver
	ledger    *ledger.Engine
	publisher events.Publisher
	logger    *log.Logger

	lowWalletThreshold decimal.Decimal
}

func NewSubmitService(
	p *parser.Orchestrator,
	r *resolver.Resolver,
	l *ledger.Engine,
	pub events.Publisher,
	lowWalletThreshold decimal.Decimal,
	logger *log.Logger,
) *SubmitService {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &SubmitService{
		parser:             p,
		resolver:           r,
		ledger:             l,
		publisher:          pub,
		lowWalletThreshold: lowWalletThreshold,
		logger:             logger.WithComponent(log.ComponentApp),
	}
}

// Submit is the single inbound operation: raw text in, committed
// result (or a structured rejection / unresolved error) out. The
// idempotency token makes duplicate deliveries of the same message
// safe to replay.
func (s *SubmitService) Submit(ctx context.Context, rawText, userID string, receivedAt time.Time, token string) (*SubmitResult, error) {
	if token == "" {
		return nil, fmt.Errorf("empty idempotency token")
	}

	partial := s.parser.Parse(ctx, rawText, receivedAt)
	partial.RawText = rawText
	partial.ReceivedAt = receivedAt

	tx, err := s.resolver.Resolve(ctx, userID, partial)
	if err != nil {
		return nil, err
	}

	result, err := s.ledger.Commit(ctx, tx, token)
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.publishEvents(ctx, tx, result)
	}

	return &SubmitResult{
		Transaction: tx,
		Commit:      result,
		Hint:        s.walletHint(result.Wallets),
	}, nil
}

func (s *SubmitService) publishEvents(ctx context.Context, tx core.Transaction, result *store.CommitResult) {
	for _, event := range events.FromCommit(tx, result) {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish ledger event",
				log.FieldUserID, tx.UserID,
				log.FieldEvent, event.Kind,
				log.FieldError, err)
			// The commit stands; consumers catch up from the ledger.
		}
	}
}

// walletHint suggests a top-up transfer when the day-to-day wallet
// runs low while the total stack still has funds.
func (s *SubmitService) walletHint(wallets core.WalletPair) string {
	if s.lowWalletThreshold.IsZero() {
		return ""
	}
	if wallets.Wallet.LessThan(s.lowWalletThreshold) && wallets.TotalStack.IsPositive() {
		return fmt.Sprintf("wallet is down to %s; transfer from total stack to top up", wallets.Wallet)
	}
	return ""
}

// Close releases the event publisher.
func (s *SubmitService) Close() error {
	return s.publisher.Close()
}
