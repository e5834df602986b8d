// Package worker hosts the background consumers: the spreadsheet
// mirror fed by ledger events and the periodic digest.
package worker

import (
	"context"
	"fmt"

	"paylog/internal/core"
	"paylog/internal/events"
	"paylog/internal/log"
	"paylog/internal/sheets"
	"paylog/internal/store"
)

// MirrorWorker turns committed-ledger events into spreadsheet rows.
// Handler errors propagate so the broker requeues the delivery.
type MirrorWorker struct {
	reader store.LendingReader
	mirror sheets.Mirror
	logger *log.Logger
}

func NewMirrorWorker(reader store.LendingReader, mirror sheets.Mirror, logger *log.Logger) *MirrorWorker {
	return &MirrorWorker{
		reader: reader,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent mirrors one ledger event. Debt-cleared events carry no
// new row of their own; the payment that cleared the debt was already
// mirrored by its transaction-committed sibling.
func (w *MirrorWorker) HandleEvent(ctx context.Context, event *events.LedgerEvent) error {
	if event.Kind == events.KindDebtCleared {
		w.logger.InfoContext(ctx, "Debt cleared",
			log.FieldUserID, event.UserID,
			log.FieldCounterparty, event.Counterparty)
		return nil
	}

	row := sheets.TransactionRow{
		Date:          event.OccurredAt,
		Kind:          event.TransactionKind,
		Amount:        event.Amount,
		Category:      event.Category,
		Merchant:      event.Merchant,
		Counterparty:  event.Counterparty,
		BalanceTotal:  event.BalanceTotal,
		BalanceWallet: event.BalanceWallet,
		Note:          event.CommitID,
	}
	if err := w.mirror.AppendTransaction(ctx, row); err != nil {
		return fmt.Errorf("mirror transaction: %w", err)
	}

	kind := core.Kind(event.TransactionKind)
	if kind == core.KindLend || kind == core.KindReceivePayment {
		if err := w.mirrorLending(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (w *MirrorWorker) mirrorLending(ctx context.Context, event *events.LedgerEvent) error {
	record, err := w.reader.Lending(ctx, event.UserID, event.Counterparty)
	if err != nil {
		return fmt.Errorf("read lending record for mirror: %w", err)
	}

	row := sheets.LendingRow{
		Date:         event.OccurredAt,
		Counterparty: event.Counterparty,
		Amount:       event.Amount,
		Note:         event.CommitID,
	}
	switch {
	case record == nil:
		row.Status = "unknown"
	case core.Kind(event.TransactionKind) == core.KindLend:
		row.Status = "lent"
		row.Remaining = record.Principal.String()
	case record.Closed():
		row.Status = "returned"
		row.Remaining = "0"
	default:
		row.Status = "partial"
		row.Remaining = record.Principal.String()
	}

	if err := w.mirror.AppendLending(ctx, row); err != nil {
		return fmt.Errorf("mirror lending movement: %w", err)
	}
	return nil
}
