// Package google is the Google Sheets adapter for the ledger mirror.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "paylog/internal/sheets"
)

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	lendingSheet      string
}

// Ensure interface conformance
var _ ports.Mirror = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID plus service account credentials.
// Optional worksheet names: GOOGLE_TRANSACTIONS_SHEET_NAME (default
// "transactions"), GOOGLE_LENDING_SHEET_NAME (default "lending").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	transactionsSheet := strings.TrimSpace(os.Getenv("GOOGLE_TRANSACTIONS_SHEET_NAME"))
	if transactionsSheet == "" {
		transactionsSheet = "transactions"
	}
	lendingSheet := strings.TrimSpace(os.Getenv("GOOGLE_LENDING_SHEET_NAME"))
	if lendingSheet == "" {
		lendingSheet = "lending"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:               svc,
		spreadsheetID:     spreadsheetID,
		transactionsSheet: transactionsSheet,
		lendingSheet:      lendingSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) AppendTransaction(ctx context.Context, row ports.TransactionRow) error {
	values := []any{
		row.Date,
		row.Kind,
		row.Amount,
		row.Category,
		row.Merchant,
		row.Counterparty,
		row.BalanceTotal,
		row.BalanceWallet,
		row.Note,
	}
	if err := c.append(ctx, c.transactionsSheet, values); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction mirrored to Google Sheets",
		"kind", row.Kind,
		"amount", row.Amount,
		"sheet", c.transactionsSheet)
	return nil
}

func (c *Client) AppendLending(ctx context.Context, row ports.LendingRow) error {
	values := []any{
		row.Date,
		row.Counterparty,
		row.Amount,
		row.Status,
		row.Remaining,
		row.Note,
	}
	if err := c.append(ctx, c.lendingSheet, values); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Lending movement mirrored to Google Sheets",
		"counterparty", row.Counterparty,
		"status", row.Status,
		"sheet", c.lendingSheet)
	return nil
}

func (c *Client) append(ctx context.Context, sheet string, values []any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{values}}

	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}
