package google

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/natashamaes/concierge/domain/repositories"
)

const callLogRange = "Sheet1!A:A"

// CallLogSheet appends call report rows to a Google Sheet
type CallLogSheet struct {
	service       *sheets.Service
	spreadsheetID string
	logger        *zap.Logger
}

var _ repositories.CallLog = (*CallLogSheet)(nil)

// NewCallLogSheet creates a sheet adapter. opts are passed to the API client.
func NewCallLogSheet(ctx context.Context, spreadsheetID string, logger *zap.Logger, opts ...option.ClientOption) (*CallLogSheet, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &CallLogSheet{service: service, spreadsheetID: spreadsheetID, logger: logger}, nil
}

// NewCallLogSheetFromCredentials authenticates with creds
func NewCallLogSheetFromCredentials(ctx context.Context, creds Credentials, spreadsheetID string, logger *zap.Logger) (*CallLogSheet, error) {
	ts, err := creds.TokenSource(ctx, SpreadsheetsScope)
	if err != nil {
		return nil, err
	}
	return NewCallLogSheet(ctx, spreadsheetID, logger, option.WithTokenSource(ts))
}

// Append implements repositories.CallLog
func (s *CallLogSheet) Append(ctx context.Context, row []interface{}) error {
	body := &sheets.ValueRange{Values: [][]interface{}{row}}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, callLogRange, body).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append call log row: %w", err)
	}

	updated := int64(0)
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedCells
	}
	s.logger.Info("Logged call to sheet", zap.Int64("updatedCells", updated))
	return nil
}
