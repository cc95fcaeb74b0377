// Package sheets mirrors appended ledger rows into a Google Sheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"facturas/internal/ledger"
	"facturas/internal/logger"
	"facturas/pkg/models"
)

const lastColumn = "H"

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// Mirror appends ledger rows to one worksheet of a spreadsheet.
type Mirror struct {
	sheetsService *sheets.Service
	spreadsheetID string
	worksheet     string
	log           zerolog.Logger

	mu    sync.Mutex
	ready bool
}

// NewMirror creates a mirror for the spreadsheet at sheetURL using service account credentials
// from GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.
func NewMirror(ctx context.Context, sheetURL, worksheet string) (*Mirror, error) {
	const op = "NewMirror"

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return NewMirrorWithService(sheetsService, spreadsheetID, worksheet), nil
}

// NewMirrorWithService creates a mirror over an existing Sheets client.
func NewMirrorWithService(sheetsService *sheets.Service, spreadsheetID, worksheet string) *Mirror {
	if worksheet == "" {
		worksheet = ledger.DefaultSheet
	}
	return &Mirror{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		log:           logger.WithComponent("sheets"),
	}
}

func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// AppendRows appends rows below the existing content of the worksheet.
func (m *Mirror) AppendRows(ctx context.Context, rows []models.LedgerRow) error {
	const op = "AppendRows"

	if len(rows) == 0 {
		return nil
	}

	if err := m.ensureSheetWithHeaders(ctx); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.Cells())
	}

	_, err := m.sheetsService.Spreadsheets.Values.Append(
		m.spreadsheetID,
		fmt.Sprintf("%s!A:%s", m.worksheet, lastColumn),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	m.log.Debug().
		Str("worksheet", m.worksheet).
		Int("rows_written", len(values)).
		Msg("Mirrored ledger rows to Google Sheet")

	return nil
}

// ensureSheetWithHeaders creates the worksheet and its header row on first use.
func (m *Mirror) ensureSheetWithHeaders(ctx context.Context) error {
	const op = "ensureSheetWithHeaders"

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}

	spreadsheet, err := m.sheetsService.Spreadsheets.Get(m.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	exists := false
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == m.worksheet {
			exists = true
			break
		}
	}

	if !exists {
		m.log.Info().Str("worksheet", m.worksheet).Msg("Creating new worksheet")
		_, err := m.sheetsService.Spreadsheets.BatchUpdate(m.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: m.worksheet}}},
			},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
	}

	headerRange := fmt.Sprintf("%s!A1:%s1", m.worksheet, lastColumn)
	resp, err := m.sheetsService.Spreadsheets.Values.Get(m.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		header := make([]interface{}, len(ledger.Header))
		for i, h := range ledger.Header {
			header[i] = h
		}
		_, err = m.sheetsService.Spreadsheets.Values.Update(
			m.spreadsheetID,
			headerRange,
			&sheets.ValueRange{Values: [][]interface{}{header}},
		).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to add headers: %w", op, err)
		}
	}

	m.ready = true
	return nil
}
