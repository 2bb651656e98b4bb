// Package sheets mirrors the dataset to a Google Sheets worksheet.
package sheets

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/breatheroute/aqcollect/internal/history"
)

// DefaultWorksheet is the worksheet title used when none is configured.
const DefaultWorksheet = "aqi_cleaned_data"

const (
	initialRows      = 1000
	valueInputOption = "USER_ENTERED"
)

// Config holds configuration for the Sheets sink.
type Config struct {
	// CredentialsFile is a service account JSON key (optional when
	// ClientOptions carry credentials).
	CredentialsFile string

	// SpreadsheetID identifies the target spreadsheet (required).
	SpreadsheetID string

	// Worksheet is the target worksheet title (defaults to DefaultWorksheet).
	Worksheet string

	// ClientOptions are passed to the Sheets service.
	ClientOptions []option.ClientOption

	Logger zerolog.Logger
}

// Sink replaces a worksheet's content with the dataset on every run.
type Sink struct {
	service       *sheets.Service
	spreadsheetID string
	worksheet     string
	logger        zerolog.Logger
}

// New creates a Sheets sink.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet ID is required")
	}

	worksheet := cfg.Worksheet
	if worksheet == "" {
		worksheet = DefaultWorksheet
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, cfg.ClientOptions...)

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Sink{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     worksheet,
		logger:        cfg.Logger.With().Str("sink", "sheets").Logger(),
	}, nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "sheets"
}

// Replace ensures the worksheet exists, clears it and writes the header and
// all rows.
func (s *Sink) Replace(ctx context.Context, ds *history.Dataset) error {
	if err := s.ensureWorksheet(ctx); err != nil {
		return err
	}

	if _, err := s.service.Spreadsheets.Values.
		Clear(s.spreadsheetID, s.worksheet, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("clearing worksheet: %w", err)
	}

	header := history.Header()
	values := make([][]interface{}, 0, ds.Len()+1)
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	values = append(values, headerRow)
	values = append(values, ds.Values()...)

	if _, err := s.service.Spreadsheets.Values.
		Append(s.spreadsheetID, s.worksheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		InsertDataOption("OVERWRITE").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}

	s.logger.Info().Int("rows", ds.Len()).Str("worksheet", s.worksheet).Msg("worksheet refreshed")
	return nil
}

func (s *Sink) ensureWorksheet(ctx context.Context) error {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("opening spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.worksheet {
			return nil
		}
	}

	s.logger.Info().Str("worksheet", s.worksheet).Msg("worksheet not found, adding it")

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: s.worksheet,
					GridProperties: &sheets.GridProperties{
						RowCount:    initialRows,
						ColumnCount: int64(len(history.Header())),
					},
				},
			},
		}},
	}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("adding worksheet: %w", err)
	}
	return nil
}
