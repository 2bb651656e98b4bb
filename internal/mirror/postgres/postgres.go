// Package postgres mirrors the dataset to a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/internal/history"
)

// DefaultTable is the mirror table used when none is configured.
const DefaultTable = "aqi_readings"

// Beginner starts transactions. *pgxpool.Pool satisfies this interface.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Sink replaces the mirror table content in a single transaction.
type Sink struct {
	db     Beginner
	table  pgx.Identifier
	logger zerolog.Logger
}

// New creates a Postgres sink. table may be schema-qualified ("schema.table").
func New(db Beginner, table string, logger zerolog.Logger) (*Sink, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if table == "" {
		table = DefaultTable
	}

	ident := pgx.Identifier(strings.Split(table, "."))
	for _, part := range ident {
		if part == "" {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}

	return &Sink{
		db:     db,
		table:  ident,
		logger: logger.With().Str("sink", "postgres").Logger(),
	}, nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "postgres"
}

// Columns returns the mirror table columns in copy order.
func Columns() []string {
	return history.Header()
}

// Replace creates the table if needed, deletes every row and copies the
// dataset in, atomically.
func (s *Sink) Replace(ctx context.Context, ds *history.Dataset) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	if _, err = tx.Exec(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if _, err = tx.Exec(ctx, "DELETE FROM "+s.table.Sanitize()); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, s.table, Columns(), pgx.CopyFromRows(rowValues(ds)))
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().Int64("rows", copied).Str("table", s.table.Sanitize()).Msg("table refreshed")
	return nil
}

func (s *Sink) createTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.table.Sanitize() + ` (
		timestamp    TIMESTAMP NOT NULL,
		location     TEXT NOT NULL,
		aqi          INTEGER,
		pm2_5        DOUBLE PRECISION NOT NULL,
		pm10         DOUBLE PRECISION NOT NULL,
		no2          DOUBLE PRECISION NOT NULL,
		so2          DOUBLE PRECISION NOT NULL,
		co           DOUBLE PRECISION NOT NULL,
		o3           DOUBLE PRECISION NOT NULL,
		nh3          DOUBLE PRECISION NOT NULL,
		date         DATE NOT NULL,
		hour         INTEGER NOT NULL,
		day_of_week  TEXT NOT NULL,
		month        TEXT NOT NULL,
		year         INTEGER NOT NULL,
		week_number  INTEGER NOT NULL,
		aqi_category TEXT NOT NULL,
		PRIMARY KEY (timestamp, location)
	)`
}

// rowValues converts dataset rows to copy rows in Columns order.
func rowValues(ds *history.Dataset) [][]any {
	rows := make([][]any, 0, ds.Len())
	if ds == nil {
		return rows
	}

	for _, r := range ds.Rows {
		var aqi any
		if r.AQI != 0 {
			aqi = int32(r.AQI)
		}

		values := []any{r.Timestamp, r.Location, aqi}
		for _, p := range airquality.Pollutants {
			values = append(values, r.Components.Get(p))
		}

		y, m, d := r.Timestamp.Date()
		values = append(values,
			time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			int32(r.Hour),
			r.DayOfWeek,
			r.Month,
			int32(r.Year),
			int32(r.WeekNumber),
			string(r.Category),
		)
		rows = append(rows, values)
	}
	return rows
}
