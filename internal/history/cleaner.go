package history

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/internal/airquality"
)

// MergeStats reports what a merge removed or repaired.
type MergeStats struct {
	Input             int
	Duplicates        int
	InvalidTimestamps int
	Filled            map[airquality.Pollutant]int
	Outliers          int
	Output            int
}

// Cleaner merges new records into the historical dataset.
type Cleaner struct {
	logger zerolog.Logger
}

// NewCleaner creates a new cleaner.
func NewCleaner(logger zerolog.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Merge concatenates existing and incoming records and cleans the result:
// duplicates on (timestamp, location) keep the last occurrence, rows with
// unparseable timestamps are dropped, missing pollutant values become zero,
// derived columns are computed, outliers are dropped and rows are sorted
// newest first (ties by location).
//
// The result is verified before it is returned; a violation is an error
// wrapping ErrIntegrity and the dataset must not be persisted.
func (c *Cleaner) Merge(existing, incoming []Record) (*Dataset, MergeStats, error) {
	combined := make([]Record, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	stats := MergeStats{
		Input:  len(combined),
		Filled: make(map[airquality.Pollutant]int),
	}

	c.logger.Info().Int("rows", stats.Input).Msg("starting data cleaning")

	deduped := dedupe(combined)
	stats.Duplicates = len(combined) - len(deduped)
	if stats.Duplicates > 0 {
		c.logger.Info().Int("count", stats.Duplicates).Msg("removed duplicate records")
	}

	rows := make([]Row, 0, len(deduped))
	for _, rec := range deduped {
		ts, ok := ParseTimestamp(rec.Timestamp)
		if !ok {
			stats.InvalidTimestamps++
			continue
		}

		components := rec.Components
		for p, missing := range rec.Missing {
			if missing {
				components.Set(p, 0)
				stats.Filled[p]++
			}
		}

		row := NewRow(ts, rec.Location, rec.AQI, components)
		if outlierReason(row.Components) != "" {
			stats.Outliers++
			continue
		}
		rows = append(rows, row)
	}

	if stats.InvalidTimestamps > 0 {
		c.logger.Warn().Int("count", stats.InvalidTimestamps).Msg("removed rows with invalid timestamps")
	}
	for _, p := range airquality.Pollutants {
		if n := stats.Filled[p]; n > 0 {
			c.logger.Info().Str("column", string(p)).Int("count", n).Msg("filled missing values")
		}
	}
	if stats.Outliers > 0 {
		c.logger.Warn().Int("count", stats.Outliers).Msg("removed extreme outlier records")
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Timestamp.After(rows[j].Timestamp)
		}
		return rows[i].Location < rows[j].Location
	})

	ds := &Dataset{Rows: rows}
	if err := ds.Verify(); err != nil {
		return nil, stats, fmt.Errorf("verifying merged dataset: %w", err)
	}

	stats.Output = ds.Len()
	c.logger.Info().Int("rows", stats.Output).Msg("data cleaning complete")

	return ds, stats, nil
}

// dedupe keeps the last record for each (timestamp, location) key, at the
// position of that last occurrence. Parseable timestamps are compared as
// instants so equivalent spellings collide.
func dedupe(records []Record) []Record {
	last := make(map[string]int, len(records))
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = dedupeKey(rec)
		last[keys[i]] = i
	}

	out := make([]Record, 0, len(last))
	for i, rec := range records {
		if last[keys[i]] == i {
			out = append(out, rec)
		}
	}
	return out
}

func dedupeKey(rec Record) string {
	ts := "raw:" + rec.Timestamp
	if t, ok := ParseTimestamp(rec.Timestamp); ok {
		ts = "t:" + strconv.FormatInt(t.UnixNano(), 10)
	}
	return ts + "\x00" + rec.Location
}
