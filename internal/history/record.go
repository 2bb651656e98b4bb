// Package history maintains the cleaned historical dataset of air quality
// readings and persists it as a CSV file.
package history

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/breatheroute/aqcollect/internal/airquality"
)

// TimestampLayout is the canonical on-disk timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the format of the derived date column.
const DateLayout = "2006-01-02"

// Errors returned by the history package.
var (
	// ErrIntegrity is returned when a merged dataset violates its invariants.
	ErrIntegrity = errors.New("dataset integrity violation")

	// ErrUnreadable is returned when stored data cannot be parsed as a table.
	ErrUnreadable = errors.New("unreadable dataset")

	// ErrLoad is returned when the stored dataset cannot be loaded or backed up.
	ErrLoad = errors.New("loading dataset failed")

	// ErrMerge is returned when merging new readings into the dataset fails.
	ErrMerge = errors.New("merging dataset failed")

	// ErrWrite is returned when the canonical dataset file cannot be written.
	ErrWrite = errors.New("writing dataset failed")

	// ErrNoReadings is returned when Persist is called without readings.
	ErrNoReadings = errors.New("no readings to persist")
)

// Record is one row before cleaning, either loaded from the store or
// converted from a fresh reading.
type Record struct {
	// Timestamp is the raw timestamp text.
	Timestamp string

	Location string

	// AQI is 0 when the source value is absent or unparseable.
	AQI int

	Components airquality.Components

	// Missing marks pollutant columns that were absent or unparseable.
	Missing map[airquality.Pollutant]bool
}

// RecordFromReading converts a validated reading into a record.
func RecordFromReading(r airquality.Reading) Record {
	return Record{
		Timestamp:  r.Timestamp.Format(TimestampLayout),
		Location:   r.Location,
		AQI:        r.AQI,
		Components: r.Components,
	}
}

// RecordsFromReadings converts readings into records, preserving order.
func RecordsFromReadings(readings []airquality.Reading) []Record {
	records := make([]Record, 0, len(readings))
	for _, r := range readings {
		records = append(records, RecordFromReading(r))
	}
	return records
}

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses stored timestamp text. Zone-less values are
// interpreted in local time; values carrying an offset are converted to it.
// The result is truncated to the second, the precision written to disk.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(time.Local).Truncate(time.Second), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}

func parseAQI(s string) int {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f) {
		return int(f)
	}
	return 0
}

// parseConcentration returns false for empty, unparseable or non-finite values.
func parseConcentration(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Row is one cleaned dataset row with its derived analysis columns.
type Row struct {
	Timestamp  time.Time
	Location   string
	AQI        int
	Components airquality.Components

	Date       string
	Hour       int
	DayOfWeek  string
	Month      string
	Year       int
	WeekNumber int
	Category   airquality.Category
}

// NewRow builds a row and derives its analysis columns from the timestamp and AQI.
func NewRow(ts time.Time, location string, aqi int, c airquality.Components) Row {
	_, week := ts.ISOWeek()
	category, _ := airquality.CategoryForAQI(aqi)

	return Row{
		Timestamp:  ts,
		Location:   location,
		AQI:        aqi,
		Components: c,
		Date:       ts.Format(DateLayout),
		Hour:       ts.Hour(),
		DayOfWeek:  ts.Weekday().String(),
		Month:      ts.Month().String(),
		Year:       ts.Year(),
		WeekNumber: week,
		Category:   category,
	}
}
