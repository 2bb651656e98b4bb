package history

import (
	"fmt"
	"math"
	"strconv"

	"github.com/breatheroute/aqcollect/internal/airquality"
)

// Column names in on-disk order.
const (
	ColumnTimestamp   = "timestamp"
	ColumnLocation    = "location"
	ColumnAQI         = "aqi"
	ColumnDate        = "date"
	ColumnHour        = "hour"
	ColumnDayOfWeek   = "day_of_week"
	ColumnMonth       = "month"
	ColumnYear        = "year"
	ColumnWeekNumber  = "week_number"
	ColumnAQICategory = "aqi_category"

	// legacyColumnCity is accepted on read as an alias of ColumnLocation.
	legacyColumnCity = "city"
)

// Header returns the dataset column names in order.
func Header() []string {
	header := []string{ColumnTimestamp, ColumnLocation, ColumnAQI}
	for _, p := range airquality.Pollutants {
		header = append(header, string(p))
	}
	return append(header,
		ColumnDate, ColumnHour, ColumnDayOfWeek, ColumnMonth,
		ColumnYear, ColumnWeekNumber, ColumnAQICategory,
	)
}

// Dataset is the cleaned historical record, ordered newest first.
type Dataset struct {
	Rows []Row
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Verify checks the dataset invariants: unique (timestamp, location), set
// timestamps, plausible pollutant ranges and newest-first order.
// Violations are reported as errors wrapping ErrIntegrity.
func (d *Dataset) Verify() error {
	seen := make(map[rowKey]struct{}, d.Len())

	for i, row := range d.Rows {
		if row.Timestamp.IsZero() {
			return fmt.Errorf("%w: row %d has no timestamp", ErrIntegrity, i)
		}

		k := rowKey{unix: row.Timestamp.UnixNano(), location: row.Location}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate row for %s at %s", ErrIntegrity, row.Location, row.Timestamp.Format(TimestampLayout))
		}
		seen[k] = struct{}{}

		if reason := outlierReason(row.Components); reason != "" {
			return fmt.Errorf("%w: row %d: %s", ErrIntegrity, i, reason)
		}

		if i > 0 && row.Timestamp.After(d.Rows[i-1].Timestamp) {
			return fmt.Errorf("%w: row %d is newer than row %d", ErrIntegrity, i, i-1)
		}
	}

	return nil
}

type rowKey struct {
	unix     int64
	location string
}

// outlierReason returns why components are implausible, or "" when they are not.
func outlierReason(c airquality.Components) string {
	if c.PM25 < 0 || c.PM25 > airquality.MaxStoredPM25 {
		return fmt.Sprintf("pm2_5 %g outside [0, %g]", c.PM25, airquality.MaxStoredPM25)
	}
	if c.PM10 < 0 || c.PM10 > airquality.MaxStoredPM10 {
		return fmt.Sprintf("pm10 %g outside [0, %g]", c.PM10, airquality.MaxStoredPM10)
	}
	for _, p := range airquality.Pollutants {
		if v := c.Get(p); v < 0 {
			return fmt.Sprintf("%s %g is negative", p, v)
		}
	}
	return ""
}

// Strings renders the row as CSV fields in Header order.
func (r Row) Strings() []string {
	fields := []string{
		r.Timestamp.Format(TimestampLayout),
		r.Location,
		formatAQI(r.AQI),
	}
	for _, p := range airquality.Pollutants {
		fields = append(fields, strconv.FormatFloat(r.Components.Get(p), 'f', -1, 64))
	}
	return append(fields,
		r.Date,
		strconv.Itoa(r.Hour),
		r.DayOfWeek,
		r.Month,
		strconv.Itoa(r.Year),
		strconv.Itoa(r.WeekNumber),
		string(r.Category),
	)
}

func formatAQI(aqi int) string {
	if aqi == 0 {
		return ""
	}
	return strconv.Itoa(aqi)
}

// Values renders every row as JSON-safe scalars in Header order, for
// spreadsheet-style sinks. Non-finite floats become nil.
func (d *Dataset) Values() [][]interface{} {
	values := make([][]interface{}, 0, d.Len())
	for _, r := range d.Rows {
		row := []interface{}{
			r.Timestamp.Format(TimestampLayout),
			r.Location,
			aqiValue(r.AQI),
		}
		for _, p := range airquality.Pollutants {
			row = append(row, finiteOrNil(r.Components.Get(p)))
		}
		row = append(row,
			r.Date,
			r.Hour,
			r.DayOfWeek,
			r.Month,
			r.Year,
			r.WeekNumber,
			string(r.Category),
		)
		values = append(values, row)
	}
	return values
}

func aqiValue(aqi int) interface{} {
	if aqi == 0 {
		return nil
	}
	return aqi
}

func finiteOrNil(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
