package history

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/breatheroute/aqcollect/internal/airquality"
)

// ReadCSV parses stored dataset rows. Derived columns are ignored and
// recomputed on merge. An empty input yields no records.
//
// Syntax errors, ragged rows, invalid UTF-8 and a header without timestamp
// and location (or city) columns are reported as errors wrapping ErrUnreadable.
func ReadCSV(r io.Reader) ([]Record, error) {
	// skip BOM if present
	br := bufio.NewReader(r)
	if first3, _ := br.Peek(3); len(first3) == 3 && first3[0] == 0xEF && first3[1] == 0xBB && first3[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrUnreadable, err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var records []Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}

		for _, f := range fields {
			if !utf8.ValidString(f) {
				line, _ := cr.FieldPos(0)
				return nil, fmt.Errorf("%w: invalid UTF-8 on line %d", ErrUnreadable, line)
			}
		}

		records = append(records, cols.record(fields))
	}

	return records, nil
}

type columnIndex struct {
	timestamp  int
	location   int
	aqi        int
	pollutants map[airquality.Pollutant]int
}

func mapColumns(header []string) (*columnIndex, error) {
	cols := &columnIndex{
		timestamp:  -1,
		location:   -1,
		aqi:        -1,
		pollutants: make(map[airquality.Pollutant]int),
	}

	known := make(map[string]airquality.Pollutant, len(airquality.Pollutants))
	for _, p := range airquality.Pollutants {
		known[string(p)] = p
	}

	for i, h := range header {
		if !utf8.ValidString(h) {
			return nil, fmt.Errorf("%w: invalid UTF-8 in header", ErrUnreadable)
		}
		name := strings.ToLower(strings.TrimSpace(h))

		switch name {
		case ColumnTimestamp:
			cols.timestamp = i
		case ColumnLocation:
			cols.location = i
		case legacyColumnCity:
			if cols.location < 0 {
				cols.location = i
			}
		case ColumnAQI:
			cols.aqi = i
		default:
			if p, ok := known[name]; ok {
				cols.pollutants[p] = i
			}
		}
	}

	if cols.timestamp < 0 {
		return nil, fmt.Errorf("%w: missing %q column", ErrUnreadable, ColumnTimestamp)
	}
	if cols.location < 0 {
		return nil, fmt.Errorf("%w: missing %q column", ErrUnreadable, ColumnLocation)
	}

	return cols, nil
}

func (c *columnIndex) record(fields []string) Record {
	rec := Record{
		Timestamp: fields[c.timestamp],
		Location:  strings.TrimSpace(fields[c.location]),
	}
	if c.aqi >= 0 {
		rec.AQI = parseAQI(fields[c.aqi])
	}

	for _, p := range airquality.Pollutants {
		i, ok := c.pollutants[p]
		if ok {
			if v, parsed := parseConcentration(fields[i]); parsed {
				rec.Components.Set(p, v)
				continue
			}
		}
		if rec.Missing == nil {
			rec.Missing = make(map[airquality.Pollutant]bool)
		}
		rec.Missing[p] = true
	}

	return rec
}

// WriteCSV writes the header and every row of the dataset.
func WriteCSV(w io.Writer, d *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	if d != nil {
		for _, row := range d.Rows {
			if err := cw.Write(row.Strings()); err != nil {
				return fmt.Errorf("writing row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
