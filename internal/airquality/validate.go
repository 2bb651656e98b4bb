package airquality

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError describes why a reading was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Validate checks required fields and plausible value ranges.
// It returns a *ValidationError describing the first problem found.
func (r Reading) Validate() error {
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing"}
	}
	if strings.TrimSpace(r.Location) == "" {
		return &ValidationError{Field: "location", Reason: "missing"}
	}
	if r.AQI == 0 {
		return &ValidationError{Field: "aqi", Reason: "missing"}
	}
	if r.AQI < MinAQI || r.AQI > MaxAQI {
		return &ValidationError{Field: "aqi", Reason: fmt.Sprintf("out of range: %d", r.AQI)}
	}

	pm25 := r.Components.PM25
	if math.IsNaN(pm25) || pm25 < 0 || pm25 > MaxReadingPM25 {
		return &ValidationError{
			Field:  string(PollutantPM25),
			Reason: fmt.Sprintf("out of reasonable range: %g", pm25),
		}
	}

	pm10 := r.Components.PM10
	if math.IsNaN(pm10) || pm10 < 0 {
		return &ValidationError{
			Field:  string(PollutantPM10),
			Reason: fmt.Sprintf("out of reasonable range: %g", pm10),
		}
	}

	return nil
}

// IsValid reports whether Validate finds no problem.
func (r Reading) IsValid() bool {
	return r.Validate() == nil
}
