// Package airquality provides the air quality reading model shared by the
// collection pipeline.
package airquality

import (
	"time"
)

// Pollutant represents an air quality pollutant column.
type Pollutant string

const (
	PollutantPM25 Pollutant = "pm2_5"
	PollutantPM10 Pollutant = "pm10"
	PollutantNO2  Pollutant = "no2"
	PollutantSO2  Pollutant = "so2"
	PollutantCO   Pollutant = "co"
	PollutantO3   Pollutant = "o3"
	PollutantNH3  Pollutant = "nh3"
)

// Pollutants lists every tracked pollutant in column order.
var Pollutants = []Pollutant{
	PollutantPM25,
	PollutantPM10,
	PollutantNO2,
	PollutantSO2,
	PollutantCO,
	PollutantO3,
	PollutantNH3,
}

// AQI bounds and implausibility ceilings (μg/m³).
const (
	MinAQI = 1
	MaxAQI = 5

	// MaxReadingPM25 is the highest PM2.5 value accepted from the upstream API.
	MaxReadingPM25 = 2000.0

	// MaxStoredPM25 and MaxStoredPM10 bound what the historical dataset keeps.
	// Rows above either are treated as sensor or transmission errors.
	MaxStoredPM25 = 1500.0
	MaxStoredPM10 = 2000.0
)

// Category is the human readable label of an AQI index.
type Category string

const (
	CategoryGood     Category = "Good"
	CategoryFair     Category = "Fair"
	CategoryModerate Category = "Moderate"
	CategoryPoor     Category = "Poor"
	CategoryVeryPoor Category = "Very Poor"
)

var categories = map[int]Category{
	1: CategoryGood,
	2: CategoryFair,
	3: CategoryModerate,
	4: CategoryPoor,
	5: CategoryVeryPoor,
}

// CategoryForAQI maps an ordinal AQI index to its category.
// The second return value is false for indexes outside 1..5.
func CategoryForAQI(aqi int) (Category, bool) {
	c, ok := categories[aqi]
	return c, ok
}

// Location is a named monitored point.
type Location struct {
	Name string
	Lat  float64
	Lon  float64
}

// Components holds pollutant concentrations in μg/m³.
// Pollutants absent from the source are zero.
type Components struct {
	PM25 float64
	PM10 float64
	NO2  float64
	SO2  float64
	CO   float64
	O3   float64
	NH3  float64
}

// Get returns the concentration for a pollutant, or 0 for an unknown pollutant.
func (c Components) Get(p Pollutant) float64 {
	switch p {
	case PollutantPM25:
		return c.PM25
	case PollutantPM10:
		return c.PM10
	case PollutantNO2:
		return c.NO2
	case PollutantSO2:
		return c.SO2
	case PollutantCO:
		return c.CO
	case PollutantO3:
		return c.O3
	case PollutantNH3:
		return c.NH3
	default:
		return 0
	}
}

// Set updates the concentration for a pollutant. Unknown pollutants are ignored.
func (c *Components) Set(p Pollutant, v float64) {
	switch p {
	case PollutantPM25:
		c.PM25 = v
	case PollutantPM10:
		c.PM10 = v
	case PollutantNO2:
		c.NO2 = v
	case PollutantSO2:
		c.SO2 = v
	case PollutantCO:
		c.CO = v
	case PollutantO3:
		c.O3 = v
	case PollutantNH3:
		c.NH3 = v
	}
}

// Reading is a single fetched observation for one location.
type Reading struct {
	// Timestamp is when the reading was collected, at second precision.
	Timestamp time.Time

	// Location is the name of the monitored location.
	Location string

	// AQI is the upstream ordinal air quality index (1 = Good ... 5 = Very Poor).
	AQI int

	Components Components
}

// Category returns the category label for the reading's AQI.
func (r Reading) Category() Category {
	c, _ := CategoryForAQI(r.AQI)
	return c
}
