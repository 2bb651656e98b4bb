// Package worker runs air quality collection jobs.
package worker

import (
	"github.com/breatheroute/aqcollect/internal/airquality"
)

// CollectConfig holds configuration for the collection job.
type CollectConfig struct {
	// Locations are the monitored points, fetched in order.
	// If empty, uses DefaultLocations.
	Locations []airquality.Location

	// ProbeLocation is used for the API key check.
	// Default: the first location
	ProbeLocation *airquality.Location
}

// DefaultCollectConfig returns the default collection configuration.
func DefaultCollectConfig() CollectConfig {
	return CollectConfig{
		Locations: DefaultLocations(),
	}
}

// DefaultLocations returns the built-in monitored locations.
func DefaultLocations() []airquality.Location {
	return []airquality.Location{
		{Name: "Delhi", Lat: 28.6139, Lon: 77.2090},
		{Name: "Udaipur", Lat: 24.5854, Lon: 73.7125},
	}
}

// Probe returns the location used to validate the API key.
func (c CollectConfig) Probe() airquality.Location {
	if c.ProbeLocation != nil {
		return *c.ProbeLocation
	}
	if len(c.Locations) > 0 {
		return c.Locations[0]
	}
	return DefaultLocations()[0]
}
