// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/breatheroute/aqcollect/internal/airquality"
)

// ErrMissingAPIKey is returned when OPENWEATHER_API_KEY is not set.
var ErrMissingAPIKey = errors.New("OPENWEATHER_API_KEY environment variable not set")

// Config holds all process configuration.
type Config struct {
	APIKey  string
	BaseURL string

	// Locations is empty when AQ_LOCATIONS is unset; the collector then
	// uses its built-in defaults.
	Locations []airquality.Location

	LocalOutput string
	CloudOutput string
	StatusFile  string
	LogFile     string
	LogLevel    string

	Sheets   SheetsConfig
	Postgres PostgresMirrorConfig
	PubSub   PubSubConfig

	Port string
	Env  string
}

// SheetsConfig configures the spreadsheet mirror.
type SheetsConfig struct {
	CredentialsFile string
	SpreadsheetID   string
	Worksheet       string
}

// Enabled reports whether the spreadsheet mirror is configured.
func (c SheetsConfig) Enabled() bool {
	return c.SpreadsheetID != ""
}

// PostgresMirrorConfig configures the table mirror. Connection settings come
// from database.ConfigFromEnv.
type PostgresMirrorConfig struct {
	Enabled bool
	Table   string
}

// PubSubConfig configures the worker's run trigger subscription.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// Enabled reports whether a subscription is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Subscription != ""
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	// A missing .env file is expected outside local development.
	_ = godotenv.Load()

	return FromEnv()
}

// FromEnv builds the configuration from the current environment.
func FromEnv() (*Config, error) {
	locations, err := ParseLocations(os.Getenv("AQ_LOCATIONS"))
	if err != nil {
		return nil, fmt.Errorf("AQ_LOCATIONS: %w", err)
	}

	cfg := &Config{
		APIKey:      strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")),
		BaseURL:     getEnv("OPENWEATHER_BASE_URL", ""),
		Locations:   locations,
		LocalOutput: getEnv("AQ_LOCAL_OUTPUT", "./aqi_cleaned_data.csv"),
		CloudOutput: getEnv("AQ_CLOUD_OUTPUT", ""),
		StatusFile:  getEnv("AQ_STATUS_FILE", "./status.json"),
		LogFile:     getEnv("AQ_LOG_FILE", "./collection.log"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Sheets: SheetsConfig{
			CredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", ""),
			SpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
			Worksheet:       getEnv("SHEETS_WORKSHEET", "aqi_cleaned_data"),
		},
		Postgres: PostgresMirrorConfig{
			Enabled: getEnvBool("MIRROR_POSTGRES_ENABLED", false),
			Table:   getEnv("MIRROR_POSTGRES_TABLE", "aqi_readings"),
		},
		PubSub: PubSubConfig{
			ProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
			Subscription: getEnv("PUBSUB_SUBSCRIPTION", ""),
		},
		Port: getEnv("APP_PORT", "8080"),
		Env:  getEnv("APP_ENV", "local"),
	}

	return cfg, nil
}

// Validate reports configuration that prevents a collection run.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ParseLocations parses "Name:lat:lon;Name:lat:lon". An empty string yields
// no locations.
func ParseLocations(s string) ([]airquality.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var locations []airquality.Location
	seen := make(map[string]bool)

	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid location %q: want Name:lat:lon", entry)
		}

		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("invalid location %q: empty name", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate location %q", name)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude for %q", name)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude for %q", name)
		}

		seen[name] = true
		locations = append(locations, airquality.Location{Name: name, Lat: lat, Lon: lon})
	}

	return locations, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
