// Package openweathermap fetches air quality readings from the OpenWeatherMap
// Air Pollution API.
package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

// HTTPDoer abstracts HTTP request execution.
// Both *http.Client and *resilience.Client satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Retry overrides the fetch retry policy (optional).
	// If nil, uses resilience.DefaultRetryPolicy.
	Retry *resilience.RetryPolicy

	// Now returns the collection time (optional, defaults to time.Now).
	Now func() time.Time

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap Air Pollution API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	retry      resilience.RetryPolicy
	now        func() time.Time
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	retry := resilience.DefaultRetryPolicy()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		retry:      retry,
		now:        now,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// ValidateKey issues a single probe request for the given location.
// It returns airquality.ErrUnauthorized when the key is rejected, nil on
// HTTP 200, and a classifiable error for any other outcome. It never retries.
func (c *Client) ValidateKey(ctx context.Context, probe airquality.Location) error {
	c.logger.Info().Str("location", probe.Name).Msg("validating API key")

	resp, err := c.get(ctx, probe)
	if err != nil {
		c.logger.Warn().Err(err).Msg("API key probe failed")
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		if errors.Is(err, airquality.ErrUnauthorized) {
			c.logger.Error().Int("status", resp.StatusCode).Msg("API key rejected")
		} else {
			c.logger.Warn().Err(err).Msg("API key probe returned unexpected status")
		}
		return err
	}

	c.logger.Info().Msg("API key is valid")
	return nil
}

// FetchReading fetches the current reading for one location, retrying
// transient failures according to the retry policy. A rejected key is never
// retried. Failures are returned as *airquality.FetchError.
func (c *Client) FetchReading(ctx context.Context, loc airquality.Location) (*airquality.Reading, error) {
	var reading *airquality.Reading

	attempts, err := resilience.Retry(ctx, c.retry,
		func(attempt int) error {
			c.logger.Info().
				Str("location", loc.Name).
				Int("attempt", attempt).
				Int("max_attempts", c.retry.MaxAttempts).
				Msg("fetching air quality data")

			r, err := c.fetchOnce(ctx, loc)
			if err != nil {
				if errors.Is(err, airquality.ErrUnauthorized) || ctx.Err() != nil {
					return resilience.Permanent(err)
				}
				return err
			}

			reading = r
			return nil
		},
		func(attempt int, err error, wait time.Duration) {
			c.logger.Warn().
				Err(err).
				Str("location", loc.Name).
				Int("attempt", attempt).
				Str("kind", string(airquality.Classify(err))).
				Dur("retry_in", wait).
				Msg("fetch attempt failed, retrying")
		},
	)

	if err != nil {
		fetchErr := &airquality.FetchError{
			Location: loc.Name,
			Attempts: attempts,
			Kind:     airquality.Classify(err),
			Err:      err,
		}
		c.logger.Error().
			Err(err).
			Str("location", loc.Name).
			Int("attempts", attempts).
			Str("kind", string(fetchErr.Kind)).
			Msg("fetch failed")
		return nil, fetchErr
	}

	c.logger.Info().
		Str("location", loc.Name).
		Int("aqi", reading.AQI).
		Float64("pm2_5", reading.Components.PM25).
		Msg("fetched air quality data")

	return reading, nil
}

func (c *Client) fetchOnce(ctx context.Context, loc airquality.Location) (*airquality.Reading, error) {
	resp, err := c.get(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var apiResp airPollutionResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", airquality.ErrMalformedResponse, err)
	}

	return c.toReading(loc, &apiResp)
}

func (c *Client) get(ctx context.Context, loc airquality.Location) (*http.Response, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/air_pollution?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", c.redact(err))
	}
	return resp, nil
}

// redact strips the API key from URLs embedded in transport errors.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if c.apiKey != "" && errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.apiKey), "REDACTED")
	}
	return err
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized:
		return airquality.ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return airquality.ErrRateLimited
	default:
		return &airquality.StatusError{StatusCode: code}
	}
}

func (c *Client) toReading(loc airquality.Location, resp *airPollutionResponse) (*airquality.Reading, error) {
	if resp.List == nil {
		return nil, fmt.Errorf("%w: missing list", airquality.ErrMalformedResponse)
	}
	if len(*resp.List) == 0 {
		return nil, fmt.Errorf("%w: empty list", airquality.ErrMalformedResponse)
	}

	entry := (*resp.List)[0]
	if entry.Main == nil {
		return nil, fmt.Errorf("%w: missing main", airquality.ErrMalformedResponse)
	}
	if entry.Main.AQI == nil {
		return nil, fmt.Errorf("%w: missing main.aqi", airquality.ErrMalformedResponse)
	}
	if entry.Components == nil {
		return nil, fmt.Errorf("%w: missing components", airquality.ErrMalformedResponse)
	}

	reading := &airquality.Reading{
		Timestamp: c.now().Truncate(time.Second),
		Location:  loc.Name,
		AQI:       *entry.Main.AQI,
	}
	for _, p := range airquality.Pollutants {
		if v, ok := entry.Components[string(p)]; ok && v != nil {
			reading.Components.Set(p, *v)
		}
	}

	return reading, nil
}

// OpenWeatherMap Air Pollution API response types.
// Pointer fields distinguish absent keys from zero values.

type airPollutionResponse struct {
	List *[]listEntry `json:"list"`
}

type listEntry struct {
	Dt   int64 `json:"dt"`
	Main *struct {
		AQI *int `json:"aqi"`
	} `json:"main"`
	Components map[string]*float64 `json:"components"`
}
