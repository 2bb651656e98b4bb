package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/internal/app"
	"github.com/breatheroute/aqcollect/internal/config"
	"github.com/breatheroute/aqcollect/internal/provider/resilience"
	"github.com/breatheroute/aqcollect/internal/status"
	"github.com/breatheroute/aqcollect/internal/worker"
)

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"list":[{"main":{"aqi":3},"components":{"pm2_5":55.5,"pm10":80.1,"no2":12.3}}]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		LocalOutput: filepath.Join(dir, "aqi_cleaned_data.csv"),
		StatusFile:  filepath.Join(dir, "status.json"),
		Locations: []airquality.Location{
			{Name: "LocationA", Lat: 1, Lon: 2},
			{Name: "LocationB", Lat: 3, Lon: 4},
		},
		Sheets: config.SheetsConfig{Worksheet: "aqi_cleaned_data"},
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := app.New(context.Background(), app.Options{Config: &config.Config{}, Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)

	_, err = app.New(context.Background(), app.Options{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestNew_DefaultLocations(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Locations = nil

	a, err := app.New(context.Background(), app.Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, worker.DefaultLocations(), a.Job.Locations())
	assert.Equal(t, 0, a.Sinks.Len())
}

func TestApp_RunEndToEnd(t *testing.T) {
	var appends atomic.Int32
	sheetsAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id","sheets":[{"properties":{"title":"aqi_cleaned_data"}}]}`))
		case strings.HasSuffix(r.URL.Path, ":append"):
			appends.Add(1)
			_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id"}`))
		default:
			_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id"}`))
		}
	}))
	defer sheetsAPI.Close()

	cfg := testConfig(t, upstream(t).URL)
	cfg.Sheets.SpreadsheetID = "sheet-id"

	a, err := app.New(context.Background(), app.Options{
		Config: cfg,
		Logger: zerolog.Nop(),
		Retry:  &resilience.RetryPolicy{MaxAttempts: 1},
		SheetsOptions: []option.ClientOption{
			option.WithEndpoint(sheetsAPI.URL),
			option.WithoutAuthentication(),
			option.WithHTTPClient(sheetsAPI.Client()),
		},
	})
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, 1, a.Sinks.Len())

	result := a.Job.Run(context.Background())
	require.True(t, result.Succeeded(), result.Errors)
	assert.Equal(t, 2, result.RecordsCollected)
	assert.Equal(t, int32(1), appends.Load())

	st, err := status.Read(cfg.StatusFile)
	require.NoError(t, err)
	assert.Equal(t, status.OutcomeSuccess, st.Status)
	assert.Equal(t, 2, st.TotalRecordsInFile)

	health := a.Registry.GetHealth("openweathermap")
	require.NotNil(t, health)
	assert.True(t, health.IsHealthy())
	assert.NotNil(t, health.LastSuccessAt)
}
