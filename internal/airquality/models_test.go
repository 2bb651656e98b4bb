package airquality_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqcollect/internal/airquality"
)

func TestCategoryForAQI(t *testing.T) {
	tests := []struct {
		aqi      int
		expected airquality.Category
		ok       bool
	}{
		{1, airquality.CategoryGood, true},
		{2, airquality.CategoryFair, true},
		{3, airquality.CategoryModerate, true},
		{4, airquality.CategoryPoor, true},
		{5, airquality.CategoryVeryPoor, true},
		{0, "", false},
		{6, "", false},
	}

	for _, tc := range tests {
		got, ok := airquality.CategoryForAQI(tc.aqi)
		assert.Equal(t, tc.expected, got, "aqi %d", tc.aqi)
		assert.Equal(t, tc.ok, ok, "aqi %d", tc.aqi)
	}
}

func TestComponents_GetSet(t *testing.T) {
	var c airquality.Components
	for i, p := range airquality.Pollutants {
		c.Set(p, float64(i+1))
	}

	for i, p := range airquality.Pollutants {
		assert.Equal(t, float64(i+1), c.Get(p), "pollutant %s", p)
	}

	c.Set("unknown", 99)
	assert.Equal(t, 0.0, c.Get("unknown"))
}

func validReading() airquality.Reading {
	return airquality.Reading{
		Timestamp: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Location:  "LocationA",
		AQI:       2,
		Components: airquality.Components{
			PM25: 35.0,
			PM10: 50.0,
		},
	}
}

func TestReading_Validate_Valid(t *testing.T) {
	r := validReading()

	require.NoError(t, r.Validate())
	assert.True(t, r.IsValid())
	assert.Equal(t, airquality.CategoryFair, r.Category())

	// Absent pollutants default to zero rather than being flagged.
	assert.Equal(t, 0.0, r.Components.NO2)
	assert.Equal(t, 0.0, r.Components.NH3)
}

func TestReading_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *airquality.Reading)
		field  string
	}{
		{"missing timestamp", func(r *airquality.Reading) { r.Timestamp = time.Time{} }, "timestamp"},
		{"missing location", func(r *airquality.Reading) { r.Location = " " }, "location"},
		{"missing aqi", func(r *airquality.Reading) { r.AQI = 0 }, "aqi"},
		{"aqi too high", func(r *airquality.Reading) { r.AQI = 6 }, "aqi"},
		{"aqi negative", func(r *airquality.Reading) { r.AQI = -1 }, "aqi"},
		{"negative pm2_5", func(r *airquality.Reading) { r.Components.PM25 = -0.1 }, "pm2_5"},
		{"pm2_5 above ceiling", func(r *airquality.Reading) { r.Components.PM25 = 2000.1 }, "pm2_5"},
		{"pm2_5 NaN", func(r *airquality.Reading) { r.Components.PM25 = math.NaN() }, "pm2_5"},
		{"negative pm10", func(r *airquality.Reading) { r.Components.PM10 = -5 }, "pm10"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validReading()
			tc.modify(&r)

			err := r.Validate()
			require.Error(t, err)
			assert.False(t, r.IsValid())

			var vErr *airquality.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestReading_Validate_BoundaryValues(t *testing.T) {
	r := validReading()
	r.AQI = 5
	r.Components.PM25 = 2000
	assert.NoError(t, r.Validate())

	r.AQI = 1
	r.Components.PM25 = 0
	assert.NoError(t, r.Validate())
}
