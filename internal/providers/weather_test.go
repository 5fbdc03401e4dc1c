package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/types"
)

func newWeatherTestServer(t *testing.T, alertsBody string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/points/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"properties": {"forecastHourly": "%s/gridpoints/MPX/107,71/forecast/hourly"}}`, server.URL)
	})
	mux.HandleFunc("/gridpoints/MPX/107,71/forecast/hourly", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties": {"periods": [
			{
				"startTime": "2026-01-15T17:00:00-06:00",
				"endTime": "2026-01-15T18:00:00-06:00",
				"temperature": 20,
				"temperatureUnit": "F",
				"windSpeed": "10 mph",
				"shortForecast": "Mostly Cloudy",
				"probabilityOfPrecipitation": {"value": 10}
			},
			{
				"startTime": "2026-01-15T18:00:00-06:00",
				"endTime": "2026-01-15T19:00:00-06:00",
				"temperature": 18,
				"temperatureUnit": "F",
				"windSpeed": "5 to 15 mph",
				"windGust": "25 mph",
				"shortForecast": "Chance Snow Showers",
				"probabilityOfPrecipitation": {"value": 40}
			}
		]}}`)
	})
	mux.HandleFunc("/alerts/active", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, alertsBody)
	})

	server = httptest.NewServer(mux)
	return server
}

func TestWeatherClient_GetWeatherSelectsCoveringPeriod(t *testing.T) {
	server := newWeatherTestServer(t, `{"features": []}`)
	defer server.Close()

	client := NewWeatherClient(WeatherClientConfig{BaseURL: server.URL, Logger: testLogger()})

	cst := time.FixedZone("CST", -6*3600)
	at := time.Date(2026, 1, 15, 18, 30, 0, 0, cst)

	conditions, err := client.GetWeather(context.Background(), 44.98, -93.27, at)
	require.NoError(t, err)

	assert.Equal(t, 18.0, conditions.TemperatureF)
	assert.Equal(t, 15.0, conditions.WindSpeedMph)
	require.NotNil(t, conditions.WindGustMph)
	assert.Equal(t, 25.0, *conditions.WindGustMph)
	assert.Equal(t, 40.0, conditions.PrecipitationChance)
	assert.Equal(t, "Chance Snow Showers", conditions.ConditionsSummary)
	assert.False(t, conditions.HasLightningThreat)
	assert.Empty(t, conditions.Alerts)
}

func TestWeatherClient_FoldsInAlerts(t *testing.T) {
	server := newWeatherTestServer(t, `{"features": [
		{"properties": {"event": "Wind Chill Warning", "severity": "Severe", "headline": "Dangerous wind chills expected"}},
		{"properties": {"event": "Severe Thunderstorm Warning", "severity": "Extreme", "headline": "Storms approaching"}}
	]}`)
	defer server.Close()

	client := NewWeatherClient(WeatherClientConfig{BaseURL: server.URL, Logger: testLogger()})

	cst := time.FixedZone("CST", -6*3600)
	at := time.Date(2026, 1, 15, 17, 15, 0, 0, cst)

	conditions, err := client.GetWeather(context.Background(), 44.98, -93.27, at)
	require.NoError(t, err)

	require.Len(t, conditions.Alerts, 2)
	assert.Equal(t, types.AlertSevere, conditions.Alerts[0].Severity)
	assert.Equal(t, types.AlertExtreme, conditions.Alerts[1].Severity)
	// A thunderstorm alert implies a lightning threat even when the forecast
	// text does not mention thunder.
	assert.True(t, conditions.HasLightningThreat)
}

func TestWeatherClient_NoCoveringPeriodErrors(t *testing.T) {
	server := newWeatherTestServer(t, `{"features": []}`)
	defer server.Close()

	client := NewWeatherClient(WeatherClientConfig{BaseURL: server.URL, Logger: testLogger()})

	at := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	_, err := client.GetWeather(context.Background(), 44.98, -93.27, at)
	require.Error(t, err)
}

func TestParseWindMph(t *testing.T) {
	assert.Nil(t, parseWindMph(""))
	assert.Nil(t, parseWindMph("calm"))

	v := parseWindMph("10 mph")
	require.NotNil(t, v)
	assert.Equal(t, 10.0, *v)

	v = parseWindMph("5 to 15 mph")
	require.NotNil(t, v)
	assert.Equal(t, 15.0, *v)
}
