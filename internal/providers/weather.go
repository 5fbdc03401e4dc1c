package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"skipper/internal/types"
)

// WeatherClient fetches forecast conditions and active alerts from the
// National Weather Service API. The NWS flow is two-step: resolve a
// lat/lon to a gridpoint via /points, then fetch the hourly forecast the
// gridpoint response links to. Active alerts for the point are folded into
// the returned conditions.
type WeatherClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// WeatherClientConfig holds the dependencies for creating a WeatherClient.
type WeatherClientConfig struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewWeatherClient creates a WeatherClient.
func NewWeatherClient(cfg WeatherClientConfig) *WeatherClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &WeatherClient{
		base:    NewBaseClient(httpClient, "weather", DefaultRetryPolicy(), cfg.UserAgent),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// pointsResponse is the subset of the NWS /points payload we consume.
type pointsResponse struct {
	Properties struct {
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

// hourlyForecastResponse is the subset of the NWS hourly forecast payload.
type hourlyForecastResponse struct {
	Properties struct {
		Periods []forecastPeriod `json:"periods"`
	} `json:"properties"`
}

type forecastPeriod struct {
	StartTime                  time.Time `json:"startTime"`
	EndTime                    time.Time `json:"endTime"`
	Temperature                float64   `json:"temperature"`
	TemperatureUnit            string    `json:"temperatureUnit"`
	WindSpeed                  string    `json:"windSpeed"`
	WindGust                   string    `json:"windGust"`
	ShortForecast              string    `json:"shortForecast"`
	ProbabilityOfPrecipitation struct {
		Value *float64 `json:"value"`
	} `json:"probabilityOfPrecipitation"`
}

// alertsResponse is the subset of the NWS /alerts/active payload.
type alertsResponse struct {
	Features []struct {
		Properties struct {
			Event    string `json:"event"`
			Severity string `json:"severity"`
			Headline string `json:"headline"`
		} `json:"properties"`
	} `json:"features"`
}

// GetWeather returns the forecast conditions for the hour covering the given
// time at the given coordinates, with active alerts attached. Alert fetch
// failures are tolerated: conditions without alerts beat no conditions.
func (c *WeatherClient) GetWeather(ctx context.Context, lat, lon float64, at time.Time) (*types.WeatherConditions, error) {
	hourlyURL, err := c.resolveGridpoint(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	period, err := c.fetchPeriod(ctx, hourlyURL, at)
	if err != nil {
		return nil, err
	}

	gust := parseWindMph(period.WindGust)
	conditions := &types.WeatherConditions{
		TemperatureF:       period.Temperature,
		FeelsLikeF:         period.Temperature,
		WindSpeedMph:       derefWind(parseWindMph(period.WindSpeed)),
		WindGustMph:        gust,
		ConditionsSummary:  period.ShortForecast,
		HasLightningThreat: strings.Contains(strings.ToLower(period.ShortForecast), "thunder"),
	}
	if period.ProbabilityOfPrecipitation.Value != nil {
		conditions.PrecipitationChance = *period.ProbabilityOfPrecipitation.Value
	}

	alerts, alertErr := c.fetchAlerts(ctx, lat, lon)
	if alertErr != nil {
		c.logger.WarnContext(ctx, "failed to fetch weather alerts, continuing without",
			"error", alertErr, "lat", lat, "lon", lon)
	} else {
		conditions.Alerts = alerts
		for _, a := range alerts {
			if strings.Contains(strings.ToLower(a.Event), "thunder") {
				conditions.HasLightningThreat = true
			}
		}
	}

	return conditions, nil
}

func (c *WeatherClient) resolveGridpoint(ctx context.Context, lat, lon float64) (string, error) {
	url := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)

	var points pointsResponse
	if err := c.getJSON(ctx, url, &points); err != nil {
		return "", err
	}
	if points.Properties.ForecastHourly == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamProvider,
			"gridpoint response missing hourly forecast link", nil)
	}
	return points.Properties.ForecastHourly, nil
}

func (c *WeatherClient) fetchPeriod(ctx context.Context, hourlyURL string, at time.Time) (*forecastPeriod, error) {
	var forecast hourlyForecastResponse
	if err := c.getJSON(ctx, hourlyURL, &forecast); err != nil {
		return nil, err
	}

	for i := range forecast.Properties.Periods {
		p := &forecast.Properties.Periods[i]
		if !at.Before(p.StartTime) && at.Before(p.EndTime) {
			return p, nil
		}
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamProvider,
		"no forecast period covers the requested time", nil,
		map[string]any{"at": at.Format(time.RFC3339)})
}

func (c *WeatherClient) fetchAlerts(ctx context.Context, lat, lon float64) ([]types.WeatherAlert, error) {
	url := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, lat, lon)

	var payload alertsResponse
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	alerts := make([]types.WeatherAlert, 0, len(payload.Features))
	for _, f := range payload.Features {
		alerts = append(alerts, types.WeatherAlert{
			Event:    f.Properties.Event,
			Severity: types.AlertSeverity(strings.ToLower(f.Properties.Severity)),
			Headline: f.Properties.Headline,
		})
	}
	return alerts, nil
}

// getJSON performs a GET through the resilient BaseClient and decodes the
// JSON body into out.
func (c *WeatherClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather request", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrCodeUpstreamProvider,
			fmt.Sprintf("weather service returned %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamProvider, "failed to decode weather response", err)
	}
	return nil
}

// parseWindMph parses NWS wind strings like "10 mph" or "5 to 15 mph",
// taking the highest number. Returns nil when no number is present.
func parseWindMph(s string) *float64 {
	var maxVal *float64
	for _, field := range strings.Fields(s) {
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			if maxVal == nil || v > *maxVal {
				val := v
				maxVal = &val
			}
		}
	}
	return maxVal
}

func derefWind(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
