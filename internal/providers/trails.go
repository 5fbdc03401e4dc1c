package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"skipper/internal/types"
)

// TrailClient fetches grooming/conditions reports from the club's trail
// conditions feed. The feed publishes one report per venue; lookup is by
// normalized venue name so "Theodore Wirth" matches "Theodore Wirth Park".
//
// A venue with no report is not an error: GetTrailConditions returns
// (nil, nil) and the evaluation proceeds with reduced confidence.
type TrailClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// TrailClientConfig holds the dependencies for creating a TrailClient.
type TrailClientConfig struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewTrailClient creates a TrailClient.
func NewTrailClient(cfg TrailClientConfig) *TrailClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &TrailClient{
		base:    NewBaseClient(httpClient, "trails", DefaultRetryPolicy(), cfg.UserAgent),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// trailReport is one venue entry in the conditions feed.
type trailReport struct {
	Location   string `json:"location"`
	TrailsOpen string `json:"trails_open"`
	SkiQuality string `json:"ski_quality"`
	Groomed    bool   `json:"groomed"`
	GroomedFor string `json:"groomed_for"`
}

// GetTrailConditions returns the report for the named venue, or (nil, nil)
// when the feed has no matching report. An unconfigured feed (empty base
// URL) behaves the same as a feed with no reports.
func (c *TrailClient) GetTrailConditions(ctx context.Context, locationName string) (*types.TrailCondition, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reports", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build trail request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamProvider,
			fmt.Sprintf("trail feed returned %d", resp.StatusCode), nil)
	}

	var reports []trailReport
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamProvider, "failed to decode trail feed", err)
	}

	report := matchReport(reports, locationName)
	if report == nil {
		c.logger.InfoContext(ctx, "no trail report for venue", "location", locationName)
		return nil, nil
	}

	return &types.TrailCondition{
		Location:   report.Location,
		TrailsOpen: types.TrailsOpen(strings.ToLower(report.TrailsOpen)),
		SkiQuality: types.SkiQuality(strings.ToLower(report.SkiQuality)),
		Groomed:    report.Groomed,
		GroomedFor: types.GroomedFor(strings.ToLower(report.GroomedFor)),
	}, nil
}

// matchReport finds the feed entry for a venue. Exact normalized match wins;
// otherwise the first entry where either name contains the other.
func matchReport(reports []trailReport, locationName string) *trailReport {
	want := normalizeVenue(locationName)
	if want == "" {
		return nil
	}

	for i := range reports {
		if normalizeVenue(reports[i].Location) == want {
			return &reports[i]
		}
	}
	for i := range reports {
		got := normalizeVenue(reports[i].Location)
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return &reports[i]
		}
	}
	return nil
}

func normalizeVenue(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
