// agent.go implements the agent-behavior configuration: evaluation thresholds,
// the dry-run flag, and the escalation timeout. These load from a YAML file so
// club admins can tune thresholds without a deploy.
//
// Loading is fail-open by design: a missing or unparseable file yields the
// safe default configuration (agent enabled, dry-run on, default thresholds)
// and never an error, so a bad edit can silently disable proposals but can
// never stop the evaluation runs themselves.
package config

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentFlags holds the top-level agent switches.
type AgentFlags struct {
	// Enabled gates all routine evaluation work.
	Enabled bool `yaml:"enabled"`
	// DryRun makes routines log would-be proposals instead of creating them.
	DryRun bool `yaml:"dry_run"`
}

// EscalationConfig controls the human-decision window on proposals.
type EscalationConfig struct {
	// TimeoutMinutes is how long a proposal stays pending before the
	// fail-open expiry sweep lets the practice proceed. Default 120.
	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// Timeout returns the escalation window as a duration.
func (e EscalationConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMinutes) * time.Minute
}

// WeatherThresholds are the weather safety limits. All comparisons against
// them are strict; a reading exactly at a limit does not trigger.
type WeatherThresholds struct {
	MinTemperatureF        float64 `yaml:"min_temperature_f"`        // default -10, feels-like below is critical
	MaxTemperatureF        float64 `yaml:"max_temperature_f"`        // default 95, feels-like above is critical
	MaxWindSpeedMph        float64 `yaml:"max_wind_speed_mph"`       // default 30, above is warning
	MaxWindGustMph         float64 `yaml:"max_wind_gust_mph"`        // default 45, above is critical (only when a gust reading exists)
	MaxPrecipitationChance float64 `yaml:"max_precipitation_chance"` // default 70, above is warning
	LightningCancels       bool    `yaml:"lightning_cancels"`        // default true, lightning threat is critical
}

// TrailThresholds are the trail condition limits.
type TrailThresholds struct {
	MinQuality     string `yaml:"min_quality"`     // default "fair"; strictly worse is critical
	RequireGroomed bool   `yaml:"require_groomed"` // default false; applies to skate activities only
}

// LeadThresholds control lead-availability checks.
type LeadThresholds struct {
	RequireConfirmedLead          bool    `yaml:"require_confirmed_lead"`           // default true
	LeadConfirmationDeadlineHours float64 `yaml:"lead_confirmation_deadline_hours"` // default 24
}

// Thresholds groups all checker configuration.
type Thresholds struct {
	Weather WeatherThresholds `yaml:"weather"`
	Trails  TrailThresholds   `yaml:"trails"`
	Lead    LeadThresholds    `yaml:"lead"`
}

// AgentConfig is the full agent-behavior configuration.
type AgentConfig struct {
	Agent      AgentFlags       `yaml:"agent"`
	Escalation EscalationConfig `yaml:"escalation"`
	Thresholds Thresholds       `yaml:"thresholds"`
}

// DefaultAgentConfig returns the documented defaults. Unmarshaling a partial
// YAML file over this value leaves absent branches at their defaults, so
// callers never observe a missing key.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Agent: AgentFlags{
			Enabled: true,
			DryRun:  true,
		},
		Escalation: EscalationConfig{
			TimeoutMinutes: 120,
		},
		Thresholds: Thresholds{
			Weather: WeatherThresholds{
				MinTemperatureF:        -10,
				MaxTemperatureF:        95,
				MaxWindSpeedMph:        30,
				MaxWindGustMph:         45,
				MaxPrecipitationChance: 70,
				LightningCancels:       true,
			},
			Trails: TrailThresholds{
				MinQuality:     "fair",
				RequireGroomed: false,
			},
			Lead: LeadThresholds{
				RequireConfirmedLead:          true,
				LeadConfirmationDeadlineHours: 24,
			},
		},
	}
}

// LoadAgentConfig reads the agent configuration from path. It never returns
// an error: any failure (missing file, bad YAML) is logged and the safe
// default configuration is returned instead.
func LoadAgentConfig(path string, logger *slog.Logger) AgentConfig {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultAgentConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("agent config not readable, using safe defaults",
			"path", path,
			"error", err,
		)
		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("agent config not parseable, using safe defaults",
			"path", path,
			"error", err,
		)
		return DefaultAgentConfig()
	}

	return cfg
}
