// Package engine implements the Skipper decision engine: pure threshold
// checkers over weather, trail, lead-availability, and daylight signals, and
// the evaluator that aggregates their violations into a go/no-go verdict.
//
// Checkers are stateless functions of (signal, thresholds). All numeric
// comparisons are strict: a reading exactly at a configured limit does not
// trigger. A violation is critical only when the condition is unsafe to
// proceed regardless of anything else (lightning, no lead, closed trails,
// out-of-range temperature or wind gust, trail quality below the floor,
// severe/extreme alerts); everything else is a warning.
package engine

import (
	"fmt"
	"strings"
	"time"

	"skipper/internal/config"
	"skipper/internal/types"
)

// Threshold names produced by the checkers. The proposal classifier matches
// on substrings of these, so names keep their signal's vocabulary.
const (
	NameMinTemperature   = "min_temperature_f"
	NameMaxTemperature   = "max_temperature_f"
	NameMaxWindSpeed     = "max_wind_speed_mph"
	NameMaxWindGust      = "max_wind_gust_mph"
	NameMaxPrecipitation = "max_precipitation_chance"
	NameLightning        = "lightning_cancels"
	NameWeatherAlert     = "weather_alert"
	NameMinTrailQuality  = "min_trail_quality"
	NameTrailsOpen       = "trails_open"
	NameRequireGroomed   = "trail_groomed"
	NameGroomedFor       = "trail_groomed_for"
	NameHasLead          = "has_lead"
	NameLeadConfirmation = "lead_confirmation"
	NameDaylight         = "daylight_lights_required"
)

// CheckWeatherThresholds compares a weather snapshot against the configured
// limits and returns all violations found, in rule order.
func CheckWeatherThresholds(w *types.WeatherConditions, cfg config.WeatherThresholds) types.Violations {
	var out types.Violations

	if w.FeelsLikeF < cfg.MinTemperatureF {
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameMinTemperature,
			ThresholdValue: cfg.MinTemperatureF,
			ActualValue:    w.FeelsLikeF,
			Severity:       types.SeverityCritical,
			Message:        fmt.Sprintf("Feels-like temperature %.1f°F is below the %.1f°F minimum", w.FeelsLikeF, cfg.MinTemperatureF),
		})
	}

	if w.FeelsLikeF > cfg.MaxTemperatureF {
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameMaxTemperature,
			ThresholdValue: cfg.MaxTemperatureF,
			ActualValue:    w.FeelsLikeF,
			Severity:       types.SeverityCritical,
			Message:        fmt.Sprintf("Feels-like temperature %.1f°F is above the %.1f°F maximum", w.FeelsLikeF, cfg.MaxTemperatureF),
		})
	}

	if w.WindSpeedMph > cfg.MaxWindSpeedMph {
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameMaxWindSpeed,
			ThresholdValue: cfg.MaxWindSpeedMph,
			ActualValue:    w.WindSpeedMph,
			Severity:       types.SeverityWarning,
			Message:        fmt.Sprintf("Sustained wind %.0f mph exceeds the %.0f mph limit", w.WindSpeedMph, cfg.MaxWindSpeedMph),
		})
	}

	// Gust check applies only when the upstream forecast reported a gust.
	if w.WindGustMph != nil && *w.WindGustMph > cfg.MaxWindGustMph {
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameMaxWindGust,
			ThresholdValue: cfg.MaxWindGustMph,
			ActualValue:    *w.WindGustMph,
			Severity:       types.SeverityCritical,
			Message:        fmt.Sprintf("Wind gusts %.0f mph exceed the %.0f mph limit", *w.WindGustMph, cfg.MaxWindGustMph),
		})
	}

	if w.PrecipitationChance > cfg.MaxPrecipitationChance {
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameMaxPrecipitation,
			ThresholdValue: cfg.MaxPrecipitationChance,
			ActualValue:    w.PrecipitationChance,
			Severity:       types.SeverityWarning,
			Message:        fmt.Sprintf("Precipitation chance %.0f%% exceeds the %.0f%% limit", w.PrecipitationChance, cfg.MaxPrecipitationChance),
		})
	}

	if cfg.LightningCancels && w.HasLightningThreat {
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameLightning,
			ThresholdValue: 0,
			ActualValue:    1,
			Severity:       types.SeverityCritical,
			Message:        "Lightning threat in the forecast window",
		})
	}

	for _, alert := range w.Alerts {
		severity := types.SeverityWarning
		if alert.Severity.Cancels() {
			severity = types.SeverityCritical
		}
		msg := fmt.Sprintf("Active weather alert: %s", alert.Event)
		if alert.Headline != "" {
			msg = fmt.Sprintf("Active weather alert: %s (%s)", alert.Event, alert.Headline)
		}
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameWeatherAlert,
			ThresholdValue: 0,
			ActualValue:    1,
			Severity:       severity,
			Message:        msg,
		})
	}

	return out
}

// CheckTrailThresholds compares a trail report against the configured limits
// for one activity. Grooming rules apply only to skate activities.
func CheckTrailThresholds(t *types.TrailCondition, activity string, cfg config.TrailThresholds) types.Violations {
	var out types.Violations

	minQuality := types.SkiQuality(cfg.MinQuality)
	if t.SkiQuality.WorseThan(minQuality) {
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameMinTrailQuality,
			ThresholdValue: float64(minQuality.Rank()),
			ActualValue:    float64(t.SkiQuality.Rank()),
			Severity:       types.SeverityCritical,
			Message:        fmt.Sprintf("Ski quality %q at %s is below the %q floor", t.SkiQuality, t.Location, minQuality),
		})
	}

	isSkate := strings.Contains(strings.ToLower(activity), "skate")
	if isSkate && cfg.RequireGroomed {
		if !t.Groomed {
			out = append(out, types.ThresholdViolation{
				ThresholdName:  NameRequireGroomed,
				ThresholdValue: 1,
				ActualValue:    0,
				Severity:       types.SeverityCritical,
				Message:        fmt.Sprintf("%s is not groomed and grooming is required for skate practice", t.Location),
			})
		} else if t.GroomedFor != types.GroomedSkate && t.GroomedFor != types.GroomedBoth {
			out = append(out, types.ThresholdViolation{
				ThresholdName:  NameGroomedFor,
				ThresholdValue: 1,
				ActualValue:    0,
				Severity:       types.SeverityWarning,
				Message:        fmt.Sprintf("%s is groomed for %s only, not skate", t.Location, t.GroomedFor),
			})
		}
	}

	switch t.TrailsOpen {
	case types.TrailsClosed:
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameTrailsOpen,
			ThresholdValue: 0,
			ActualValue:    1,
			Severity:       types.SeverityCritical,
			Message:        fmt.Sprintf("Trails at %s are closed", t.Location),
		})
	case types.TrailsPartial:
		out = append(out, types.ThresholdViolation{
			ThresholdName:  NameTrailsOpen,
			ThresholdValue: 0,
			ActualValue:    1,
			Severity:       types.SeverityWarning,
			Message:        fmt.Sprintf("Trails at %s are only partially open", t.Location),
		})
	}

	return out
}

// CheckLeadAvailability verifies a practice has a confirmed lead. When no
// leads are assigned at all the check short-circuits with a single critical
// violation; the confirmation deadline is not also evaluated.
func CheckLeadAvailability(p *types.Practice, now time.Time, cfg config.LeadThresholds) types.Violations {
	if !cfg.RequireConfirmedLead {
		return nil
	}

	if len(p.Leads) == 0 {
		return types.Violations{{
			ThresholdName:  NameHasLead,
			ThresholdValue: 1,
			ActualValue:    0,
			Severity:       types.SeverityCritical,
			Message:        "No lead is assigned to this practice",
		}}
	}

	if p.HasConfirmedLead() {
		return nil
	}

	hoursUntil := p.StartsAt.Sub(now).Hours()
	severity := types.SeverityWarning
	msg := fmt.Sprintf("None of %d assigned leads have confirmed", len(p.Leads))
	if hoursUntil <= cfg.LeadConfirmationDeadlineHours {
		severity = types.SeverityCritical
		msg = fmt.Sprintf("None of %d assigned leads have confirmed within %.0f hours of practice", len(p.Leads), cfg.LeadConfirmationDeadlineHours)
	}

	return types.Violations{{
		ThresholdName:  NameLeadConfirmation,
		ThresholdValue: cfg.LeadConfirmationDeadlineHours,
		ActualValue:    hoursUntil,
		Severity:       severity,
		Message:        msg,
	}}
}

// CheckDaylight warns when a practice starts after civil twilight ends and is
// not flagged as a planned dark practice. Flagged dark practices are
// acknowledged, not validated further.
func CheckDaylight(p *types.Practice, d *types.DaylightInfo) types.Violations {
	if p.IsDarkPractice {
		return nil
	}
	if p.StartsAt.Before(d.CivilTwilightEnd) {
		return nil
	}
	return types.Violations{{
		ThresholdName:  NameDaylight,
		ThresholdValue: float64(d.CivilTwilightEnd.Unix()),
		ActualValue:    float64(p.StartsAt.Unix()),
		Severity:       types.SeverityWarning,
		Message: fmt.Sprintf("Practice starts at %s, after civil twilight ends at %s; lights required",
			p.StartsAt.Format("15:04"), d.CivilTwilightEnd.Format("15:04")),
	}}
}
