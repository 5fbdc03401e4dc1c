package types

import "time"

// WeatherAlert is a single active alert from the upstream weather service.
type WeatherAlert struct {
	Event    string        `json:"event"`
	Severity AlertSeverity `json:"severity"`
	Headline string        `json:"headline"`
}

// WeatherConditions is an immutable snapshot of the forecast for a practice
// window. Produced fresh per evaluation; never persisted long-term except
// serialized inside a CancellationRequest's evaluation data.
type WeatherConditions struct {
	TemperatureF        float64        `json:"temperature_f"`
	FeelsLikeF          float64        `json:"feels_like_f"`
	WindSpeedMph        float64        `json:"wind_speed_mph"`
	WindGustMph         *float64       `json:"wind_gust_mph,omitempty"`
	PrecipitationChance float64        `json:"precipitation_chance"`
	ConditionsSummary   string         `json:"conditions_summary"`
	HasLightningThreat  bool           `json:"has_lightning_threat"`
	Alerts              []WeatherAlert `json:"alerts,omitempty"`
}

// TrailCondition is a read-only report of a venue's trail state, sourced
// from an external grooming/conditions feed.
type TrailCondition struct {
	Location   string     `json:"location"`
	TrailsOpen TrailsOpen `json:"trails_open"`
	SkiQuality SkiQuality `json:"ski_quality"`
	Groomed    bool       `json:"groomed"`
	GroomedFor GroomedFor `json:"groomed_for"`
}

// DaylightInfo describes sun and twilight times for a location and date.
// Derived purely from coordinates; recomputable, never persisted.
type DaylightInfo struct {
	Sunrise            time.Time `json:"sunrise"`
	Sunset             time.Time `json:"sunset"`
	CivilTwilightBegin time.Time `json:"civil_twilight_begin"`
	CivilTwilightEnd   time.Time `json:"civil_twilight_end"`
	DayLengthHours     float64   `json:"day_length_hours"`
}
