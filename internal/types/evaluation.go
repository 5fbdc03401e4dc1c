package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ThresholdViolation is a single rule breach found while checking a signal
// against configured thresholds.
type ThresholdViolation struct {
	ThresholdName  string   `json:"threshold_name"`
	ThresholdValue float64  `json:"threshold_value"`
	ActualValue    float64  `json:"actual_value"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
}

// Violations is a slice of ThresholdViolation that implements sql.Scanner
// and driver.Valuer for JSONB column storage.
type Violations []ThresholdViolation

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (v *Violations) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	var data []byte
	switch val := value.(type) {
	case []byte:
		data = val
	case string:
		data = []byte(val)
	default:
		return fmt.Errorf("violations: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, v)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (v Violations) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Criticals returns only the critical-severity violations, preserving order.
func (v Violations) Criticals() Violations {
	var out Violations
	for _, viol := range v {
		if viol.Severity == SeverityCritical {
			out = append(out, viol)
		}
	}
	return out
}

// Warnings returns only the warning-severity violations, preserving order.
func (v Violations) Warnings() Violations {
	var out Violations
	for _, viol := range v {
		if viol.Severity == SeverityWarning {
			out = append(out, viol)
		}
	}
	return out
}

// PracticeEvaluation is the aggregate verdict for one practice at one point
// in time. Created once per evaluation run and never mutated afterwards.
// IsGo is derived exclusively from the presence of critical violations, and
// Confidence is the fraction of the three signals (weather, trail, daylight)
// that were successfully fetched.
type PracticeEvaluation struct {
	PracticeID  string    `json:"practice_id"`
	EvaluatedAt time.Time `json:"evaluated_at"`

	Weather         *WeatherConditions `json:"weather"`
	TrailConditions *TrailCondition    `json:"trail_conditions"`

	Violations Violations `json:"violations"`
	IsGo       bool       `json:"is_go"`
	Confidence float64    `json:"confidence"`

	HasConfirmedLead bool `json:"has_confirmed_lead"`
	HasPostedWorkout bool `json:"has_posted_workout"`
}

// Marshal serializes the evaluation to the JSON layout stored in a
// cancellation request's evaluation_data column.
func (e *PracticeEvaluation) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling practice evaluation: %w", err)
	}
	return b, nil
}
