package types

import (
	"encoding/json"
	"time"
)

// Location represents a practice venue with coordinates for weather and
// daylight lookups.
type Location struct {
	Name string  `json:"name" db:"location_name"`
	Lat  float64 `json:"lat" db:"location_lat"`
	Lon  float64 `json:"lon" db:"location_lon"`
}

// PracticeLead is a person responsible for running a practice.
type PracticeLead struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	SlackUID  string `json:"slack_uid,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

// Practice is a scheduled club session. Skipper reads practices when
// evaluating safety and writes status/cancellation_reason only through the
// proposal state machine on an approved cancellation.
type Practice struct {
	ID                 string         `json:"id" db:"id"`
	Name               string         `json:"name" db:"name"`
	StartsAt           time.Time      `json:"starts_at" db:"starts_at"`
	Location           Location       `json:"location" db:"-"`
	Activities         []string       `json:"activities" db:"activities"`
	Leads              []PracticeLead `json:"leads" db:"leads"`
	WorkoutDescription string         `json:"workout_description,omitempty" db:"workout_description"`
	IsDarkPractice     bool           `json:"is_dark_practice" db:"is_dark_practice"`
	Status             PracticeStatus `json:"status" db:"status"`
	CancellationReason string         `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// HasConfirmedLead reports whether at least one assigned lead has confirmed.
func (p *Practice) HasConfirmedLead() bool {
	for _, l := range p.Leads {
		if l.Confirmed {
			return true
		}
	}
	return false
}

// HasPostedWorkout reports whether a workout description has been posted.
func (p *Practice) HasPostedWorkout() bool {
	return p.WorkoutDescription != ""
}

// CancellationRequest is a proposal to cancel a practice, awaiting a human
// decision. One row per request; a request is created pending and mutated
// exactly once by the approval/rejection/expiry transition.
type CancellationRequest struct {
	ID         string        `json:"id" db:"id"`
	PracticeID string        `json:"practice_id" db:"practice_id"`
	Status     RequestStatus `json:"status" db:"status"`

	ReasonType    ReasonType `json:"reason_type" db:"reason_type"`
	ReasonSummary string     `json:"reason_summary" db:"reason_summary"`

	// EvaluationData is the serialized PracticeEvaluation snapshot that
	// motivated this request, stored as JSONB.
	EvaluationData json.RawMessage `json:"evaluation_data" db:"evaluation_data"`

	ProposedAt time.Time `json:"proposed_at" db:"proposed_at"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`

	DecidedAt         *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	DecidedByUserID   string     `json:"decided_by_user_id,omitempty" db:"decided_by_user_id"`
	DecidedBySlackUID string     `json:"decided_by_slack_uid,omitempty" db:"decided_by_slack_uid"`
	DecisionNotes     string     `json:"decision_notes,omitempty" db:"decision_notes"`
}

// Decision is a validated human decision on a pending request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// AgentRun records one execution of a scheduled routine for observability.
type AgentRun struct {
	ID         int64           `json:"id" db:"id"`
	Task       string          `json:"task" db:"task"`
	StartedAt  time.Time       `json:"started_at" db:"started_at"`
	FinishedAt *time.Time      `json:"finished_at" db:"finished_at"`
	Checked    int             `json:"checked" db:"checked"`
	Proposed   int             `json:"proposed" db:"proposed"`
	Errors     int             `json:"errors" db:"errors"`
	Detail     json.RawMessage `json:"detail,omitempty" db:"detail"`
}
