// Package agent runs the routine checks that keep practices safe without a
// human babysitting conditions: morning and pre-practice evaluations,
// lead confirmation nudges, and the proposal expiry sweep. Each routine is a
// batch over upcoming practices where per-practice failures are logged and
// counted, never fatal to the batch.
package agent

import "time"

// TaskType identifies one routine the agent can run.
type TaskType string

const (
	// TaskMorningCheck evaluates every practice later today and proposes
	// cancellation for no-go verdicts.
	TaskMorningCheck TaskType = "morning_check"

	// TaskPrecheck48h reminds leads of practices roughly two days out to
	// post a workout. It never proposes cancellation; conditions that far
	// out are too uncertain to act on.
	TaskPrecheck48h TaskType = "precheck_48h"

	// TaskPrecheck24h evaluates practices roughly one day out, proposes
	// cancellation for no-go verdicts, and nudges unconfirmed leads.
	TaskPrecheck24h TaskType = "precheck_24h"

	// TaskLeadVerification nudges every unconfirmed lead of practices in the
	// next 24 hours.
	TaskLeadVerification TaskType = "lead_verification"

	// TaskExpireProposals sweeps pending cancellation requests past their
	// expiry into the expired state. Fail-open: the practices proceed.
	TaskExpireProposals TaskType = "expire_proposals"
)

// Valid reports whether t names a known task.
func (t TaskType) Valid() bool {
	switch t {
	case TaskMorningCheck, TaskPrecheck48h, TaskPrecheck24h, TaskLeadVerification, TaskExpireProposals:
		return true
	}
	return false
}

// RoutineSummary is the outcome of one routine run.
type RoutineSummary struct {
	Task      TaskType  `json:"task"`
	StartedAt time.Time `json:"started_at"`

	// Checked is the number of practices the routine looked at.
	Checked int `json:"checked"`
	// Safe is the number of practices that evaluated as go.
	Safe int `json:"safe"`
	// Proposed is the number of cancellation proposals created (or that
	// would have been created, in dry-run).
	Proposed int `json:"proposed"`
	// Skipped counts practices left alone: already holding a pending
	// proposal, or suppressed by dry-run.
	Skipped int `json:"skipped"`
	// Errors counts per-practice failures that were logged and stepped over.
	Errors int `json:"errors"`
	// Expired is the number of requests the expiry sweep transitioned.
	Expired int `json:"expired"`
	// Notified is the number of reminders and alerts delivered.
	Notified int `json:"notified"`
	// DryRun records whether side effects were suppressed.
	DryRun bool `json:"dry_run"`
}
