package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"skipper/internal/config"
	"skipper/internal/types"
)

// PracticeStore lists the practices a routine should look at.
type PracticeStore interface {
	// ListInWindow returns scheduled and confirmed practices starting within
	// [start, end), ordered by start time.
	ListInWindow(ctx context.Context, start, end time.Time) ([]*types.Practice, error)
}

// Evaluator produces the go/no-go verdict for one practice.
type Evaluator interface {
	Evaluate(ctx context.Context, practice *types.Practice) *types.PracticeEvaluation
}

// Proposer creates and expires cancellation requests.
type Proposer interface {
	Create(ctx context.Context, practice *types.Practice, eval *types.PracticeEvaluation) (*types.CancellationRequest, error)
	ExpirePending(ctx context.Context) ([]*types.CancellationRequest, error)
}

// Notifier delivers reminders and escalations. Delivery is best-effort: a
// failed send is logged and counted, never fatal to a routine.
type Notifier interface {
	SendLeadReminder(ctx context.Context, practice *types.Practice, lead types.PracticeLead) error
	SendWorkoutReminder(ctx context.Context, practice *types.Practice) error
	SendProposalAlert(ctx context.Context, practice *types.Practice, req *types.CancellationRequest) error
}

// RunRecorder persists routine execution records.
type RunRecorder interface {
	Record(ctx context.Context, run *types.AgentRun) error
}

// ConfigSource yields the current agent flags and thresholds.
type ConfigSource interface {
	Current() config.AgentConfig
}

// Routine windows relative to the run time. The prechecks use day-wide
// windows centered on their nominal offset so a routine that fires a little
// early or late still covers the same practices exactly once.
const (
	precheck48Start = 36 * time.Hour
	precheck48End   = 60 * time.Hour
	precheck24Start = 12 * time.Hour
	precheck24End   = 36 * time.Hour
	leadWindow      = 24 * time.Hour
)

// Routines executes the scheduled agent tasks.
type Routines struct {
	practices PracticeStore
	evaluator Evaluator
	proposals Proposer
	notifier  Notifier
	runs      RunRecorder
	configs   ConfigSource
	logger    *slog.Logger
	now       func() time.Time
}

// RoutinesConfig holds the dependencies for creating Routines.
type RoutinesConfig struct {
	Practices PracticeStore
	Evaluator Evaluator
	Proposals Proposer
	Notifier  Notifier
	Runs      RunRecorder
	Configs   ConfigSource
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewRoutines creates a Routines service.
func NewRoutines(cfg RoutinesConfig) *Routines {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Routines{
		practices: cfg.Practices,
		evaluator: cfg.Evaluator,
		proposals: cfg.Proposals,
		notifier:  cfg.Notifier,
		runs:      cfg.Runs,
		configs:   cfg.Configs,
		logger:    logger,
		now:       now,
	}
}

// Run executes one task and records the run. The expiry sweep runs even when
// the agent is disabled: it only ever fail-opens requests, it cannot cancel
// a practice. All other tasks no-op while disabled.
func (r *Routines) Run(ctx context.Context, task TaskType) (*RoutineSummary, error) {
	if !task.Valid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"unknown agent task", nil, map[string]any{"task": string(task)})
	}

	cfg := r.configs.Current()
	summary := &RoutineSummary{
		Task:      task,
		StartedAt: r.now(),
		DryRun:    cfg.Agent.DryRun,
	}

	if !cfg.Agent.Enabled && task != TaskExpireProposals {
		r.logger.InfoContext(ctx, "agent disabled, skipping routine", "task", task)
		r.record(ctx, summary)
		return summary, nil
	}

	var err error
	switch task {
	case TaskMorningCheck:
		err = r.morningCheck(ctx, summary)
	case TaskPrecheck48h:
		err = r.precheck48(ctx, summary)
	case TaskPrecheck24h:
		err = r.precheck24(ctx, summary)
	case TaskLeadVerification:
		err = r.leadVerification(ctx, summary)
	case TaskExpireProposals:
		err = r.expireProposals(ctx, summary)
	}

	r.record(ctx, summary)
	if err != nil {
		return summary, err
	}

	r.logger.InfoContext(ctx, "routine completed",
		"task", task,
		"checked", summary.Checked,
		"safe", summary.Safe,
		"proposed", summary.Proposed,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"dry_run", summary.DryRun,
	)
	return summary, nil
}

// morningCheck evaluates every practice remaining today and proposes
// cancellation for no-go verdicts.
func (r *Routines) morningCheck(ctx context.Context, summary *RoutineSummary) error {
	now := r.now()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	return r.evaluateWindow(ctx, summary, now, endOfDay)
}

// precheck48 reminds leads of practices about two days out to post a
// workout. Conditions 48 hours out are too uncertain to propose on.
func (r *Routines) precheck48(ctx context.Context, summary *RoutineSummary) error {
	now := r.now()
	practices, err := r.practices.ListInWindow(ctx, now.Add(precheck48Start), now.Add(precheck48End))
	if err != nil {
		return err
	}

	for _, p := range practices {
		summary.Checked++
		if p.HasPostedWorkout() {
			continue
		}
		r.notify(ctx, summary, p, func() error {
			return r.notifier.SendWorkoutReminder(ctx, p)
		})
	}
	return nil
}

// precheck24 evaluates practices about one day out, proposes cancellation
// for no-go verdicts, and nudges any still-unconfirmed leads.
func (r *Routines) precheck24(ctx context.Context, summary *RoutineSummary) error {
	now := r.now()
	if err := r.evaluateWindow(ctx, summary, now.Add(precheck24Start), now.Add(precheck24End)); err != nil {
		return err
	}

	practices, err := r.practices.ListInWindow(ctx, now.Add(precheck24Start), now.Add(precheck24End))
	if err != nil {
		return err
	}
	for _, p := range practices {
		r.remindUnconfirmedLeads(ctx, summary, p)
	}
	return nil
}

// leadVerification nudges every unconfirmed lead of practices in the next
// 24 hours.
func (r *Routines) leadVerification(ctx context.Context, summary *RoutineSummary) error {
	now := r.now()
	practices, err := r.practices.ListInWindow(ctx, now, now.Add(leadWindow))
	if err != nil {
		return err
	}

	for _, p := range practices {
		summary.Checked++
		r.remindUnconfirmedLeads(ctx, summary, p)
	}
	return nil
}

// expireProposals sweeps overdue pending requests into the expired state.
func (r *Routines) expireProposals(ctx context.Context, summary *RoutineSummary) error {
	expired, err := r.proposals.ExpirePending(ctx)
	if err != nil {
		return err
	}
	summary.Expired = len(expired)
	return nil
}

// evaluateWindow evaluates every practice in [start, end) and proposes
// cancellation for no-go verdicts. A practice that already has a pending
// request is skipped; any other per-practice failure is logged and counted.
func (r *Routines) evaluateWindow(ctx context.Context, summary *RoutineSummary, start, end time.Time) error {
	practices, err := r.practices.ListInWindow(ctx, start, end)
	if err != nil {
		return err
	}

	for _, p := range practices {
		summary.Checked++

		eval := r.evaluator.Evaluate(ctx, p)
		if eval.IsGo {
			summary.Safe++
			continue
		}

		if summary.DryRun {
			summary.Proposed++
			summary.Skipped++
			r.logger.InfoContext(ctx, "dry run: would propose cancellation",
				"practice_id", p.ID,
				"violations", len(eval.Violations),
			)
			continue
		}

		req, createErr := r.proposals.Create(ctx, p, eval)
		if createErr != nil {
			var appErr *types.AppError
			if errors.As(createErr, &appErr) && appErr.Code == types.ErrCodeConflictPendingExists {
				summary.Skipped++
				r.logger.InfoContext(ctx, "pending proposal already exists, skipping",
					"practice_id", p.ID)
				continue
			}
			summary.Errors++
			r.logger.ErrorContext(ctx, "failed to create cancellation proposal",
				"practice_id", p.ID, "error", createErr)
			continue
		}

		summary.Proposed++
		r.notify(ctx, summary, p, func() error {
			return r.notifier.SendProposalAlert(ctx, p, req)
		})
	}
	return nil
}

// remindUnconfirmedLeads sends one reminder per unconfirmed lead. Practices
// with no leads at all are left to the evaluation path, which raises a
// critical has_lead violation instead.
func (r *Routines) remindUnconfirmedLeads(ctx context.Context, summary *RoutineSummary, p *types.Practice) {
	for _, lead := range p.Leads {
		if lead.Confirmed {
			continue
		}
		r.notify(ctx, summary, p, func() error {
			return r.notifier.SendLeadReminder(ctx, p, lead)
		})
	}
}

// notify runs one best-effort delivery, suppressed entirely in dry-run.
func (r *Routines) notify(ctx context.Context, summary *RoutineSummary, p *types.Practice, send func() error) {
	if summary.DryRun {
		summary.Skipped++
		r.logger.InfoContext(ctx, "dry run: notification suppressed", "practice_id", p.ID)
		return
	}
	if err := send(); err != nil {
		summary.Errors++
		r.logger.ErrorContext(ctx, "notification failed", "practice_id", p.ID, "error", err)
		return
	}
	summary.Notified++
}

// record persists the run. Recording failures are logged, not propagated:
// losing one observability row must not fail a routine that did its work.
func (r *Routines) record(ctx context.Context, summary *RoutineSummary) {
	if r.runs == nil {
		return
	}

	finished := r.now()
	detail, err := json.Marshal(summary)
	if err != nil {
		detail = nil
	}

	run := &types.AgentRun{
		Task:       string(summary.Task),
		StartedAt:  summary.StartedAt,
		FinishedAt: &finished,
		Checked:    summary.Checked,
		Proposed:   summary.Proposed,
		Errors:     summary.Errors,
		Detail:     detail,
	}
	if err := r.runs.Record(ctx, run); err != nil {
		r.logger.ErrorContext(ctx, "failed to record agent run", "task", summary.Task, "error", err)
	}
}
