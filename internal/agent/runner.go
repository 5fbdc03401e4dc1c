package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Schedule maps routines to wall-clock fire times ("15:04", local to the
// runner's clock) plus the expiry sweep interval.
type Schedule struct {
	MorningCheckAt     string
	Precheck48At       string
	Precheck24At       string
	LeadVerificationAt []string
	ExpireInterval     time.Duration
}

// DefaultSchedule returns the club's standard cadence: morning check early,
// prechecks in the evening, lead verification late afternoon and night, and
// a frequent expiry sweep so overdue proposals fail open promptly.
func DefaultSchedule() Schedule {
	return Schedule{
		MorningCheckAt:     "06:00",
		Precheck48At:       "18:00",
		Precheck24At:       "17:00",
		LeadVerificationAt: []string{"16:00", "22:00"},
		ExpireInterval:     5 * time.Minute,
	}
}

// Runner drives the Routines service off a wall clock. One process runs one
// Runner; the database-level compare-and-swap transitions keep an
// accidentally doubled deployment from double-deciding anything.
type Runner struct {
	routines *Routines
	schedule Schedule
	logger   *slog.Logger
	now      func() time.Time

	// fired dedupes slot firings: key is task + slot + date.
	fired map[string]bool
}

// NewRunner creates a Runner.
func NewRunner(routines *Routines, schedule Schedule, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule.ExpireInterval <= 0 {
		schedule.ExpireInterval = 5 * time.Minute
	}
	return &Runner{
		routines: routines,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
		fired:    make(map[string]bool),
	}
}

// Start blocks, firing routines per the schedule until the context is
// cancelled. Routine errors are logged; the loop keeps running.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "agent runner started",
		"morning_check_at", r.schedule.MorningCheckAt,
		"precheck_48h_at", r.schedule.Precheck48At,
		"precheck_24h_at", r.schedule.Precheck24At,
		"lead_verification_at", r.schedule.LeadVerificationAt,
		"expire_interval", r.schedule.ExpireInterval,
	)

	clockTick := time.NewTicker(30 * time.Second)
	defer clockTick.Stop()
	expireTick := time.NewTicker(r.schedule.ExpireInterval)
	defer expireTick.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "agent runner stopping")
			return ctx.Err()
		case <-clockTick.C:
			r.fireDue(ctx)
		case <-expireTick.C:
			r.runTask(ctx, TaskExpireProposals)
		}
	}
}

// fireDue runs every scheduled task whose slot matches the current minute
// and has not fired yet today.
func (r *Runner) fireDue(ctx context.Context) {
	now := r.now()
	minute := now.Format("15:04")
	date := now.Format("2006-01-02")

	due := []struct {
		task TaskType
		slot string
	}{
		{TaskMorningCheck, r.schedule.MorningCheckAt},
		{TaskPrecheck48h, r.schedule.Precheck48At},
		{TaskPrecheck24h, r.schedule.Precheck24At},
	}
	for _, slot := range r.schedule.LeadVerificationAt {
		due = append(due, struct {
			task TaskType
			slot string
		}{TaskLeadVerification, slot})
	}

	for _, d := range due {
		if d.slot != minute {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s", d.task, d.slot, date)
		if r.fired[key] {
			continue
		}
		r.fired[key] = true
		r.runTask(ctx, d.task)
	}

	// Drop yesterday's dedupe keys so the map stays small.
	for key := range r.fired {
		if len(key) < len(date) || key[len(key)-len(date):] != date {
			delete(r.fired, key)
		}
	}
}

func (r *Runner) runTask(ctx context.Context, task TaskType) {
	if _, err := r.routines.Run(ctx, task); err != nil {
		r.logger.ErrorContext(ctx, "routine failed", "task", task, "error", err)
	}
}
