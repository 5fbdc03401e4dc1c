// Package proposals implements the cancellation proposal state machine:
// creating pending requests from no-go evaluations, applying human
// decisions, and the fail-open expiry sweep.
//
// States: pending -> approved | rejected | expired. Non-pending states are
// terminal. The approve/expire race on a pending request is resolved by the
// store's compare-and-swap transition: exactly one transition commits and
// the loser surfaces conflict_already_decided.
package proposals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"skipper/internal/config"
	"skipper/internal/types"
)

// maxSummaryViolations is how many critical violation messages the reason
// summary spells out before collapsing the rest into a count suffix.
const maxSummaryViolations = 3

// fallbackSummary is used when a proposal is created from an evaluation with
// no critical violations, which should not normally happen.
const fallbackSummary = "Practice flagged for cancellation review"

// RequestStore defines the persistence operations the state machine needs.
// Implementations must make Decide and ExpirePending atomic check-and-set
// transitions on the pending status.
type RequestStore interface {
	// Create persists a new pending request. Returns
	// conflict_pending_request_exists when the practice already has one.
	Create(ctx context.Context, req *types.CancellationRequest) error

	// Decide transitions a pending request to the given terminal decision
	// and, on approval, cancels the linked practice in the same transaction.
	Decide(ctx context.Context, requestID string, decision types.Decision,
		decidedByUserID, decidedBySlackUID, notes string) (*types.CancellationRequest, error)

	// ExpirePending transitions all pending requests past their expiry to
	// expired and returns them. Practices are left untouched.
	ExpirePending(ctx context.Context, now time.Time) ([]*types.CancellationRequest, error)
}

// ConfigSource yields the current agent configuration (escalation timeout).
type ConfigSource interface {
	Current() config.AgentConfig
}

// Service is the cancellation proposal state machine.
type Service struct {
	store   RequestStore
	configs ConfigSource
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Store   RequestStore
	Configs ConfigSource
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewService creates a proposal Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:   cfg.Store,
		configs: cfg.Configs,
		logger:  logger,
		now:     now,
	}
}

// Create builds and persists a pending cancellation request from a no-go
// evaluation. The reason type is the strict-majority violation category and
// the summary spells out the first critical violations. The request expires
// after the configured escalation timeout; expiry is fail-open (the practice
// proceeds).
func (s *Service) Create(ctx context.Context, practice *types.Practice, eval *types.PracticeEvaluation) (*types.CancellationRequest, error) {
	data, err := eval.Marshal()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize evaluation", err)
	}

	now := s.now()
	req := &types.CancellationRequest{
		ID:             "creq_" + uuid.New().String(),
		PracticeID:     practice.ID,
		Status:         types.RequestPending,
		ReasonType:     ClassifyReason(eval.Violations),
		ReasonSummary:  SummarizeReasons(eval.Violations),
		EvaluationData: data,
		ProposedAt:     now,
		ExpiresAt:      now.Add(s.configs.Current().Escalation.Timeout()),
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cancellation proposed",
		"request_id", req.ID,
		"practice_id", practice.ID,
		"reason_type", req.ReasonType,
		"expires_at", req.ExpiresAt.Format(time.RFC3339),
	)
	return req, nil
}

// Decide applies a human decision to a pending request. The decision string
// is matched case-insensitively against "approved" and "rejected"; anything
// else is a validation error. Deciding an unknown request returns not_found;
// deciding an already-terminal request returns conflict_already_decided.
// Decider identity and notes are recorded on both outcomes.
func (s *Service) Decide(ctx context.Context, requestID, decision, decidedByUserID, decidedBySlackUID, notes string) (*types.CancellationRequest, error) {
	var d types.Decision
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case string(types.DecisionApproved):
		d = types.DecisionApproved
	case string(types.DecisionRejected):
		d = types.DecisionRejected
	default:
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidDecision,
			`decision must be "approved" or "rejected"`,
			nil,
			map[string]any{"decision": decision},
		)
	}

	req, err := s.store.Decide(ctx, requestID, d, decidedByUserID, decidedBySlackUID, notes)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cancellation request decided",
		"request_id", req.ID,
		"practice_id", req.PracticeID,
		"decision", d,
		"decided_by_user_id", decidedByUserID,
		"decided_by_slack_uid", decidedBySlackUID,
	)
	return req, nil
}

// ExpirePending sweeps all pending requests past their expiry into the
// expired state. Fail-open: expired requests leave their practices exactly
// as scheduled. Safe to run repeatedly and concurrently with decisions;
// re-running after a sweep returns an empty list because matched requests
// are no longer pending.
func (s *Service) ExpirePending(ctx context.Context) ([]*types.CancellationRequest, error) {
	expired, err := s.store.ExpirePending(ctx, s.now())
	if err != nil {
		return nil, err
	}

	if len(expired) > 0 {
		for _, req := range expired {
			s.logger.WarnContext(ctx, "cancellation request expired without a decision, practice proceeds",
				"request_id", req.ID,
				"practice_id", req.PracticeID,
			)
		}
	}
	return expired, nil
}

// reasonCategory is the classification bucket for one violation.
type reasonCategory string

const (
	categoryWeather  reasonCategory = "weather"
	categoryTrail    reasonCategory = "trail_conditions"
	categoryLead     reasonCategory = "no_lead"
	categoryDaylight reasonCategory = "daylight"
	categoryOther    reasonCategory = "other"
)

// categorize maps a violation to its category by substring match on the
// threshold name.
func categorize(name string) reasonCategory {
	switch {
	case strings.Contains(name, "lead"):
		return categoryLead
	case strings.Contains(name, "trail") || strings.Contains(name, "groom") || strings.Contains(name, "quality"):
		return categoryTrail
	case strings.Contains(name, "daylight"):
		return categoryDaylight
	case strings.Contains(name, "temperature") || strings.Contains(name, "wind") ||
		strings.Contains(name, "precipitation") || strings.Contains(name, "lightning") ||
		strings.Contains(name, "weather") || strings.Contains(name, "alert"):
		return categoryWeather
	default:
		return categoryOther
	}
}

// ClassifyReason derives the request reason type from the violation set. A
// category must hold a strict majority (more than half of all violations) to
// win; otherwise the reason is multiple_factors. The "other" bucket counts
// toward the total but can never win on its own.
func ClassifyReason(violations types.Violations) types.ReasonType {
	if len(violations) == 0 {
		return types.ReasonMultipleFactors
	}

	counts := make(map[reasonCategory]int)
	for _, v := range violations {
		counts[categorize(v.ThresholdName)]++
	}

	total := len(violations)
	for cat, n := range counts {
		if n*2 > total && cat != categoryOther {
			switch cat {
			case categoryWeather:
				return types.ReasonWeather
			case categoryTrail:
				return types.ReasonTrailConditions
			case categoryLead:
				return types.ReasonNoLead
			case categoryDaylight:
				return types.ReasonDaylight
			}
		}
	}
	return types.ReasonMultipleFactors
}

// SummarizeReasons joins the first critical violation messages with "; ",
// appending a "+N more issues" suffix when more criticals exist. Falls back
// to a fixed string when no critical violations are present.
func SummarizeReasons(violations types.Violations) string {
	criticals := violations.Criticals()
	if len(criticals) == 0 {
		return fallbackSummary
	}

	n := len(criticals)
	if n > maxSummaryViolations {
		n = maxSummaryViolations
	}
	msgs := make([]string, 0, n)
	for _, v := range criticals[:n] {
		msgs = append(msgs, v.Message)
	}

	summary := strings.Join(msgs, "; ")
	if extra := len(criticals) - maxSummaryViolations; extra > 0 {
		summary += fmt.Sprintf(" +%d more issues", extra)
	}
	return summary
}
