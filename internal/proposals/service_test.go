package proposals

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/config"
	"skipper/internal/types"
)

// memoryStore is an in-memory RequestStore with the same compare-and-swap
// transition semantics as the Postgres repository: only pending requests can
// transition, under one mutex.
type memoryStore struct {
	mu        sync.Mutex
	requests  map[string]*types.CancellationRequest
	practices map[string]*types.Practice
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		requests:  make(map[string]*types.CancellationRequest),
		practices: make(map[string]*types.Practice),
	}
}

func (s *memoryStore) Create(_ context.Context, req *types.CancellationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.PracticeID == req.PracticeID && existing.Status == types.RequestPending {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictPendingExists,
				"a pending cancellation request already exists for this practice", nil,
				map[string]any{"practice_id": req.PracticeID})
		}
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *memoryStore) Decide(_ context.Context, requestID string, decision types.Decision, userID, slackUID, notes string) (*types.CancellationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundRequest, "cancellation request not found", nil)
	}
	if req.Status != types.RequestPending {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictAlreadyDecided,
			"cancellation request is no longer pending", nil,
			map[string]any{"status": string(req.Status)})
	}

	now := time.Now()
	req.Status = types.RequestStatus(decision)
	req.DecidedAt = &now
	req.DecidedByUserID = userID
	req.DecidedBySlackUID = slackUID
	req.DecisionNotes = notes

	if decision == types.DecisionApproved {
		if p, ok := s.practices[req.PracticeID]; ok {
			p.Status = types.PracticeCancelled
			if p.CancellationReason == "" {
				p.CancellationReason = req.ReasonSummary
			}
		}
	}

	cp := *req
	return &cp, nil
}

func (s *memoryStore) ExpirePending(_ context.Context, now time.Time) ([]*types.CancellationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*types.CancellationRequest
	for _, req := range s.requests {
		if req.Status == types.RequestPending && req.ExpiresAt.Before(now) {
			req.Status = types.RequestExpired
			decidedAt := now
			req.DecidedAt = &decidedAt
			cp := *req
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

type fixedConfigs struct {
	cfg config.AgentConfig
}

func (f fixedConfigs) Current() config.AgentConfig { return f.cfg }

func newTestService(store RequestStore, now func() time.Time) *Service {
	return NewService(ServiceConfig{
		Store:   store,
		Configs: fixedConfigs{cfg: config.DefaultAgentConfig()}, // 120 minute expiry
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Now:     now,
	})
}

func noGoEval(practiceID string) *types.PracticeEvaluation {
	return &types.PracticeEvaluation{
		PracticeID:  practiceID,
		EvaluatedAt: time.Now(),
		IsGo:        false,
		Confidence:  1,
		Violations: types.Violations{
			{ThresholdName: "min_temperature_f", Severity: types.SeverityCritical, Message: "Feels-like temperature -25.0F is below the -10.0F minimum"},
		},
	}
}

func TestCreate_SetsExpiryFromConfig(t *testing.T) {
	store := newMemoryStore()
	base := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	svc := newTestService(store, func() time.Time { return base })

	practice := &types.Practice{ID: "prac_1", Name: "Intervals"}
	req, err := svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.NoError(t, err)

	assert.Equal(t, types.RequestPending, req.Status)
	assert.Equal(t, base, req.ProposedAt)
	assert.Equal(t, base.Add(120*time.Minute), req.ExpiresAt)
	assert.Equal(t, types.ReasonWeather, req.ReasonType)
	assert.NotEmpty(t, req.EvaluationData)
	assert.Contains(t, req.ID, "creq_")
}

func TestCreate_SecondPendingForSamePracticeConflicts(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)
	practice := &types.Practice{ID: "prac_1"}

	_, err := svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictPendingExists, appErr.Code)
}

func TestDecide_ValidatesDecisionString(t *testing.T) {
	svc := newTestService(newMemoryStore(), nil)

	for _, decision := range []string{"", "maybe", "APPROVE", "denied"} {
		_, err := svc.Decide(context.Background(), "creq_x", decision, "", "", "")
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr, "decision %q", decision)
		assert.Equal(t, types.ErrCodeValidationInvalidDecision, appErr.Code)
	}
}

func TestDecide_CaseInsensitiveAndRecordsDecider(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)
	practice := &types.Practice{ID: "prac_1"}

	req, err := svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.NoError(t, err)

	decided, err := svc.Decide(context.Background(), req.ID, "  Approved ", "usr_1", "U123", "too cold to be safe")
	require.NoError(t, err)
	assert.Equal(t, types.RequestApproved, decided.Status)
	assert.Equal(t, "usr_1", decided.DecidedByUserID)
	assert.Equal(t, "U123", decided.DecidedBySlackUID)
	assert.Equal(t, "too cold to be safe", decided.DecisionNotes)
	require.NotNil(t, decided.DecidedAt)
}

func TestDecide_ApprovalCancelsPracticeAndKeepsExistingReason(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)

	practice := &types.Practice{ID: "prac_1", Status: types.PracticeScheduled}
	store.practices["prac_1"] = practice

	req, err := svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), req.ID, "approved", "usr_1", "", "")
	require.NoError(t, err)
	assert.Equal(t, types.PracticeCancelled, practice.Status)
	assert.Equal(t, req.ReasonSummary, practice.CancellationReason)

	// A practice with a reason already set keeps it.
	manual := &types.Practice{ID: "prac_2", Status: types.PracticeScheduled, CancellationReason: "set by an admin"}
	store.practices["prac_2"] = manual
	req2, err := svc.Create(context.Background(), manual, noGoEval("prac_2"))
	require.NoError(t, err)
	_, err = svc.Decide(context.Background(), req2.ID, "approved", "usr_1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "set by an admin", manual.CancellationReason)
}

func TestDecide_TerminalRequestConflicts(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)
	practice := &types.Practice{ID: "prac_1"}

	req, err := svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), req.ID, "rejected", "usr_1", "", "")
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), req.ID, "approved", "usr_2", "", "")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictAlreadyDecided, appErr.Code)
}

func TestDecide_UnknownRequestNotFound(t *testing.T) {
	svc := newTestService(newMemoryStore(), nil)

	_, err := svc.Decide(context.Background(), "creq_missing", "approved", "", "", "")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRequest, appErr.Code)
}

func TestExpirePending_FailOpenAndIdempotent(t *testing.T) {
	store := newMemoryStore()
	base := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	current := base
	svc := newTestService(store, func() time.Time { return current })

	practice := &types.Practice{ID: "prac_1", Status: types.PracticeScheduled}
	store.practices["prac_1"] = practice

	req, err := svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.NoError(t, err)

	// Before expiry nothing happens.
	expired, err := svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expired)

	// Past expiry the request expires; the practice proceeds untouched.
	current = base.Add(3 * time.Hour)
	expired, err = svc.ExpirePending(context.Background())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, req.ID, expired[0].ID)
	assert.Equal(t, types.RequestExpired, expired[0].Status)
	assert.Equal(t, types.PracticeScheduled, practice.Status)

	// Re-running the sweep matches nothing.
	expired, err = svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestDecideAndExpireRace_ExactlyOneWins(t *testing.T) {
	store := newMemoryStore()
	base := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	current := base
	svc := newTestService(store, func() time.Time { return current })

	practice := &types.Practice{ID: "prac_1", Status: types.PracticeScheduled}
	store.practices["prac_1"] = practice

	req, err := svc.Create(context.Background(), practice, noGoEval("prac_1"))
	require.NoError(t, err)

	current = base.Add(3 * time.Hour) // past expiry, both transitions eligible

	var wg sync.WaitGroup
	var decideErr error
	var expired []*types.CancellationRequest
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, decideErr = svc.Decide(context.Background(), req.ID, "approved", "usr_1", "", "")
	}()
	go func() {
		defer wg.Done()
		expired, _ = svc.ExpirePending(context.Background())
	}()
	wg.Wait()

	stored := store.requests[req.ID]
	if decideErr == nil {
		// Approval won: the sweep must not also have expired it.
		assert.Empty(t, expired)
		assert.Equal(t, types.RequestApproved, stored.Status)
		assert.Equal(t, types.PracticeCancelled, practice.Status)
	} else {
		// Expiry won: the decision must surface the conflict and the
		// practice proceeds.
		var appErr *types.AppError
		require.ErrorAs(t, decideErr, &appErr)
		assert.Equal(t, types.ErrCodeConflictAlreadyDecided, appErr.Code)
		require.Len(t, expired, 1)
		assert.Equal(t, types.RequestExpired, stored.Status)
		assert.Equal(t, types.PracticeScheduled, practice.Status)
	}
}

func TestClassifyReason_StrictMajority(t *testing.T) {
	weather := types.ThresholdViolation{ThresholdName: "min_temperature_f"}
	wind := types.ThresholdViolation{ThresholdName: "max_wind_gust_mph"}
	trail := types.ThresholdViolation{ThresholdName: "min_trail_quality"}
	lead := types.ThresholdViolation{ThresholdName: "has_lead"}
	daylight := types.ThresholdViolation{ThresholdName: "daylight_lights_required"}

	// Two of three weather: strict majority.
	assert.Equal(t, types.ReasonWeather, ClassifyReason(types.Violations{weather, wind, trail}))

	// Exactly half is not a strict majority.
	assert.Equal(t, types.ReasonMultipleFactors, ClassifyReason(types.Violations{weather, trail}))

	// Single violation is trivially a majority.
	assert.Equal(t, types.ReasonNoLead, ClassifyReason(types.Violations{lead}))
	assert.Equal(t, types.ReasonDaylight, ClassifyReason(types.Violations{daylight}))
	assert.Equal(t, types.ReasonTrailConditions, ClassifyReason(types.Violations{trail}))

	// Empty set falls back to multiple_factors.
	assert.Equal(t, types.ReasonMultipleFactors, ClassifyReason(nil))
}

func TestSummarizeReasons(t *testing.T) {
	crit := func(msg string) types.ThresholdViolation {
		return types.ThresholdViolation{Severity: types.SeverityCritical, Message: msg}
	}
	warn := types.ThresholdViolation{Severity: types.SeverityWarning, Message: "windy"}

	// Warnings never appear in the summary.
	assert.Equal(t, "too cold", SummarizeReasons(types.Violations{warn, crit("too cold")}))

	// Up to three criticals joined.
	got := SummarizeReasons(types.Violations{crit("a"), crit("b"), crit("c")})
	assert.Equal(t, "a; b; c", got)

	// Overflow collapses into a count.
	got = SummarizeReasons(types.Violations{crit("a"), crit("b"), crit("c"), crit("d"), crit("e")})
	assert.Equal(t, "a; b; c +2 more issues", got)

	// No criticals falls back to the fixed string.
	assert.Equal(t, fallbackSummary, SummarizeReasons(types.Violations{warn}))
}
