package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"skipper/internal/config"
	"skipper/internal/types"
)

// signalCount is the number of independent signals the evaluator fetches.
// Confidence is the fraction of these that were successfully obtained.
const signalCount = 3

// reviewWarningThreshold is the warning count at which an otherwise-go
// evaluation is flagged for human review. Flagging drives no state change;
// it exists as an extension point for a future review workflow.
const reviewWarningThreshold = 3

// WeatherProvider supplies a weather snapshot for a location and time.
// May fail; the evaluator treats a failure as an absent signal.
type WeatherProvider interface {
	GetWeather(ctx context.Context, lat, lon float64, at time.Time) (*types.WeatherConditions, error)
}

// TrailProvider supplies trail conditions for a venue by name. The lookup is
// a fuzzy match and may return (nil, nil) when no report covers the venue.
type TrailProvider interface {
	GetTrailConditions(ctx context.Context, locationName string) (*types.TrailCondition, error)
}

// DaylightProvider supplies sun and twilight times for a location and date.
type DaylightProvider interface {
	GetDaylight(ctx context.Context, lat, lon float64, date time.Time) (*types.DaylightInfo, error)
}

// AgentConfigSource yields the current agent configuration. Implementations
// must be fail-open: they always return a usable configuration, falling back
// to safe defaults when the underlying source is missing or unparseable.
type AgentConfigSource interface {
	Current() config.AgentConfig
}

// FileConfigSource loads the agent configuration from a YAML file on every
// call, so threshold edits take effect on the next evaluation run.
type FileConfigSource struct {
	Path   string
	Logger *slog.Logger
}

// Current implements AgentConfigSource.
func (f FileConfigSource) Current() config.AgentConfig {
	return config.LoadAgentConfig(f.Path, f.Logger)
}

// StaticConfigSource returns a fixed configuration. Used in tests and for
// one-shot invocations that already resolved their configuration.
type StaticConfigSource struct {
	Config config.AgentConfig
}

// Current implements AgentConfigSource.
func (s StaticConfigSource) Current() config.AgentConfig {
	return s.Config
}

// Evaluator orchestrates signal collection and threshold checks into a
// single PracticeEvaluation. Individual provider failures are non-fatal:
// the evaluation proceeds with the signal absent and reduced confidence.
type Evaluator struct {
	weather  WeatherProvider
	trail    TrailProvider
	daylight DaylightProvider
	configs  AgentConfigSource
	logger   *slog.Logger
	now      func() time.Time // injectable clock for deterministic tests
}

// EvaluatorConfig holds the dependencies for creating an Evaluator.
type EvaluatorConfig struct {
	Weather  WeatherProvider
	Trail    TrailProvider
	Daylight DaylightProvider
	Configs  AgentConfigSource
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewEvaluator creates an Evaluator with the given dependencies.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Evaluator{
		weather:  cfg.Weather,
		trail:    cfg.Trail,
		daylight: cfg.Daylight,
		configs:  cfg.Configs,
		logger:   logger,
		now:      now,
	}
}

// Evaluate fetches weather, trail, and daylight data for the practice,
// runs all threshold checks, and aggregates the result. It never fails:
// missing signals degrade confidence, and the verdict is derived from
// whatever violations the available signals produced.
func (e *Evaluator) Evaluate(ctx context.Context, practice *types.Practice) *types.PracticeEvaluation {
	cfg := e.configs.Current()
	now := e.now()

	var (
		weather  *types.WeatherConditions
		trail    *types.TrailCondition
		daylight *types.DaylightInfo
	)

	// Fetch the three signals concurrently. Each fetch failure is logged
	// and leaves its signal nil; goroutines never propagate errors so one
	// slow or broken provider cannot sink the others.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w, err := e.weather.GetWeather(gctx, practice.Location.Lat, practice.Location.Lon, practice.StartsAt)
		if err != nil {
			e.logger.WarnContext(gctx, "weather fetch failed, evaluating without weather",
				"practice_id", practice.ID,
				"error", err,
			)
			return nil
		}
		weather = w
		return nil
	})

	g.Go(func() error {
		t, err := e.trail.GetTrailConditions(gctx, practice.Location.Name)
		if err != nil {
			e.logger.WarnContext(gctx, "trail conditions fetch failed, evaluating without trails",
				"practice_id", practice.ID,
				"location", practice.Location.Name,
				"error", err,
			)
			return nil
		}
		trail = t
		return nil
	})

	g.Go(func() error {
		d, err := e.daylight.GetDaylight(gctx, practice.Location.Lat, practice.Location.Lon, practice.StartsAt)
		if err != nil {
			e.logger.WarnContext(gctx, "daylight computation failed, evaluating without daylight",
				"practice_id", practice.ID,
				"error", err,
			)
			return nil
		}
		daylight = d
		return nil
	})

	// Closures always return nil; Wait is for synchronization only.
	_ = g.Wait()

	var violations types.Violations

	if weather != nil {
		violations = append(violations, CheckWeatherThresholds(weather, cfg.Thresholds.Weather)...)
	}

	if trail != nil && len(practice.Activities) > 0 {
		for _, activity := range practice.Activities {
			violations = append(violations, CheckTrailThresholds(trail, activity, cfg.Thresholds.Trails)...)
		}
	}

	violations = append(violations, CheckLeadAvailability(practice, now, cfg.Thresholds.Lead)...)

	if daylight != nil {
		violations = append(violations, CheckDaylight(practice, daylight)...)
	}

	fetched := 0
	if weather != nil {
		fetched++
	}
	if trail != nil {
		fetched++
	}
	if daylight != nil {
		fetched++
	}

	eval := &types.PracticeEvaluation{
		PracticeID:       practice.ID,
		EvaluatedAt:      now,
		Weather:          weather,
		TrailConditions:  trail,
		Violations:       violations,
		IsGo:             len(violations.Criticals()) == 0,
		Confidence:       float64(fetched) / float64(signalCount),
		HasConfirmedLead: practice.HasConfirmedLead(),
		HasPostedWorkout: practice.HasPostedWorkout(),
	}

	e.logger.InfoContext(ctx, "practice evaluated",
		"practice_id", practice.ID,
		"is_go", eval.IsGo,
		"violations", len(eval.Violations),
		"confidence", eval.Confidence,
	)

	return eval
}

// ShouldProposeCancellation reports whether an evaluation warrants a
// cancellation proposal: exactly when the verdict is no-go.
func ShouldProposeCancellation(eval *types.PracticeEvaluation) bool {
	return !eval.IsGo
}

// NeedsReview reports whether a go verdict accumulated enough warnings to be
// worth a human look. This is informational only: no workflow consumes it
// yet, and it never triggers a cancellation proposal.
func NeedsReview(eval *types.PracticeEvaluation) bool {
	return eval.IsGo && len(eval.Violations.Warnings()) >= reviewWarningThreshold
}
