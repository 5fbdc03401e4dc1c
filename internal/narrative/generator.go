// Package narrative renders a PracticeEvaluation as a short human-readable
// summary for escalation messages. The summary is presentation only: it is
// derived from an already-final evaluation and never feeds back into the
// go/no-go decision.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	"skipper/internal/config"
	"skipper/internal/types"
)

// Generator renders an evaluation as prose for humans.
type Generator interface {
	Summarize(ctx context.Context, practice *types.Practice, eval *types.PracticeEvaluation) (string, error)
}

// NewGenerator builds the narrative stack from config: the LLM backend with
// a deterministic template fallback when an API key is configured, the
// template alone otherwise.
func NewGenerator(cfg config.NarrativeConfig, logger *slog.Logger) Generator {
	if logger == nil {
		logger = slog.Default()
	}
	template := &TemplateGenerator{}
	if cfg.AnthropicAPIKey.Reveal() == "" {
		return template
	}
	return &fallbackGenerator{
		primary:  NewAnthropicGenerator(cfg),
		fallback: template,
		logger:   logger,
	}
}

// TemplateGenerator renders a fixed-form summary with no external calls.
type TemplateGenerator struct{}

// Summarize never fails; it always has enough to say something useful.
func (g *TemplateGenerator) Summarize(_ context.Context, practice *types.Practice, eval *types.PracticeEvaluation) (string, error) {
	var b strings.Builder

	verdict := "looks good to go"
	if !eval.IsGo {
		verdict = "is flagged for cancellation review"
	}
	fmt.Fprintf(&b, "%s on %s %s.",
		practice.Name,
		practice.StartsAt.Format("Mon Jan 2 at 3:04 PM"),
		verdict,
	)

	if criticals := eval.Violations.Criticals(); len(criticals) > 0 {
		b.WriteString(" Blocking issues: ")
		msgs := make([]string, len(criticals))
		for i, v := range criticals {
			msgs[i] = v.Message
		}
		b.WriteString(strings.Join(msgs, "; "))
		b.WriteString(".")
	}
	if warnings := eval.Violations.Warnings(); len(warnings) > 0 {
		fmt.Fprintf(&b, " %d advisory warning(s) noted.", len(warnings))
	}
	if eval.Confidence < 1 {
		fmt.Fprintf(&b, " Signal confidence %.0f%%: some condition sources were unavailable.", eval.Confidence*100)
	}

	return b.String(), nil
}

// AnthropicGenerator renders the summary with a small Claude model. Output
// is capped short; the evaluation details travel in the prompt, never club
// member data.
type AnthropicGenerator struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

// NewAnthropicGenerator creates an AnthropicGenerator from config.
func NewAnthropicGenerator(cfg config.NarrativeConfig) *AnthropicGenerator {
	return &AnthropicGenerator{
		client:  anthropic.NewClient(cfg.AnthropicAPIKey.Reveal()),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

const systemPrompt = `You write brief practice-status updates for a ski club.
Given an evaluation of conditions for one practice, write 2-3 sentences for
club leadership: the verdict, the key reasons, and anything they should act
on. Plain text, no markdown, no preamble.`

func (g *AnthropicGenerator) Summarize(ctx context.Context, practice *types.Practice, eval *types.PracticeEvaluation) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := buildPrompt(practice, eval)
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: 300,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamNarrative, "narrative generation failed", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil && *block.Text != "" {
			return strings.TrimSpace(*block.Text), nil
		}
	}
	return "", types.NewAppError(types.ErrCodeUpstreamNarrative, "narrative response contained no text", nil)
}

// buildPrompt flattens the evaluation into a compact plain-text block.
func buildPrompt(practice *types.Practice, eval *types.PracticeEvaluation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Practice: %s\n", practice.Name)
	fmt.Fprintf(&b, "Starts: %s\n", practice.StartsAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Location: %s\n", practice.Location.Name)
	fmt.Fprintf(&b, "Verdict: is_go=%t confidence=%.2f\n", eval.IsGo, eval.Confidence)

	if eval.Weather != nil {
		fmt.Fprintf(&b, "Weather: %.0fF, wind %.0f mph, precip %.0f%%, %s\n",
			eval.Weather.TemperatureF,
			eval.Weather.WindSpeedMph,
			eval.Weather.PrecipitationChance,
			eval.Weather.ConditionsSummary,
		)
	}
	if eval.TrailConditions != nil {
		fmt.Fprintf(&b, "Trails: %s open, quality %s\n",
			eval.TrailConditions.TrailsOpen, eval.TrailConditions.SkiQuality)
	}
	for _, v := range eval.Violations {
		fmt.Fprintf(&b, "Violation [%s]: %s\n", v.Severity, v.Message)
	}
	return b.String()
}

// fallbackGenerator tries the primary and degrades to the fallback on any
// error. The fallback's output is always acceptable, so Summarize only fails
// if both do.
type fallbackGenerator struct {
	primary  Generator
	fallback Generator
	logger   *slog.Logger
}

func (g *fallbackGenerator) Summarize(ctx context.Context, practice *types.Practice, eval *types.PracticeEvaluation) (string, error) {
	summary, err := g.primary.Summarize(ctx, practice, eval)
	if err == nil {
		return summary, nil
	}
	g.logger.WarnContext(ctx, "narrative backend failed, using template summary",
		"error", err, "practice_id", practice.ID)
	return g.fallback.Summarize(ctx, practice, eval)
}
