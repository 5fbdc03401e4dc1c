package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skipper/internal/types"
)

// PracticeGetter loads practices for the evaluation endpoint.
type PracticeGetter interface {
	GetByID(ctx context.Context, id string) (*types.Practice, error)
}

// PracticeEvaluator produces a go/no-go verdict for one practice.
type PracticeEvaluator interface {
	Evaluate(ctx context.Context, practice *types.Practice) *types.PracticeEvaluation
}

// NarrativeGenerator renders an evaluation as prose.
type NarrativeGenerator interface {
	Summarize(ctx context.Context, practice *types.Practice, eval *types.PracticeEvaluation) (string, error)
}

// PracticeHandler serves on-demand practice evaluation.
type PracticeHandler struct {
	practices PracticeGetter
	evaluator PracticeEvaluator
	narrative NarrativeGenerator
	logger    *slog.Logger
}

// NewPracticeHandler creates a PracticeHandler.
func NewPracticeHandler(practices PracticeGetter, evaluator PracticeEvaluator, narrative NarrativeGenerator, logger *slog.Logger) *PracticeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PracticeHandler{
		practices: practices,
		evaluator: evaluator,
		narrative: narrative,
		logger:    logger,
	}
}

// RegisterRoutes mounts practice routes on the router.
func (h *PracticeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/practices/{practiceID}/evaluate", h.Evaluate)
}

// EvaluationResponse is the evaluate endpoint's payload.
type EvaluationResponse struct {
	Evaluation *types.PracticeEvaluation `json:"evaluation"`
	// Narrative is a prose rendering of the evaluation, present only when
	// requested via ?narrative=true.
	Narrative string `json:"narrative,omitempty"`
}

// Evaluate handles POST /v1/practices/{practiceID}/evaluate. The evaluation
// is read-only: it never creates a proposal, so admins can check conditions
// without tripping the state machine.
func (h *PracticeHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	practiceID := chi.URLParam(r, "practiceID")

	practice, err := h.practices.GetByID(ctx, practiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	eval := h.evaluator.Evaluate(ctx, practice)
	resp := EvaluationResponse{Evaluation: eval}

	if r.URL.Query().Get("narrative") == "true" && h.narrative != nil {
		summary, narrErr := h.narrative.Summarize(ctx, practice, eval)
		if narrErr != nil {
			// The verdict stands on its own; prose is a nice-to-have.
			h.logger.WarnContext(ctx, "narrative generation failed",
				"practice_id", practiceID, "error", narrErr)
		} else {
			resp.Narrative = summary
		}
	}

	writeJSON(w, r, http.StatusOK, APIResponse{Data: resp})
}
