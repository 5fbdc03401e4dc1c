package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"skipper/internal/types"
)

// ProposalReader provides read access to cancellation requests.
type ProposalReader interface {
	GetByID(ctx context.Context, id string) (*types.CancellationRequest, error)
	List(ctx context.Context, status types.RequestStatus, limit int) ([]*types.CancellationRequest, error)
}

// ProposalDecider applies a human decision to a pending request.
type ProposalDecider interface {
	Decide(ctx context.Context, requestID, decision, decidedByUserID, decidedBySlackUID, notes string) (*types.CancellationRequest, error)
}

// ProposalHandler serves the cancellation request endpoints.
type ProposalHandler struct {
	reader  ProposalReader
	decider ProposalDecider
	logger  *slog.Logger
}

// NewProposalHandler creates a ProposalHandler.
func NewProposalHandler(reader ProposalReader, decider ProposalDecider, logger *slog.Logger) *ProposalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProposalHandler{reader: reader, decider: decider, logger: logger}
}

// RegisterRoutes mounts proposal routes on the router.
func (h *ProposalHandler) RegisterRoutes(r chi.Router) {
	r.Route("/proposals", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/decision", h.Decide)
		})
	})
}

// List handles GET /v1/proposals?status=&limit=.
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	var status types.RequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = types.RequestStatus(raw)
		switch status {
		case types.RequestPending, types.RequestApproved, types.RequestRejected, types.RequestExpired:
		default:
			writeError(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidStatus,
				"status must be one of pending, approved, rejected, expired",
				nil,
				map[string]any{"status": raw},
			))
			return
		}
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationMissingField,
				"limit must be an integer", err,
				map[string]any{"limit": raw},
			))
			return
		}
		limit = n
	}

	requests, err := h.reader.List(r.Context(), status, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if requests == nil {
		requests = []*types.CancellationRequest{}
	}
	writeJSON(w, r, http.StatusOK, APIResponse{Data: requests})
}

// Get handles GET /v1/proposals/{requestID}.
func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.reader.GetByID(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, APIResponse{Data: req})
}

// DecisionRequest is the body for POST /v1/proposals/{requestID}/decision.
type DecisionRequest struct {
	Decision          string `json:"decision"`
	DecidedByUserID   string `json:"decided_by_user_id,omitempty"`
	DecidedBySlackUID string `json:"decided_by_slack_uid,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// Decide handles POST /v1/proposals/{requestID}/decision. The state machine
// validates the decision string and guards the pending state; this handler
// only decodes and relays.
func (h *ProposalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var body DecisionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.decider.Decide(
		r.Context(),
		chi.URLParam(r, "requestID"),
		body.Decision,
		body.DecidedByUserID,
		body.DecidedBySlackUID,
		body.Notes,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, APIResponse{Data: req})
}
