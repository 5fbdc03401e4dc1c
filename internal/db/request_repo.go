package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"skipper/internal/types"
)

// pgUniqueViolation is the Postgres error code raised when an insert hits
// the one-pending-request-per-practice partial unique index.
const pgUniqueViolation = "23505"

// CancellationRequestRepository provides data access for cancellation
// requests. All status transitions go through Decide and ExpirePending,
// which guard the pending state with a compare-and-swap predicate
// (WHERE status = 'pending') so a human decision and the expiry sweep can
// never both win the same request.
type CancellationRequestRepository struct {
	db    DBTX
	txer  TxBeginner
	clock func() time.Time
}

// NewCancellationRequestRepository creates a repository backed by the given
// pool. The pool serves both as DBTX for plain queries and TxBeginner for
// the decision transaction.
func NewCancellationRequestRepository(db DBTX, txer TxBeginner) *CancellationRequestRepository {
	return &CancellationRequestRepository{
		db:    db,
		txer:  txer,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

const requestColumns = `id, practice_id, status, reason_type, reason_summary,
	evaluation_data, proposed_at, expires_at, decided_at,
	decided_by_user_id, decided_by_slack_uid, decision_notes`

// Create inserts a new pending cancellation request. If a pending request
// already exists for the same practice, returns conflict_pending_request_exists.
func (r *CancellationRequestRepository) Create(ctx context.Context, req *types.CancellationRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO cancellation_requests
		 (id, practice_id, status, reason_type, reason_summary,
		  evaluation_data, proposed_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID,
		req.PracticeID,
		string(req.Status),
		string(req.ReasonType),
		req.ReasonSummary,
		req.EvaluationData,
		req.ProposedAt,
		req.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.NewAppErrorWithDetails(
				types.ErrCodeConflictPendingExists,
				"a pending cancellation request already exists for this practice",
				err,
				map[string]any{"practice_id": req.PracticeID},
			)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create cancellation request", err)
	}
	return nil
}

// GetByID fetches a cancellation request by ID.
func (r *CancellationRequestRepository) GetByID(ctx context.Context, id string) (*types.CancellationRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM cancellation_requests WHERE id = $1`, id)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRequest, "cancellation request not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get cancellation request", err)
	}
	return req, nil
}

// List returns cancellation requests, optionally filtered by status, newest
// first.
func (r *CancellationRequestRepository) List(ctx context.Context, status types.RequestStatus, limit int) ([]*types.CancellationRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + requestColumns + ` FROM cancellation_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY proposed_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cancellation requests", err)
	}
	defer rows.Close()

	var results []*types.CancellationRequest
	for rows.Next() {
		req, scanErr := scanRequest(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan request row", scanErr)
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating request rows", err)
	}
	return results, nil
}

// Decide transitions a pending request to approved or rejected and, on
// approval, cancels the linked practice in the same transaction.
//
// The transition is a compare-and-swap: the UPDATE carries a
// WHERE status = 'pending' predicate, so if the expiry sweep (or another
// decision) got there first, zero rows match and the caller receives
// conflict_already_decided rather than a silent overwrite.
//
// On approval the practice's cancellation_reason is set from the request's
// reason summary only when no reason is already present.
func (r *CancellationRequestRepository) Decide(
	ctx context.Context,
	requestID string,
	decision types.Decision,
	decidedByUserID, decidedBySlackUID, notes string,
) (*types.CancellationRequest, error) {
	tx, err := r.txer.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin decision transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	now := r.clock()

	row := tx.QueryRow(ctx,
		`UPDATE cancellation_requests SET
			status = $2,
			decided_at = $3,
			decided_by_user_id = NULLIF($4, ''),
			decided_by_slack_uid = NULLIF($5, ''),
			decision_notes = NULLIF($6, '')
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+requestColumns,
		requestID,
		string(decision),
		now,
		decidedByUserID,
		decidedBySlackUID,
		notes,
	)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// CAS miss: distinguish unknown ID from already-terminal.
			return nil, r.classifyDecideMiss(ctx, requestID)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update cancellation request", err)
	}

	if decision == types.DecisionApproved {
		_, err := tx.Exec(ctx,
			`UPDATE practices SET
				status = 'cancelled',
				cancellation_reason = CASE
					WHEN cancellation_reason = '' THEN $2
					ELSE cancellation_reason
				END,
				updated_at = NOW()
			 WHERE id = $1`,
			req.PracticeID,
			req.ReasonSummary,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel practice", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit decision transaction", err)
	}
	return req, nil
}

// classifyDecideMiss runs after a zero-row CAS update to produce the precise
// caller-facing error: not_found for an unknown ID, conflict for a request
// that already reached a terminal state.
func (r *CancellationRequestRepository) classifyDecideMiss(ctx context.Context, requestID string) error {
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT status FROM cancellation_requests WHERE id = $1`, requestID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundRequest, "cancellation request not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to inspect cancellation request", err)
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeConflictAlreadyDecided,
		"cancellation request is no longer pending",
		nil,
		map[string]any{"status": status},
	)
}

// ExpirePending transitions every pending request past its expiry to
// expired and returns the expired requests. Practices are left untouched:
// absence of a timely human decision means the practice proceeds as
// scheduled. The status predicate makes the sweep idempotent: a second run
// with no intervening changes matches nothing.
func (r *CancellationRequestRepository) ExpirePending(ctx context.Context, now time.Time) ([]*types.CancellationRequest, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE cancellation_requests SET
			status = 'expired',
			decided_at = $1
		 WHERE status = 'pending' AND expires_at < $1
		 RETURNING `+requestColumns,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire pending requests", err)
	}
	defer rows.Close()

	var expired []*types.CancellationRequest
	for rows.Next() {
		req, scanErr := scanRequest(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expired request", scanErr)
		}
		expired = append(expired, req)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating expired requests", err)
	}
	return expired, nil
}

// scanRequest scans one cancellation_requests row.
func scanRequest(row pgx.Row) (*types.CancellationRequest, error) {
	var (
		req               types.CancellationRequest
		status            string
		reasonType        string
		decidedByUserID   *string
		decidedBySlackUID *string
		decisionNotes     *string
	)
	err := row.Scan(
		&req.ID,
		&req.PracticeID,
		&status,
		&reasonType,
		&req.ReasonSummary,
		&req.EvaluationData,
		&req.ProposedAt,
		&req.ExpiresAt,
		&req.DecidedAt,
		&decidedByUserID,
		&decidedBySlackUID,
		&decisionNotes,
	)
	if err != nil {
		return nil, err
	}

	req.Status = types.RequestStatus(status)
	req.ReasonType = types.ReasonType(reasonType)
	if decidedByUserID != nil {
		req.DecidedByUserID = *decidedByUserID
	}
	if decidedBySlackUID != nil {
		req.DecidedBySlackUID = *decidedBySlackUID
	}
	if decisionNotes != nil {
		req.DecisionNotes = *decisionNotes
	}
	return &req, nil
}
