package db

import (
	"context"

	"skipper/internal/types"
)

// AgentRunRepository persists per-routine execution records for
// observability. Rows are append-only; retention is handled out of band.
type AgentRunRepository struct {
	db DBTX
}

// NewAgentRunRepository creates an AgentRunRepository.
func NewAgentRunRepository(db DBTX) *AgentRunRepository {
	return &AgentRunRepository{db: db}
}

// Record inserts a completed agent run and populates its generated ID.
func (r *AgentRunRepository) Record(ctx context.Context, run *types.AgentRun) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO agent_runs (task, started_at, finished_at, checked, proposed, errors, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		run.Task,
		run.StartedAt,
		run.FinishedAt,
		run.Checked,
		run.Proposed,
		run.Errors,
		run.Detail,
	)
	if err := row.Scan(&run.ID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record agent run", err)
	}
	return nil
}
