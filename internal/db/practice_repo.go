package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skipper/internal/types"
)

// PracticeRepository provides read access to practices and their leads.
// Practice state mutations happen only inside the cancellation decision
// transaction (see CancellationRequestRepository.Decide), never here.
type PracticeRepository struct {
	db DBTX
}

// NewPracticeRepository creates a PracticeRepository backed by the given
// database connection (pool or transaction).
func NewPracticeRepository(db DBTX) *PracticeRepository {
	return &PracticeRepository{db: db}
}

const practiceColumns = `id, name, starts_at, location_name, location_lat, location_lon,
	activities, workout_description, is_dark_practice, status,
	cancellation_reason, created_at, updated_at`

// GetByID fetches a single practice with its leads hydrated.
func (r *PracticeRepository) GetByID(ctx context.Context, id string) (*types.Practice, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+practiceColumns+` FROM practices WHERE id = $1`, id)

	p, err := scanPractice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPractice, "practice not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get practice", err)
	}

	if err := r.hydrateLeads(ctx, []*types.Practice{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListInWindow returns practices starting within [start, end) whose status is
// scheduled or confirmed, ordered by start time. Cancelled practices are
// excluded: they need no further evaluation.
func (r *PracticeRepository) ListInWindow(ctx context.Context, start, end time.Time) ([]*types.Practice, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+practiceColumns+`
		 FROM practices
		 WHERE starts_at >= $1 AND starts_at < $2
		   AND status IN ('scheduled', 'confirmed')
		 ORDER BY starts_at`,
		start, end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list practices", err)
	}
	defer rows.Close()

	var practices []*types.Practice
	for rows.Next() {
		p, scanErr := scanPractice(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan practice row", scanErr)
		}
		practices = append(practices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating practice rows", err)
	}

	if err := r.hydrateLeads(ctx, practices); err != nil {
		return nil, err
	}
	return practices, nil
}

// hydrateLeads loads practice_leads rows for the given practices and attaches
// them in lead insertion order.
func (r *PracticeRepository) hydrateLeads(ctx context.Context, practices []*types.Practice) error {
	if len(practices) == 0 {
		return nil
	}

	ids := make([]string, len(practices))
	byID := make(map[string]*types.Practice, len(practices))
	for i, p := range practices {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	rows, err := r.db.Query(ctx,
		`SELECT practice_id, name, role, slack_uid, confirmed
		 FROM practice_leads
		 WHERE practice_id = ANY($1)
		 ORDER BY id`,
		ids,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to load practice leads", err)
	}
	defer rows.Close()

	for rows.Next() {
		var practiceID string
		var lead types.PracticeLead
		if err := rows.Scan(&practiceID, &lead.Name, &lead.Role, &lead.SlackUID, &lead.Confirmed); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to scan lead row", err)
		}
		if p, ok := byID[practiceID]; ok {
			p.Leads = append(p.Leads, lead)
		}
	}
	if err := rows.Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "error iterating lead rows", err)
	}
	return nil
}

// scanPractice scans one practices row from a pgx.Row or pgx.Rows.
func scanPractice(row pgx.Row) (*types.Practice, error) {
	var (
		p      types.Practice
		status string
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.StartsAt,
		&p.Location.Name,
		&p.Location.Lat,
		&p.Location.Lon,
		&p.Activities,
		&p.WorkoutDescription,
		&p.IsDarkPractice,
		&status,
		&p.CancellationReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = types.PracticeStatus(status)
	return &p, nil
}
