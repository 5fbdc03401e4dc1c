package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skipper/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows ---

// mockRows implements pgx.Rows over a list of per-row scan functions.
type mockRows struct {
	scans  []func(dest ...any) error
	idx    int
	closed bool
	errVal error
}

func newMockRows(scans ...func(dest ...any) error) *mockRows {
	return &mockRows{scans: scans, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.scans)
}

func (r *mockRows) Scan(dest ...any) error {
	return r.scans[r.idx](dest...)
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// --- Mock Tx ---

// mockTx implements pgx.Tx. Only the methods the decision transaction uses
// are wired to testify; the rest panic if reached.
type mockTx struct {
	mock.Mock
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockTx) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func (m *mockTx) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTx) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not used") }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not used")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { panic("not used") }
func (m *mockTx) LargeObjects() pgx.LargeObjects                               { panic("not used") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not used")
}
func (m *mockTx) Conn() *pgx.Conn { return nil }

type mockTxBeginner struct {
	mock.Mock
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(pgx.Tx), args.Error(1)
	}
	return nil, args.Error(1)
}

// requestScan builds a scan function filling the requestColumns layout.
func requestScan(id, practiceID, status, reasonType, summary string, proposedAt, expiresAt time.Time, decidedAt *time.Time, userID, slackUID, notes *string) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = practiceID
		*dest[2].(*string) = status
		*dest[3].(*string) = reasonType
		*dest[4].(*string) = summary
		*dest[5].(*json.RawMessage) = json.RawMessage(`{"is_go":false}`)
		*dest[6].(*time.Time) = proposedAt
		*dest[7].(*time.Time) = expiresAt
		*dest[8].(**time.Time) = decidedAt
		*dest[9].(**string) = userID
		*dest[10].(**string) = slackUID
		*dest[11].(**string) = notes
		return nil
	}
}

func strPtr(s string) *string { return &s }

// --- Create Tests ---

func TestCancellationRequestRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	req := &types.CancellationRequest{
		ID:             "creq_1",
		PracticeID:     "prac_1",
		Status:         types.RequestPending,
		ReasonType:     types.ReasonWeather,
		ReasonSummary:  "too cold",
		EvaluationData: json.RawMessage(`{}`),
		ProposedAt:     time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC),
		ExpiresAt:      time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC),
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(ctx, req)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestCancellationRequestRepository_Create_PendingExistsConflict(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "idx_requests_one_pending"})

	err := repo.Create(ctx, &types.CancellationRequest{ID: "creq_1", PracticeID: "prac_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictPendingExists, appErr.Code)
	assert.Equal(t, "prac_1", appErr.Details["practice_id"])
	db.AssertExpectations(t)
}

func TestCancellationRequestRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(ctx, &types.CancellationRequest{ID: "creq_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	db.AssertExpectations(t)
}

// --- GetByID Tests ---

func TestCancellationRequestRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	proposedAt := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	expiresAt := proposedAt.Add(2 * time.Hour)

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: requestScan(
			"creq_1", "prac_1", "pending", "weather", "too cold",
			proposedAt, expiresAt, nil, nil, nil, nil,
		)})

	req, err := repo.GetByID(ctx, "creq_1")
	require.NoError(t, err)
	assert.Equal(t, "creq_1", req.ID)
	assert.Equal(t, types.RequestPending, req.Status)
	assert.Equal(t, types.ReasonWeather, req.ReasonType)
	assert.Equal(t, expiresAt, req.ExpiresAt)
	assert.Nil(t, req.DecidedAt)
	assert.Empty(t, req.DecidedByUserID)
	db.AssertExpectations(t)
}

func TestCancellationRequestRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(ctx, "creq_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundRequest, appErr.Code)
	db.AssertExpectations(t)
}

// --- List Tests ---

func TestCancellationRequestRepository_List_StatusFilter(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	proposedAt := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	rows := newMockRows(requestScan(
		"creq_1", "prac_1", "pending", "weather", "too cold",
		proposedAt, proposedAt.Add(2*time.Hour), nil, nil, nil, nil,
	))

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "WHERE status = $1")
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "pending", sqlArgs[0])
		}).
		Return(rows, nil)

	results, err := repo.List(ctx, types.RequestPending, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "creq_1", results[0].ID)
	db.AssertExpectations(t)
}

func TestCancellationRequestRepository_List_DefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			// With limit<=0 the query falls back to 50; no status filter means
			// the limit is the only argument.
			assert.Equal(t, []any{50}, sqlArgs)
		}).
		Return(newMockRows(), nil)

	results, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	db.AssertExpectations(t)
}

// --- Decide Tests ---

func TestCancellationRequestRepository_Decide_ApprovedCancelsPractice(t *testing.T) {
	db := new(mockDBTX)
	txer := new(mockTxBeginner)
	tx := new(mockTx)
	repo := NewCancellationRequestRepository(db, txer)
	ctx := context.Background()

	proposedAt := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	decidedAt := proposedAt.Add(30 * time.Minute)

	txer.On("Begin", ctx).Return(tx, nil)
	tx.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "status = 'pending'")
		}).
		Return(&mockRow{scanFn: requestScan(
			"creq_1", "prac_1", "approved", "weather", "too cold",
			proposedAt, proposedAt.Add(2*time.Hour), &decidedAt,
			strPtr("usr_1"), strPtr("U123"), nil,
		)})
	tx.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "UPDATE practices")
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "prac_1", sqlArgs[0])
			assert.Equal(t, "too cold", sqlArgs[1])
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	tx.On("Commit", ctx).Return(nil)
	tx.On("Rollback", ctx).Return(pgx.ErrTxClosed)

	req, err := repo.Decide(ctx, "creq_1", types.DecisionApproved, "usr_1", "U123", "")
	require.NoError(t, err)
	assert.Equal(t, types.RequestApproved, req.Status)
	assert.Equal(t, "usr_1", req.DecidedByUserID)
	txer.AssertExpectations(t)
	tx.AssertExpectations(t)
}

func TestCancellationRequestRepository_Decide_RejectedLeavesPractice(t *testing.T) {
	db := new(mockDBTX)
	txer := new(mockTxBeginner)
	tx := new(mockTx)
	repo := NewCancellationRequestRepository(db, txer)
	ctx := context.Background()

	proposedAt := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	decidedAt := proposedAt.Add(time.Hour)

	txer.On("Begin", ctx).Return(tx, nil)
	tx.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: requestScan(
			"creq_1", "prac_1", "rejected", "weather", "too cold",
			proposedAt, proposedAt.Add(2*time.Hour), &decidedAt,
			strPtr("usr_1"), nil, strPtr("conditions improving"),
		)})
	tx.On("Commit", ctx).Return(nil)
	tx.On("Rollback", ctx).Return(pgx.ErrTxClosed)

	req, err := repo.Decide(ctx, "creq_1", types.DecisionRejected, "usr_1", "", "conditions improving")
	require.NoError(t, err)
	assert.Equal(t, types.RequestRejected, req.Status)
	assert.Equal(t, "conditions improving", req.DecisionNotes)

	// No practice update on rejection.
	tx.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	tx.AssertExpectations(t)
}

func TestCancellationRequestRepository_Decide_UnknownRequest(t *testing.T) {
	db := new(mockDBTX)
	txer := new(mockTxBeginner)
	tx := new(mockTx)
	repo := NewCancellationRequestRepository(db, txer)
	ctx := context.Background()

	txer.On("Begin", ctx).Return(tx, nil)
	tx.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})
	tx.On("Rollback", ctx).Return(nil)

	// The miss classifier finds no row either: unknown ID.
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Decide(ctx, "creq_missing", types.DecisionApproved, "", "", "")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundRequest, appErr.Code)
	tx.AssertExpectations(t)
}

func TestCancellationRequestRepository_Decide_AlreadyDecidedConflict(t *testing.T) {
	db := new(mockDBTX)
	txer := new(mockTxBeginner)
	tx := new(mockTx)
	repo := NewCancellationRequestRepository(db, txer)
	ctx := context.Background()

	txer.On("Begin", ctx).Return(tx, nil)
	tx.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})
	tx.On("Rollback", ctx).Return(nil)

	// The miss classifier finds the request in a terminal state.
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "expired"
			return nil
		}})

	_, err := repo.Decide(ctx, "creq_1", types.DecisionApproved, "", "", "")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictAlreadyDecided, appErr.Code)
	assert.Equal(t, "expired", appErr.Details["status"])
	tx.AssertExpectations(t)
}

func TestCancellationRequestRepository_Decide_BeginError(t *testing.T) {
	db := new(mockDBTX)
	txer := new(mockTxBeginner)
	repo := NewCancellationRequestRepository(db, txer)
	ctx := context.Background()

	txer.On("Begin", ctx).Return(nil, errors.New("pool exhausted"))

	_, err := repo.Decide(ctx, "creq_1", types.DecisionApproved, "", "", "")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// --- ExpirePending Tests ---

func TestCancellationRequestRepository_ExpirePending_ReturnsExpired(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	now := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	proposedAt := now.Add(-3 * time.Hour)

	rows := newMockRows(requestScan(
		"creq_1", "prac_1", "expired", "weather", "too cold",
		proposedAt, proposedAt.Add(2*time.Hour), &now, nil, nil, nil,
	))

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "status = 'pending' AND expires_at < $1")
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, now, sqlArgs[0])
		}).
		Return(rows, nil)

	expired, err := repo.ExpirePending(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, types.RequestExpired, expired[0].Status)
	db.AssertExpectations(t)
}

func TestCancellationRequestRepository_ExpirePending_NothingDue(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(), nil)

	expired, err := repo.ExpirePending(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, expired)
	db.AssertExpectations(t)
}

func TestCancellationRequestRepository_ExpirePending_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCancellationRequestRepository(db, nil)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := repo.ExpirePending(ctx, time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	db.AssertExpectations(t)
}
