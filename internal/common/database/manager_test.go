package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ==========================
// Helpers
// ==========================

func testManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxAttempts:      3,
		RetryDelay:       time.Millisecond,
		ProbeInterval:    time.Hour,
		StatementTimeout: time.Second,
	}
}

// scriptedOpener hands out the given handles in order, then fails.
func scriptedOpener(calls *atomic.Int32, dbs ...*sql.DB) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		n := int(calls.Add(1))
		if n <= len(dbs) && dbs[n-1] != nil {
			return dbs[n-1], nil
		}
		return nil, stderrors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func initManager(t *testing.T, cfg ManagerConfig, open Opener) *ConnectionManager {
	t.Helper()
	m := NewConnectionManager(cfg, open, logger.NewTestLogger(t))
	require.NoError(t, m.Init(context.Background()))
	return m
}

// ==========================
// Init
// ==========================

func TestInit_Success(t *testing.T) {
	defer goleak.VerifyNone(t)

	db, mock := newMock(t)
	mock.ExpectClose()

	var calls atomic.Int32
	m := initManager(t, testManagerConfig(), scriptedOpener(&calls, db))

	assert.True(t, m.IsHealthy())
	assert.Equal(t, HealthHealthy, m.Health())
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, m.Dispose(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_RetriesThenSucceeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	db, mock := newMock(t)
	mock.ExpectClose()

	var calls atomic.Int32
	m := NewConnectionManager(testManagerConfig(), scriptedOpener(&calls, nil, db), logger.NewTestLogger(t))

	var slept int
	m.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, slept)
	assert.True(t, m.IsHealthy())

	require.NoError(t, m.Dispose(context.Background()))
}

func TestInit_ExhaustsAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	m := NewConnectionManager(testManagerConfig(), scriptedOpener(&calls), logger.NewTestLogger(t))

	var slept int
	m.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	err := m.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInitializationExhausted, errors.CodeOf(err))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, slept)
	assert.False(t, m.IsHealthy())

	require.NoError(t, m.Dispose(context.Background()))
}

// ==========================
// Probe and reconnect
// ==========================

func TestProbe_RepeatedFailuresStartOneReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	db, mock := newMock(t)
	for i := 0; i < 5; i++ {
		mock.ExpectQuery("SELECT 1").WillReturnError(stderrors.New("connection reset by peer"))
	}
	mock.ExpectClose()

	cfg := testManagerConfig()
	cfg.RetryDelay = time.Hour

	var calls atomic.Int32
	m := initManager(t, cfg, scriptedOpener(&calls, db))

	for i := 0; i < 5; i++ {
		err := m.Probe(context.Background())
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeStoreUnavailable, errors.CodeOf(err))
	}

	assert.Equal(t, int64(1), m.ReconnectAttempts())
	assert.Equal(t, HealthReconnecting, m.Health())
	assert.False(t, m.IsHealthy())

	require.NoError(t, m.Dispose(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProbe_ReconnectSwapsHandle(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, firstMock := newMock(t)
	firstMock.ExpectQuery("SELECT 1").WillReturnError(stderrors.New("connection reset by peer"))
	firstMock.ExpectClose()

	second, secondMock := newMock(t)
	secondMock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	secondMock.ExpectClose()

	var calls atomic.Int32
	m := initManager(t, testManagerConfig(), scriptedOpener(&calls, first, second))

	require.Error(t, m.Probe(context.Background()))
	require.Eventually(t, m.IsHealthy, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), m.ReconnectAttempts())

	require.NoError(t, m.Probe(context.Background()))
	assert.True(t, m.IsHealthy())

	require.NoError(t, m.Dispose(context.Background()))
	assert.NoError(t, firstMock.ExpectationsWereMet())
	assert.NoError(t, secondMock.ExpectationsWereMet())
}

func TestProbeLoop_TickReconnectsAndStopEndsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, firstMock := newMock(t)
	firstMock.ExpectQuery("SELECT 1").WillReturnError(stderrors.New("connection reset by peer"))
	firstMock.ExpectClose()

	second, secondMock := newMock(t)
	secondMock.MatchExpectationsInOrder(false)
	for i := 0; i < 500; i++ {
		secondMock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	}
	secondMock.ExpectClose()

	cfg := testManagerConfig()
	cfg.ProbeInterval = 20 * time.Millisecond

	var calls atomic.Int32
	m := initManager(t, cfg, scriptedOpener(&calls, first, second))

	require.Eventually(t, func() bool {
		return m.ReconnectAttempts() == 1 && m.IsHealthy()
	}, 2*time.Second, 5*time.Millisecond)

	m.StopProbe()

	stopped := make(chan struct{})
	go func() {
		m.bg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("probe loop still running after StopProbe")
	}

	assert.Equal(t, int64(1), m.ReconnectAttempts())
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, m.Dispose(context.Background()))
	assert.NoError(t, firstMock.ExpectationsWereMet())
}

func TestProbe_SuccessKeepsHealthy(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectClose()

	var calls atomic.Int32
	m := initManager(t, testManagerConfig(), scriptedOpener(&calls, db))

	require.NoError(t, m.Probe(context.Background()))
	assert.True(t, m.IsHealthy())
	assert.Equal(t, int64(0), m.ReconnectAttempts())

	require.NoError(t, m.Dispose(context.Background()))
}

// ==========================
// Execute
// ==========================

func TestExecute_ScansRows(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT name FROM resources").
		WithArgs("mythic").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Dragonhide").AddRow("Ethereal Silk"))
	mock.ExpectClose()

	var calls atomic.Int32
	m := initManager(t, testManagerConfig(), scriptedOpener(&calls, db))
	defer m.Dispose(context.Background())

	var names []string
	err := m.Execute(context.Background(), "SELECT name FROM resources WHERE LOWER(tier) = LOWER($1)",
		[]interface{}{"mythic"}, time.Second, func(rows *sql.Rows) error {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"Dragonhide", "Ethereal Silk"}, names)
}

func TestExecute_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock)
		timeout  time.Duration
		wantCode errors.ErrorCode
		wantMsg  string
	}{
		{
			name: "statement timeout",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillDelayFor(500 * time.Millisecond).
					WillReturnRows(sqlmock.NewRows([]string{"name"}))
			},
			timeout:  20 * time.Millisecond,
			wantCode: errors.ErrCodeStatementTimeout,
			wantMsg:  "timeout",
		},
		{
			name: "connection class error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})
			},
			timeout:  time.Second,
			wantCode: errors.ErrCodeStoreUnavailable,
			wantMsg:  "store unavailable",
		},
		{
			name: "syntax error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(&pq.Error{Code: "42601", Message: "syntax error"})
			},
			timeout:  time.Second,
			wantCode: errors.ErrCodeQueryFailed,
			wantMsg:  "query failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setup(mock)

			var calls atomic.Int32
			m := initManager(t, testManagerConfig(), scriptedOpener(&calls, db))
			defer m.Dispose(context.Background())

			err := m.Execute(context.Background(), "SELECT name FROM resources", nil, tt.timeout, nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))

			var stdErr *errors.StandardError
			require.True(t, stderrors.As(err, &stdErr))
			assert.Equal(t, tt.wantMsg, stdErr.Message)
		})
	}
}

func TestExecute_UnhealthyFailureIsStoreUnavailable(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(stderrors.New("connection reset by peer"))
	mock.ExpectQuery("SELECT name").WillReturnError(stderrors.New("bad connection state"))
	mock.ExpectClose()

	cfg := testManagerConfig()
	cfg.RetryDelay = time.Hour

	var calls atomic.Int32
	m := initManager(t, cfg, scriptedOpener(&calls, db))
	defer m.Dispose(context.Background())

	require.Error(t, m.Probe(context.Background()))

	err := m.Execute(context.Background(), "SELECT name FROM resources", nil, time.Second, nil)
	assert.Equal(t, errors.ErrCodeStoreUnavailable, errors.CodeOf(err))
}

func TestExecute_FailFastWhenUnhealthy(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(stderrors.New("connection reset by peer"))
	mock.ExpectClose()

	cfg := testManagerConfig()
	cfg.RetryDelay = time.Hour
	cfg.FailFastWhenUnhealthy = true

	var calls atomic.Int32
	m := initManager(t, cfg, scriptedOpener(&calls, db))

	require.Error(t, m.Probe(context.Background()))

	err := m.Execute(context.Background(), "SELECT name FROM resources", nil, time.Second, nil)
	assert.Equal(t, errors.ErrCodeStoreUnavailable, errors.CodeOf(err))

	require.NoError(t, m.Dispose(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_CallerCancellationDoesNotAbortStatement(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT name").WillDelayFor(10 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Wood"))
	mock.ExpectClose()

	var calls atomic.Int32
	m := initManager(t, testManagerConfig(), scriptedOpener(&calls, db))
	defer m.Dispose(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var rows int
	err := m.Execute(ctx, "SELECT name FROM resources", nil, time.Second, func(*sql.Rows) error {
		rows++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestExecute_WithoutHandle(t *testing.T) {
	m := NewConnectionManager(testManagerConfig(), scriptedOpener(new(atomic.Int32)), logger.NewNoOpLogger())

	err := m.Execute(context.Background(), "SELECT 1", nil, time.Second, nil)
	assert.Equal(t, errors.ErrCodeStoreUnavailable, errors.CodeOf(err))
}

// ==========================
// Dispose
// ==========================

func TestDispose_IdempotentWithoutConnection(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewConnectionManager(testManagerConfig(), scriptedOpener(new(atomic.Int32)), logger.NewNoOpLogger())
	assert.NoError(t, m.Dispose(context.Background()))
	assert.NoError(t, m.Dispose(context.Background()))
	m.StopProbe()
}

func TestDispose_RejectsNewStatements(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectClose()

	var calls atomic.Int32
	m := initManager(t, testManagerConfig(), scriptedOpener(&calls, db))
	require.NoError(t, m.Dispose(context.Background()))

	err := m.Execute(context.Background(), "SELECT 1", nil, time.Second, nil)
	assert.Equal(t, errors.ErrCodeStoreUnavailable, errors.CodeOf(err))
	assert.Equal(t, HealthUninitialized, m.Health())
	assert.NoError(t, mock.ExpectationsWereMet())
}
