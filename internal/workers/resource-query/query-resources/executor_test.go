package queryresources

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"catalog-assistant/internal/common/config"
	"catalog-assistant/internal/common/database"
	"catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/models"
	"catalog-assistant/internal/workers/resource-query/query-resources/queries"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resourceColumns = []string{"name", "tier", "description", "rarity", "value", "ticker", "colour"}

type fakeStore struct {
	err error
}

func (f fakeStore) Execute(context.Context, string, []interface{}, time.Duration, func(*sql.Rows) error) error {
	return f.err
}

type timeoutRecorder struct {
	got time.Duration
}

func (r *timeoutRecorder) Execute(_ context.Context, _ string, _ []interface{}, timeout time.Duration, _ func(*sql.Rows) error) error {
	r.got = timeout
	return nil
}

func newManager(t *testing.T) (*database.ConnectionManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	var opened atomic.Bool
	m := database.NewConnectionManager(database.ManagerConfig{
		MaxAttempts:      1,
		ProbeInterval:    time.Hour,
		StatementTimeout: time.Second,
	}, func(ctx context.Context) (*sql.DB, error) {
		if opened.CompareAndSwap(false, true) {
			return db, nil
		}
		return nil, stderrors.New("already opened")
	}, logger.NewTestLogger(t))
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { m.Dispose(context.Background()) })
	return m, mock
}

func TestExecutor_ByNameReturnsRows(t *testing.T) {
	m, mock := newManager(t)
	mock.ExpectQuery(`SELECT name, tier, description, rarity, value, ticker, colour FROM resources WHERE LOWER\(name\) = LOWER\(\$1\)`).
		WithArgs("dragonhide").
		WillReturnRows(sqlmock.NewRows(resourceColumns).
			AddRow("Dragonhide", "mythic", "Scaled hide", 217.92, 9000.0, "DRG", "crimson"))

	stmt, err := queries.Build(models.NewByNameQuery("Dragonhide", "about Dragonhide"))
	require.NoError(t, err)

	e := NewExecutor(LoadConfig(config.ConnectionConfig{}), m, logger.NewTestLogger(t))
	result := e.Execute(context.Background(), stmt)

	require.True(t, result.Success)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, models.CatalogRow{
		Name: "Dragonhide", Tier: "mythic", Description: "Scaled hide",
		Rarity: 217.92, Value: 9000, Ticker: "DRG", Colour: "crimson",
	}, result.Rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_NullColumnsBecomeZeroValues(t *testing.T) {
	m, mock := newManager(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows(resourceColumns).AddRow("Wood", "common", nil, 1.0, nil, nil, nil))

	stmt, _ := queries.Build(models.NewAllQuery("all"))
	result := NewExecutor(LoadConfig(config.ConnectionConfig{}), m, logger.NewTestLogger(t)).Execute(context.Background(), stmt)

	require.True(t, result.Success)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "", result.Rows[0].Ticker)
	assert.Equal(t, 0.0, result.Rows[0].Value)
}

func TestExecutor_EmptyResultIsSuccess(t *testing.T) {
	m, mock := newManager(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(resourceColumns))

	stmt, _ := queries.Build(models.NewAllQuery("Show me all resources"))
	result := NewExecutor(LoadConfig(config.ConnectionConfig{}), m, logger.NewTestLogger(t)).Execute(context.Background(), stmt)

	assert.True(t, result.Success)
	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.ErrorMessage)
}

func TestExecutor_IdempotentForSameDescriptor(t *testing.T) {
	m, mock := newManager(t)
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT").WithArgs("common").
			WillReturnRows(sqlmock.NewRows(resourceColumns).
				AddRow("Wood", "common", "Logs", 1.0, 2.0, "WOOD", "brown").
				AddRow("Stone", "common", "Rock", 1.27, 3.0, "STN", "grey"))
	}

	stmt, _ := queries.Build(models.NewByTierQuery("common", "tier common"))
	e := NewExecutor(LoadConfig(config.ConnectionConfig{}), m, logger.NewTestLogger(t))

	first := e.Execute(context.Background(), stmt)
	second := e.Execute(context.Background(), stmt)
	assert.Equal(t, first, second)
}

func TestExecutor_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"store unavailable", errors.NewStoreUnavailableError(stderrors.New("down")), MsgStoreUnavailable},
		{"statement timeout", errors.NewStatementTimeoutError(5 * time.Second), MsgTimeout},
		{"query failed", errors.NewQueryFailedError(stderrors.New("syntax")), MsgQueryFailed},
		{"unexpected", stderrors.New("mystery"), MsgQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(LoadConfig(config.ConnectionConfig{}), fakeStore{err: tt.err}, logger.NewTestLogger(t))
			result := e.Execute(context.Background(), queries.Statement{Text: "SELECT 1"})

			assert.False(t, result.Success)
			assert.Equal(t, tt.want, result.ErrorMessage)
			assert.NotNil(t, result.Rows)
			assert.Empty(t, result.Rows)
		})
	}
}

func TestLoadConfig_StatementTimeout(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, LoadConfig(config.ConnectionConfig{StatementTimeoutMs: 250}).Timeout)
	assert.Equal(t, 5*time.Second, LoadConfig(config.ConnectionConfig{}).Timeout)
}

func TestExecutor_PassesConfiguredTimeoutToStore(t *testing.T) {
	store := &timeoutRecorder{}
	e := NewExecutor(LoadConfig(config.ConnectionConfig{StatementTimeoutMs: 100}), store, logger.NewTestLogger(t))

	result := e.Execute(context.Background(), queries.Statement{Text: "SELECT 1"})

	assert.True(t, result.Success)
	assert.Equal(t, 100*time.Millisecond, store.got)
}

func TestExecutor_ConfiguredTimeoutBoundsSlowStatement(t *testing.T) {
	m, mock := newManager(t)
	mock.ExpectQuery("SELECT").WillDelayFor(300 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows(resourceColumns))

	stmt, _ := queries.Build(models.NewAllQuery("all"))
	e := NewExecutor(LoadConfig(config.ConnectionConfig{StatementTimeoutMs: 100}), m, logger.NewTestLogger(t))

	start := time.Now()
	result := e.Execute(context.Background(), stmt)

	assert.False(t, result.Success)
	assert.Equal(t, MsgTimeout, result.ErrorMessage)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestExecutor_ReadAllPagesPastRowCap(t *testing.T) {
	m, mock := newManager(t)

	full := sqlmock.NewRows(resourceColumns)
	for i := 0; i < queries.MaxRows; i++ {
		full.AddRow(fmt.Sprintf("Resource %03d", i), "common", "", 1.0, 1.0, "", "")
	}
	mock.ExpectQuery(`OFFSET \$1`).WithArgs(0).WillReturnRows(full)
	mock.ExpectQuery(`OFFSET \$1`).WithArgs(queries.MaxRows).
		WillReturnRows(sqlmock.NewRows(resourceColumns).
			AddRow("Dragonhide", "mythic", "", 217.92, 9000.0, "DRG", "crimson"))

	result := NewExecutor(LoadConfig(config.ConnectionConfig{}), m, logger.NewTestLogger(t)).ReadAll(context.Background())

	require.True(t, result.Success)
	assert.Len(t, result.Rows, queries.MaxRows+1)
	assert.Equal(t, "Dragonhide", result.Rows[queries.MaxRows].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_ReadAllStopsOnFailure(t *testing.T) {
	m, mock := newManager(t)

	full := sqlmock.NewRows(resourceColumns)
	for i := 0; i < queries.MaxRows; i++ {
		full.AddRow(fmt.Sprintf("Resource %03d", i), "common", "", 1.0, 1.0, "", "")
	}
	mock.ExpectQuery(`OFFSET \$1`).WithArgs(0).WillReturnRows(full)
	mock.ExpectQuery(`OFFSET \$1`).WithArgs(queries.MaxRows).WillReturnError(stderrors.New("syntax error"))

	result := NewExecutor(LoadConfig(config.ConnectionConfig{}), m, logger.NewTestLogger(t)).ReadAll(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, MsgQueryFailed, result.ErrorMessage)
	assert.Empty(t, result.Rows)
}
