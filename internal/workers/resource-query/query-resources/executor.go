package queryresources

import (
	"context"
	"database/sql"
	"time"

	"catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/models"
	"catalog-assistant/internal/workers/resource-query/query-resources/queries"
)

// Stable classifications carried in ExecutionResult.ErrorMessage.
const (
	MsgStoreUnavailable = "store unavailable"
	MsgTimeout          = "timeout"
	MsgQueryFailed      = "query failed"
)

// Store is the slice of the connection manager the executor needs.
type Store interface {
	Execute(ctx context.Context, statement string, args []interface{}, timeout time.Duration, scan func(*sql.Rows) error) error
}

type Executor struct {
	config *Config
	store  Store
	logger logger.Logger
}

func NewExecutor(config *Config, store Store, log logger.Logger) *Executor {
	return &Executor{
		config: config,
		store:  store,
		logger: log.With(map[string]interface{}{"stage": "execute"}),
	}
}

// Execute never returns an error; failures are folded into the result.
func (e *Executor) Execute(ctx context.Context, stmt queries.Statement) models.ExecutionResult {
	start := time.Now()

	rows := make([]models.CatalogRow, 0)
	err := e.store.Execute(ctx, stmt.Text, stmt.Args, e.config.Timeout, func(r *sql.Rows) error {
		row, err := scanRow(r)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		msg := classify(err)
		e.logger.Error("statement failed", map[string]interface{}{
			"classification": msg,
			"error":          err,
		})
		return models.ExecutionResult{Success: false, Rows: []models.CatalogRow{}, ErrorMessage: msg}
	}

	e.logger.Debug("statement executed", map[string]interface{}{
		"rowCount":   len(rows),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return models.ExecutionResult{Success: true, Rows: rows}
}

// ReadAll pages through the whole catalog, MaxRows at a time. It is meant
// for bulk export, not for answering messages.
func (e *Executor) ReadAll(ctx context.Context) models.ExecutionResult {
	all := make([]models.CatalogRow, 0, queries.MaxRows)
	for offset := 0; ; offset += queries.MaxRows {
		page := e.Execute(ctx, queries.AllResourcesPage(offset))
		if !page.Success {
			return page
		}
		all = append(all, page.Rows...)
		if len(page.Rows) < queries.MaxRows {
			return models.ExecutionResult{Success: true, Rows: all}
		}
	}
}

func classify(err error) string {
	switch errors.CodeOf(err) {
	case errors.ErrCodeStoreUnavailable, errors.ErrCodeInitializationExhausted:
		return MsgStoreUnavailable
	case errors.ErrCodeStatementTimeout:
		return MsgTimeout
	default:
		return MsgQueryFailed
	}
}

func scanRow(r *sql.Rows) (models.CatalogRow, error) {
	var (
		name, tier                  string
		description, ticker, colour sql.NullString
		rarity, value               sql.NullFloat64
	)
	if err := r.Scan(&name, &tier, &description, &rarity, &value, &ticker, &colour); err != nil {
		return models.CatalogRow{}, err
	}
	return models.CatalogRow{
		Name:        name,
		Tier:        tier,
		Description: description.String,
		Rarity:      rarity.Float64,
		Value:       value.Float64,
		Ticker:      ticker.String,
		Colour:      colour.String,
	}, nil
}
