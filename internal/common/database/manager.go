package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"catalog-assistant/internal/common/config"
	"catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/common/metrics"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Health is the connection manager's view of the store.
type Health string

const (
	HealthUninitialized Health = "UNINITIALIZED"
	HealthConnecting    Health = "CONNECTING"
	HealthHealthy       Health = "HEALTHY"
	HealthUnhealthy     Health = "UNHEALTHY"
	HealthReconnecting  Health = "RECONNECTING"
)

const probeStatement = "SELECT 1"

var (
	errNoHandle = stderrors.New("no store handle")
	errDisposed = stderrors.New("connection manager disposed")
)

// ManagerConfig holds the connection manager's timing knobs.
type ManagerConfig struct {
	MaxAttempts           int
	RetryDelay            time.Duration
	ProbeInterval         time.Duration
	StatementTimeout      time.Duration
	FailFastWhenUnhealthy bool
}

// ManagerConfigFrom converts the millisecond-based config section.
func ManagerConfigFrom(c config.ConnectionConfig) ManagerConfig {
	return ManagerConfig{
		MaxAttempts:           c.MaxAttempts,
		RetryDelay:            config.GetDuration(c.RetryDelayMs),
		ProbeInterval:         config.GetDuration(c.ProbeIntervalMs),
		StatementTimeout:      config.GetDuration(c.StatementTimeoutMs),
		FailFastWhenUnhealthy: c.FailFastWhenUnhealthy,
	}
}

// ConnectionManager owns the single store handle. It connects with bounded
// retries, probes liveness in the background, reconnects at most once at a
// time and drains in-flight statements on Dispose.
type ConnectionManager struct {
	cfg    ManagerConfig
	open   Opener
	logger logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	db     *sql.DB
	health Health
	closed bool

	reconnecting atomic.Bool
	reconnects   atomic.Int64

	inflight sync.WaitGroup
	bg       sync.WaitGroup

	ctx         context.Context
	cancel      context.CancelFunc
	stopProbe   chan struct{}
	stopOnce    sync.Once
	probeOnce   sync.Once
	disposeOnce sync.Once
	disposeErr  error
}

func NewConnectionManager(cfg ManagerConfig, open Opener, log logger.Logger) *ConnectionManager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 5 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		cfg:       cfg,
		open:      open,
		logger:    log.With(map[string]interface{}{"component": "connection-manager"}),
		sleep:     sleepContext,
		health:    HealthUninitialized,
		ctx:       ctx,
		cancel:    cancel,
		stopProbe: make(chan struct{}),
	}
}

// Init connects with bounded retries and starts the liveness probe.
// Exhausting the attempts returns an INITIALIZATION_EXHAUSTED StandardError.
func (m *ConnectionManager) Init(ctx context.Context) error {
	m.setHealth(HealthConnecting)

	db, err := m.connect(ctx, "init")
	if err != nil {
		m.setHealth(HealthUnhealthy)
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		db.Close()
		return errors.NewStoreUnavailableError(errDisposed)
	}
	m.db = db
	m.mu.Unlock()

	m.setHealth(HealthHealthy)
	m.logger.Info("Store connection established", nil)
	m.startProbe()
	return nil
}

func (m *ConnectionManager) connect(ctx context.Context, phase string) (*sql.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		db, err := m.openAndPing(ctx)
		if err == nil {
			return db, nil
		}
		lastErr = err

		m.logger.Warn("Store connection attempt failed", map[string]interface{}{
			"phase":       phase,
			"attempt":     attempt,
			"maxAttempts": m.cfg.MaxAttempts,
			"error":       err,
		})

		if attempt < m.cfg.MaxAttempts {
			if err := m.sleep(ctx, m.cfg.RetryDelay); err != nil {
				return nil, errors.NewInitializationExhaustedError(attempt, err)
			}
		}
	}
	return nil, errors.NewInitializationExhaustedError(m.cfg.MaxAttempts, lastErr)
}

func (m *ConnectionManager) openAndPing(ctx context.Context) (*sql.DB, error) {
	db, err := m.open(ctx)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.StatementTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (m *ConnectionManager) startProbe() {
	m.probeOnce.Do(func() {
		m.mu.RLock()
		defer m.mu.RUnlock()
		if m.closed {
			return
		}

		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			ticker := time.NewTicker(m.cfg.ProbeInterval)
			defer ticker.Stop()

			for {
				select {
				case <-m.stopProbe:
					return
				case <-m.ctx.Done():
					return
				case <-ticker.C:
					_ = m.Probe(m.ctx)
				}
			}
		}()
	})
}

// Probe runs the liveness statement once. A failure marks the store
// unhealthy and starts a reconnect unless one is already running.
func (m *ConnectionManager) Probe(ctx context.Context) error {
	db := m.handle()

	err := errNoHandle
	if db != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.StatementTimeout)
		var one int
		err = db.QueryRowContext(probeCtx, probeStatement).Scan(&one)
		cancel()
	}

	if err == nil {
		if !m.reconnecting.Load() {
			m.setHealth(HealthHealthy)
		}
		return nil
	}

	m.logger.Warn("Store probe failed", map[string]interface{}{"error": err})
	if !m.reconnecting.Load() {
		m.setHealth(HealthUnhealthy)
	}
	m.triggerReconnect()
	return errors.NewStoreUnavailableError(err)
}

// triggerReconnect starts a background reconnect unless one is in flight.
func (m *ConnectionManager) triggerReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if !m.reconnecting.CompareAndSwap(false, true) {
		return false
	}

	m.reconnects.Add(1)
	metrics.StoreReconnects.Inc()
	m.health = HealthReconnecting
	metrics.StoreHealth.Set(0)

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		defer m.reconnecting.Store(false)

		db, err := m.connect(m.ctx, "reconnect")
		if err != nil {
			m.setHealth(HealthUnhealthy)
			m.logger.Error("Store reconnect failed", map[string]interface{}{"error": err})
			return
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			db.Close()
			return
		}
		old := m.db
		m.db = db
		m.health = HealthHealthy
		m.mu.Unlock()
		metrics.StoreHealth.Set(1)

		if old != nil {
			old.Close()
		}
		m.logger.Info("Store reconnected", nil)
	}()
	return true
}

// Execute runs one parameterized statement and hands each row to scan.
// The statement is not cancelled when ctx is; it runs to completion or to
// timeout, whichever comes first.
func (m *ConnectionManager) Execute(ctx context.Context, statement string, args []interface{}, timeout time.Duration, scan func(*sql.Rows) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errors.NewStoreUnavailableError(errDisposed)
	}
	db := m.db
	unhealthy := m.health != HealthHealthy
	m.inflight.Add(1)
	m.mu.RUnlock()
	defer m.inflight.Done()

	if db == nil {
		return errors.NewStoreUnavailableError(errNoHandle)
	}
	if unhealthy && m.cfg.FailFastWhenUnhealthy {
		return errors.NewStoreUnavailableError(stderrors.New("store marked unhealthy"))
	}
	if timeout <= 0 {
		timeout = m.cfg.StatementTimeout
	}

	stmtCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := runStatement(stmtCtx, db, statement, args, scan)
	if err == nil {
		return nil
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stmtCtx.Err() == context.DeadlineExceeded:
		return errors.NewStatementTimeoutError(timeout)
	case unhealthy || isConnectionError(err):
		return errors.NewStoreUnavailableError(err)
	default:
		return errors.NewQueryFailedError(err)
	}
}

func runStatement(ctx context.Context, db *sql.DB, statement string, args []interface{}, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, statement, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if scan == nil {
			continue
		}
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// isConnectionError reports driver errors that mean the store is unreachable.
func isConnectionError(err error) bool {
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "broken pipe")
}

func (m *ConnectionManager) handle() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *ConnectionManager) setHealth(h Health) {
	m.mu.Lock()
	m.health = h
	m.mu.Unlock()

	if h == HealthHealthy {
		metrics.StoreHealth.Set(1)
	} else {
		metrics.StoreHealth.Set(0)
	}
}

func (m *ConnectionManager) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

func (m *ConnectionManager) IsHealthy() bool {
	return m.Health() == HealthHealthy
}

// ReconnectAttempts counts reconnects that actually started.
func (m *ConnectionManager) ReconnectAttempts() int64 {
	return m.reconnects.Load()
}

// StopProbe halts the liveness probe. It is safe to call more than once.
func (m *ConnectionManager) StopProbe() {
	m.stopOnce.Do(func() {
		close(m.stopProbe)
	})
}

// Dispose stops background work, waits for in-flight statements until ctx
// is done, then closes the handle. Later calls return the first result.
func (m *ConnectionManager) Dispose(ctx context.Context) error {
	m.disposeOnce.Do(func() {
		m.StopProbe()
		m.cancel()

		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		drained := make(chan struct{})
		go func() {
			m.inflight.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-ctx.Done():
			m.logger.Warn("Grace window elapsed with statements in flight", nil)
		}

		m.bg.Wait()

		m.mu.Lock()
		db := m.db
		m.db = nil
		m.health = HealthUninitialized
		m.mu.Unlock()
		metrics.StoreHealth.Set(0)

		if db != nil {
			if err := db.Close(); err != nil {
				m.disposeErr = err
				m.logger.Warn("Closing store handle failed", map[string]interface{}{"error": err})
			}
		}
		m.logger.Info("Connection manager disposed", nil)
	})
	return m.disposeErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
