// Package conn supplies validated read and write database connections with
// bounded retry. Each role owns one pinned *sql.Conn on its own single-
// connection pool, so server-side cursors and transactions stay on the same
// session for the lifetime of the connection.
package conn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sqlOpen is a test seam.
var sqlOpen = sql.Open

// DefaultPingTimeout bounds the liveness probe when Config.PingTimeout is 0.
const DefaultPingTimeout = 5 * time.Second

// Config describes how connections are opened and retried.
type Config struct {
	Driver string
	DSN    string
	// ReadOnly opens the read connection's transactions read-only. It only
	// takes effect when AutoCommit is off.
	ReadOnly bool
	// AutoCommit runs every statement in its own implicit transaction. When
	// false, each connection carries an explicit transaction that Commit
	// completes and renews.
	AutoCommit bool
	// MaxRetries is the number of open attempts; values below 1 mean 1.
	MaxRetries  int
	RetryWait   time.Duration
	PingTimeout time.Duration
}

func (c Config) attempts() int {
	if c.MaxRetries < 1 {
		return 1
	}
	return c.MaxRetries
}

func (c Config) pingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return DefaultPingTimeout
	}
	return c.PingTimeout
}

// ConnectionError is returned once every attempt to obtain a valid
// connection has failed, or the wait between attempts was interrupted.
type ConnectionError struct {
	Role     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("conn: %s connection failed after %d attempt(s): %v", e.Role, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Conn is one pinned session. It is not safe for concurrent use.
type Conn struct {
	role       string
	db         *sql.DB
	c          *sql.Conn
	tx         *sql.Tx
	readOnly   bool
	autoCommit bool
	closed     bool
}

func (c *Conn) begin(ctx context.Context) error {
	// The transaction outlives any single statement context.
	tx, err := c.c.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{ReadOnly: c.readOnly})
	if err != nil {
		return fmt.Errorf("conn: begin %s transaction: %w", c.role, err)
	}
	c.tx = tx
	return nil
}

// QueryContext runs a query inside the connection's transaction, if any.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}
	return c.c.QueryContext(ctx, query, args...)
}

// ExecContext runs a statement inside the connection's transaction, if any.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.tx != nil {
		return c.tx.ExecContext(ctx, query, args...)
	}
	return c.c.ExecContext(ctx, query, args...)
}

// Commit commits the open transaction and starts the next one. It is a no-op
// in autocommit mode.
func (c *Conn) Commit(ctx context.Context) error {
	if c.autoCommit || c.tx == nil {
		return nil
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return fmt.Errorf("conn: commit %s: %w", c.role, err)
	}
	return c.begin(ctx)
}

// Rollback abandons the open transaction and starts the next one. It is a
// no-op in autocommit mode.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.autoCommit || c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("conn: rollback %s: %w", c.role, err)
	}
	return c.begin(ctx)
}

// AutoCommit reports whether statements commit implicitly.
func (c *Conn) AutoCommit() bool { return c.autoCommit }

func (c *Conn) ping(ctx context.Context, timeout time.Duration) error {
	if c == nil || c.closed || c.c == nil {
		return sql.ErrConnDone
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// database/sql returns nil for drivers without driver.Pinger.
	return c.c.PingContext(pctx)
}

// Close commits any open transaction, then releases the session and pool.
func (c *Conn) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	if c.tx != nil {
		if err := c.tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("conn: commit %s on close: %w", c.role, err))
		}
		c.tx = nil
	}
	if err := c.c.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Manager owns one read and one write connection.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	read  *Conn
	write *Conn
}

// NewManager returns a Manager; no connection is opened until first use.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg, log: log.With(zap.String("driver", cfg.Driver))}
}

// ReadConn returns a validated connection for queries and procedure calls.
func (m *Manager) ReadConn(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquire(ctx, &m.read, "read", m.cfg.ReadOnly)
}

// WriteConn returns a validated connection for update statements.
func (m *Manager) WriteConn(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquire(ctx, &m.write, "write", false)
}

func (m *Manager) acquire(ctx context.Context, slot **Conn, role string, readOnly bool) (*Conn, error) {
	var first, last error
	if c := *slot; c != nil {
		err := c.ping(ctx, m.cfg.pingTimeout())
		if err == nil {
			return c, nil
		}
		m.log.Warn("conn: connection invalid", zap.String("role", role), zap.Error(err))
		_ = c.Close()
		*slot = nil
		first = err
	}

	attempts := m.cfg.attempts()
	for i := 1; i <= attempts; i++ {
		c, err := m.open(ctx, role, readOnly)
		if err == nil {
			if i > 1 || first != nil {
				m.log.Info("conn: connected", zap.String("role", role), zap.Int("attempt", i))
			}
			*slot = c
			return c, nil
		}
		if first == nil {
			first = err
		}
		last = err
		m.log.Warn("conn: open failed",
			zap.String("role", role),
			zap.Int("attempt", i),
			zap.Int("max", attempts),
			zap.Error(err))
		if i == attempts {
			break
		}
		if werr := wait(ctx, m.cfg.RetryWait); werr != nil {
			m.log.Warn("conn: retry interrupted", zap.String("role", role), zap.Error(werr))
			return nil, &ConnectionError{Role: role, Attempts: i, Err: first}
		}
	}
	return nil, &ConnectionError{Role: role, Attempts: attempts, Err: last}
}

func (m *Manager) open(ctx context.Context, role string, readOnly bool) (*Conn, error) {
	db, err := sqlOpen(m.cfg.Driver, m.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(1)
	sc, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	c := &Conn{role: role, db: db, c: sc, readOnly: readOnly, autoCommit: m.cfg.AutoCommit}
	if err := c.ping(ctx, m.cfg.pingTimeout()); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if !c.autoCommit {
		if err := c.begin(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Close commits and closes both connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := errors.Join(m.read.Close(), m.write.Close())
	m.read, m.write = nil, nil
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
