// Package sqlite implements a SQLite-backed document sink using database/sql.
// Each batch is applied inside one transaction with prepared statements;
// bodies are stored as JSON text and updates are merged with json_patch.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"docpump/internal/storage"
)

// Repository stores documents in a single SQLite table.
type Repository struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger

	upsertSQL string
	createSQL string
	updateSQL string
	deleteSQL string
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if !storage.ValidTable(cfg.table()) {
		return nil, nil, fmt.Errorf("sqlite: invalid table name %q", cfg.table())
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	t := quoteFQN(cfg.table())
	r := &Repository{
		db:  db,
		cfg: cfg,
		log: log,
		upsertSQL: "INSERT INTO " + t + ` (idx, typ, id, meta, body, updated_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (idx, typ, id) DO UPDATE SET meta = excluded.meta, body = excluded.body, updated_at = excluded.updated_at`,
		createSQL: "INSERT INTO " + t + ` (idx, typ, id, meta, body, updated_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (idx, typ, id) DO NOTHING`,
		updateSQL: "UPDATE " + t + ` SET meta = ?, body = json_patch(COALESCE(body, '{}'), ?), updated_at = ?
WHERE idx = ? AND typ = ? AND id = ?`,
		deleteSQL: "DELETE FROM " + t + " WHERE idx = ? AND typ = ? AND id = ?",
	}
	return r, func() { db.Close() }, nil
}

// Write applies batch in one transaction and returns the number of actions
// that changed a row. Creates of existing ids and updates or deletes of
// missing ids are logged and skipped.
func (r *Repository) Write(ctx context.Context, batch []storage.Action) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := map[storage.Op]*sql.Stmt{}
	prepare := func(op storage.Op, q string) (*sql.Stmt, error) {
		if s, ok := stmts[op]; ok {
			return s, nil
		}
		s, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("sqlite: prepare %s: %w", op, err)
		}
		stmts[op] = s
		return s, nil
	}
	defer func() {
		for _, s := range stmts {
			s.Close()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var applied int64
	for _, a := range batch {
		var (
			stmt *sql.Stmt
			args []any
		)
		switch a.Op {
		case storage.OpIndex, storage.OpCreate:
			q := r.upsertSQL
			if a.Op == storage.OpCreate {
				q = r.createSQL
			}
			if stmt, err = prepare(a.Op, q); err != nil {
				return applied, err
			}
			id := a.ID
			if id == "" {
				id = uuid.NewString()
			}
			meta, err := encodeMeta(a.Meta)
			if err != nil {
				return applied, err
			}
			args = []any{a.Index, a.Type, id, meta, body(a.Body), now}
		case storage.OpUpdate:
			if a.ID == "" {
				return applied, fmt.Errorf("sqlite: update in %s: %w", a.Index, storage.ErrMissingID)
			}
			if stmt, err = prepare(a.Op, r.updateSQL); err != nil {
				return applied, err
			}
			meta, err := encodeMeta(a.Meta)
			if err != nil {
				return applied, err
			}
			args = []any{meta, body(a.Body), now, a.Index, a.Type, a.ID}
		case storage.OpDelete:
			if a.ID == "" {
				return applied, fmt.Errorf("sqlite: delete in %s: %w", a.Index, storage.ErrMissingID)
			}
			if stmt, err = prepare(a.Op, r.deleteSQL); err != nil {
				return applied, err
			}
			args = []any{a.Index, a.Type, a.ID}
		default:
			return applied, fmt.Errorf("sqlite: unsupported op %v", a.Op)
		}

		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return applied, fmt.Errorf("sqlite: %s %s/%s: %w", a.Op, a.Index, a.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return applied, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if n == 0 {
			r.log.Warn("sqlite: document skipped",
				zap.String("op", a.Op.String()),
				zap.String("index", a.Index),
				zap.String("id", a.ID))
			continue
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return applied, fmt.Errorf("sqlite: commit: %w", err)
	}
	return applied, nil
}

// Get returns the stored body of one document.
func (r *Repository) Get(ctx context.Context, index, typ, id string) ([]byte, bool, error) {
	var b sql.NullString
	q := "SELECT body FROM " + quoteFQN(r.cfg.table()) + " WHERE idx = ? AND typ = ? AND id = ?"
	err := r.db.QueryRowContext(ctx, q, index, typ, id).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get: %w", err)
	}
	return []byte(b.String), true, nil
}

// Count returns the number of stored documents.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteFQN(r.cfg.table())).Scan(&n)
	return n, err
}

// Exec executes an arbitrary SQL statement (typically DDL) using the underlying
// database/sql connection.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

func encodeMeta(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode meta: %w", err)
	}
	return string(b), nil
}

func body(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
