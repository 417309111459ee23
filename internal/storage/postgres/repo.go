// Package postgres implements a Postgres document sink using pgx v5. Each
// batch is sent as one pgx.Batch; bodies live in a jsonb column and updates
// are shallow merges (body || patch).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"docpump/internal/storage"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "public.documents"

// Config holds Postgres sink configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // optionally schema-qualified, e.g. "public.documents"
}

func (c Config) table() string {
	if c.Table == "" {
		return DefaultTable
	}
	return c.Table
}

// Repository is a Postgres-backed document store.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
	log  *zap.Logger
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	if !storage.ValidTable(cfg.table()) {
		return nil, nil, fmt.Errorf("postgres: invalid table name %q", cfg.table())
	}
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg, log: log}, close, nil
}

// statement returns the SQL and arguments for one action.
func statement(table string, a storage.Action) (string, []any, error) {
	t := pgFQN(table)
	switch a.Op {
	case storage.OpIndex, storage.OpCreate:
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta, err := encodeMeta(a.Meta)
		if err != nil {
			return "", nil, err
		}
		conflict := "DO UPDATE SET meta = EXCLUDED.meta, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at"
		if a.Op == storage.OpCreate {
			conflict = "DO NOTHING"
		}
		q := fmt.Sprintf(
			`INSERT INTO %s (idx, typ, id, meta, body, updated_at) VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, now())
ON CONFLICT (idx, typ, id) %s`, t, conflict)
		return q, []any{a.Index, a.Type, id, meta, body(a.Body)}, nil
	case storage.OpUpdate:
		if a.ID == "" {
			return "", nil, fmt.Errorf("postgres: update in %s: %w", a.Index, storage.ErrMissingID)
		}
		meta, err := encodeMeta(a.Meta)
		if err != nil {
			return "", nil, err
		}
		q := fmt.Sprintf(
			`UPDATE %s SET meta = COALESCE($1::jsonb, meta), body = COALESCE(body, '{}'::jsonb) || $2::jsonb, updated_at = now()
WHERE idx = $3 AND typ = $4 AND id = $5`, t)
		return q, []any{meta, body(a.Body), a.Index, a.Type, a.ID}, nil
	case storage.OpDelete:
		if a.ID == "" {
			return "", nil, fmt.Errorf("postgres: delete in %s: %w", a.Index, storage.ErrMissingID)
		}
		q := fmt.Sprintf("DELETE FROM %s WHERE idx = $1 AND typ = $2 AND id = $3", t)
		return q, []any{a.Index, a.Type, a.ID}, nil
	}
	return "", nil, fmt.Errorf("postgres: unsupported op %v", a.Op)
}

// Write sends batch as a single pgx.Batch and returns the number of actions
// that changed a row.
func (r *Repository) Write(ctx context.Context, batch []storage.Action) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, a := range batch {
		q, args, err := statement(r.cfg.table(), a)
		if err != nil {
			return 0, err
		}
		b.Queue(q, args...)
	}

	br := r.pool.SendBatch(ctx, b)
	var applied int64
	for _, a := range batch {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Detail != "" {
				return applied, fmt.Errorf("postgres: %s %s/%s: %s (%s)", a.Op, a.Index, a.ID, pgErr.Detail, pgErr.SQLState())
			}
			return applied, fmt.Errorf("postgres: %s %s/%s: %w", a.Op, a.Index, a.ID, err)
		}
		if tag.RowsAffected() == 0 {
			r.log.Warn("postgres: document skipped",
				zap.String("op", a.Op.String()),
				zap.String("index", a.Index),
				zap.String("id", a.ID))
			continue
		}
		applied++
	}
	if err := br.Close(); err != nil {
		return applied, fmt.Errorf("postgres: batch close: %w", err)
	}
	return applied, nil
}

// Exec implements storage.Execer for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.documents" to
// "public"."documents". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

func encodeMeta(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode meta: %w", err)
	}
	return string(b), nil
}

func body(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
