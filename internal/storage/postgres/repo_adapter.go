// Package postgres wires the Postgres document sink into the storage factory
// by registering a constructor at init time. Callers obtain a Sink via
// storage.New(...) without importing this package directly.
//
// The adapter also registers a DDL bootstrapper so that callers can create
// the document table based only on storage.Config.Kind.
package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"docpump/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo implements storage.Sink with a Batcher feeding
// Repository.Write, and a Close that flushes before calling the close
// function returned by NewRepository.
type wrappedRepo struct {
	*storage.Batcher
	repo    *Repository
	closeFn func()
}

// Ensure wrappedRepo satisfies storage.Sink at compile time.
var _ storage.Sink = (*wrappedRepo)(nil)

// Exec implements storage.Execer.
func (w *wrappedRepo) Exec(ctx context.Context, sql string) error {
	return w.repo.Exec(ctx, sql)
}

// Close implements storage.Sink.Close.
func (w *wrappedRepo) Close() error {
	err := w.Flush(context.Background())
	if w.closeFn != nil {
		w.closeFn()
	}
	return err
}

// BuildCreateTableSQL returns the CREATE TABLE statement of the document table.
func BuildCreateTableSQL(table string) (string, error) {
	if !storage.ValidTable(table) {
		return "", fmt.Errorf("postgres ddl: invalid table name %q", table)
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  idx text NOT NULL,
  typ text NOT NULL DEFAULT '',
  id text NOT NULL,
  meta jsonb,
  body jsonb,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (idx, typ, id)
);`, pgFQN(table)), nil
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config, log *zap.Logger) (storage.Sink, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table}, log)
		if err != nil {
			return nil, err
		}
		b, err := storage.NewBatcher(cfg.BatchSizeOrDefault(), r.Write, log)
		if err != nil {
			closeFn()
			return nil, err
		}
		return &wrappedRepo{Batcher: b, repo: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("postgres",
		func(ctx context.Context, ex storage.Execer, cfg storage.Config) error {
			stmt, err := BuildCreateTableSQL(Config{Table: cfg.Table}.table())
			if err != nil {
				return err
			}
			if err := ex.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply DDL: %w", err)
			}
			return nil
		})
}
