package sqlite

import (
	"context"

	"go.uber.org/zap"

	"docpump/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adapts *sqlite.Repository to storage.Sink: a Batcher buffers
// operations and hands full batches to Repository.Write. Close flushes and
// then calls the cleanup function returned by NewRepository.
type wrappedRepo struct {
	*storage.Batcher
	repo    *Repository
	closeFn func()
}

// Ensure wrappedRepo satisfies the interfaces at compile time.
var (
	_ storage.Sink   = (*wrappedRepo)(nil)
	_ storage.Execer = (*wrappedRepo)(nil)
)

// Exec implements storage.Execer for the DDL bootstrapper.
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

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config, log *zap.Logger) (storage.Sink, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:       cfg.DSN,
			Table:     cfg.Table,
			BatchSize: cfg.BatchSizeOrDefault(),
		}, log)
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

	storage.RegisterDDL("sqlite", ensureTable)
}
