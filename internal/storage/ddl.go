package storage

import (
	"context"
	"fmt"
	"sync"
)

// Execer is implemented by table-backed sinks so DDL can be applied through
// the already-open sink.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// DDLBootstrapper creates the document table of a backend if it is missing.
// Backends register one per kind at init time.
type DDLBootstrapper func(ctx context.Context, ex Execer, cfg Config) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the bootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable applies the bootstrapper registered for cfg.Kind through s.
// Sinks without a table (bulk files, memory) have no bootstrapper and are
// left alone.
func EnsureTable(ctx context.Context, cfg Config, s Sink) error {
	ddlMu.RLock()
	fn, ok := ddlFns[cfg.Kind]
	ddlMu.RUnlock()
	if !ok {
		return nil
	}
	for {
		u, isWrapper := s.(interface{ Unwrap() Sink })
		if !isWrapper {
			break
		}
		s = u.Unwrap()
	}
	ex, ok := s.(Execer)
	if !ok {
		return fmt.Errorf("storage: %s sink cannot execute DDL", cfg.Kind)
	}
	return fn(ctx, ex, cfg)
}
