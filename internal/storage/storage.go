// Package storage contains the sink contract completed documents are written
// to, the factory that selects a sink by kind, and the batching and throttling
// shared by concrete sinks.
//
// Backends register themselves in init(); import storage/all to enable every
// built-in kind.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrMissingID is returned by sinks for update and delete requests that carry
// no document id.
var ErrMissingID = errors.New("storage: document id required")

// Request is one document operation as handed to a sink.
type Request struct {
	Index string
	Type  string
	ID    string
	// Meta holds the remaining control values keyed by label ("_version").
	Meta map[string]string
	// Body is the serialized JSON document; nil for deletes.
	Body []byte
}

// Op is the document operation kind.
type Op uint8

const (
	OpIndex Op = iota
	OpCreate
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "index"
}

// Action pairs an operation with its request.
type Action struct {
	Op Op
	Request
}

// Sink receives completed documents. Index upserts, Create only inserts new
// ids, Update merges into an existing document, Delete removes it. Writes
// may be buffered until Flush.
type Sink interface {
	Index(ctx context.Context, r Request) error
	Create(ctx context.Context, r Request) error
	Update(ctx context.Context, r Request) error
	Delete(ctx context.Context, r Request) error
	Flush(ctx context.Context) error
	Close() error
}

// Config selects and configures a sink.
type Config struct {
	Kind  string
	DSN   string
	Table string
	// Path is the output file of file-based sinks.
	Path      string
	BatchSize int
	// MaxDocsPerSecond throttles writes when positive.
	MaxDocsPerSecond float64
	AutoCreateTable  bool
}

// Factory opens a sink for cfg.
type Factory func(ctx context.Context, cfg Config, log *zap.Logger) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a sink kind available to New. It is called from backend
// init functions and replaces an existing registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// ListKinds lists registered sink kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the sink registered for cfg.Kind, wrapping it in a rate limiter
// when cfg.MaxDocsPerSecond is set.
func New(ctx context.Context, cfg Config, log *zap.Logger) (Sink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown sink kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	s, err := f(ctx, cfg, log.With(zap.String("sink", cfg.Kind)))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Kind, err)
	}
	if cfg.MaxDocsPerSecond > 0 {
		s = Throttle(s, cfg.MaxDocsPerSecond)
	}
	return s, nil
}

// DefaultBatchSize is used when Config.BatchSize is not positive.
const DefaultBatchSize = 500

// BatchSizeOrDefault returns c.BatchSize or DefaultBatchSize.
func (c Config) BatchSizeOrDefault() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidTable reports whether name is a plain, optionally schema-qualified
// table identifier safe to interpolate into SQL.
func ValidTable(name string) bool { return identRE.MatchString(name) }
