// Package bulk implements a file sink that renders documents as bulk NDJSON:
// one action line per document, followed by a source line for index and
// create, or a {"doc": ...} line for update. Batches are appended to a
// temporary file next to the target, which is moved into place on Close so
// readers never observe a half-written run.
package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"docpump/internal/storage"
)

// Sink renders each batch into a scratch buffer and appends it to a
// temporary file. The buffer holds at most one batch.
type Sink struct {
	*storage.Batcher

	path   string
	mu     sync.Mutex
	buf    bytes.Buffer
	tmp    *os.File
	size   int64
	closed bool
}

// New returns a bulk sink writing to path. An existing file is replaced when
// the sink is closed.
func New(path string, batchSize int, log *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bulk: path must not be empty")
	}
	s := &Sink{path: path}
	b, err := storage.NewBatcher(batchSize, s.write, log)
	if err != nil {
		return nil, err
	}
	s.Batcher = b
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("bulk: create temp file: %w", err)
	}
	s.tmp = tmp
	return s, nil
}

func init() {
	storage.Register("bulk", func(_ context.Context, cfg storage.Config, log *zap.Logger) (storage.Sink, error) {
		return New(cfg.Path, cfg.BatchSizeOrDefault(), log)
	})
}

// actionLine renders {"<op>":{"_index":..,"_type":..,"_id":..,<meta>}}.
func actionLine(a storage.Action) ([]byte, error) {
	head := make(map[string]string, len(a.Meta)+3)
	for k, v := range a.Meta {
		head[k] = v
	}
	if a.Index != "" {
		head["_index"] = a.Index
	}
	if a.Type != "" {
		head["_type"] = a.Type
	}
	if a.ID != "" {
		head["_id"] = a.ID
	}
	return json.Marshal(map[string]map[string]string{a.Op.String(): head})
}

func (s *Sink) write(_ context.Context, batch []storage.Action) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("bulk: write %s: sink closed", s.path)
	}
	s.buf.Reset()
	for _, a := range batch {
		if (a.Op == storage.OpUpdate || a.Op == storage.OpDelete) && a.ID == "" {
			return 0, fmt.Errorf("bulk: %s in %s: %w", a.Op, a.Index, storage.ErrMissingID)
		}
		line, err := actionLine(a)
		if err != nil {
			return 0, fmt.Errorf("bulk: encode action: %w", err)
		}
		s.buf.Write(line)
		s.buf.WriteByte('\n')

		switch a.Op {
		case storage.OpDelete:
		case storage.OpUpdate:
			s.buf.WriteString(`{"doc":`)
			s.buf.Write(bodyOrEmpty(a.Body))
			s.buf.WriteString("}\n")
		default:
			s.buf.Write(bodyOrEmpty(a.Body))
			s.buf.WriteByte('\n')
		}
	}
	n, err := s.tmp.Write(s.buf.Bytes())
	if err != nil {
		// drop the partial batch so the file stays line-aligned
		if terr := s.tmp.Truncate(s.size); terr == nil {
			_, _ = s.tmp.Seek(s.size, io.SeekStart)
		}
		return 0, fmt.Errorf("bulk: write %s: %w", s.tmp.Name(), err)
	}
	s.size += int64(n)
	s.buf.Reset()
	return int64(len(batch)), nil
}

func bodyOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

// Close flushes pending actions and moves the temporary file over path. An
// empty run still leaves an empty file. If the final flush fails the
// temporary file is removed and path is left untouched.
func (s *Sink) Close() error {
	flushErr := s.Flush(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flushErr
	}
	s.closed = true

	name := s.tmp.Name()
	if err := errors.Join(flushErr, s.tmp.Sync(), s.tmp.Close()); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := atomic.ReplaceFile(name, s.path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("bulk: replace %s: %w", s.path, err)
	}
	return nil
}

// Ensure Sink satisfies storage.Sink at compile time.
var _ storage.Sink = (*Sink)(nil)
