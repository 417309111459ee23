// Package assemble turns a stream of flat rows into documents. The Tracker
// holds a two-slot buffer and flushes a document one row late, once the next
// row shows that its identity changed.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docpump/internal/document"
	"docpump/internal/storage"
	"docpump/internal/value"
)

// ErrUnknownOperation is returned when a row's _optype is not one of index,
// create, update or delete.
var ErrUnknownOperation = errors.New("assemble: unknown operation")

// Options tunes a Tracker.
type Options struct {
	// DefaultIndex and DefaultType fill in documents without _index/_type.
	DefaultIndex string
	DefaultType  string
	// ColumnNames renames result labels before they are parsed as paths.
	ColumnNames map[string]string
	Merge       document.MergeOptions
}

// Stats counts documents dispatched to the sink, per operation.
type Stats struct {
	Indexed int64
	Created int64
	Updated int64
	Deleted int64
}

// Emitted is the total number of dispatched documents.
func (s Stats) Emitted() int64 { return s.Indexed + s.Created + s.Updated + s.Deleted }

// Tracker is not safe for concurrent use; one command goroutine owns it.
type Tracker struct {
	sink storage.Sink
	opts Options
	log  *zap.Logger

	paths   []string
	control []document.ControlKey
	source  int
	autoID  bool

	current  *document.Document
	previous *document.Document
	stats    Stats
}

// New returns a Tracker that dispatches completed documents to sink.
func New(sink storage.Sink, opts Options, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		sink:     sink,
		opts:     opts,
		log:      log,
		source:   -1,
		current:  document.New(),
		previous: document.New(),
	}
}

// Begin fixes the column labels for the rows that follow and resets both
// buffer slots. Labels are renamed through Options.ColumnNames first.
func (t *Tracker) Begin(keys []string) {
	t.paths = make([]string, len(keys))
	t.control = make([]document.ControlKey, len(keys))
	t.source = -1
	t.autoID = true
	for i, k := range keys {
		if mapped, ok := t.opts.ColumnNames[k]; ok {
			k = mapped
		}
		t.paths[i] = k
		ck, ok := document.ParseControlKey(k)
		if !ok {
			continue
		}
		t.control[i] = ck
		switch ck {
		case document.KeyID:
			t.autoID = false
		case document.KeySource:
			t.source = i
		}
	}
	t.current = document.New()
	t.previous = document.New()
}

// Keys returns the effective labels set by Begin.
func (t *Tracker) Keys() []string { return t.paths }

// Row feeds one row of normalized values aligned with the Begin labels.
func (t *Tracker) Row(ctx context.Context, vals []value.Value) error {
	if len(vals) != len(t.paths) {
		return fmt.Errorf("assemble: row has %d values for %d columns", len(vals), len(t.paths))
	}

	for i, ck := range t.control {
		if ck == document.KeyNone || ck == document.KeySource {
			continue
		}
		if vals[i].IsNull() {
			t.current.Unset(ck)
			continue
		}
		if err := t.current.Set(ck, controlString(vals[i])); err != nil {
			return err
		}
	}

	if t.source >= 0 && !vals[t.source].IsNull() {
		return t.override(ctx, controlString(vals[t.source]))
	}

	if t.autoID || t.current.Empty() || t.current.Identity() != t.previous.Identity() {
		t.previous.Body = t.current.Body
		if err := t.flush(ctx, t.previous); err != nil {
			return err
		}
		t.previous = t.current
		t.current = document.New()
	}

	for i, ck := range t.control {
		if ck != document.KeyNone {
			continue
		}
		if err := document.Merge(t.current.Body, t.paths[i], vals[i], t.opts.Merge); err != nil {
			return fmt.Errorf("assemble: column %q: %w", t.paths[i], err)
		}
	}
	return nil
}

// override ships the current row with a caller-supplied body and both slots
// start over. The document buffered before it is flushed first, unless it has
// the same identity: the override replaces it rather than following it.
func (t *Tracker) override(ctx context.Context, body string) error {
	doc := t.current
	if err := doc.Set(document.KeySource, body); err != nil {
		return err
	}
	t.previous.Body = doc.Body
	doc.Body = document.NewMap()
	if t.autoID || t.previous.Identity() != doc.Identity() {
		if err := t.flush(ctx, t.previous); err != nil {
			return err
		}
	} else if !t.previous.Empty() {
		t.log.Debug("assemble: buffered document replaced by _source",
			zap.String("id", doc.Get(document.KeyID)))
	}
	t.previous = document.New()
	t.current = document.New()
	return t.flush(ctx, doc)
}

// End flushes the last buffered document and empties both slots.
func (t *Tracker) End(ctx context.Context) error {
	t.previous.Body = t.current.Body
	err := t.flush(ctx, t.previous)
	t.previous = document.New()
	t.current = document.New()
	return err
}

// Stats returns the flush counters accumulated since New.
func (t *Tracker) Stats() Stats { return t.stats }

func (t *Tracker) flush(ctx context.Context, d *document.Document) error {
	if d.Empty() {
		return nil
	}
	op := strings.ToLower(strings.TrimSpace(d.Get(document.KeyOpType)))
	req := t.request(d, op == "delete")

	var (
		err     error
		counter *int64
	)
	switch op {
	case "", "index":
		err = t.sink.Index(ctx, req)
		counter = &t.stats.Indexed
	case "create":
		err = t.sink.Create(ctx, req)
		counter = &t.stats.Created
	case "update":
		err = t.sink.Update(ctx, req)
		counter = &t.stats.Updated
	case "delete":
		err = t.sink.Delete(ctx, req)
		counter = &t.stats.Deleted
	default:
		return fmt.Errorf("%w %q for document %q", ErrUnknownOperation, op, req.ID)
	}
	if err != nil {
		return fmt.Errorf("assemble: %s document %q: %w", opName(op), req.ID, err)
	}
	*counter++
	t.log.Debug("assemble: flushed",
		zap.String("op", opName(op)),
		zap.String("index", req.Index),
		zap.String("id", req.ID))
	return nil
}

func (t *Tracker) request(d *document.Document, bodyless bool) storage.Request {
	req := storage.Request{
		Index: d.Get(document.KeyIndex),
		Type:  d.Get(document.KeyType),
		ID:    d.Get(document.KeyID),
	}
	if req.Index == "" {
		req.Index = t.opts.DefaultIndex
	}
	if req.Type == "" {
		req.Type = t.opts.DefaultType
	}
	for k, v := range d.Meta {
		switch k {
		case document.KeyOpType, document.KeyIndex, document.KeyType, document.KeyID:
			continue
		}
		if req.Meta == nil {
			req.Meta = make(map[string]string)
		}
		req.Meta[k.String()] = v
	}
	if !bodyless {
		req.Body = d.JSON()
	}
	return req
}

func opName(op string) string {
	if op == "" {
		return "index"
	}
	return op
}

func controlString(v value.Value) string {
	if v.Kind() == value.KindBytes {
		return string(v.BytesVal())
	}
	return v.String()
}
