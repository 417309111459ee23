package bulk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"docpump/internal/storage"
)

// TestSink_WritesBulkLines renders one action line per document and the
// expected source line per operation.
func TestSink_WritesBulkLines(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.ndjson")
	s, err := storage.New(ctx, storage.Config{Kind: "bulk", Path: path, BatchSize: 2}, nil)
	if err != nil {
		t.Fatalf("storage.New error: %v", err)
	}

	steps := []error{
		s.Index(ctx, storage.Request{Index: "people", Type: "doc", ID: "1", Body: []byte(`{"name":"a"}`)}),
		s.Create(ctx, storage.Request{Index: "people", ID: "2", Meta: map[string]string{"_version": "3"}, Body: []byte(`{"name":"b"}`)}),
		s.Update(ctx, storage.Request{Index: "people", ID: "1", Body: []byte(`{"age":4}`)}),
		s.Delete(ctx, storage.Request{Index: "people", ID: "2"}),
		s.Index(ctx, storage.Request{Index: "people", Body: []byte(`{"name":"c"}`)}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("op %d error: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	want := []string{
		`{"index":{"_id":"1","_index":"people","_type":"doc"}}`,
		`{"name":"a"}`,
		`{"create":{"_id":"2","_index":"people","_version":"3"}}`,
		`{"name":"b"}`,
		`{"update":{"_id":"1","_index":"people"}}`,
		`{"doc":{"age":4}}`,
		`{"delete":{"_id":"2","_index":"people"}}`,
		`{"index":{"_index":"people"}}`,
		`{"name":"c"}`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bulk file mismatch (-want +got):\n%s", diff)
	}
}

// TestSink_EmptyRunAndMissingID leaves an empty file for an empty run and
// rejects a delete without an id.
func TestSink_EmptyRunAndMissingID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.ndjson")
	s, err := New(empty, 10, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if fi, err := os.Stat(empty); err != nil || fi.Size() != 0 {
		t.Fatalf("empty run file = %v, %v; want existing empty file", fi, err)
	}

	bad, _ := New(filepath.Join(dir, "bad.ndjson"), 1, nil)
	err = bad.Delete(context.Background(), storage.Request{Index: "people"})
	if !errors.Is(err, storage.ErrMissingID) {
		t.Fatalf("Delete error = %v; want ErrMissingID", err)
	}
	if _, err := New("", 1, nil); err == nil {
		t.Fatalf("New(\"\") error = nil; want error")
	}
}

// TestSink_AppendsBatchesToTempFile keeps at most one batch in memory and
// only creates the target file on Close.
func TestSink_AppendsBatchesToTempFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.ndjson")
	if err := os.WriteFile(path, []byte("stale\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := New(path, 2, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	tmp := s.tmp.Name()
	if filepath.Dir(tmp) != filepath.Dir(path) {
		t.Fatalf("temp dir = %q; want %q", filepath.Dir(tmp), filepath.Dir(path))
	}

	var last int64
	for i := 0; i < 10; i++ {
		req := storage.Request{Index: "people", ID: strconv.Itoa(i), Body: []byte(`{"n":1}`)}
		if err := s.Index(ctx, req); err != nil {
			t.Fatalf("Index %d error: %v", i, err)
		}
		if s.buf.Len() != 0 {
			t.Fatalf("after doc %d buffer len = %d; want 0", i, s.buf.Len())
		}
		if i%2 == 1 {
			fi, err := os.Stat(tmp)
			if err != nil {
				t.Fatalf("Stat temp: %v", err)
			}
			if fi.Size() <= last {
				t.Fatalf("after doc %d temp size = %d; want > %d", i, fi.Size(), last)
			}
			last = fi.Size()
		}
	}
	if data, _ := os.ReadFile(path); string(data) != "stale\n" {
		t.Fatalf("target before Close = %q; want untouched", data)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file after Close: %v; want removed", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 20 {
		t.Fatalf("lines = %d; want 20", got)
	}
	if int64(len(data)) != last {
		t.Fatalf("file size = %d; want %d", len(data), last)
	}
}
