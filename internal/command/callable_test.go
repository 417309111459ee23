package command

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"docpump/internal/conn"
	"docpump/internal/source"
	"docpump/internal/storage"
	"docpump/internal/value"
)

// The fake driver stands in for engines with output parameters. Each DSN
// names its own fakeState so tests can run in parallel.

var (
	errFlaky = errors.New("fake: deadlock victim")
	errFatal = errors.New("fake: syntax error")

	fakes sync.Map // dsn -> *fakeState
)

type fakeState struct {
	mu       sync.Mutex
	calls    int
	args     [][]driver.NamedValue
	failures int   // remaining failing calls
	failWith error // error of failing calls
}

func init() {
	sql.Register("docpump-fake", fakeDriver{})
}

type fakeDriver struct{}

func (fakeDriver) Open(dsn string) (driver.Conn, error) {
	st, ok := fakes.Load(dsn)
	if !ok {
		return nil, errors.New("fake: unknown dsn " + dsn)
	}
	return &fakeConn{st: st.(*fakeState)}, nil
}

type fakeConn struct{ st *fakeState }

func (*fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("fake: prepare unsupported") }
func (*fakeConn) Close() error                        { return nil }
func (*fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("fake: transactions unsupported") }

// CheckNamedValue lets sql.Out through untouched.
func (*fakeConn) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(sql.Out); ok {
		return nil
	}
	return driver.ErrSkip
}

func (c *fakeConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	st := c.st
	st.mu.Lock()
	defer st.mu.Unlock()
	st.calls++
	st.args = append(st.args, args)
	if st.failures > 0 {
		st.failures--
		return nil, st.failWith
	}
	for _, a := range args {
		out, ok := a.Value.(sql.Out)
		if !ok {
			continue
		}
		switch d := out.Dest.(type) {
		case *sql.NullString:
			*d = sql.NullString{String: "12.345", Valid: true}
		case *sql.NullInt64:
			*d = sql.NullInt64{Int64: 7, Valid: true}
		case *sql.NullTime:
			*d = sql.NullTime{Time: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Valid: true}
		case *sql.NullBool:
			// left NULL
		}
	}
	return driver.RowsAffected(3), nil
}

func newFakeRunner(t *testing.T, st *fakeState) (*Runner, *storage.Memory) {
	t.Helper()
	dsn := t.Name()
	fakes.Store(dsn, st)
	t.Cleanup(func() { fakes.Delete(dsn) })

	m := conn.NewManager(conn.Config{Driver: "docpump-fake", DSN: dsn, AutoCommit: true, MaxRetries: 1}, nil)
	t.Cleanup(func() { _ = m.Close() })
	d := source.Dialect{
		Name:        "fake",
		Driver:      "docpump-fake",
		Recoverable: func(err error) bool { return errors.Is(err, errFlaky) },
	}
	sink := &storage.Memory{}
	opts := testOptions()
	opts.Assemble.DefaultIndex = ""
	return NewRunner(m, d, sink, opts, nil), sink
}

// TestRunner_CallReadsOutputRegisters binds inputs, registers outputs at
// their positions and emits them as one document.
func TestRunner_CallReadsOutputRegisters(t *testing.T) {
	t.Parallel()

	st := &fakeState{}
	r, sink := newFakeRunner(t, st)

	cmd := Command{
		Name:      "totals",
		Statement: "CALL totals(?, ?, ?, ?, ?)",
		Shape:     ShapeCall,
		Params:    []Param{{Placeholder: PlaceholderJob}},
		Registers: []Register{
			{Name: "total", Position: 2, Category: value.CategoryDecimal, Field: "stats.total"},
			{Name: "count", Position: 3, Category: value.CategoryBigInt, Field: "stats.count"},
			{Name: "at", Position: 4, Category: value.CategoryTimestamp, Field: "at"},
			{Name: "flag", Position: 5, Category: value.CategoryBool, Field: "flag"},
		},
	}
	require.NoError(t, r.Execute(context.Background(), cmd))

	require.Equal(t, 1, st.calls)
	args := st.args[0]
	require.Len(t, args, 5)
	require.Equal(t, "nightly", args[0].Value)
	for _, a := range args[1:] {
		_, ok := a.Value.(sql.Out)
		require.True(t, ok, "position %d is an output", a.Ordinal)
	}

	want := []storage.Action{{Op: storage.OpIndex, Request: storage.Request{
		Body: []byte(`{"stats":{"total":12.35,"count":7},"at":"2024-05-01T10:00:00Z","flag":null}`),
	}}}
	if diff := cmp.Diff(want, sink.Actions()); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
	require.EqualValues(t, 1, r.Stats().LastRowCount)
}

// TestRunner_RetriesRecoverableOnce retries a recoverable failure exactly
// once, and never retries other errors.
func TestRunner_RetriesRecoverableOnce(t *testing.T) {
	t.Parallel()

	write := Command{Name: "mark", Statement: "UPDATE t SET done = 1", Shape: ShapeWrite}

	tests := []struct {
		name      string
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{name: "recovers", failures: 1, failWith: errFlaky, wantCalls: 2},
		{name: "fails twice", failures: 2, failWith: errFlaky, wantCalls: 2, wantErr: errFlaky},
		{name: "not recoverable", failures: 1, failWith: errFatal, wantCalls: 1, wantErr: errFatal},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := &fakeState{failures: tt.failures, failWith: tt.failWith}
			r, _ := newFakeRunner(t, st)
			err := r.Execute(context.Background(), write)
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.EqualValues(t, 3, r.Stats().LastRowCount)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
			require.Equal(t, tt.wantCalls, st.calls)
		})
	}
}

func TestOutDestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cat  value.Category
		fill func(any)
		want any
	}{
		{value.CategoryBigInt, func(d any) { *d.(*sql.NullInt64) = sql.NullInt64{Int64: 9, Valid: true} }, int64(9)},
		{value.CategoryFloat, func(d any) { *d.(*sql.NullFloat64) = sql.NullFloat64{Float64: 1.5, Valid: true} }, 1.5},
		{value.CategoryBool, func(d any) { *d.(*sql.NullBool) = sql.NullBool{Bool: true, Valid: true} }, true},
		{value.CategoryChar, func(d any) { *d.(*sql.NullString) = sql.NullString{String: "s", Valid: true} }, "s"},
		{value.CategoryDecimal, func(any) {}, nil},
		{value.CategoryBLOB, func(any) {}, nil},
	}
	for _, tt := range tests {
		d := outDest(tt.cat)
		tt.fill(d)
		if got := outValue(d); got != tt.want {
			t.Fatalf("outValue(%v) = %v; want %v", tt.cat, got, tt.want)
		}
	}
}
