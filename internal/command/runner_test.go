package command

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"docpump/internal/conn"
	"docpump/internal/source"
	_ "docpump/internal/source/sqlite"
	"docpump/internal/storage"
	"docpump/internal/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const fixture = `
CREATE TABLE product (id INTEGER, name VARCHAR(20), price DECIMAL(10,3), tag VARCHAR(10));
INSERT INTO product VALUES (1, 'Widget', 2.345, 'red');
INSERT INTO product VALUES (1, 'Widget', 2.345, 'blue');
INSERT INTO product VALUES (2, 'Gadget', 4, 'green');
CREATE TABLE note (id INTEGER, body CLOB);
INSERT INTO note VALUES (1, 'a');
INSERT INTO note VALUES (2, 'b');
INSERT INTO note VALUES (3, 'far too long for the bound');
CREATE TABLE audit (job VARCHAR(20), rowcount INTEGER);
`

const productQuery = `SELECT id AS _id, name, price, tag AS "tags[]" FROM product ORDER BY id, rowid`

// openFixture creates a temp SQLite database with the fixture tables.
func openFixture(t *testing.T) string {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "src.db") + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(fixture)
	require.NoError(t, err)
	return dsn
}

func testOptions() Options {
	vo := value.DefaultOptions()
	vo.Scale = 2
	o := Options{Job: "nightly", Value: vo, RetryWait: time.Millisecond}
	o.Assemble.DefaultIndex = "products"
	return o
}

func newTestRunner(t *testing.T, dsn string, autoCommit bool, opts Options) (*Runner, *storage.Memory) {
	t.Helper()
	m := conn.NewManager(conn.Config{
		Driver:     "sqlite",
		DSN:        dsn,
		ReadOnly:   true,
		AutoCommit: autoCommit,
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
	}, nil)
	t.Cleanup(func() { _ = m.Close() })
	d, err := source.Lookup("sqlite")
	require.NoError(t, err)
	sink := &storage.Memory{}
	return NewRunner(m, d, sink, opts, nil), sink
}

func bodies(actions []storage.Action) map[string]string {
	out := map[string]string{}
	for _, a := range actions {
		out[a.ID] = string(a.Body)
	}
	return out
}

// TestRunner_AssemblesDocuments folds rows sharing an id into one document
// and normalizes decimals at the configured scale.
func TestRunner_AssemblesDocuments(t *testing.T) {
	t.Parallel()

	dsn := openFixture(t)
	r, sink := newTestRunner(t, dsn, false, testOptions())

	err := r.Execute(context.Background(), Command{Name: "products", Statement: productQuery})
	require.NoError(t, err)

	want := []storage.Action{
		{Op: storage.OpIndex, Request: storage.Request{
			Index: "products", ID: "1",
			Body: []byte(`{"name":"Widget","price":2.35,"tags":["red","blue"]}`),
		}},
		{Op: storage.OpIndex, Request: storage.Request{
			Index: "products", ID: "2",
			Body: []byte(`{"name":"Gadget","price":4,"tags":"green"}`),
		}},
	}
	if diff := cmp.Diff(want, sink.Actions()); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, sink.Flushes())

	st := r.Stats()
	require.EqualValues(t, 1, st.Counter)
	require.EqualValues(t, 1, st.Succeeded)
	require.EqualValues(t, 3, st.LastRowCount)
	require.EqualValues(t, 3, st.TotalRows)
	require.Positive(t, st.TotalBytes)
	require.EqualValues(t, 2, st.Documents.Indexed)
	require.False(t, st.LastExecutionEnd.Before(st.LastExecutionStart))
}

// TestRunner_WriteBindsPlaceholders runs a query then a write that records
// the job name and the previous row count.
func TestRunner_WriteBindsPlaceholders(t *testing.T) {
	t.Parallel()

	dsn := openFixture(t)
	r, _ := newTestRunner(t, dsn, false, testOptions())

	cmds := []Command{
		{Name: "products", Statement: productQuery},
		{
			Name:      "audit",
			Statement: "INSERT INTO audit (job, rowcount) VALUES (?, ?)",
			Shape:     ShapeWrite,
			Params:    []Param{{Placeholder: PlaceholderJob}, {Placeholder: PlaceholderLastRowCount}},
		},
	}
	require.NoError(t, r.Run(context.Background(), cmds))

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	var (
		job string
		n   int64
	)
	require.NoError(t, db.QueryRow("SELECT job, rowcount FROM audit").Scan(&job, &n))
	require.Equal(t, "nightly", job)
	require.EqualValues(t, 3, n)

	st := r.Stats()
	require.EqualValues(t, 2, st.Succeeded)
	require.EqualValues(t, 1, st.LastRowCount, "rows affected by the insert")
	require.EqualValues(t, 4, st.TotalRows)
}

// TestRunner_FailuresDoNotAbortSiblings runs a good command, a broken
// statement, an oversized large object and another good command. Documents
// emitted before the oversized value survive; the partial one does not.
func TestRunner_FailuresDoNotAbortSiblings(t *testing.T) {
	t.Parallel()

	dsn := openFixture(t)
	opts := testOptions()
	opts.Value.MaxLOBLength = 8
	r, sink := newTestRunner(t, dsn, true, opts)

	cmds := []Command{
		{Name: "products", Statement: productQuery},
		{Name: "broken", Statement: "SELECT * FROM missing"},
		{Name: "notes", Statement: "SELECT id AS _id, body FROM note ORDER BY id"},
		{Name: "tail", Statement: "SELECT 'x' AS _id, 1 AS n"},
	}
	err := r.Run(context.Background(), cmds)
	require.Error(t, err)
	require.ErrorIs(t, err, value.ErrLargeObjectTooBig)
	require.Contains(t, err.Error(), "command broken")

	got := bodies(sink.Actions())
	want := map[string]string{
		"1": `{"body":"a"}`,
		"2": `{"name":"Gadget","price":4,"tags":"green"}`,
		"x": `{"n":1}`,
	}
	// "1" was first written by the products command and then replaced in the
	// map by the notes command; both were dispatched.
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bodies mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, sink.Actions(), 4)

	st := r.Stats()
	require.EqualValues(t, 4, st.Counter)
	require.EqualValues(t, 2, st.Succeeded)
	require.EqualValues(t, 2, st.Failed)
	require.ErrorIs(t, st.LastError, value.ErrLargeObjectTooBig)
	require.False(t, st.LastErrorAt.IsZero())
	require.Equal(t, 4, sink.Flushes(), "the sink is flushed after every command")
}

// TestRunner_MaxRows stops reading after the bound and still flushes what
// was read.
func TestRunner_MaxRows(t *testing.T) {
	t.Parallel()

	dsn := openFixture(t)
	opts := testOptions()
	opts.MaxRows = 2
	r, sink := newTestRunner(t, dsn, true, opts)

	require.NoError(t, r.Execute(context.Background(), Command{Name: "products", Statement: productQuery}))
	require.Equal(t, map[string]string{"1": `{"name":"Widget","price":2.35,"tags":["red","blue"]}`}, bodies(sink.Actions()))
	require.EqualValues(t, 2, r.Stats().LastRowCount)
}

// TestRunner_AutoIDNeverMerges emits one document per row without _id.
func TestRunner_AutoIDNeverMerges(t *testing.T) {
	t.Parallel()

	dsn := openFixture(t)
	r, sink := newTestRunner(t, dsn, true, testOptions())

	require.NoError(t, r.Execute(context.Background(), Command{Name: "tags", Statement: "SELECT name FROM product"}))
	require.Len(t, sink.Actions(), 3)
	for _, a := range sink.Actions() {
		require.Empty(t, a.ID)
	}
}

// TestRunner_ConnectionFailure surfaces a ConnectionError once the manager
// has exhausted its attempts and does not retry it again.
func TestRunner_ConnectionFailure(t *testing.T) {
	t.Parallel()

	dsn := "file:" + filepath.Join(t.TempDir(), "missing", "dir", "src.db")
	r, sink := newTestRunner(t, dsn, true, testOptions())

	err := r.Execute(context.Background(), Command{Name: "products", Statement: productQuery})
	var ce *conn.ConnectionError
	require.True(t, errors.As(err, &ce), "err = %v", err)
	require.Equal(t, 2, ce.Attempts)
	require.Empty(t, sink.Actions())
	require.EqualValues(t, 1, r.Stats().Failed)
}

// TestRunner_RunStopsOnCancel does not start commands after cancellation.
func TestRunner_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	dsn := openFixture(t)
	r, sink := newTestRunner(t, dsn, true, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, []Command{{Name: "products", Statement: productQuery}})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, sink.Actions())
	require.EqualValues(t, 0, r.Stats().Counter)
}
