package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docpump/internal/config"
	"docpump/internal/source"
	"docpump/internal/storage"
)

// noReadOnlyDriver refuses read-only transactions the way go-mssqldb does and
// serves a single row for every query.
type noReadOnlyDriver struct {
	refused atomic.Int64
}

var noRO = &noReadOnlyDriver{}

func init() {
	sql.Register("docpump-noro", noRO)
	source.Register(source.Dialect{Name: "noro", Driver: "docpump-noro"})
}

func (d *noReadOnlyDriver) Open(string) (driver.Conn, error) { return &noROConn{d: d}, nil }

type noROConn struct{ d *noReadOnlyDriver }

func (c *noROConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *noROConn) Close() error { return nil }
func (c *noROConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *noROConn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if opts.ReadOnly {
		c.d.refused.Add(1)
		return nil, errors.New("read-only transactions are not supported")
	}
	return noROTx{}, nil
}

func (c *noROConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return &noRORows{data: [][]driver.Value{{"1", "a"}}}, nil
}

type noROTx struct{}

func (noROTx) Commit() error   { return nil }
func (noROTx) Rollback() error { return nil }

type noRORows struct {
	data [][]driver.Value
	i    int
}

func (r *noRORows) Columns() []string { return []string{"_id", "name"} }
func (r *noRORows) Close() error      { return nil }
func (r *noRORows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.i])
	r.i++
	return nil
}

// TestConnConfig_DropsReadOnlyWithoutDriverSupport keeps read_only only for
// dialects that can open read-only transactions.
func TestConnConfig_DropsReadOnlyWithoutDriverSupport(t *testing.T) {
	t.Parallel()

	j := config.Job{Source: config.Source{DSN: "x", ReadOnly: true}}
	if cfg := connConfig(source.Dialect{Driver: "pgx", ReadOnlyTx: true}, j); !cfg.ReadOnly {
		t.Fatalf("ReadOnly = false for a dialect with read-only transactions")
	}
	mssql, err := source.Lookup("mssql")
	require.NoError(t, err)
	if cfg := connConfig(mssql, j); cfg.ReadOnly {
		t.Fatalf("ReadOnly = true for mssql; want dropped")
	}
}

// TestRunJob_ReadOnlyOnDriverWithoutSupport runs a read_only job against a
// driver that refuses read-only transactions; the hint is dropped and the
// command succeeds instead of exhausting connection retries.
func TestRunJob_ReadOnlyOnDriverWithoutSupport(t *testing.T) {
	sink := &storage.Memory{}
	orig := newSink
	newSink = func(context.Context, storage.Config, *zap.Logger) (storage.Sink, error) { return sink, nil }
	t.Cleanup(func() { newSink = orig })

	j := config.Job{
		Name:     "noro",
		Source:   config.Source{Kind: "noro", DSN: "x", ReadOnly: true},
		Commands: []config.Command{{Statement: "SELECT id AS _id, name FROM t"}},
		Tuning:   config.Tuning{MaxRetries: 2},
		Sink:     config.Sink{Kind: "memory", DefaultIndex: "t"},
	}
	require.NoError(t, runJob(context.Background(), j, zap.NewNop()))
	require.Zero(t, noRO.refused.Load(), "driver saw a read-only BeginTx")

	acts := sink.Actions()
	require.Len(t, acts, 1)
	require.Equal(t, "1", acts[0].ID)
	require.Equal(t, `{"name":"a"}`, string(acts[0].Body))
}
