package main

// This file wires one job end to end: source dialect, connection manager,
// sink and command runner. It depends on registries only and never imports a
// database driver or a concrete sink directly.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docpump/internal/command"
	"docpump/internal/config"
	"docpump/internal/conn"
	"docpump/internal/source"
	"docpump/internal/storage"
)

// Test seams.
var (
	newSink    = storage.New
	newConns   = func(cfg conn.Config, log *zap.Logger) connManager { return conn.NewManager(cfg, log) }
	newRunID   = func() string { return uuid.NewString() }
	ensureSink = storage.EnsureTable
)

// connManager is the part of *conn.Manager a job needs.
type connManager interface {
	command.Connections
	Close() error
}

// sinkConfig maps the job's sink section onto a storage.Config.
func sinkConfig(s config.Sink) storage.Config {
	return storage.Config{
		Kind:             s.Kind,
		DSN:              s.DSN,
		Table:            s.Table,
		Path:             s.Path,
		BatchSize:        s.BatchSize,
		MaxDocsPerSecond: s.MaxDocsPerSecond,
		AutoCreateTable:  s.AutoCreateTable,
	}
}

// connConfig maps the job's source and tuning onto a conn.Config. read_only
// is a hint: it is dropped for drivers that refuse read-only transactions.
func connConfig(d source.Dialect, j config.Job) conn.Config {
	return conn.Config{
		Driver:     d.Driver,
		DSN:        j.Source.DSN,
		ReadOnly:   j.Source.ReadOnly && d.ReadOnlyTx,
		AutoCommit: j.Source.AutoCommit,
		MaxRetries: j.Tuning.MaxRetries,
		RetryWait:  j.Tuning.MaxRetryWait.Std(),
	}
}

// runJob executes every command of j once. The sink and connections are
// closed before returning; their errors are joined with the run error.
func runJob(ctx context.Context, j config.Job, base *zap.Logger) (err error) {
	d, err := source.Lookup(j.Source.Kind)
	if err != nil {
		return err
	}
	opts, err := command.NewOptions(j)
	if err != nil {
		return err
	}
	cmds, err := command.CompileAll(j.Commands)
	if err != nil {
		return err
	}

	log := base.With(zap.String("job", j.Name), zap.String("run_id", newRunID()))

	scfg := sinkConfig(j.Sink)
	sink, err := newSink(ctx, scfg, log)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("sink: close: %w", cerr))
		}
	}()
	if scfg.AutoCreateTable {
		if err := ensureSink(ctx, scfg, sink); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
	}

	if j.Source.ReadOnly && !d.ReadOnlyTx && !j.Source.AutoCommit {
		log.Warn("job: read_only ignored, driver has no read-only transactions",
			zap.String("source", d.Name))
	}
	conns := newConns(connConfig(d, j), log)
	defer func() {
		if cerr := conns.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	r := command.NewRunner(conns, d, sink, opts, log)
	log.Info("job: start", zap.Int("commands", len(cmds)))
	err = r.Run(ctx, cmds)

	st := r.Stats()
	fields := []zap.Field{
		zap.Int64("succeeded", st.Succeeded),
		zap.Int64("failed", st.Failed),
		zap.Int64("rows", st.TotalRows),
		zap.Int64("bytes", st.TotalBytes),
		zap.Int64("indexed", st.Documents.Indexed),
		zap.Int64("created", st.Documents.Created),
		zap.Int64("updated", st.Documents.Updated),
		zap.Int64("deleted", st.Documents.Deleted),
	}
	if err != nil {
		log.Error("job: finished with errors", append(fields, zap.Error(err))...)
		return err
	}
	log.Info("job: done", fields...)
	return nil
}
