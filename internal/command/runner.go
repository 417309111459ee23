package command

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docpump/internal/assemble"
	"docpump/internal/conn"
	"docpump/internal/metrics"
	"docpump/internal/source"
	"docpump/internal/storage"
	"docpump/internal/value"
)

// Connections hands out the sessions a Runner reads from and writes to.
// *conn.Manager implements it.
type Connections interface {
	ReadConn(ctx context.Context) (*conn.Conn, error)
	WriteConn(ctx context.Context) (*conn.Conn, error)
}

// Runner executes commands. It is not safe for concurrent use.
type Runner struct {
	conns   Connections
	dialect source.Dialect
	sink    storage.Sink
	opts    Options
	log     *zap.Logger

	norm    *value.Normalizer
	tracker *assemble.Tracker
	stats   Stats
	now     func() time.Time
}

// NewRunner wires a Runner. The dialect classifies recoverable errors.
func NewRunner(conns Connections, dialect source.Dialect, sink storage.Sink, opts Options, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		conns:   conns,
		dialect: dialect,
		sink:    sink,
		opts:    opts,
		log:     log,
		norm:    value.NewNormalizer(opts.Value, log),
		tracker: assemble.New(sink, opts.Assemble, log),
		now:     time.Now,
	}
}

// Stats returns a snapshot of the runner's counters.
func (r *Runner) Stats() Stats {
	s := r.stats
	s.Documents = r.tracker.Stats()
	return s
}

// Run executes cmds in order. A failing command does not stop the ones after
// it; every failure is returned joined. Cancellation stops the loop.
func (r *Runner) Run(ctx context.Context, cmds []Command) error {
	var errs []error
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Execute(ctx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("command %s: %w", cmd.Name, err))
		}
	}
	return errors.Join(errs...)
}

type result struct {
	rows  int64
	bytes int64
}

// Execute runs one command to completion and flushes the sink, so documents
// emitted before a failure are kept.
func (r *Runner) Execute(ctx context.Context, cmd Command) (err error) {
	start := r.now()
	args := make([]any, len(cmd.Params))
	for i, p := range cmd.Params {
		args[i] = r.stats.bind(p, r.opts.Job, start)
	}
	r.stats.Counter++
	r.stats.LastExecutionStart = start
	before := r.tracker.Stats()
	log := r.log.With(zap.String("command", cmd.Name), zap.Stringer("shape", cmd.Shape))
	log.Debug("command: start", zap.Int("params", len(args)))

	var res result
	defer func() {
		if ferr := r.sink.Flush(ctx); ferr != nil {
			err = errors.Join(err, fmt.Errorf("command: flush sink: %w", ferr))
		}
		end := r.now()
		r.stats.LastExecutionEnd = end
		r.stats.LastRowCount = res.rows
		r.stats.TotalRows += res.rows
		r.stats.TotalBytes += res.bytes
		docs := r.tracker.Stats()
		r.record(res, before, docs)
		metrics.RecordCommand(r.opts.Job, cmd.Name, err, end.Sub(start))

		fields := []zap.Field{
			zap.Int64("rows", res.rows),
			zap.Int64("bytes", res.bytes),
			zap.Int64("documents", docs.Emitted()-before.Emitted()),
			zap.Duration("took", end.Sub(start)),
		}
		if err != nil {
			r.stats.Failed++
			r.stats.LastError = err
			r.stats.LastErrorAt = end
			log.Error("command: failed", append(fields, zap.Error(err))...)
			return
		}
		r.stats.Succeeded++
		log.Info("command: done", fields...)
	}()

	qctx := ctx
	if r.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
		defer cancel()
	}

	switch cmd.Shape {
	case ShapeWrite:
		res, err = r.write(qctx, cmd, args)
	case ShapeCall:
		res, err = r.call(qctx, cmd, args)
	default:
		res, err = r.query(qctx, cmd, args)
	}
	return err
}

func (r *Runner) record(res result, before, after assemble.Stats) {
	job := r.opts.Job
	metrics.RecordRows(job, res.rows)
	metrics.RecordBytes(job, res.bytes)
	metrics.RecordDocuments(job, "index", after.Indexed-before.Indexed)
	metrics.RecordDocuments(job, "create", after.Created-before.Created)
	metrics.RecordDocuments(job, "update", after.Updated-before.Updated)
	metrics.RecordDocuments(job, "delete", after.Deleted-before.Deleted)
}

// query streams a result set into the tracker. When autocommit is off the
// read transaction is committed afterwards to release cursors and locks.
func (r *Runner) query(ctx context.Context, cmd Command, args []any) (result, error) {
	var (
		c    *conn.Conn
		rows *sql.Rows
	)
	err := r.retry(ctx, cmd, func() error {
		var err error
		if c, err = r.conns.ReadConn(ctx); err != nil {
			return err
		}
		rows, err = c.QueryContext(ctx, cmd.Statement, args...)
		if err != nil {
			r.rollback(ctx, c)
		}
		return err
	})
	if err != nil {
		return result{}, err
	}

	res, err := r.stream(ctx, rows)
	if cerr := rows.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("command: close rows: %w", cerr)
	}
	if err != nil {
		r.rollback(ctx, c)
		return res, err
	}
	return res, c.Commit(ctx)
}

func (r *Runner) stream(ctx context.Context, rows *sql.Rows) (result, error) {
	var res result
	names, err := rows.Columns()
	if err != nil {
		return res, fmt.Errorf("command: columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return res, fmt.Errorf("command: column types: %w", err)
	}
	typeNames := make([]string, len(types))
	for i, ct := range types {
		typeNames[i] = ct.DatabaseTypeName()
	}

	plan := r.norm.Compile(names, typeNames)
	r.tracker.Begin(plan.Names())

	raw := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range raw {
		dest[i] = &raw[i]
	}
	var vals []value.Value
	for (r.opts.MaxRows <= 0 || res.rows < r.opts.MaxRows) && rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return res, fmt.Errorf("command: scan row %d: %w", res.rows+1, err)
		}
		var size int64
		vals, size, err = plan.Apply(raw, vals)
		if err != nil {
			return res, fmt.Errorf("command: row %d: %w", res.rows+1, err)
		}
		if err := r.tracker.Row(ctx, vals); err != nil {
			return res, err
		}
		res.rows++
		res.bytes += size
	}
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("command: read rows: %w", err)
	}
	if r.opts.MaxRows > 0 && res.rows >= r.opts.MaxRows {
		r.log.Debug("command: max rows reached", zap.Int64("max_rows", r.opts.MaxRows))
	}
	return res, r.tracker.End(ctx)
}

// write executes a data-changing statement and commits it.
func (r *Runner) write(ctx context.Context, cmd Command, args []any) (result, error) {
	var (
		c   *conn.Conn
		out sql.Result
	)
	err := r.retry(ctx, cmd, func() error {
		var err error
		if c, err = r.conns.WriteConn(ctx); err != nil {
			return err
		}
		out, err = c.ExecContext(ctx, cmd.Statement, args...)
		if err != nil {
			r.rollback(ctx, c)
		}
		return err
	})
	if err != nil {
		return result{}, err
	}

	var res result
	if n, err := out.RowsAffected(); err == nil {
		res.rows = n
	}
	if err := c.Commit(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// call executes a stored procedure and turns its output registers into one
// row keyed by the registers' target fields.
func (r *Runner) call(ctx context.Context, cmd Command, args []any) (result, error) {
	n := len(args)
	for _, reg := range cmd.Registers {
		if reg.Position > n {
			n = reg.Position
		}
	}
	bound := make([]any, n)
	copy(bound, args)
	outs := make([]any, len(cmd.Registers))
	fields := make([]string, len(cmd.Registers))
	cats := make([]value.Category, len(cmd.Registers))
	for i, reg := range cmd.Registers {
		outs[i] = outDest(reg.Category)
		bound[reg.Position-1] = sql.Out{Dest: outs[i]}
		fields[i] = reg.Field
		cats[i] = reg.Category
	}

	var c *conn.Conn
	err := r.retry(ctx, cmd, func() error {
		var err error
		if c, err = r.conns.ReadConn(ctx); err != nil {
			return err
		}
		if _, err = c.ExecContext(ctx, cmd.Statement, bound...); err != nil {
			r.rollback(ctx, c)
		}
		return err
	})
	if err != nil {
		return result{}, err
	}

	raw := make([]any, len(outs))
	for i, d := range outs {
		raw[i] = outValue(d)
	}
	plan := r.norm.CompileCategories(fields, cats)
	vals, size, err := plan.Apply(raw, nil)
	if err != nil {
		r.rollback(ctx, c)
		return result{}, fmt.Errorf("command: output: %w", err)
	}
	r.tracker.Begin(fields)
	if err := r.tracker.Row(ctx, vals); err != nil {
		r.rollback(ctx, c)
		return result{}, err
	}
	if err := r.tracker.End(ctx); err != nil {
		r.rollback(ctx, c)
		return result{}, err
	}
	return result{rows: 1, bytes: size}, c.Commit(ctx)
}

// retry runs open and, when it fails with a recoverable driver error, runs
// it exactly once more after RetryWait. Connection failures have already
// been retried by the manager and are returned as is.
func (r *Runner) retry(ctx context.Context, cmd Command, open func() error) error {
	err := open()
	if err == nil || !r.recoverable(err) {
		return err
	}
	r.log.Warn("command: recoverable error, retrying",
		zap.String("command", cmd.Name),
		zap.Duration("wait", r.opts.RetryWait),
		zap.Error(err))
	if werr := sleep(ctx, r.opts.RetryWait); werr != nil {
		return err
	}
	return open()
}

func (r *Runner) recoverable(err error) bool {
	var ce *conn.ConnectionError
	if errors.As(err, &ce) {
		return false
	}
	return r.dialect.IsRecoverable(err)
}

func (r *Runner) rollback(ctx context.Context, c *conn.Conn) {
	if err := c.Rollback(ctx); err != nil {
		r.log.Warn("command: rollback failed", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// outDest allocates a typed destination for an output register. Nullable
// wrappers let drivers report NULL outputs.
func outDest(cat value.Category) any {
	switch cat {
	case value.CategorySmallInt, value.CategoryBigInt:
		return new(sql.NullInt64)
	case value.CategoryFloat:
		return new(sql.NullFloat64)
	case value.CategoryBool:
		return new(sql.NullBool)
	case value.CategoryDate, value.CategoryTime, value.CategoryTimestamp:
		return new(sql.NullTime)
	case value.CategoryBinary, value.CategoryBLOB:
		return new([]byte)
	}
	return new(sql.NullString)
}

// outValue unwraps a destination filled by the driver into a raw value.
func outValue(dest any) any {
	switch d := dest.(type) {
	case *sql.NullInt64:
		if d.Valid {
			return d.Int64
		}
	case *sql.NullFloat64:
		if d.Valid {
			return d.Float64
		}
	case *sql.NullBool:
		if d.Valid {
			return d.Bool
		}
	case *sql.NullTime:
		if d.Valid {
			return d.Time
		}
	case *sql.NullString:
		if d.Valid {
			return d.String
		}
	case *[]byte:
		if *d != nil {
			return *d
		}
	}
	return nil
}
