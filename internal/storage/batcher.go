package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WriteFn persists one batch of actions and returns how many were applied.
// Implementations use their backend's cheapest bulk primitive (a transaction,
// a pgx.Batch, one buffered file write).
type WriteFn func(ctx context.Context, batch []Action) (int64, error)

// Batcher buffers actions and hands them to a WriteFn once the batch is full
// or Flush is called. Sinks embed it to implement the four operations.
//
// On every successful write a progress line is logged with running totals and
// the documents/sec since the previous write.
type Batcher struct {
	mu    sync.Mutex
	size  int
	write WriteFn
	log   *zap.Logger

	batch     []Action
	total     int64
	batches   int64
	start     time.Time
	lastFlush time.Time
	lastTotal int64
}

// NewBatcher returns a Batcher flushing every size actions.
func NewBatcher(size int, write WriteFn, log *zap.Logger) (*Batcher, error) {
	if size <= 0 {
		return nil, fmt.Errorf("storage: batch size must be > 0")
	}
	if write == nil {
		return nil, fmt.Errorf("storage: write function must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now()
	return &Batcher{
		size:      size,
		write:     write,
		log:       log,
		batch:     make([]Action, 0, size),
		start:     now,
		lastFlush: now,
	}, nil
}

func (b *Batcher) Index(ctx context.Context, r Request) error  { return b.add(ctx, OpIndex, r) }
func (b *Batcher) Create(ctx context.Context, r Request) error { return b.add(ctx, OpCreate, r) }
func (b *Batcher) Update(ctx context.Context, r Request) error { return b.add(ctx, OpUpdate, r) }
func (b *Batcher) Delete(ctx context.Context, r Request) error { return b.add(ctx, OpDelete, r) }

func (b *Batcher) add(ctx context.Context, op Op, r Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batch = append(b.batch, Action{Op: op, Request: r})
	if len(b.batch) >= b.size {
		return b.flushLocked(ctx)
	}
	return nil
}

// Flush writes any buffered actions.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Written returns the number of actions the WriteFn reported as applied.
func (b *Batcher) Written() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Pending returns the number of buffered actions.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batch)
}

func (b *Batcher) flushLocked(ctx context.Context) error {
	if len(b.batch) == 0 {
		return nil
	}
	n, err := b.write(ctx, b.batch)
	b.total += n
	// Reuse the backing array; WriteFn must not retain the slice.
	b.batch = b.batch[:0]
	if err != nil {
		b.log.Error("storage: batch write failed",
			zap.Int64("applied", n),
			zap.Int64("total", b.total),
			zap.Error(err))
		return err
	}

	b.batches++
	now := time.Now()
	sinceLast := now.Sub(b.lastFlush)
	dps := float64(0)
	if sinceLast > 0 {
		dps = float64(b.total-b.lastTotal) / sinceLast.Seconds()
	}
	b.log.Info("storage: batch written",
		zap.Int64("batch", b.batches),
		zap.Float64("dps", dps),
		zap.Int64("applied", n),
		zap.Int64("total", b.total),
		zap.Duration("elapsed", now.Sub(b.start).Truncate(time.Millisecond)))
	b.lastFlush = now
	b.lastTotal = b.total
	return nil
}
