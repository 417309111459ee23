package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Memory is a sink that keeps every action in memory. It backs the "memory"
// kind (dry runs) and tests.
type Memory struct {
	mu      sync.Mutex
	actions []Action
	flushes int
	closed  bool
}

func init() {
	Register("memory", func(context.Context, Config, *zap.Logger) (Sink, error) {
		return &Memory{}, nil
	})
}

func (m *Memory) record(op Op, r Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, Action{Op: op, Request: r})
	return nil
}

func (m *Memory) Index(_ context.Context, r Request) error  { return m.record(OpIndex, r) }
func (m *Memory) Create(_ context.Context, r Request) error { return m.record(OpCreate, r) }
func (m *Memory) Update(_ context.Context, r Request) error { return m.record(OpUpdate, r) }
func (m *Memory) Delete(_ context.Context, r Request) error { return m.record(OpDelete, r) }

func (m *Memory) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Actions returns a copy of the recorded actions in arrival order.
func (m *Memory) Actions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Action(nil), m.actions...)
}

// Flushes reports how many times Flush was called.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
