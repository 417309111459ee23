// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from command runs.
//
// The package exposes a narrow interface (Backend) of counters and timing
// observations, and a global pluggable backend that defaults to a no-op, so
// recording is always safe even when no real backend is configured. Concrete
// systems live in subpackages (prompush, datadog), mirroring how sinks live
// under storage.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by this package.
const (
	CommandsTotal   = "docpump_commands_total"
	CommandDuration = "docpump_command_duration_seconds"
	RowsTotal       = "docpump_rows_total"
	BytesTotal      = "docpump_bytes_total"
	DocumentsTotal  = "docpump_documents_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordCommand counts one finished command by outcome and observes its
// duration.
func RecordCommand(job, command string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":     job,
		"command": command,
		"status":  status,
	}
	b := current()
	b.IncCounter(CommandsTotal, 1, lbls)
	b.ObserveHistogram(CommandDuration, d.Seconds(), lbls)
}

// RecordRows adds delta source rows read for job.
func RecordRows(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job})
}

// RecordBytes adds delta normalized bytes read for job.
func RecordBytes(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BytesTotal, float64(delta), Labels{"job": job})
}

// RecordDocuments adds delta documents handed to the sink with operation op
// ("index", "create", "update", "delete").
func RecordDocuments(job, op string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(DocumentsTotal, float64(delta), Labels{
		"job": job,
		"op":  op,
	})
}
