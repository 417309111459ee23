// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Command runs are short-lived, so instead of exposing a scrape endpoint the
// collected registry is pushed to a Pushgateway on Flush. The "job" label of
// the generic metrics is the Pushgateway grouping key and is not repeated on
// the collectors.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"docpump/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	commandCounter  *prometheus.CounterVec // docpump_commands_total
	commandDuration *prometheus.SummaryVec // docpump_command_duration_seconds
	rowCounter      prometheus.Counter     // docpump_rows_total
	byteCounter     prometheus.Counter     // docpump_bytes_total
	docCounter      *prometheus.CounterVec // docpump_documents_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (usually the config job name).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "docpump"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		commandCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.CommandsTotal,
				Help: "Commands executed, partitioned by command and status.",
			},
			[]string{"command", "status"},
		),
		commandDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       metrics.CommandDuration,
				Help:       "Command duration in seconds, partitioned by command and status.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"command", "status"},
		),
		rowCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Source rows read.",
		}),
		byteCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BytesTotal,
			Help: "Bytes of normalized values read.",
		}),
		docCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.DocumentsTotal,
				Help: "Documents handed to the sink, partitioned by operation.",
			},
			[]string{"op"},
		),
	}

	for _, c := range []prometheus.Collector{b.commandCounter, b.commandDuration, b.rowCounter, b.byteCounter, b.docCounter} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.CommandsTotal:
		if b.commandCounter == nil {
			return
		}
		b.commandCounter.WithLabelValues(labels["command"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.Add(delta)

	case metrics.BytesTotal:
		if b.byteCounter == nil {
			return
		}
		b.byteCounter.Add(delta)

	case metrics.DocumentsTotal:
		if b.docCounter == nil {
			return
		}
		b.docCounter.WithLabelValues(labels["op"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.CommandDuration || b.commandDuration == nil {
		return
	}
	b.commandDuration.WithLabelValues(labels["command"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
