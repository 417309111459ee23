package main

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docpump/internal/config"
	"docpump/internal/metrics"
	"docpump/internal/metrics/datadog"
	"docpump/internal/metrics/prompush"
)

// setupMetrics installs the process-wide metrics backend from the first job
// that configures one. The returned func flushes (and closes) it.
func setupMetrics(jobs []config.Job, log *zap.Logger) (func(), error) {
	var m config.Metrics
	for _, j := range jobs {
		if b := strings.ToLower(j.Metrics.Backend); b != "" && b != "none" {
			m = j.Metrics
			break
		}
	}

	switch strings.ToLower(m.Backend) {
	case "", "none":
		return func() {}, nil

	case "prometheus":
		group := "docpump"
		if len(jobs) == 1 && jobs[0].Name != "" {
			group = jobs[0].Name
		}
		b, err := prompush.NewBackend(group, m.Options.String("url", ""))
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics: push failed", zap.Error(err))
			}
		}, nil

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.Options.String("addr", ""),
			Namespace:  m.Options.String("namespace", ""),
			GlobalTags: m.Options.StringSlice("tags"),
		})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		return func() {
			if err := errors.Join(metrics.Flush(), b.Close()); err != nil {
				log.Warn("metrics: flush failed", zap.Error(err))
			}
		}, nil
	}
	return nil, fmt.Errorf("metrics: unknown backend %q", m.Backend)
}
