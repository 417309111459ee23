package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docpump/internal/config"
)

type runOptions struct {
	parallel int
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <job.json>...",
		Short: "Run one or more jobs",
		Long: `Run loads every job file, validates it and executes its commands in
order. Jobs run concurrently, up to --parallel at a time; a failing job does
not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(root.verbose)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = log.Sync() }()
			return runJobs(cmd.Context(), args, opts.parallel, log)
		},
	}
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 4, "maximum number of jobs running at once")
	return cmd
}

// runJobs loads all jobs up front, installs the metrics backend and runs the
// jobs through an errgroup. Every job error is returned joined.
func runJobs(ctx context.Context, paths []string, parallel int, log *zap.Logger) error {
	jobs := make([]config.Job, len(paths))
	for i, p := range paths {
		j, err := loadJob(p)
		if err != nil {
			return err
		}
		jobs[i] = j
	}

	closeMetrics, err := setupMetrics(jobs, log)
	if err != nil {
		return err
	}
	defer closeMetrics()

	if parallel < 1 {
		parallel = 1
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(parallel)
	for i := range jobs {
		j, path := jobs[i], paths[i]
		g.Go(func() error {
			if err := runJob(ctx, j, log); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
