package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"docpump/internal/command"
	"docpump/internal/config"
	"docpump/internal/source"
)

// errInvalid is returned when a job file has validation errors.
var errInvalid = errors.New("configuration is invalid")

func newValidateCommand(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <job.json>...",
		Short: "Validate job files and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, p := range args {
				if err := validateJobFile(cmd.ErrOrStderr(), p); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", p, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", p)
			}
			return errors.Join(errs...)
		},
	}
}

// validateJobFile prints every issue of the job at path to w and fails on
// errors.
func validateJobFile(w io.Writer, path string) error {
	j, err := config.Load(path)
	if err != nil {
		return err
	}
	issues := config.ValidateJob(j)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s: %s\n", path, iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalid
	}
	return checkJob(j)
}

// loadJob loads and validates a job for running.
func loadJob(path string) (config.Job, error) {
	j, err := config.Load(path)
	if err != nil {
		return config.Job{}, err
	}
	var errs []error
	for _, iss := range config.ValidateJob(j) {
		if iss.Severity == config.SeverityError {
			errs = append(errs, iss)
		}
	}
	if len(errs) > 0 {
		return config.Job{}, fmt.Errorf("%s: %w", path, errors.Join(append([]error{errInvalid}, errs...)...))
	}
	if err := checkJob(j); err != nil {
		return config.Job{}, fmt.Errorf("%s: %w", path, err)
	}
	return j, nil
}

// checkJob runs the checks that need the registries: the source kind and
// DSN, placeholders and tuning values.
func checkJob(j config.Job) error {
	d, err := source.Lookup(j.Source.Kind)
	if err != nil {
		return err
	}
	if err := d.Validate(j.Source.DSN); err != nil {
		return err
	}
	if _, err := command.CompileAll(j.Commands); err != nil {
		return err
	}
	if _, err := command.NewOptions(j); err != nil {
		return err
	}
	return nil
}
