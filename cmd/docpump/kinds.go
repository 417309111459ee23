package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docpump/internal/source"
	"docpump/internal/storage"
)

func newKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the registered source and sink kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sources: %s\n", strings.Join(source.ListKinds(), ", "))
			fmt.Fprintf(out, "sinks:   %s\n", strings.Join(storage.ListKinds(), ", "))
			return nil
		},
	}
}
