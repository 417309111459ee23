// Command docpump runs jobs that pull rows from a relational source, fold
// them into nested documents and hand those to a document sink.
//
//	docpump run jobs/products.json jobs/orders.json
//	docpump validate jobs/*.json
//	docpump kinds
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	// register every source dialect and sink backend; the job config picks
	// one of each by kind.
	_ "docpump/internal/source/all"
	_ "docpump/internal/storage/all"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "docpump",
		Short:         "Pump relational rows into nested documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logs")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newKindsCommand())
	return cmd
}

// newLogger builds a production JSON logger; verbose lowers the level to
// debug.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
