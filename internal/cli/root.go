// Package cli provides labctl, which drives the pipeline in-process against the
// configured stores.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"labflow/internal/app"
	"labflow/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

type state struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	app      *app.App
	verbose  bool
}

// open builds the app on first use.
func (st *state) open(ctx context.Context) (*app.App, error) {
	if st.app != nil {
		return st.app, nil
	}
	a, err := app.Build(ctx, st.cfg, st.logger)
	if err != nil {
		return nil, fmt.Errorf("open backends: %w", err)
	}
	st.app = a
	return a, nil
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	st := &state{}
	root := &cobra.Command{
		Use:   "labctl",
		Short: "Operate the lab report pipeline",
		Long: `labctl processes uploaded lab reports, inspects session progress and
resets failed files without going through the HTTP api.

Configuration is read from LABFLOW_* environment variables and .env.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			st.cfg = config.Load()
			level := st.cfg.SlogLevel()
			if !st.verbose && level < slog.LevelWarn {
				level = slog.LevelWarn
			}
			st.logger, st.closeLog = config.SetupLogger(st.cfg.LogFile, level)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.app != nil {
				if err := st.app.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close backends: %v\n", err)
				}
			}
			if st.closeLog != nil {
				_ = st.closeLog()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "log pipeline activity to stderr")

	root.AddCommand(newProcessCmd(st))
	root.AddCommand(newStatusCmd(st))
	root.AddCommand(newRetryCmd(st))
	root.AddCommand(newSchemaCmd(st))
	return root
}

// Execute runs labctl with os.Args.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
