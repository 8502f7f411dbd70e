package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"labflow/internal/pipeline"
	"labflow/internal/scheduler"
)

type processFlags struct {
	sessionID   string
	provider    string
	concurrency int
	maxDuration time.Duration
}

func newProcessCmd(st *state) *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   "process <file-id>...",
		Short: "Process uploaded files of a session",
		Long: `Run extraction, parsing and persistence for the given files, bounded by the
configured concurrency and soft deadline.

Examples:
  labctl process --session s1 f1 f2
  labctl process --session s1 --provider anthropic --concurrency 1 f1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			a, err := st.open(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Providers.Availability().Any() {
				return fmt.Errorf("no AI provider credentials configured")
			}
			if f.provider == "" {
				f.provider = st.cfg.DefaultProvider
			}
			if f.concurrency <= 0 {
				f.concurrency = st.cfg.MaxConcurrent
			}
			if f.maxDuration <= 0 {
				f.maxDuration = st.cfg.MaxDuration()
			}
			return runProcess(cmd.Context(), cmd.OutOrStdout(), a.Processor, f, args, st.logger)
		},
	}
	cmd.Flags().StringVarP(&f.sessionID, "session", "s", "", "session id (required)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "preferred provider: openai, anthropic or auto")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "c", 0, "files processed at once")
	cmd.Flags().DurationVar(&f.maxDuration, "max-duration", 0, "overall budget; admission stops at 80%")
	return cmd
}

func runProcess(ctx context.Context, w io.Writer, proc *pipeline.Processor, f processFlags, ids []string, logger *slog.Logger) error {
	proc.MarkPending(ctx, f.sessionID, ids)
	out := scheduler.Run(ctx, ids, scheduler.Options{MaxConcurrent: f.concurrency, MaxDuration: f.maxDuration},
		func(ctx context.Context, id string, b scheduler.Budget) pipeline.FileResult {
			return proc.ProcessFile(ctx, id, f.sessionID, f.provider, b)
		})
	logger.Info("labctl process finished", "session_id", f.sessionID, "admitted", out.Admitted, "timed_out", out.TimedOut)

	failed := printResults(w, out.Results)
	fmt.Fprintf(w, "\n%d/%d processed, %d failed", len(out.Results), len(ids), failed)
	if out.TimedOut {
		fmt.Fprint(w, ", stopped at soft deadline")
	}
	fmt.Fprintln(w)
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

func printResults(w io.Writer, results []pipeline.FileResult) int {
	fmt.Fprintf(w, "%-38s %-8s %-10s %-24s %-6s %s\n", "FILE", "RESULT", "PROVIDER", "MODEL", "TESTS", "DETAIL")
	fmt.Fprintln(w, "------------------------------------------------------------------------------------------------")
	failed := 0
	for _, r := range results {
		result, detail := "ok", ""
		switch {
		case r.Skipped:
			result = "skipped"
		case !r.Success:
			result = "failed"
			detail = r.ErrorCode + " " + r.Error
			failed++
		case r.Degraded:
			result = "degraded"
		}
		fmt.Fprintf(w, "%-38s %-8s %-10s %-24s %-6d %s\n", r.FileID, result, r.Provider, r.Model, r.TestCount, detail)
	}
	return failed
}
