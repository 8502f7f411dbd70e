package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"labflow/internal/models"
	"labflow/internal/status"
)

func newStatusCmd(st *state) *cobra.Command {
	var (
		sessionID string
		watch     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-file progress of a session",
		Long: `Print the session summary and every file's state.

Examples:
  labctl status --session s1
  labctl status --session s1 --watch 2s   # refresh until the session settles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			a, err := st.open(cmd.Context())
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), a.Tracker, sessionID, watch)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (required)")
	cmd.Flags().DurationVarP(&watch, "watch", "w", 0, "poll interval; 0 prints once")
	return cmd
}

func runStatus(ctx context.Context, w io.Writer, tracker *status.Tracker, sessionID string, watch time.Duration) error {
	for {
		p, err := tracker.Progress(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("read progress: %w", err)
		}
		printProgress(w, p)
		if watch <= 0 || settled(p.Summary) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(watch):
		}
		fmt.Fprintln(w)
	}
}

func settled(s models.SessionSummary) bool {
	return s.TotalFiles == 0 || s.SessionStatus == "completed" || s.SessionStatus == "failed"
}

func printProgress(w io.Writer, p status.SessionProgress) {
	s := p.Summary
	fmt.Fprintf(w, "Session %s: %s %d%% (%d total, %d completed, %d failed, %d processing, %d pending)\n",
		p.SessionID, s.SessionStatus, s.OverallProgress, s.TotalFiles, s.CompletedFiles, s.FailedFiles, s.ProcessingFiles, s.PendingFiles)
	if len(p.Files) == 0 {
		fmt.Fprintln(w, "No files found")
		return
	}
	fmt.Fprintf(w, "%-38s %-12s %-5s %-8s %-10s %s\n", "FILE", "STATUS", "PCT", "ATTEMPT", "PROVIDER", "ERROR")
	for _, f := range p.Files {
		errText := f.ErrorCode
		if f.Error != "" {
			errText += " " + f.Error
			if f.IsRetryable {
				errText += " (retryable)"
			}
		}
		fmt.Fprintf(w, "%-38s %-12s %-5d %-8d %-10s %s\n", f.FileID, f.Status, f.Progress, f.AttemptNumber, f.Provider, errText)
	}
}
