package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRetryCmd(st *state) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "retry <file-id>",
		Short: "Reset a failed, retryable file to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			a, err := st.open(cmd.Context())
			if err != nil {
				return err
			}
			ok, err := a.Tracker.Reset(cmd.Context(), args[0], sessionID)
			if err != nil {
				return fmt.Errorf("reset %s: %w", args[0], err)
			}
			if !ok {
				return fmt.Errorf("file %s is not in a retryable failed state", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File %s reset to pending\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (required)")
	return cmd
}
