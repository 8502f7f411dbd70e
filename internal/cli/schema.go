package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"labflow/internal/storage"
)

func newSchemaCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create or upgrade the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.NewDB(cmd.Context(), st.cfg.PostgresURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()
			if err := db.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("initialize schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}
