package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/core/db"
)

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations for the triage run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ServiceTypeCLI)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := db.Migrate(cmd.Context(), cfg.DB.DSN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Sprint("migrations applied"))
			return nil
		},
	}
}
