package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rostilos/codecrow/internal/db"
	"github.com/rostilos/codecrow/internal/db/driver"
)

// newMigrateCmd creates the migrate command.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			store, err := db.OpenWithDialect(cfg.Storage.DSN, driver.Dialect(cfg.Storage.Dialect))
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate store: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Storage.Dialect)
			return nil
		},
	}
}
