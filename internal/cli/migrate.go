package cli

import (
	"fmt"

	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL document store schema",
		Long: `Apply the embedded migrations for the PostgreSQL document store:
the documents table and the trigger that feeds LISTEN/NOTIFY change events.
Already applied migrations are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.ConnectPostgres(databaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer db.Close()

			if err := store.Migrate(db); err != nil {
				return err
			}
			newFormatter(rootOpts, cmd.OutOrStdout()).Printf("Migrations applied\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", rootOpts.Config.DatabaseURL, "PostgreSQL connection string")

	return cmd
}
