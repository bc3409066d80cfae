package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/tweet-digest/pkg/db"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema, or print its version with --status",
	Args:  cobra.NoArgs,
	RunE:  migrateAction,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print the applied schema version and exit")
	rootCmd.AddCommand(migrateCmd)
}

func migrateAction(cmd *cobra.Command, _ []string) error {
	config, err := db.NewConfig(log)
	if err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if config.Driver() != db.DriverPostgres {
		if migrateStatus {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlite database %s: schema is managed on startup\n", config.URL)
			return nil
		}
		database, err := db.SetupDatabase(config)
		if err != nil {
			return err
		}
		return db.Close(database)
	}

	if !migrateStatus {
		if err := db.RunMigrations(log, config.URL); err != nil {
			return err
		}
	}
	version, dirty, err := db.MigrationStatus(config.URL)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}
