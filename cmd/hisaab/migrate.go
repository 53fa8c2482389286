package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/hisaab/internal/config"
	"github.com/mmynk/hisaab/internal/storage/sqlite"
)

var (
	dbPath    string
	downSteps int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := migrationDB()
		if downSteps > 0 {
			if err := sqlite.RollbackMigrations(path, downSteps); err != nil {
				return err
			}
		} else if err := sqlite.RunMigrations(path); err != nil {
			return err
		}
		return printVersion(cmd, path)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVersion(cmd, migrationDB())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	migrateCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (defaults to DB_PATH).")
	migrateCmd.Flags().IntVar(&downSteps, "down", 0, "Roll back this many migrations instead of applying.")
}

func migrationDB() string {
	if dbPath != "" {
		return dbPath
	}
	return config.Load().DBPath
}

func printVersion(cmd *cobra.Command, path string) error {
	version, dirty, err := sqlite.MigrationVersion(path)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
	return nil
}
