package main

import (
	"database/sql"

	"github.com/Lllllllleong/formationflow/internal/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := flags.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Up(cmd.Context(), db); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}, &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := flags.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Down(cmd.Context(), db); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}, &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := flags.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return printVersion(cmd, db)
		},
	})
	return cmd
}

type versionOutput struct {
	Version int64 `json:"version"`
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	v, err := migrations.Version(cmd.Context(), db)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), versionOutput{Version: v})
}
