package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/logging"
	"github.com/Lllllllleong/formationflow/internal/repository"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "formationctl",
		Short:         "Operational tooling for the company formation service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", config.DefaultEnvFiles, "env files to load before reading the environment")

	cmd.AddCommand(
		newMigrateCmd(flags),
		newSeedCmd(flags),
		newRelayCmd(flags),
		newRenderCmd(),
	)
	return cmd
}

// loadConfig reads configuration and installs the process logger.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.envFiles...)
	if err != nil {
		return nil, err
	}
	if _, err := logging.Setup(cfg.Log.Level, "console", cfg.Service+"-ctl"); err != nil {
		slog.Warn("Falling back to the default logger.", "error", err)
	}
	return cfg, nil
}

func (f *globalFlags) openDB(ctx context.Context) (*config.Config, *sql.DB, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	d := cfg.Database
	db, err := repository.Open(ctx, d.ConnectionString(), d.MaxOpenConns, d.MaxIdleConns, d.ConnMaxLifetime)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
