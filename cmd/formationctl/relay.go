package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/formationflow/internal/app"
	"github.com/spf13/cobra"
)

func newRelayCmd(flags *globalFlags) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Deliver pending outbox markers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			relay, err := a.Relay(ctx)
			if err != nil {
				return err
			}
			if once {
				n, err := relay.ProcessOnce(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int{"processed": n})
			}

			slog.Info("Outbox relay starting.", "dispatcher", cfg.Outbox.Dispatcher)
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			slog.Info("Outbox relay stopped.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch and exit")
	return cmd
}
