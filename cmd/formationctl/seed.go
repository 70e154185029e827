package main

import (
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/formationflow/internal/gcp"
	"github.com/Lllllllleong/formationflow/internal/repository"
	"github.com/Lllllllleong/formationflow/internal/seed"
	"github.com/Lllllllleong/formationflow/internal/templates"
	"github.com/spf13/cobra"
)

type seedOutput struct {
	Kind  string   `json:"kind"`
	Count int      `json:"count"`
	Keys  []string `json:"keys"`
}

func newSeedCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "activities",
		Short: "Upsert the bundled activity classification codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, err := seed.ActivityCodes()
			if err != nil {
				return err
			}
			_, db, err := flags.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.NewActivitiesRepository(db).Upsert(cmd.Context(), codes); err != nil {
				return err
			}
			out := seedOutput{Kind: "activities", Count: len(codes)}
			for _, c := range codes {
				out.Keys = append(out.Keys, c.Code)
			}
			slog.Info("Activity codes seeded.", "count", len(codes))
			return writeJSON(cmd.OutOrStdout(), out)
		},
	})

	var collection string
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Write the bundled templates to Firestore",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if collection == "" {
				collection = cfg.Templates.Collection
			}
			tpls, err := templates.Bundled()
			if err != nil {
				return err
			}
			client, err := gcp.NewFirestoreClient(cmd.Context(), cfg.ProjectID)
			if err != nil {
				return err
			}
			defer client.Close()

			store := gcp.NewFirestoreTemplateStore(client, collection)
			out := seedOutput{Kind: "templates"}
			for _, tpl := range tpls {
				if err := store.Put(cmd.Context(), tpl); err != nil {
					return fmt.Errorf("failed to seed template %s: %w", tpl.Slug, err)
				}
				out.Keys = append(out.Keys, fmt.Sprintf("%s@v%d", tpl.Slug, tpl.Version))
			}
			out.Count = len(out.Keys)
			slog.Info("Templates seeded.", "collection", collection, "count", out.Count)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	templatesCmd.Flags().StringVar(&collection, "collection", "", "Firestore collection (defaults to TEMPLATE_COLLECTION)")
	cmd.AddCommand(templatesCmd)
	return cmd
}
