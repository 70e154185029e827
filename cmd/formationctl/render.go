package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Lllllllleong/formationflow/internal/app"
	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/rasterizer"
	"github.com/Lllllllleong/formationflow/internal/render"
	"github.com/Lllllllleong/formationflow/internal/templates"
	"github.com/spf13/cobra"
)

type renderFlags struct {
	slug         string
	dir          string
	dataFile     string
	out          string
	preview      bool
	pdf          bool
	engine       string
	gotenbergURL string
	chromeBin    string
	timeout      time.Duration
}

func newRenderCmd() *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a template with a JSON data record, without touching the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := f.template()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(f.dataFile)
			if err != nil {
				return fmt.Errorf("failed to read data file: %w", err)
			}
			var data map[string]any
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("failed to parse data file: %w", err)
			}
			mode := render.ModeFinal
			if f.preview {
				mode = render.ModePreview
				data["isPreview"] = true
			}

			content, err := render.NewRenderer().Render(tpl, data)
			if err != nil {
				return err
			}
			compositor, err := render.NewCompositor("", "")
			if err != nil {
				return err
			}
			html, err := compositor.Compose(mode, tpl.Name, content)
			if err != nil {
				return err
			}

			output := []byte(html)
			if f.pdf {
				opts := rasterizer.FinalOptions()
				if f.preview {
					opts = rasterizer.PreviewOptions(compositor.Watermark())
				}
				engine := app.NewRasterizer(config.RasterizerOptions{
					Engine:        f.engine,
					ChromeBin:     f.chromeBin,
					NoSandbox:     true,
					GotenbergURL:  f.gotenbergURL,
					Timeout:       f.timeout,
					MaxConcurrent: 1,
				})
				output, err = engine.Rasterize(cmd.Context(), html, opts)
				if err != nil {
					return err
				}
				if _, err := (rasterizer.PDFTools{}).Inspect(output); err != nil {
					return err
				}
			}

			if f.out == "" || f.out == "-" {
				_, err = cmd.OutOrStdout().Write(output)
				return err
			}
			if err := os.WriteFile(f.out, output, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(output), f.out)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.slug, "template", "doo-statut", "Template slug")
	cmd.Flags().StringVar(&f.dir, "dir", "", "Load templates from this directory instead of the bundled set")
	cmd.Flags().StringVar(&f.dataFile, "data", "", "JSON file with the template data record (required)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&f.preview, "preview", false, "Render the watermarked preview variant")
	cmd.Flags().BoolVar(&f.pdf, "pdf", false, "Rasterize to PDF instead of printing HTML")
	cmd.Flags().StringVar(&f.engine, "engine", "rod", "Rasterizer engine: rod or gotenberg")
	cmd.Flags().StringVar(&f.gotenbergURL, "gotenberg-url", "", "Gotenberg base URL")
	cmd.Flags().StringVar(&f.chromeBin, "chrome-bin", "", "Chrome binary for the rod engine")
	cmd.Flags().DurationVar(&f.timeout, "timeout", time.Minute, "Rasterization timeout")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (f *renderFlags) template() (*models.Template, error) {
	var store *templates.MemoryStore
	if f.dir != "" {
		tpls, err := templates.Load(os.DirFS(f.dir), ".")
		if err != nil {
			return nil, err
		}
		store = templates.NewMemoryStore(tpls...)
	} else {
		var err error
		if store, err = templates.NewBundledStore(); err != nil {
			return nil, err
		}
	}
	return store.Get(context.Background(), f.slug)
}
