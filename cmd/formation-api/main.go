package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/formationflow/internal/app"
	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/logging"
)

var (
	router  http.Handler
	once    sync.Once
	initErr error
)

func init() {
	functions.HTTP("FormationAPI", formationAPI)
}

// main is required by the Go Functions Framework.
func main() {}

func setup() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	if _, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Service); err != nil {
		slog.Warn("Falling back to the default logger.", "error", err)
	}

	// The instance lives as long as the function container.
	ctx := context.Background()
	a, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		initErr = err
		return
	}
	if err := a.StartRelay(ctx); err != nil {
		initErr = err
		return
	}
	router = a.Router()
}

func formationAPI(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		slog.Error("Critical error during function initialization.", "error", initErr)
		http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	router.ServeHTTP(w, r)
}
