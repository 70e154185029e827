package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/formationflow/internal/app"
	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/logging"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/Lllllllleong/formationflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	documents *services.DocumentService
	once      sync.Once
	initErr   error
)

func init() {
	functions.CloudEvent("GenerateDocuments", generateDocuments)
}

// main is required by the Go Functions Framework.
func main() {}

func setup() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	if _, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Service+"-worker"); err != nil {
		slog.Warn("Falling back to the default logger.", "error", err)
	}
	a, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		initErr = err
		return
	}
	documents = a.Documents
}

// generateDocuments consumes generation markers pushed by the outbox relay.
// A returned error makes the relay retry the marker.
func generateDocuments(ctx context.Context, e cloudevents.Event) error {
	once.Do(setup)
	if initErr != nil {
		slog.Error("Critical error during function initialization.", "error", initErr)
		return initErr
	}

	logCtx := slog.With("eventId", e.ID(), "eventType", e.Type(), "subject", e.Subject())
	if e.Type() != outbox.EventType {
		logCtx.Warn("Ignoring unexpected event type.")
		return nil
	}
	event, err := outbox.DecodeGenerationRequested(e.Data())
	if err != nil {
		// Malformed payloads never succeed, so they are acknowledged.
		logCtx.Error("Failed to decode generation event.", "error", err, "data", string(e.Data()))
		return nil
	}
	if err := documents.HandleGenerationRequested(ctx, event); err != nil {
		return fmt.Errorf("generation for request %d failed: %w", event.RequestID, err)
	}
	return nil
}
