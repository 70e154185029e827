// Package app assembles the formation service from configuration. Every
// long-lived resource is created here and released by App.Close.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/formationflow/internal/blobstore"
	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/gcp"
	"github.com/Lllllllleong/formationflow/internal/httpapi"
	"github.com/Lllllllleong/formationflow/internal/lock"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/Lllllllleong/formationflow/internal/rasterizer"
	"github.com/Lllllllleong/formationflow/internal/render"
	"github.com/Lllllllleong/formationflow/internal/repository"
	"github.com/Lllllllleong/formationflow/internal/services"
	"github.com/Lllllllleong/formationflow/internal/templates"
	"github.com/redis/go-redis/v9"
)

// App holds the wired services and the resources behind them.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Outbox    *outbox.PostgresStore
	Formation *services.FormationService
	Status    *services.StatusService
	Documents *services.DocumentService
	Templates templates.Store

	closers []func() error
}

// Bootstrap connects to every backend named by cfg and builds the services.
// On error, whatever was opened so far is closed again.
func Bootstrap(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = repository.Open(ctx, cfg.Database.ConnectionString(),
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	a.onClose(a.DB.Close)

	requests := repository.NewRequestsRepository(a.DB)
	activities := repository.NewActivitiesRepository(a.DB)
	documents := repository.NewDocumentsRepository(a.DB)
	a.Outbox = outbox.NewPostgresStore(a.DB)

	artifacts, err := a.artifactStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Templates, err = a.templateStore(ctx)
	if err != nil {
		return nil, err
	}
	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}
	compositor, err := render.NewCompositor(cfg.Preview.Watermark, "")
	if err != nil {
		return nil, err
	}

	a.Formation = services.NewFormationService(requests, activities, documents, a.Outbox, cfg.Pricing, cfg.Bank)
	a.Status = services.NewStatusService(requests)
	a.Documents, err = services.NewDocumentService(services.DocumentDeps{
		Requests:   requests,
		Activities: activities,
		Documents:  documents,
		Templates:  a.Templates,
		Renderer:   render.NewRenderer(),
		Compositor: compositor,
		Rasterizer: NewRasterizer(cfg.Rasterizer),
		Inspector:  rasterizer.PDFTools{},
		Artifacts:  artifacts,
		Locker:     locker,
	}, services.DocumentConfig{
		TemplateSlug:     cfg.Templates.Slug,
		StoragePrefix:    cfg.Storage.Prefix,
		BasePath:         cfg.HTTP.BasePath,
		ObscureSensitive: cfg.Preview.ObscureSensitive,
		Optimize:         cfg.Rasterizer.Optimize,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Application bootstrapped.",
		"env", cfg.Env,
		"artifactBackend", cfg.Storage.Backend,
		"templateBackend", cfg.Templates.Backend,
		"rasterizer", cfg.Rasterizer.Engine,
		"dispatcher", cfg.Outbox.Dispatcher,
	)
	return a, nil
}

// Router returns the HTTP API with /metrics mounted.
func (a *App) Router() http.Handler {
	return httpapi.NewRouter(a.Formation, a.Status, a.Documents, httpapi.Options{
		BasePath:     a.Config.HTTP.BasePath,
		GatewayToken: a.Config.HTTP.GatewayToken,
		Metrics:      true,
	})
}

// Relay builds the outbox relay with the configured dispatcher.
func (a *App) Relay(ctx context.Context) (*outbox.Relay, error) {
	dispatcher, err := a.dispatcher(ctx)
	if err != nil {
		return nil, err
	}
	o := a.Config.Outbox
	return outbox.NewRelay(a.Outbox, dispatcher, outbox.RelayOptions{
		PollInterval:    o.PollInterval,
		BatchSize:       o.BatchSize,
		Concurrency:     o.Concurrency,
		MaxAttempts:     o.MaxAttempts,
		LockTTL:         o.LockTTL,
		DispatchTimeout: o.DispatchTimeout,
		SingleActive:    o.SingleActive,
		Name:            a.Config.Service,
	})
}

// StartRelay runs the relay in the background when OUTBOX_RELAY_ENABLED is
// set. It stops when ctx is cancelled.
func (a *App) StartRelay(ctx context.Context) error {
	if !a.Config.Outbox.RelayEnabled {
		return nil
	}
	relay, err := a.Relay(ctx)
	if err != nil {
		return err
	}
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Outbox relay stopped.", "error", err)
		}
	}()
	return nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) artifactStore(ctx context.Context) (blobstore.Store, error) {
	s := a.Config.Storage
	switch s.Backend {
	case "gcs":
		store, err := gcp.NewGCSStore(ctx, s.Bucket)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		return store, nil
	case "s3":
		return blobstore.NewS3Store(ctx, blobstore.S3Options{
			Bucket:    s.Bucket,
			Region:    s.S3Region,
			Endpoint:  s.S3Endpoint,
			AccessKey: s.S3AccessKey,
			SecretKey: s.S3SecretKey,
		})
	default:
		return blobstore.NewLocalStore(s.Dir)
	}
}

func (a *App) templateStore(ctx context.Context) (templates.Store, error) {
	if a.Config.Templates.Backend != "firestore" {
		return templates.NewBundledStore()
	}
	client, err := gcp.NewFirestoreClient(ctx, a.Config.ProjectID)
	if err != nil {
		return nil, err
	}
	a.onClose(client.Close)
	return gcp.NewFirestoreTemplateStore(client, a.Config.Templates.Collection), nil
}

func (a *App) locker(ctx context.Context) (lock.Locker, error) {
	l := a.Config.Lock
	if l.RedisAddr == "" {
		return lock.NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     l.RedisAddr,
		Password: l.RedisPassword,
		DB:       l.RedisDB,
	})
	a.onClose(client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis at %s: %w", l.RedisAddr, err)
	}
	return lock.NewRedis(client, a.Config.Service+":lock:", l.TTL), nil
}

func (a *App) dispatcher(ctx context.Context) (outbox.Dispatcher, error) {
	o := a.Config.Outbox
	switch o.Dispatcher {
	case "cloudevents":
		return outbox.NewCloudEventsDispatcher(o.WorkerURL, o.EventSource)
	case "workflows":
		d, err := gcp.NewWorkflowDispatcher(ctx, a.Config.ProjectID, o.WorkflowLocation, o.WorkflowID)
		if err != nil {
			return nil, err
		}
		a.onClose(d.Close)
		return d, nil
	default:
		return outbox.NewHandlerDispatcher(a.Documents), nil
	}
}

// NewRasterizer selects the engine and bounds it with the configured
// concurrency and timeout.
func NewRasterizer(opts config.RasterizerOptions) *rasterizer.Bounded {
	var engine rasterizer.Rasterizer
	switch opts.Engine {
	case "gotenberg":
		engine = rasterizer.NewGotenberg(opts.GotenbergURL, opts.RetryCount)
	default:
		engine = rasterizer.NewRod(opts.ChromeBin, opts.NoSandbox)
	}
	return rasterizer.NewBounded(engine, opts.MaxConcurrent, opts.Timeout)
}
