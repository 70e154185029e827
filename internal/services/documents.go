package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/Lllllllleong/formationflow/internal/blobstore"
	"github.com/Lllllllleong/formationflow/internal/lock"
	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/Lllllllleong/formationflow/internal/rasterizer"
	"github.com/Lllllllleong/formationflow/internal/render"
	"github.com/Lllllllleong/formationflow/internal/repository"
	"github.com/Lllllllleong/formationflow/internal/templates"
	"github.com/google/uuid"
)

// PDFInspector checks rasterizer output before it is stored or served.
type PDFInspector interface {
	Inspect(data []byte) (pages int, err error)
	Optimize(data []byte) ([]byte, error)
}

// DocumentConfig holds the generation settings.
type DocumentConfig struct {
	TemplateSlug     string
	StoragePrefix    string
	BasePath         string
	ObscureSensitive bool
	Optimize         bool
}

// DocumentDeps are the collaborators of a DocumentService.
type DocumentDeps struct {
	Requests   repository.Requests
	Activities repository.Activities
	Documents  repository.Documents
	Templates  templates.Store
	Renderer   *render.Renderer
	Compositor *render.Compositor
	Rasterizer rasterizer.Rasterizer
	Inspector  PDFInspector
	Artifacts  blobstore.Store
	Locker     lock.Locker
}

// DocumentService renders, stores and serves the statute of a request.
type DocumentService struct {
	deps   DocumentDeps
	config DocumentConfig
	now    func() time.Time
}

// Rendered is a PDF returned to the caller without being registered.
type Rendered struct {
	FileName string
	MimeType string
	Data     []byte
}

func NewDocumentService(deps DocumentDeps, cfg DocumentConfig) (*DocumentService, error) {
	switch {
	case deps.Requests == nil, deps.Activities == nil, deps.Documents == nil:
		return nil, errors.New("document service: repositories are required")
	case deps.Templates == nil, deps.Renderer == nil, deps.Compositor == nil:
		return nil, errors.New("document service: template pipeline is required")
	case deps.Rasterizer == nil, deps.Inspector == nil:
		return nil, errors.New("document service: rasterizer is required")
	case deps.Artifacts == nil, deps.Locker == nil:
		return nil, errors.New("document service: artifact store and locker are required")
	}
	if cfg.TemplateSlug == "" {
		cfg.TemplateSlug = "doo-statut"
	}
	if cfg.StoragePrefix == "" {
		cfg.StoragePrefix = "documents"
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/api"
	}
	return &DocumentService{deps: deps, config: cfg, now: time.Now}, nil
}

// Generate produces the final document for a paid request at most once.
// A second call, concurrent or not, returns the registered document with
// Created=false.
func (s *DocumentService) Generate(ctx context.Context, actor models.Actor, requestID int64) (*models.GenerateDocumentsResponse, error) {
	logCtx := slog.With("requestId", requestID, "actor", actor.Label())

	req, err := s.authorize(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.AllowsGeneration() {
		return nil, fmt.Errorf("%w: payment must be completed before generating documents (status %s)", models.ErrForbidden, req.Status)
	}

	release, err := s.deps.Locker.Acquire(ctx, lockKey(requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock request %d: %w", requestID, err)
	}
	defer release()

	existing, err := s.deps.Documents.FindByTemplate(ctx, requestID, s.config.TemplateSlug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.completeProcessing(ctx, logCtx, requestID); err != nil {
			return nil, err
		}
		metrics().generations.WithLabelValues("existing").Inc()
		logCtx.Info("Document already exists.", "fileName", existing.FileName)
		return &models.GenerateDocumentsResponse{Message: "Documents already exist", Created: false, Document: existing}, nil
	}

	start := s.now()
	doc, err := s.produceAndStore(ctx, logCtx, req, actor, "generate")
	if err != nil {
		metrics().generations.WithLabelValues("failed").Inc()
		return nil, err
	}

	completed, err := s.deps.Documents.Register(ctx, doc)
	if errors.Is(err, models.ErrDocumentExists) {
		s.discard(ctx, logCtx, doc.StorageKey)
		winner, findErr := s.deps.Documents.FindByTemplate(ctx, requestID, s.config.TemplateSlug)
		if findErr != nil {
			return nil, findErr
		}
		if err := s.completeProcessing(ctx, logCtx, requestID); err != nil {
			return nil, err
		}
		metrics().generations.WithLabelValues("existing").Inc()
		logCtx.Info("Lost registration race, returning registered document.")
		return &models.GenerateDocumentsResponse{Message: "Documents already exist", Created: false, Document: winner}, nil
	}
	if err != nil {
		s.discard(ctx, logCtx, doc.StorageKey)
		metrics().generations.WithLabelValues("failed").Inc()
		logCtx.Error("Failed to register document.", "error", err)
		return nil, err
	}

	metrics().generations.WithLabelValues("created").Inc()
	metrics().generationLatency.Observe(s.now().Sub(start).Seconds())
	logCtx.Info("Document generated.", "fileName", doc.FileName, "bytes", doc.FileSize, "pages", doc.PageCount, "requestCompleted", completed)
	return &models.GenerateDocumentsResponse{Message: "Document generated successfully", Created: true, Document: doc}, nil
}

// Regenerate replaces the registered document with a fresh render. The old
// artifact is deleted only after the registry points at the new one.
func (s *DocumentService) Regenerate(ctx context.Context, actor models.Actor, requestID int64) (*models.GenerateDocumentsResponse, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: regeneration requires an administrator", models.ErrForbidden)
	}
	logCtx := slog.With("requestId", requestID, "actor", actor.Label())

	req, err := s.authorize(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.AllowsGeneration() {
		return nil, fmt.Errorf("%w: request in status %s cannot have documents", models.ErrForbidden, req.Status)
	}

	release, err := s.deps.Locker.Acquire(ctx, lockKey(requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock request %d: %w", requestID, err)
	}
	defer release()

	doc, err := s.produceAndStore(ctx, logCtx, req, actor, "regenerate")
	if err != nil {
		metrics().generations.WithLabelValues("failed").Inc()
		return nil, err
	}
	previous, _, err := s.deps.Documents.Replace(ctx, doc)
	if err != nil {
		s.discard(ctx, logCtx, doc.StorageKey)
		metrics().generations.WithLabelValues("failed").Inc()
		logCtx.Error("Failed to replace document.", "error", err)
		return nil, err
	}
	if previous != nil && previous.StorageKey != doc.StorageKey {
		s.discard(ctx, logCtx, previous.StorageKey)
	}

	metrics().generations.WithLabelValues("replaced").Inc()
	logCtx.Info("Document regenerated.", "fileName", doc.FileName, "replaced", previous != nil)
	return &models.GenerateDocumentsResponse{Message: "Document regenerated successfully", Created: true, Document: doc}, nil
}

// Preview renders a watermarked PDF for the owner. Nothing is stored.
func (s *DocumentService) Preview(ctx context.Context, actor models.Actor, requestID int64) (*Rendered, error) {
	req, err := s.authorize(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	data, _, _, err := s.produce(ctx, req, render.ModePreview)
	if err != nil {
		metrics().previews.WithLabelValues("failed").Inc()
		slog.Warn("Preview failed.", "requestId", requestID, "error", err)
		return nil, err
	}
	metrics().previews.WithLabelValues("ok").Inc()
	return &Rendered{FileName: previewFileName(req.CompanyName), MimeType: pdfMimeType, Data: data}, nil
}

// Download serves a registered document. An unregistered name is
// ErrDocumentNotFound; a registered one missing from storage is
// ErrStorageIntegrity.
func (s *DocumentService) Download(ctx context.Context, actor models.Actor, requestID int64, fileName string) (*Rendered, error) {
	logCtx := slog.With("requestId", requestID, "fileName", fileName)
	if _, err := s.authorize(ctx, actor, requestID); err != nil {
		return nil, err
	}
	if fileName == "" || path.Base(fileName) != fileName {
		metrics().downloads.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %q", models.ErrDocumentNotFound, fileName)
	}

	doc, err := s.deps.Documents.FindByFileName(ctx, requestID, fileName)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			metrics().downloads.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	data, err := s.deps.Artifacts.Get(ctx, doc.StorageKey)
	if errors.Is(err, blobstore.ErrObjectNotFound) {
		metrics().downloads.WithLabelValues("integrity").Inc()
		logCtx.Error("Registered document is missing from storage.", "storageKey", doc.StorageKey)
		return nil, fmt.Errorf("%w: %s", models.ErrStorageIntegrity, fileName)
	}
	if err != nil {
		return nil, models.Upstream("artifact-store", err)
	}
	metrics().downloads.WithLabelValues("ok").Inc()
	mime := doc.MimeType
	if mime == "" {
		mime = pdfMimeType
	}
	return &Rendered{FileName: doc.FileName, MimeType: mime, Data: data}, nil
}

// HandleGenerationRequested is the outbox entry point. It moves a PAID
// request to PROCESSING and generates its document as the system actor.
// Errors that a retry cannot fix mark the request FAILED and are
// acknowledged; everything else is returned so the relay retries.
func (s *DocumentService) HandleGenerationRequested(ctx context.Context, event models.GenerationRequestedEvent) error {
	logCtx := slog.With("requestId", event.RequestID, "requestedBy", event.RequestedBy)
	logCtx.Info("Generation requested.")

	_, err := s.deps.Requests.Transition(ctx, event.RequestID, func(r *models.FormationRequest) (models.Status, *outbox.Message, error) {
		if r.Status == models.StatusPaid {
			return models.StatusProcessing, nil, nil
		}
		return r.Status, nil, nil
	})
	if errors.Is(err, models.ErrNotFound) {
		logCtx.Warn("Request no longer exists, dropping generation event.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start processing: %w", err)
	}

	resp, err := s.Generate(ctx, models.SystemActor, event.RequestID)
	switch {
	case err == nil:
		logCtx.Info("Generation finished.", "created", resp.Created, "fileName", resp.Document.FileName)
		return nil
	case errors.Is(err, models.ErrForbidden):
		logCtx.Warn("Request is not eligible for generation, dropping event.", "error", err)
		return nil
	case errors.Is(err, models.ErrValidation):
		return s.handleError(ctx, logCtx, event.RequestID, "template data rejected", err)
	default:
		logCtx.Error("Generation failed, will retry.", "error", err)
		return err
	}
}

// completeProcessing moves a PROCESSING request whose document is already
// registered to COMPLETED. The document may have been registered while the
// request was still PAID, before the outbox consumer picked it up.
func (s *DocumentService) completeProcessing(ctx context.Context, logCtx *slog.Logger, requestID int64) error {
	change, err := s.deps.Requests.Transition(ctx, requestID, func(r *models.FormationRequest) (models.Status, *outbox.Message, error) {
		if r.Status == models.StatusProcessing {
			return models.StatusCompleted, nil, nil
		}
		return r.Status, nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete request %d: %w", requestID, err)
	}
	if change.From != change.To {
		metrics().statusTransitions.WithLabelValues(change.From.String(), change.To.String()).Inc()
		logCtx.Info("Request completed with its registered document.")
	}
	return nil
}

func (s *DocumentService) handleError(ctx context.Context, logCtx *slog.Logger, requestID int64, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	change, err := s.deps.Requests.Transition(ctx, requestID, func(r *models.FormationRequest) (models.Status, *outbox.Message, error) {
		if !models.CanTransition(r.Status, models.StatusFailed) {
			return r.Status, nil, nil
		}
		return models.StatusFailed, nil, nil
	})
	if err != nil {
		logCtx.Error("CRITICAL: Failed to mark request FAILED after a generation error.", "updateError", err)
		return fmt.Errorf("%s: %w", message, originalErr)
	}
	if change.From != change.To {
		metrics().statusTransitions.WithLabelValues(change.From.String(), change.To.String()).Inc()
	}
	return nil
}

func (s *DocumentService) authorize(ctx context.Context, actor models.Actor, requestID int64) (*models.FormationRequest, error) {
	req, err := s.deps.Requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(req) {
		return nil, fmt.Errorf("%w: request %d", models.ErrForbidden, requestID)
	}
	return req, nil
}

// produceAndStore renders the final document and writes its artifact. The
// returned record is not yet registered.
func (s *DocumentService) produceAndStore(ctx context.Context, logCtx *slog.Logger, req *models.FormationRequest, actor models.Actor, trigger string) (*models.GeneratedDocument, error) {
	data, pages, tpl, err := s.produce(ctx, req, render.ModeFinal)
	if err != nil {
		logCtx.Error("Failed to produce document.", "error", err)
		return nil, err
	}

	now := s.now().UTC()
	fileName := documentFileName(req.CompanyName, now)
	sum := sha256.Sum256(data)
	id := uuid.NewString()
	doc := &models.GeneratedDocument{
		ID:              id,
		RequestID:       req.ID,
		TemplateSlug:    tpl.Slug,
		TemplateVersion: tpl.Version,
		FileName:        fileName,
		StorageKey:      path.Join(s.config.StoragePrefix, fmt.Sprint(req.ID), id, fileName),
		FileURL:         documentURL(s.config.BasePath, req.ID, fileName),
		MimeType:        pdfMimeType,
		FileSize:        int64(len(data)),
		Checksum:        hex.EncodeToString(sum[:]),
		PageCount:       pages,
		Metadata: models.DocumentMetadata{
			GeneratedAt:     now,
			GeneratedBy:     actor.Label(),
			TemplateSlug:    tpl.Slug,
			TemplateVersion: tpl.Version,
			Trigger:         trigger,
		},
	}

	if err := s.deps.Artifacts.Put(ctx, doc.StorageKey, data, pdfMimeType); err != nil {
		logCtx.Error("Failed to store artifact.", "storageKey", doc.StorageKey, "error", err)
		return nil, models.Upstream("artifact-store", err)
	}
	return doc, nil
}

// produce runs render, compose, rasterize and inspect for one mode.
func (s *DocumentService) produce(ctx context.Context, req *models.FormationRequest, mode render.Mode) ([]byte, int, *models.Template, error) {
	tpl, err := s.deps.Templates.Get(ctx, s.config.TemplateSlug)
	if err != nil {
		return nil, 0, nil, err
	}
	catalog, err := s.deps.Activities.ListActive(ctx)
	if err != nil {
		return nil, 0, nil, err
	}

	preview := mode == render.ModePreview
	data := templateData(req, catalog, dataOptions{
		preview:   preview,
		obscure:   s.config.ObscureSensitive,
		watermark: s.deps.Compositor.Watermark(),
		now:       s.now(),
	})
	content, err := s.deps.Renderer.Render(tpl, data)
	if err != nil {
		return nil, 0, nil, err
	}
	html, err := s.deps.Compositor.Compose(mode, tpl.Name+" - "+req.CompanyName, content)
	if err != nil {
		return nil, 0, nil, err
	}

	opts := rasterizer.FinalOptions()
	if preview {
		opts = rasterizer.PreviewOptions(s.deps.Compositor.Watermark())
	}
	pdf, err := s.deps.Rasterizer.Rasterize(ctx, html, opts)
	if err != nil {
		return nil, 0, nil, err
	}
	pages, err := s.deps.Inspector.Inspect(pdf)
	if err != nil {
		return nil, 0, nil, models.Upstream("rasterizer", err)
	}
	if !preview && s.config.Optimize {
		optimized, err := s.deps.Inspector.Optimize(pdf)
		if err != nil {
			slog.Warn("PDF optimization failed, keeping original output.", "requestId", req.ID, "error", err)
		} else {
			pdf = optimized
		}
	}
	return pdf, pages, tpl, nil
}

func (s *DocumentService) discard(ctx context.Context, logCtx *slog.Logger, key string) {
	if err := s.deps.Artifacts.Delete(context.WithoutCancel(ctx), key); err != nil {
		logCtx.Warn("Failed to delete orphaned artifact.", "storageKey", key, "error", err)
	}
}

func lockKey(requestID int64) string {
	return fmt.Sprintf("request:%d:documents", requestID)
}
