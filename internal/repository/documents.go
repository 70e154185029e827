package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lllllllleong/formationflow/internal/models"
)

type DocumentsRepository struct {
	db *sql.DB
}

func NewDocumentsRepository(db *sql.DB) *DocumentsRepository {
	return &DocumentsRepository{db: db}
}

const documentColumns = `id, request_id, template_slug, template_version, file_name, storage_key, file_url,
	mime_type, file_size, checksum, page_count, metadata, created_at`

func (r *DocumentsRepository) FindByTemplate(ctx context.Context, requestID int64, slug string) (*models.GeneratedDocument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM generated_documents WHERE request_id = $1 AND template_slug = $2`,
		requestID, slug)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s document of request %d: %w", slug, requestID, err)
	}
	return doc, nil
}

func (r *DocumentsRepository) FindByFileName(ctx context.Context, requestID int64, fileName string) (*models.GeneratedDocument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM generated_documents WHERE request_id = $1 AND file_name = $2`,
		requestID, fileName)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, fileName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", fileName, err)
	}
	return doc, nil
}

func (r *DocumentsRepository) ListByRequest(ctx context.Context, requestID int64) ([]models.GeneratedDocument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM generated_documents WHERE request_id = $1 ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents of request %d: %w", requestID, err)
	}
	defer rows.Close()

	docs := []models.GeneratedDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentsRepository) Register(ctx context.Context, doc *models.GeneratedDocument) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertDocument(ctx, tx, doc); err != nil {
		return false, err
	}
	completed, err := completeRequest(ctx, tx, doc.RequestID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit document: %w", err)
	}
	return completed, nil
}

func (r *DocumentsRepository) Replace(ctx context.Context, doc *models.GeneratedDocument) (*models.GeneratedDocument, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM generated_documents WHERE request_id = $1 AND template_slug = $2 FOR UPDATE`,
		doc.RequestID, doc.TemplateSlug)
	previous, err := scanDocument(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		previous = nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to lock current document: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM generated_documents WHERE id = $1`, previous.ID); err != nil {
			return nil, false, fmt.Errorf("failed to remove document %s: %w", previous.ID, err)
		}
	}

	if err := insertDocument(ctx, tx, doc); err != nil {
		return nil, false, err
	}
	completed, err := completeRequest(ctx, tx, doc.RequestID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit document replacement: %w", err)
	}
	return previous, completed, nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc *models.GeneratedDocument) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO generated_documents
			(id, request_id, template_slug, template_version, file_name, storage_key, file_url,
			 mime_type, file_size, checksum, page_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		doc.ID, doc.RequestID, doc.TemplateSlug, doc.TemplateVersion, doc.FileName, doc.StorageKey, doc.FileURL,
		doc.MimeType, doc.FileSize, doc.Checksum, doc.PageCount, metadata,
	).Scan(&doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDocumentExists
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// completeRequest moves a PROCESSING request to COMPLETED. Requests in any
// other status are left alone.
func completeRequest(ctx context.Context, tx *sql.Tx, requestID int64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE formation_requests SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		requestID, string(models.StatusCompleted), string(models.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to complete request %d: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func scanDocument(row rowScanner) (*models.GeneratedDocument, error) {
	var (
		doc      models.GeneratedDocument
		metadata []byte
	)
	err := row.Scan(&doc.ID, &doc.RequestID, &doc.TemplateSlug, &doc.TemplateVersion, &doc.FileName, &doc.StorageKey,
		&doc.FileURL, &doc.MimeType, &doc.FileSize, &doc.Checksum, &doc.PageCount, &metadata, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of document %s: %w", doc.ID, err)
		}
	}
	return &doc, nil
}
