package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// TransitionFunc decides the next status for a locked request. Returning a
// message enqueues it in the same transaction as the status change.
type TransitionFunc func(req *models.FormationRequest) (models.Status, *outbox.Message, error)

// StatusChange reports a committed transition.
type StatusChange struct {
	RequestID int64
	From      models.Status
	To        models.Status
	Enqueued  *outbox.Message
}

// Requests persists formation requests with their founders.
type Requests interface {
	Create(ctx context.Context, req *models.FormationRequest) error
	Get(ctx context.Context, id int64) (*models.FormationRequest, error)
	ListByUser(ctx context.Context, userID int64) ([]models.FormationRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.FormationRequest, error)
	Transition(ctx context.Context, id int64, fn TransitionFunc) (*StatusChange, error)
}

// Activities is the activity-code catalog.
type Activities interface {
	FindByCode(ctx context.Context, code string) (*models.ActivityCode, error)
	ListActive(ctx context.Context) ([]models.ActivityCode, error)
	Upsert(ctx context.Context, codes []models.ActivityCode) error
}

// Documents is the registry of generated documents.
type Documents interface {
	FindByTemplate(ctx context.Context, requestID int64, slug string) (*models.GeneratedDocument, error)
	FindByFileName(ctx context.Context, requestID int64, fileName string) (*models.GeneratedDocument, error)
	ListByRequest(ctx context.Context, requestID int64) ([]models.GeneratedDocument, error)
	// Register inserts doc and, in the same transaction, completes the
	// request when it is PROCESSING. models.ErrDocumentExists is returned
	// when the request already has a document for the template.
	Register(ctx context.Context, doc *models.GeneratedDocument) (completed bool, err error)
	// Replace swaps the registered document for the template with doc and
	// returns the one it displaced, if any.
	Replace(ctx context.Context, doc *models.GeneratedDocument) (previous *models.GeneratedDocument, completed bool, err error)
}

// Open connects to Postgres through the pgx stdlib driver.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", models.ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, id, err)
}

var (
	_ Requests   = (*RequestsRepository)(nil)
	_ Activities = (*ActivitiesRepository)(nil)
	_ Documents  = (*DocumentsRepository)(nil)
	_ Requests   = (*Memory)(nil)
	_ Activities = (*Memory)(nil)
	_ Documents  = (*Memory)(nil)
)
