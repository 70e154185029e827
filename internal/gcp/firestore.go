package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/templates"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreTemplateStore reads document templates from a collection keyed
// by slug.
type FirestoreTemplateStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreTemplateStore(client *firestore.Client, collection string) *FirestoreTemplateStore {
	return &FirestoreTemplateStore{client: client, collection: collection}
}

func (s *FirestoreTemplateStore) Get(ctx context.Context, slug string) (*models.Template, error) {
	snap, err := s.client.Collection(s.collection).Doc(slug).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", templates.ErrTemplateNotFound, slug)
		}
		return nil, fmt.Errorf("failed to read template %s: %w", slug, err)
	}
	var tpl models.Template
	if err := snap.DataTo(&tpl); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", slug, err)
	}
	if tpl.Slug == "" {
		tpl.Slug = snap.Ref.ID
	}
	return &tpl, nil
}

// Put upserts a template. Seeding only; request processing never writes.
func (s *FirestoreTemplateStore) Put(ctx context.Context, tpl *models.Template) error {
	record := *tpl
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	if _, err := s.client.Collection(s.collection).Doc(tpl.Slug).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to write template %s: %w", tpl.Slug, err)
	}
	return nil
}
