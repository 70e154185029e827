package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Lllllllleong/formationflow/internal/models"
)

type ActivitiesRepository struct {
	db *sql.DB
}

func NewActivitiesRepository(db *sql.DB) *ActivitiesRepository {
	return &ActivitiesRepository{db: db}
}

// FindByCode returns nil when the code is unknown.
func (r *ActivitiesRepository) FindByCode(ctx context.Context, code string) (*models.ActivityCode, error) {
	var a models.ActivityCode
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, description, is_active FROM activity_codes WHERE code = $1`, code,
	).Scan(&a.ID, &a.Code, &a.Description, &a.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load activity code %s: %w", code, err)
	}
	return &a, nil
}

func (r *ActivitiesRepository) ListActive(ctx context.Context) ([]models.ActivityCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code, description, is_active FROM activity_codes WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity codes: %w", err)
	}
	defer rows.Close()

	var out []models.ActivityCode
	for rows.Next() {
		var a models.ActivityCode
		if err := rows.Scan(&a.ID, &a.Code, &a.Description, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan activity code: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert seeds the catalog. Existing codes keep their id.
func (r *ActivitiesRepository) Upsert(ctx context.Context, codes []models.ActivityCode) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range codes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_codes (code, description, is_active) VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, is_active = EXCLUDED.is_active`,
			c.Code, c.Description, c.IsActive)
		if err != nil {
			return fmt.Errorf("failed to upsert activity code %s: %w", c.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activity codes: %w", err)
	}
	return nil
}
