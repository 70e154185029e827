package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/shopspring/decimal"
)

type RequestsRepository struct {
	db *sql.DB
}

func NewRequestsRepository(db *sql.DB) *RequestsRepository {
	return &RequestsRepository{db: db}
}

const requestColumns = `r.id, r.user_id, r.company_name, r.company_type, r.capital, r.address, r.city,
	r.email, r.phone, r.activity_code_id, r.status, r.price, r.currency, r.created_at, r.updated_at,
	a.code, a.description, a.is_active,
	p.amount, p.currency, p.reference, p.approved_at, p.approved_by, p.created_at`

const requestFrom = `FROM formation_requests r
	JOIN activity_codes a ON a.id = r.activity_code_id
	LEFT JOIN payments p ON p.request_id = r.id`

const founderColumns = `id, request_id, name, is_resident, personal_number, id_document_type,
	id_number, issued_by, birth_place, address, share_percentage`

// Create inserts the request and its founders atomically.
func (r *RequestsRepository) Create(ctx context.Context, req *models.FormationRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if req.Status == "" {
		req.Status = models.StatusDraft
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO formation_requests
			(user_id, company_name, company_type, capital, address, city, email, phone,
			 activity_code_id, status, price, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		req.UserID, req.CompanyName, req.CompanyType, req.Capital, req.Address, req.City, req.Email, req.Phone,
		req.ActivityCodeID, string(req.Status), req.Price, req.Currency,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert formation request: %w", err)
	}

	for i := range req.Founders {
		f := &req.Founders[i]
		f.RequestID = req.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO founders
				(request_id, position, name, is_resident, personal_number, id_document_type,
				 id_number, issued_by, birth_place, address, share_percentage)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			req.ID, i, f.Name, f.IsResident, f.PersonalNumber, string(f.IDDocumentType),
			f.IDNumber, f.IssuedBy, f.BirthPlace, f.Address, f.SharePercentage,
		).Scan(&f.ID)
		if err != nil {
			return fmt.Errorf("failed to insert founder %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit formation request: %w", err)
	}
	return nil
}

func (r *RequestsRepository) Get(ctx context.Context, id int64) (*models.FormationRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` `+requestFrom+` WHERE r.id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, notFound(err, "formation request", id)
	}
	if req.Founders, err = r.founders(ctx, req.ID); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RequestsRepository) ListByUser(ctx context.Context, userID int64) ([]models.FormationRequest, error) {
	return r.List(ctx, models.RequestFilter{UserID: userID})
}

func (r *RequestsRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.FormationRequest, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}

	query := `SELECT ` + requestColumns + ` ` + requestFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list formation requests: %w", err)
	}
	defer rows.Close()

	var out []models.FormationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan formation request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range out {
		if out[i].Founders, err = r.founders(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Transition locks the request row, lets fn pick the next status and
// commits the status change together with any outbox message fn returns.
func (r *RequestsRepository) Transition(ctx context.Context, id int64, fn TransitionFunc) (*StatusChange, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req := &models.FormationRequest{ID: id}
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, status FROM formation_requests WHERE id = $1 FOR UPDATE`, id,
	).Scan(&req.UserID, &req.Status)
	if err != nil {
		return nil, notFound(err, "formation request", id)
	}

	next, msg, err := fn(req)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE formation_requests SET status = $2, updated_at = now() WHERE id = $1`, id, string(next),
	); err != nil {
		return nil, fmt.Errorf("failed to update status of request %d: %w", id, err)
	}
	if msg != nil {
		if err := outbox.EnqueueTx(ctx, tx, *msg); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return &StatusChange{RequestID: id, From: req.Status, To: next, Enqueued: msg}, nil
}

func (r *RequestsRepository) founders(ctx context.Context, requestID int64) ([]models.Founder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+founderColumns+` FROM founders WHERE request_id = $1 ORDER BY position`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load founders of request %d: %w", requestID, err)
	}
	defer rows.Close()

	founders := []models.Founder{}
	for rows.Next() {
		var f models.Founder
		if err := rows.Scan(&f.ID, &f.RequestID, &f.Name, &f.IsResident, &f.PersonalNumber, &f.IDDocumentType,
			&f.IDNumber, &f.IssuedBy, &f.BirthPlace, &f.Address, &f.SharePercentage); err != nil {
			return nil, fmt.Errorf("failed to scan founder: %w", err)
		}
		founders = append(founders, f)
	}
	return founders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.FormationRequest, error) {
	var (
		req        models.FormationRequest
		activity   models.ActivityCode
		amount     decimal.NullDecimal
		currency   sql.NullString
		reference  sql.NullString
		approvedAt sql.NullTime
		approvedBy sql.NullString
		paidAt     sql.NullTime
	)
	err := row.Scan(
		&req.ID, &req.UserID, &req.CompanyName, &req.CompanyType, &req.Capital, &req.Address, &req.City,
		&req.Email, &req.Phone, &req.ActivityCodeID, &req.Status, &req.Price, &req.Currency, &req.CreatedAt, &req.UpdatedAt,
		&activity.Code, &activity.Description, &activity.IsActive,
		&amount, &currency, &reference, &approvedAt, &approvedBy, &paidAt,
	)
	if err != nil {
		return nil, err
	}
	activity.ID = req.ActivityCodeID
	req.Activity = &activity
	if reference.Valid {
		req.Payment = &models.Payment{
			Amount:     amount.Decimal,
			Currency:   currency.String,
			Reference:  reference.String,
			ApprovedBy: approvedBy.String,
			CreatedAt:  paidAt.Time,
		}
		if approvedAt.Valid {
			t := approvedAt.Time
			req.Payment.ApprovedAt = &t
		}
	}
	return &req, nil
}
