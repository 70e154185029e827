package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/Lllllllleong/formationflow/internal/repository"
	"github.com/go-playground/validator/v10"
)

// GenerationStates reports the outbox state of a request's generation.
type GenerationStates interface {
	LatestForRequest(ctx context.Context, requestID int64) (*models.GenerationState, error)
}

// FormationService owns request creation, payment confirmation and the
// read side of requests.
type FormationService struct {
	requests   repository.Requests
	activities repository.Activities
	documents  repository.Documents
	generation GenerationStates
	validate   *validator.Validate
	pricing    config.PricingOptions
	bank       config.BankOptions
}

func NewFormationService(
	requests repository.Requests,
	activities repository.Activities,
	documents repository.Documents,
	generation GenerationStates,
	pricing config.PricingOptions,
	bank config.BankOptions,
) *FormationService {
	return &FormationService{
		requests:   requests,
		activities: activities,
		documents:  documents,
		generation: generation,
		validate:   newValidator(),
		pricing:    pricing,
		bank:       bank,
	}
}

// Create validates the payload completely before anything is written and
// stores the request in DRAFT.
func (s *FormationService) Create(ctx context.Context, actor models.Actor, p *models.CreateRequestPayload) (*models.FormationRequest, error) {
	if actor.UserID == 0 {
		return nil, models.ErrUnauthorized
	}
	logCtx := slog.With("userId", actor.UserID)

	verr := validatePayload(s.validate, p)
	var activity *models.ActivityCode
	if code := strings.TrimSpace(p.ActivityCode); code != "" {
		a, err := s.activities.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if a == nil || !a.IsActive {
			verr.Add("activityCode", "unknown activity code")
		}
		activity = a
	} else {
		verr.Add("activityCode", "is required")
	}
	if verr.HasErrors() {
		logCtx.Info("Rejected formation request.", "fields", verr.Fields)
		return nil, verr
	}

	req := &models.FormationRequest{
		UserID:         actor.UserID,
		CompanyName:    strings.TrimSpace(p.CompanyName),
		CompanyType:    strings.TrimSpace(p.CompanyType),
		Capital:        p.Capital,
		Address:        strings.TrimSpace(p.Address),
		City:           strings.TrimSpace(p.City),
		Email:          strings.TrimSpace(p.Email),
		Phone:          strings.TrimSpace(p.Phone),
		ActivityCodeID: activity.ID,
		Activity:       activity,
		Status:         models.StatusDraft,
		Price:          s.pricing.Gross(),
		Currency:       s.pricing.Currency,
	}
	for _, f := range p.Founders {
		docType := models.IDDocumentType(f.IDDocumentType)
		if docType == "" {
			docType = models.IDCard
		}
		req.Founders = append(req.Founders, models.Founder{
			Name:            strings.TrimSpace(f.Name),
			IsResident:      f.IsResident,
			PersonalNumber:  strings.TrimSpace(f.PersonalNumber),
			IDDocumentType:  docType,
			IDNumber:        strings.TrimSpace(f.IDNumber),
			IssuedBy:        strings.TrimSpace(f.IssuedBy),
			BirthPlace:      strings.TrimSpace(f.BirthPlace),
			Address:         strings.TrimSpace(f.Address),
			SharePercentage: f.SharePercentage,
		})
	}

	if err := s.requests.Create(ctx, req); err != nil {
		logCtx.Error("Failed to store formation request.", "error", err)
		return nil, err
	}
	metrics().requestsCreated.Inc()
	logCtx.Info("Formation request created.", "requestId", req.ID, "founders", len(req.Founders))
	return req, nil
}

// ConfirmPayment moves the owner's DRAFT request to AWAITING_PAYMENT and
// returns how to pay.
func (s *FormationService) ConfirmPayment(ctx context.Context, actor models.Actor, requestID int64) (*models.ConfirmPaymentResponse, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.OwnedBy(actor.UserID) {
		return nil, fmt.Errorf("%w: request %d is not owned by the caller", models.ErrForbidden, requestID)
	}

	change, err := s.requests.Transition(ctx, requestID, func(r *models.FormationRequest) (models.Status, *outbox.Message, error) {
		if r.Status != models.StatusDraft {
			return "", nil, fmt.Errorf("%w: payment already confirmed (status %s)", models.ErrInvalidTransition, r.Status)
		}
		return models.StatusAwaitingPayment, nil, nil
	})
	if err != nil {
		return nil, err
	}
	metrics().statusTransitions.WithLabelValues(change.From.String(), change.To.String()).Inc()
	slog.Info("Payment confirmed by owner.", "requestId", requestID, "userId", actor.UserID)

	return &models.ConfirmPaymentResponse{
		Message:             "Payment confirmed successfully",
		Status:              change.To,
		PaymentInstructions: s.instructions(req),
	}, nil
}

// Detail returns the request with its documents, payment instructions and
// the latest generation state.
func (s *FormationService) Detail(ctx context.Context, actor models.Actor, requestID int64) (*models.RequestDetail, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(req) {
		return nil, fmt.Errorf("%w: request %d", models.ErrForbidden, requestID)
	}
	docs, err := s.documents.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	detail := &models.RequestDetail{
		FormationRequest:    req,
		Documents:           docs,
		PaymentInstructions: s.instructions(req),
	}
	if s.generation != nil {
		state, err := s.generation.LatestForRequest(ctx, requestID)
		if err != nil {
			slog.Warn("Failed to read generation state.", "requestId", requestID, "error", err)
		}
		detail.Generation = state
	}
	return detail, nil
}

// ListOwn returns the caller's requests, newest first.
func (s *FormationService) ListOwn(ctx context.Context, actor models.Actor) ([]models.FormationRequest, error) {
	if actor.UserID == 0 {
		return nil, models.ErrUnauthorized
	}
	return s.requests.ListByUser(ctx, actor.UserID)
}

// ListAll is the administrative listing.
func (s *FormationService) ListAll(ctx context.Context, actor models.Actor, filter models.RequestFilter) ([]models.FormationRequest, error) {
	if actor.Role != models.RoleAdmin {
		return nil, models.ErrForbidden
	}
	if filter.Status != "" {
		if _, err := models.ParseStatus(string(filter.Status)); err != nil {
			return nil, models.NewValidationError("status", "unknown status")
		}
	}
	return s.requests.List(ctx, filter)
}

func (s *FormationService) ActivityCodes(ctx context.Context) ([]models.ActivityCode, error) {
	return s.activities.ListActive(ctx)
}

func (s *FormationService) instructions(req *models.FormationRequest) models.PaymentInstructions {
	return models.PaymentInstructions{
		Amount:        req.Price,
		Currency:      req.Currency,
		AccountNumber: s.bank.AccountNumber,
		BankName:      s.bank.BankName,
		Swift:         s.bank.Swift,
		Reference:     s.bank.Reference(req.ID),
		Instructions:  s.bank.Instructions,
	}
}
