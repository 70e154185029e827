package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/Lllllllleong/formationflow/internal/repository"
)

// StatusService applies privileged status changes.
type StatusService struct {
	requests repository.Requests
}

func NewStatusService(requests repository.Requests) *StatusService {
	return &StatusService{requests: requests}
}

// Transition moves a request to the status named by raw. Entering PAID
// writes a generation marker in the same transaction; dispatching it is the
// relay's job, so a dispatch failure never undoes the status change.
func (s *StatusService) Transition(ctx context.Context, actor models.Actor, requestID int64, raw string) (*models.StatusUpdateResponse, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: status changes require an administrator", models.ErrForbidden)
	}
	next, err := parseAdminStatus(raw)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("requestId", requestID, "actor", actor.Label(), "target", next.String())

	change, err := s.requests.Transition(ctx, requestID, func(r *models.FormationRequest) (models.Status, *outbox.Message, error) {
		if !models.CanTransition(r.Status, next) {
			return "", nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, r.Status, next)
		}
		if next != models.StatusPaid {
			return next, nil, nil
		}
		msg, err := outbox.NewGenerationRequested(r.ID, actor.Label())
		if err != nil {
			return "", nil, err
		}
		return next, msg, nil
	})
	if err != nil {
		logCtx.Info("Status change rejected.", "error", err)
		return nil, err
	}

	metrics().statusTransitions.WithLabelValues(change.From.String(), change.To.String()).Inc()
	logCtx.Info("Status changed.", "from", change.From.String(), "generationRequested", change.Enqueued != nil)
	return &models.StatusUpdateResponse{
		Message:             "Status updated successfully",
		Previous:            change.From,
		Status:              change.To,
		GenerationRequested: change.Enqueued != nil,
	}, nil
}

func parseAdminStatus(raw string) (models.Status, error) {
	status, err := models.ParseStatus(strings.TrimSpace(raw))
	if err != nil || !models.IsAdminSettable(status) {
		allowed := make([]string, 0, len(models.AdminSettableStatuses))
		for _, s := range models.AdminSettableStatuses {
			allowed = append(allowed, s.String())
		}
		return "", models.NewValidationError("status", "must be one of "+strings.Join(allowed, ", "))
	}
	return status, nil
}
