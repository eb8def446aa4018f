package service

import (
	"context"
	"strings"

	"github.com/noah-isme/lensbook-api/internal/models"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

type auditReader interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

var auditResources = map[string]struct{}{
	"reservation":    {},
	"change_request": {},
	"review":         {},
	"client_account": {},
}

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	repo auditReader
}

// NewAuditService constructs the service.
func NewAuditService(repo auditReader) *AuditService {
	return &AuditService{repo: repo}
}

// ListByResource returns the audit rows of one resource, oldest first.
func (s *AuditService) ListByResource(ctx context.Context, resource, resourceID string, actor models.Principal) ([]models.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can read the audit trail")
	}
	resource = strings.TrimSpace(resource)
	resourceID = strings.TrimSpace(resourceID)
	if _, ok := auditResources[resource]; !ok || resourceID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource and resourceId are required")
	}
	logs, err := s.repo.ListByResource(ctx, resource, resourceID)
	if err != nil {
		return nil, internalError(err, "failed to load audit logs")
	}
	return logs, nil
}
