package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/pkg/response"
)

type auditService interface {
	ListByResource(ctx context.Context, resource, resourceID string, actor models.Principal) ([]models.AuditLog, error)
}

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary Audit trail of one resource
// @Tags Audit
// @Produce json
// @Param resource query string true "reservation, change_request, review or client_account"
// @Param resourceId query string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	logs, err := h.service.ListByResource(c.Request.Context(), c.Query("resource"), strings.TrimSpace(c.Query("resourceId")), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
