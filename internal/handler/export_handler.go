package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/pkg/response"
)

type exportService interface {
	Receipt(ctx context.Context, reservationID string, actor models.Principal) ([]byte, string, error)
	Ledger(ctx context.Context, photographerID string, query dto.LedgerQuery, actor models.Principal) ([]byte, string, error)
}

// ExportHandler streams receipts and earnings ledgers.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Receipt godoc
// @Summary Download the PDF receipt of a reservation
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Reservation ID"
// @Success 200 {file} file
// @Router /reservations/{id}/receipt [get]
func (h *ExportHandler) Receipt(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	body, filename, err := h.service.Receipt(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", body)
}

// Ledger godoc
// @Summary Download the earnings ledger of a photographer
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Photographer ID or me"
// @Param from query string false "Earliest event date (YYYY-MM-DD)"
// @Param to query string false "Latest event date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /photographers/{id}/ledger.csv [get]
func (h *ExportHandler) Ledger(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	photographerID := c.Param("id")
	if photographerID == "me" {
		photographerID = principal.UserID
	}
	body, filename, err := h.service.Ledger(c.Request.Context(), photographerID,
		dto.LedgerQuery{From: c.Query("from"), To: c.Query("to")}, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv; charset=utf-8", body)
}
