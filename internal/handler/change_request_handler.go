package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/pkg/response"
)

type changeRequestService interface {
	RequestCancellation(ctx context.Context, reservationID string, req dto.CancellationChangeRequest, actor models.Principal) (*models.ChangeRequest, error)
	RequestEdit(ctx context.Context, reservationID string, req dto.EditChangeRequest, actor models.Principal) (*models.ChangeRequest, error)
	Approve(ctx context.Context, id string, req dto.ResolveChangeRequest, actor models.Principal) (*models.ChangeRequest, error)
	Reject(ctx context.Context, id string, req dto.ResolveChangeRequest, actor models.Principal) (*models.ChangeRequest, error)
	Get(ctx context.Context, id string, actor models.Principal) (*models.ChangeRequest, error)
	ListByReservation(ctx context.Context, reservationID string, actor models.Principal) ([]models.ChangeRequest, error)
	ClientAccount(ctx context.Context, clientID string, actor models.Principal) (*models.ClientAccount, error)
}

// ChangeRequestHandler exposes cancellation and edit requests between the parties.
type ChangeRequestHandler struct {
	service changeRequestService
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(service changeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service}
}

// RequestCancellation godoc
// @Summary Ask the counter-party to cancel a reservation
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.CancellationChangeRequest true "Reason"
// @Success 201 {object} response.Envelope
// @Router /reservations/{id}/change-requests/cancellation [post]
func (h *ChangeRequestHandler) RequestCancellation(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.CancellationChangeRequest
	if !bindJSON(c, &req, "invalid cancellation request") {
		return
	}
	request, err := h.service.RequestCancellation(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// RequestEdit godoc
// @Summary Propose new date, time or location for a reservation
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.EditChangeRequest true "Proposed values"
// @Success 201 {object} response.Envelope
// @Router /reservations/{id}/change-requests/edit [post]
func (h *ChangeRequestHandler) RequestEdit(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.EditChangeRequest
	if !bindJSON(c, &req, "invalid edit request") {
		return
	}
	request, err := h.service.RequestEdit(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ListByReservation godoc
// @Summary List change requests of a reservation
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/change-requests [get]
func (h *ChangeRequestHandler) ListByReservation(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	requests, err := h.service.ListByReservation(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get change request detail
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve a pending change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ResolveChangeRequest false "Responder note"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/approve [post]
func (h *ChangeRequestHandler) Approve(c *gin.Context) {
	h.resolve(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a pending change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ResolveChangeRequest false "Responder note"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/reject [post]
func (h *ChangeRequestHandler) Reject(c *gin.Context) {
	h.resolve(c, h.service.Reject)
}

// ClientAccount godoc
// @Summary Show the cancellation counter and suspension of a client
// @Tags Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 200 {object} response.Envelope
// @Router /clients/{id}/account [get]
func (h *ChangeRequestHandler) ClientAccount(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	account, err := h.service.ClientAccount(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

func (h *ChangeRequestHandler) resolve(c *gin.Context, apply func(context.Context, string, dto.ResolveChangeRequest, models.Principal) (*models.ChangeRequest, error)) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.ResolveChangeRequest
	// the note is optional; an empty body is accepted
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid resolution payload") {
		return
	}
	request, err := apply(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
