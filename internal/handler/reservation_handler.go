package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/middleware"
	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/pkg/response"
)

type reservationService interface {
	Create(ctx context.Context, req dto.CreateReservationRequest, actor models.Principal) (*models.Reservation, error)
	Update(ctx context.Context, id string, req dto.UpdateReservationRequest, actor models.Principal) (*models.Reservation, error)
	Confirm(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error)
	Complete(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error)
	Cancel(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error)
	Delete(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error)
	SubmitProof(ctx context.Context, id string, req dto.SubmitProofRequest, actor models.Principal) (*models.Reservation, error)
	ReviewProof(ctx context.Context, id string, req dto.ReviewProofRequest, actor models.Principal) (*models.Reservation, error)
	Get(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error)
	List(ctx context.Context, query dto.ReservationQuery, actor models.Principal) ([]models.Reservation, *models.Pagination, error)
}

// ReservationHandler exposes the reservation lifecycle.
type ReservationHandler struct {
	service reservationService
}

// NewReservationHandler constructs the handler.
func NewReservationHandler(service reservationService) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// Create godoc
// @Summary Book a photographer
// @Tags Reservations
// @Accept json
// @Produce json
// @Param payload body dto.CreateReservationRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations [post]
func (h *ReservationHandler) Create(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.CreateReservationRequest
	if !bindJSON(c, &req, "invalid reservation payload") {
		return
	}
	reservation, err := h.service.Create(c.Request.Context(), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reservation)
}

// List godoc
// @Summary List reservations visible to the caller
// @Tags Reservations
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param from query string false "Earliest event date (YYYY-MM-DD)"
// @Param to query string false "Latest event date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	query := dto.ReservationQuery{
		From:     c.Query("from"),
		To:       c.Query("to"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "pageSize", 20),
	}
	for _, status := range splitUpper(c.Query("status")) {
		query.Status = append(query.Status, models.ReservationStatus(status))
	}
	reservations, pagination, err := h.service.List(c.Request.Context(), query, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservations, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get reservation detail
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	reservation, err := h.service.Get(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Update godoc
// @Summary Update reservation details
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.UpdateReservationRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id} [patch]
func (h *ReservationHandler) Update(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.UpdateReservationRequest
	if !bindJSON(c, &req, "invalid reservation payload") {
		return
	}
	reservation, err := h.service.Update(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Confirm godoc
// @Summary Confirm a pending reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/confirm [post]
func (h *ReservationHandler) Confirm(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

// Complete godoc
// @Summary Mark a confirmed reservation as completed
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/complete [post]
func (h *ReservationHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// Cancel godoc
// @Summary Cancel a reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

// Delete godoc
// @Summary Soft-delete a pending reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id} [delete]
func (h *ReservationHandler) Delete(c *gin.Context) {
	h.transition(c, h.service.Delete)
}

// SubmitProof godoc
// @Summary Attach a payment proof
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.SubmitProofRequest true "Proof reference"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/proof [post]
func (h *ReservationHandler) SubmitProof(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.SubmitProofRequest
	if !bindJSON(c, &req, "invalid proof payload") {
		return
	}
	reservation, err := h.service.SubmitProof(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// ReviewProof godoc
// @Summary Approve or reject the payment proof
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.ReviewProofRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/proof/review [post]
func (h *ReservationHandler) ReviewProof(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.ReviewProofRequest
	if !bindJSON(c, &req, "invalid proof review payload") {
		return
	}
	reservation, err := h.service.ReviewProof(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

func (h *ReservationHandler) transition(c *gin.Context, apply func(context.Context, string, models.Principal) (*models.Reservation, error)) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	reservation, err := apply(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}
