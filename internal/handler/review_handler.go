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

type reviewService interface {
	Create(ctx context.Context, req dto.CreateReviewRequest, actor models.Principal) (*models.Review, error)
	Respond(ctx context.Context, id string, req dto.RespondReviewRequest, actor models.Principal) (*models.Review, error)
	SetVisibility(ctx context.Context, id string, req dto.SetReviewVisibilityRequest, actor models.Principal) (*models.Review, error)
	ListByPhotographer(ctx context.Context, photographerID string, page, pageSize int, actor models.Principal) ([]models.Review, *models.Pagination, error)
	Rating(ctx context.Context, photographerID string) (*models.RatingAggregate, error)
}

// ReviewHandler exposes reviews and the photographer rating aggregate.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service reviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// Create godoc
// @Summary Review a completed reservation
// @Tags Reviews
// @Accept json
// @Produce json
// @Param payload body dto.CreateReviewRequest true "Rating and comment"
// @Success 201 {object} response.Envelope
// @Router /reviews [post]
func (h *ReviewHandler) Create(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.CreateReviewRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	review, err := h.service.Create(c.Request.Context(), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// Respond godoc
// @Summary Publish the photographer response to a review
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Review ID"
// @Param payload body dto.RespondReviewRequest true "Response"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/response [post]
func (h *ReviewHandler) Respond(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.RespondReviewRequest
	if !bindJSON(c, &req, "invalid response payload") {
		return
	}
	review, err := h.service.Respond(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}

// SetVisibility godoc
// @Summary Hide or show a review
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Review ID"
// @Param payload body dto.SetReviewVisibilityRequest true "Visibility"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/visibility [patch]
func (h *ReviewHandler) SetVisibility(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req dto.SetReviewVisibilityRequest
	if !bindJSON(c, &req, "invalid visibility payload") {
		return
	}
	review, err := h.service.SetVisibility(c.Request.Context(), c.Param("id"), req, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}

// ListByPhotographer godoc
// @Summary List reviews of a photographer
// @Tags Reviews
// @Produce json
// @Param id path string true "Photographer ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /photographers/{id}/reviews [get]
func (h *ReviewHandler) ListByPhotographer(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	reviews, pagination, err := h.service.ListByPhotographer(c.Request.Context(), c.Param("id"),
		parseQueryInt(c, "page", 1), parseQueryInt(c, "pageSize", 20), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, pagination, middleware.ExtractMeta(c))
}

// Rating godoc
// @Summary Get the rating aggregate of a photographer
// @Tags Reviews
// @Produce json
// @Param id path string true "Photographer ID"
// @Success 200 {object} response.Envelope
// @Router /photographers/{id}/rating [get]
func (h *ReviewHandler) Rating(c *gin.Context) {
	rating, err := h.service.Rating(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}
