package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lensbook-api/internal/middleware"
	"github.com/noah-isme/lensbook-api/internal/models"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Reservations   *ReservationHandler
	ChangeRequests *ChangeRequestHandler
	Reviews        *ReviewHandler
	Exports        *ExportHandler
	Audit          *AuditHandler
}

// RegisterRoutes mounts the booking API on group. auth authenticates the caller and active
// blocks suspended clients from creating reservations.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, auth, active gin.HandlerFunc) {
	client := middleware.RequireRoles(models.RoleClient)
	photographer := middleware.RequireRoles(models.RolePhotographer)
	admin := middleware.RequireRoles(models.RoleAdmin)
	photographerOrAdmin := middleware.RequireRoles(models.RolePhotographer, models.RoleAdmin)

	api := group.Group("")
	api.Use(auth, middleware.WithResponseMeta())

	reservations := api.Group("/reservations")
	reservations.POST("", client, active, h.Reservations.Create)
	reservations.GET("", h.Reservations.List)
	reservations.GET("/:id", h.Reservations.Get)
	reservations.PATCH("/:id", h.Reservations.Update)
	reservations.DELETE("/:id", h.Reservations.Delete)
	reservations.POST("/:id/confirm", photographer, h.Reservations.Confirm)
	reservations.POST("/:id/complete", photographer, h.Reservations.Complete)
	reservations.POST("/:id/cancel", h.Reservations.Cancel)
	reservations.POST("/:id/proof", client, h.Reservations.SubmitProof)
	reservations.POST("/:id/proof/review", photographer, h.Reservations.ReviewProof)
	reservations.GET("/:id/receipt", h.Exports.Receipt)
	reservations.GET("/:id/change-requests", h.ChangeRequests.ListByReservation)
	reservations.POST("/:id/change-requests/cancellation", h.ChangeRequests.RequestCancellation)
	reservations.POST("/:id/change-requests/edit", h.ChangeRequests.RequestEdit)

	changeRequests := api.Group("/change-requests")
	changeRequests.GET("/:id", h.ChangeRequests.Get)
	changeRequests.POST("/:id/approve", h.ChangeRequests.Approve)
	changeRequests.POST("/:id/reject", h.ChangeRequests.Reject)

	reviews := api.Group("/reviews")
	reviews.POST("", client, h.Reviews.Create)
	reviews.POST("/:id/response", photographer, h.Reviews.Respond)
	reviews.PATCH("/:id/visibility", admin, h.Reviews.SetVisibility)

	photographers := api.Group("/photographers")
	photographers.GET("/:id/reviews", h.Reviews.ListByPhotographer)
	photographers.GET("/:id/rating", h.Reviews.Rating)
	photographers.GET("/:id/ledger.csv", photographerOrAdmin, h.Exports.Ledger)

	api.GET("/clients/:id/account", h.ChangeRequests.ClientAccount)
	api.GET("/audit-logs", admin, h.Audit.List)
}
