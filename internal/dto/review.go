package dto

// CreateReviewRequest rates a completed reservation.
type CreateReviewRequest struct {
	ReservationID string  `json:"reservationId" validate:"required"`
	Rating        int     `json:"rating" validate:"required,min=1,max=5"`
	Comment       *string `json:"comment" validate:"omitempty,max=2000"`
}

// RespondReviewRequest appends the photographer's public response.
type RespondReviewRequest struct {
	Response string `json:"response" validate:"required,max=2000"`
}

// SetReviewVisibilityRequest toggles whether a review counts and is listed.
type SetReviewVisibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

// LedgerQuery bounds the photographer earnings export.
type LedgerQuery struct {
	From string
	To   string
}
