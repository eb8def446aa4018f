package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/lensbook-api/internal/models"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// CreateReservationRequest books a photographer for a calendar day.
type CreateReservationRequest struct {
	PhotographerID string           `json:"photographerId" validate:"required"`
	PackageID      *string          `json:"packageId" validate:"omitempty,min=1"`
	EventDate      string           `json:"eventDate" validate:"required,datetime=2006-01-02"`
	EventTime      string           `json:"eventTime" validate:"max=64"`
	EventLocation  string           `json:"eventLocation" validate:"max=255"`
	Amount         *decimal.Decimal `json:"amount"`
	Currency       string           `json:"currency" validate:"omitempty,len=3,alpha"`
	Notes          string           `json:"notes"`
}

// UpdateReservationRequest patches mutable reservation fields. Nil fields are left untouched.
type UpdateReservationRequest struct {
	EventDate     *string          `json:"eventDate" validate:"omitempty,datetime=2006-01-02"`
	EventTime     *string          `json:"eventTime" validate:"omitempty,max=64"`
	EventLocation *string          `json:"eventLocation" validate:"omitempty,max=255"`
	Amount        *decimal.Decimal `json:"amount"`
	Notes         *string          `json:"notes"`
}

// SubmitProofRequest attaches a payment proof reference.
type SubmitProofRequest struct {
	ProofURL string  `json:"proofUrl" validate:"required,url,max=2048"`
	Notes    *string `json:"notes" validate:"omitempty,max=500"`
}

// ReviewProofRequest carries the photographer's decision on a proof.
type ReviewProofRequest struct {
	Decision models.ProofStatus `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Notes    *string            `json:"notes" validate:"omitempty,max=500"`
}

// ReservationQuery mirrors supported listing filters.
type ReservationQuery struct {
	Status   []models.ReservationStatus
	From     string
	To       string
	Page     int
	PageSize int
}
