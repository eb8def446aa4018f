package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the primary lifecycle state of a booking.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCompleted ReservationStatus = "COMPLETED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusRejected  ReservationStatus = "REJECTED"
)

// Terminal reports whether no further primary transition is possible.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationStatusCompleted, ReservationStatusCancelled, ReservationStatusRejected:
		return true
	}
	return false
}

// ProofStatus is the payment-proof sub-state, independent of the primary status.
type ProofStatus string

const (
	ProofStatusNotSent  ProofStatus = "NOT_SENT"
	ProofStatusPending  ProofStatus = "PENDING"
	ProofStatusApproved ProofStatus = "APPROVED"
	ProofStatusRejected ProofStatus = "REJECTED"
)

// Reservation is a booking between a client and a photographer for one calendar day.
type Reservation struct {
	ID             string            `db:"id" json:"id"`
	ClientID       string            `db:"client_id" json:"clientId"`
	PhotographerID string            `db:"photographer_id" json:"photographerId"`
	PackageID      *string           `db:"package_id" json:"packageId,omitempty"`
	EventDate      time.Time         `db:"event_date" json:"eventDate"`
	EventTime      string            `db:"event_time" json:"eventTime"`
	EventLocation  string            `db:"event_location" json:"eventLocation"`
	Amount         decimal.Decimal   `db:"amount" json:"amount"`
	Commission     decimal.Decimal   `db:"commission" json:"commission"`
	Currency       string            `db:"currency" json:"currency"`
	Status         ReservationStatus `db:"status" json:"status"`
	ProofURL       *string           `db:"proof_url" json:"proofUrl,omitempty"`
	ProofNotes     *string           `db:"proof_notes" json:"proofNotes,omitempty"`
	ProofStatus    ProofStatus       `db:"proof_status" json:"proofStatus"`
	Notes          string            `db:"notes" json:"notes"`
	CreatedAt      time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updatedAt"`
}

// IsParty reports whether userID is the client or the photographer of the reservation.
func (r *Reservation) IsParty(userID string) bool {
	return userID != "" && (r.ClientID == userID || r.PhotographerID == userID)
}

// CounterParty returns the other party of the reservation, or "" when userID is not a party.
func (r *Reservation) CounterParty(userID string) string {
	switch userID {
	case r.ClientID:
		return r.PhotographerID
	case r.PhotographerID:
		return r.ClientID
	}
	return ""
}

// ReservationFilter constrains reservation listings.
type ReservationFilter struct {
	ClientID       string
	PhotographerID string
	Status         []ReservationStatus
	From           *time.Time
	To             *time.Time
	Page           int
	PageSize       int
}
