package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// ChangeRequestKind enumerates what a change request proposes.
type ChangeRequestKind string

const (
	ChangeRequestKindCancellation ChangeRequestKind = "CANCELLATION"
	ChangeRequestKindEdit         ChangeRequestKind = "EDIT"
)

// ChangeRequestStatus captures the approval workflow state.
type ChangeRequestStatus string

const (
	ChangeRequestStatusPending  ChangeRequestStatus = "PENDING"
	ChangeRequestStatusApproved ChangeRequestStatus = "APPROVED"
	ChangeRequestStatusRejected ChangeRequestStatus = "REJECTED"
)

// ChangeRequest is a party's proposal to cancel or edit a reservation, resolved once by the counter-party.
type ChangeRequest struct {
	ID            string              `db:"id" json:"id"`
	ReservationID string              `db:"reservation_id" json:"reservationId"`
	Kind          ChangeRequestKind   `db:"kind" json:"kind"`
	Status        ChangeRequestStatus `db:"status" json:"status"`
	RequestedBy   string              `db:"requested_by" json:"requestedBy"`
	OriginalData  types.JSONText      `db:"original_data" json:"originalData"`
	NewDate       *time.Time          `db:"new_date" json:"newDate,omitempty"`
	NewTime       *string             `db:"new_time" json:"newTime,omitempty"`
	NewLocation   *string             `db:"new_location" json:"newLocation,omitempty"`
	Reason        string              `db:"reason" json:"reason"`
	Penalty       decimal.Decimal     `db:"penalty" json:"penalty"`
	ResponderID   *string             `db:"responder_id" json:"responderId,omitempty"`
	ResponderNote *string             `db:"responder_note" json:"responderNote,omitempty"`
	RespondedAt   *time.Time          `db:"responded_at" json:"respondedAt,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
}

// ReservationSnapshot is the prior reservation state stored in OriginalData.
type ReservationSnapshot struct {
	Status        ReservationStatus `json:"status"`
	EventDate     string            `json:"eventDate"`
	EventTime     string            `json:"eventTime"`
	EventLocation string            `json:"eventLocation"`
	Amount        decimal.Decimal   `json:"amount"`
}
