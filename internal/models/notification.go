package models

import "time"

// NotificationType doubles as the broker routing key.
type NotificationType string

const (
	NotificationReservationCreated   NotificationType = "reservation.created"
	NotificationReservationUpdated   NotificationType = "reservation.updated"
	NotificationReservationConfirmed NotificationType = "reservation.confirmed"
	NotificationReservationCompleted NotificationType = "reservation.completed"
	NotificationReservationCancelled NotificationType = "reservation.cancelled"
	NotificationProofSubmitted       NotificationType = "proof.submitted"
	NotificationProofReviewed        NotificationType = "proof.reviewed"
	NotificationChangeRequested      NotificationType = "change_request.created"
	NotificationChangeApproved       NotificationType = "change_request.approved"
	NotificationChangeRejected       NotificationType = "change_request.rejected"
	NotificationClientSuspended      NotificationType = "client.suspended"
	NotificationRatingUpdated        NotificationType = "rating.updated"
)

// NotificationEvent is a fire-and-forget signal about a state change.
type NotificationEvent struct {
	ID            string                 `json:"id"`
	Type          NotificationType       `json:"type"`
	ReservationID string                 `json:"reservationId,omitempty"`
	ActorID       string                 `json:"actorId,omitempty"`
	Recipients    []string               `json:"recipients,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	OccurredAt    time.Time              `json:"occurredAt"`
}
