package models

import "time"

// Review is a client's rating of a completed reservation.
type Review struct {
	ID             string     `db:"id" json:"id"`
	ReservationID  string     `db:"reservation_id" json:"reservationId"`
	ClientID       string     `db:"client_id" json:"clientId"`
	PhotographerID string     `db:"photographer_id" json:"photographerId"`
	Rating         int        `db:"rating" json:"rating"`
	Comment        *string    `db:"comment" json:"comment,omitempty"`
	Response       *string    `db:"response" json:"response,omitempty"`
	RespondedAt    *time.Time `db:"responded_at" json:"respondedAt,omitempty"`
	Visible        bool       `db:"visible" json:"visible"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// ReviewFilter constrains review listings.
type ReviewFilter struct {
	PhotographerID string
	IncludeHidden  bool
	Page           int
	PageSize       int
}

// RatingAggregate is the recomputed rating of a photographer over visible reviews.
type RatingAggregate struct {
	PhotographerID string    `json:"photographerId"`
	Average        float64   `json:"average"`
	Count          int       `json:"count"`
	ComputedAt     time.Time `json:"computedAt"`
}
