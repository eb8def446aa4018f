package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Package is a photographer's priced offering used to default reservation amounts.
type Package struct {
	ID             string          `db:"id" json:"id"`
	PhotographerID string          `db:"photographer_id" json:"photographerId"`
	Name           string          `db:"name" json:"name"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Currency       string          `db:"currency" json:"currency"`
	Active         bool            `db:"active" json:"active"`
}

// ClientAccount holds the cancellation policy state of a client.
type ClientAccount struct {
	ID                string     `db:"id" json:"id"`
	CancellationCount int        `db:"cancellation_count" json:"cancellationCount"`
	SuspendedUntil    *time.Time `db:"suspended_until" json:"suspendedUntil,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// SuspendedAt reports whether the account is suspended at the given instant.
func (a *ClientAccount) SuspendedAt(now time.Time) bool {
	return a != nil && a.SuspendedUntil != nil && now.Before(*a.SuspendedUntil)
}
