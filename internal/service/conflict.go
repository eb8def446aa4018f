package service

import (
	"time"

	"github.com/noah-isme/lensbook-api/internal/models"
)

// CalendarDay truncates t to midnight UTC of the calendar date it carries in its own location.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HasConflict reports whether a non-cancelled reservation of photographerID other than excludeID
// already occupies the calendar day of candidate. Time of day is ignored.
func HasConflict(existing []models.Reservation, photographerID string, candidate time.Time, excludeID string) bool {
	day := CalendarDay(candidate)
	for i := range existing {
		r := &existing[i]
		if r.PhotographerID != photographerID {
			continue
		}
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if r.Status == models.ReservationStatusCancelled {
			continue
		}
		if CalendarDay(r.EventDate).Equal(day) {
			return true
		}
	}
	return false
}
