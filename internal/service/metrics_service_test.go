package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lensbook-api/internal/models"
)

func TestMetricsServiceDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordReservationTransition(models.ReservationStatusConfirmed)
	m.RecordReservationTransition(models.ReservationStatusConfirmed)
	m.RecordBookingConflict()
	m.RecordChangeRequestResolution(models.ChangeRequestKindCancellation, models.ChangeRequestStatusApproved)
	m.RecordRatingRecompute()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/reservations", http.StatusOK, 20*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `reservation_transitions_total{status="CONFIRMED"} 2`)
	assert.Contains(t, body, "booking_conflicts_total 1")
	assert.Contains(t, body, `change_request_resolutions_total{kind="CANCELLATION",status="APPROVED"} 1`)
	assert.Contains(t, body, "rating_recomputes_total 1")
	assert.Contains(t, body, `cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/v1/reservations",status="200"} 1`)
}

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordBookingConflict()
	m.RecordNotification("dropped")
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
