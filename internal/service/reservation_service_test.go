package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/internal/repository"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

func amountOf(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func strPtr(v string) *string { return &v }

func june(day int) time.Time {
	return time.Date(2026, 6, day, 0, 0, 0, 0, time.UTC)
}

func createRequest(date string, amount int64) dto.CreateReservationRequest {
	return dto.CreateReservationRequest{
		PhotographerID: photographer.UserID,
		EventDate:      date,
		EventTime:      "15:00",
		EventLocation:  "Plaza Murillo",
		Amount:         amountOf(amount),
	}
}

func TestReservationCreateComputesCommission(t *testing.T) {
	f := newFixture()

	res, err := f.reservations.Create(context.Background(), createRequest("2026-06-01", 2000), client)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusPending, res.Status)
	assert.Equal(t, models.ProofStatusNotSent, res.ProofStatus)
	assert.Equal(t, "BOB", res.Currency)
	assert.True(t, res.Commission.Equal(decimal.NewFromInt(100)), res.Commission.String())
	assert.Equal(t, june(1), res.EventDate)
	assert.Equal(t, []string{photographer.UserID}, f.db.locks)
	assert.Equal(t, []models.NotificationType{models.NotificationReservationCreated}, f.notifier.types())
	assert.Equal(t, []string{photographer.UserID}, f.notifier.events[0].Recipients)
}

func TestReservationCreateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.reservations.Create(ctx, createRequest("2026-06-01", 2000), photographer)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.reservations.Create(ctx, createRequest("2026-04-30", 2000), client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.reservations.Create(ctx, createRequest("01/06/2026", 2000), client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.reservations.Create(ctx, createRequest("2026-06-01", 0), client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.reservations.Create(ctx, createRequest("2026-06-01", 200000), client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req := createRequest("2026-06-01", 2000)
	req.Amount = nil
	_, err = f.reservations.Create(ctx, req, client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	// booking for today is allowed
	_, err = f.reservations.Create(ctx, createRequest("2026-05-01", 2000), client)
	assert.NoError(t, err)
}

func TestReservationCreateUsesPackageDefaults(t *testing.T) {
	f := newFixture()
	f.db.packages["pkg-1"] = models.Package{ID: "pkg-1", PhotographerID: photographer.UserID, Price: decimal.NewFromInt(1500), Currency: "usd", Active: true}
	f.db.packages["pkg-2"] = models.Package{ID: "pkg-2", PhotographerID: "someone-else", Price: decimal.NewFromInt(10), Currency: "USD", Active: true}

	req := createRequest("2026-06-01", 0)
	req.Amount = nil
	req.PackageID = strPtr("pkg-1")
	res, err := f.reservations.Create(context.Background(), req, client)
	require.NoError(t, err)
	assert.Equal(t, "USD", res.Currency)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, res.Commission.Equal(decimal.NewFromInt(75)))
	require.NotNil(t, res.PackageID)

	req.PackageID = strPtr("pkg-2")
	req.EventDate = "2026-06-02"
	_, err = f.reservations.Create(context.Background(), req, client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req.PackageID = strPtr("missing")
	_, err = f.reservations.Create(context.Background(), req, client)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReservationCreateRejectsDoubleBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.reservations.Create(ctx, createRequest("2026-06-01", 2000), client)
	require.NoError(t, err)

	_, err = f.reservations.Create(ctx, createRequest("2026-06-01", 900), otherClient)
	assert.ErrorIs(t, err, appErrors.ErrBookingConflict)

	_, err = f.reservations.Create(ctx, createRequest("2026-06-02", 900), otherClient)
	assert.NoError(t, err, "adjacent days do not conflict")
}

func TestReservationCreateIgnoresCancelledBookings(t *testing.T) {
	f := newFixture()
	f.seed(models.Reservation{EventDate: june(1), Status: models.ReservationStatusCancelled, Amount: decimal.NewFromInt(10)})

	_, err := f.reservations.Create(context.Background(), createRequest("2026-06-01", 2000), client)
	assert.NoError(t, err)
}

type collidingReservations struct {
	memReservations
	attempts int
}

func (c *collidingReservations) Create(context.Context, sqlx.ExtContext, *models.Reservation) error {
	c.attempts++
	return &repository.UniqueViolationError{Constraint: "uq_reservations_photographer_day"}
}

func TestReservationCreateRetriesUniqueViolationOnce(t *testing.T) {
	db := newMemDB()
	store := &collidingReservations{memReservations: memReservations{db: db}}
	svc := NewReservationService(store, memPackages{db: db}, memTx{db: db}, nil, nil, nil, ReservationConfig{},
		WithReservationClock(func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }))

	_, err := svc.Create(context.Background(), createRequest("2026-06-01", 2000), client)
	assert.ErrorIs(t, err, appErrors.ErrBookingConflict)
	assert.Equal(t, 2, store.attempts)
}

func TestReservationUpdateKeepsCommission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.reservations.Create(ctx, createRequest("2026-06-01", 2000), client)
	require.NoError(t, err)

	updated, err := f.reservations.Update(ctx, res.ID, dto.UpdateReservationRequest{Amount: amountOf(3000), EventLocation: strPtr("El Alto")}, client)
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(3000)))
	assert.True(t, updated.Commission.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "El Alto", updated.EventLocation)

	stored := f.reservation(res.ID)
	assert.True(t, stored.Commission.Equal(decimal.NewFromInt(100)))
}

func TestReservationUpdateRejectsAmountRoundingToZero(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.reservations.Create(ctx, createRequest("2026-06-01", 2000), client)
	require.NoError(t, err)

	tiny := decimal.RequireFromString("0.004")
	_, err = f.reservations.Update(ctx, res.ID, dto.UpdateReservationRequest{Amount: &tiny}, client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.True(t, f.reservation(res.ID).Amount.Equal(decimal.NewFromInt(2000)))
}

func TestReservationUpdateDateChecksConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.reservations.Create(ctx, createRequest("2026-06-01", 2000), client)
	require.NoError(t, err)
	_, err = f.reservations.Create(ctx, createRequest("2026-06-03", 2000), otherClient)
	require.NoError(t, err)

	_, err = f.reservations.Update(ctx, res.ID, dto.UpdateReservationRequest{EventDate: strPtr("2026-06-03")}, client)
	assert.ErrorIs(t, err, appErrors.ErrBookingConflict)

	_, err = f.reservations.Update(ctx, res.ID, dto.UpdateReservationRequest{EventDate: strPtr("2026-06-01"), EventTime: strPtr("18:00")}, client)
	assert.NoError(t, err, "keeping the same day never conflicts with itself")

	updated, err := f.reservations.Update(ctx, res.ID, dto.UpdateReservationRequest{EventDate: strPtr("2026-06-02")}, photographer)
	require.NoError(t, err)
	assert.Equal(t, june(2), updated.EventDate)

	_, err = f.reservations.Update(ctx, res.ID, dto.UpdateReservationRequest{EventTime: strPtr("09:00")}, otherClient)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestReservationUpdateRejectsTerminal(t *testing.T) {
	f := newFixture()
	r := f.seed(models.Reservation{EventDate: june(1), Status: models.ReservationStatusCompleted, Amount: decimal.NewFromInt(10)})

	_, err := f.reservations.Update(context.Background(), r.ID, dto.UpdateReservationRequest{EventTime: strPtr("10:00")}, client)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestReservationTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.reservations.Create(ctx, createRequest("2026-06-01", 2000), client)
	require.NoError(t, err)

	_, err = f.reservations.Confirm(ctx, res.ID, client)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.reservations.Complete(ctx, res.ID, photographer)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	confirmed, err := f.reservations.Confirm(ctx, res.ID, photographer)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusConfirmed, confirmed.Status)

	_, err = f.reservations.Confirm(ctx, res.ID, photographer)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = f.reservations.Delete(ctx, res.ID, client)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState, "only pending reservations can be deleted")

	completed, err := f.reservations.Complete(ctx, res.ID, photographer)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCompleted, completed.Status)

	_, err = f.reservations.Cancel(ctx, res.ID, client)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	assert.Equal(t, []models.NotificationType{
		models.NotificationReservationCreated,
		models.NotificationReservationConfirmed,
		models.NotificationReservationCompleted,
	}, f.notifier.types())
}

func TestReservationCancelAndDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.seed(models.Reservation{EventDate: june(1), Status: models.ReservationStatusConfirmed, Amount: decimal.NewFromInt(10)})
	b := f.seed(models.Reservation{EventDate: june(2), Status: models.ReservationStatusPending, Amount: decimal.NewFromInt(10)})

	_, err := f.reservations.Cancel(ctx, a.ID, otherClient)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	cancelled, err := f.reservations.Cancel(ctx, a.ID, photographer)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, cancelled.Status)

	deleted, err := f.reservations.Delete(ctx, b.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, deleted.Status)
	assert.Equal(t, models.ReservationStatusCancelled, f.reservation(b.ID).Status, "deletion keeps the row")
}

func TestReservationProofApprovalConfirms(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.seed(models.Reservation{EventDate: june(1), Status: models.ReservationStatusPending, Amount: decimal.NewFromInt(10)})

	_, err := f.reservations.ReviewProof(ctx, r.ID, dto.ReviewProofRequest{Decision: models.ProofStatusApproved}, photographer)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState, "nothing submitted yet")

	_, err = f.reservations.SubmitProof(ctx, r.ID, dto.SubmitProofRequest{ProofURL: "https://files.example.com/p.png"}, photographer)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	submitted, err := f.reservations.SubmitProof(ctx, r.ID, dto.SubmitProofRequest{ProofURL: "https://files.example.com/p.png"}, client)
	require.NoError(t, err)
	assert.Equal(t, models.ProofStatusPending, submitted.ProofStatus)
	assert.Equal(t, models.ReservationStatusPending, submitted.Status)

	_, err = f.reservations.ReviewProof(ctx, r.ID, dto.ReviewProofRequest{Decision: models.ProofStatusApproved}, client)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	approved, err := f.reservations.ReviewProof(ctx, r.ID, dto.ReviewProofRequest{Decision: models.ProofStatusApproved}, photographer)
	require.NoError(t, err)
	assert.Equal(t, models.ProofStatusApproved, approved.ProofStatus)
	assert.Equal(t, models.ReservationStatusConfirmed, approved.Status)

	_, err = f.reservations.ReviewProof(ctx, r.ID, dto.ReviewProofRequest{Decision: models.ProofStatusApproved}, photographer)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = f.reservations.SubmitProof(ctx, r.ID, dto.SubmitProofRequest{ProofURL: "https://files.example.com/q.png"}, client)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	assert.Contains(t, f.notifier.types(), models.NotificationReservationConfirmed)
	assert.Equal(t, []string{models.AuditActionProofReview}, f.db.auditActions())
}

func TestReservationProofDowngradeKeepsStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	url := "https://files.example.com/p.png"
	r := f.seed(models.Reservation{EventDate: june(1), Status: models.ReservationStatusConfirmed, ProofStatus: models.ProofStatusApproved, ProofURL: &url, Amount: decimal.NewFromInt(10)})

	downgraded, err := f.reservations.ReviewProof(ctx, r.ID, dto.ReviewProofRequest{Decision: models.ProofStatusRejected, Notes: strPtr("chargeback")}, photographer)
	require.NoError(t, err)
	assert.Equal(t, models.ProofStatusRejected, downgraded.ProofStatus)
	assert.Equal(t, models.ReservationStatusConfirmed, downgraded.Status)
	assert.Equal(t, []string{models.AuditActionProofDowngrade}, f.db.auditActions())

	resubmitted, err := f.reservations.SubmitProof(ctx, r.ID, dto.SubmitProofRequest{ProofURL: "https://files.example.com/r.png"}, client)
	require.NoError(t, err)
	assert.Equal(t, models.ProofStatusPending, resubmitted.ProofStatus)

	approved, err := f.reservations.ReviewProof(ctx, r.ID, dto.ReviewProofRequest{Decision: models.ProofStatusApproved}, photographer)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusConfirmed, approved.Status)
}

func TestReservationProofRejectedOnCancelled(t *testing.T) {
	f := newFixture()
	r := f.seed(models.Reservation{EventDate: june(1), Status: models.ReservationStatusCancelled, Amount: decimal.NewFromInt(10)})

	_, err := f.reservations.SubmitProof(context.Background(), r.ID, dto.SubmitProofRequest{ProofURL: "https://files.example.com/p.png"}, client)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestReservationGetAndList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mine := f.seed(models.Reservation{EventDate: june(1), Status: models.ReservationStatusPending, Amount: decimal.NewFromInt(10)})
	f.seed(models.Reservation{ClientID: otherClient.UserID, PhotographerID: "photo-2", EventDate: june(1), Status: models.ReservationStatusPending, Amount: decimal.NewFromInt(10)})

	_, err := f.reservations.Get(ctx, mine.ID, otherClient)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = f.reservations.Get(ctx, "missing", client)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	got, err := f.reservations.Get(ctx, mine.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	list, pagination, err := f.reservations.List(ctx, dto.ReservationQuery{}, client)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)

	list, _, err = f.reservations.List(ctx, dto.ReservationQuery{}, photographer)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, _, err = f.reservations.List(ctx, dto.ReservationQuery{}, admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, _, err = f.reservations.List(ctx, dto.ReservationQuery{From: "yesterday"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
