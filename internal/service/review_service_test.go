package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

func completed(f *fixture, clientID string, day int) *models.Reservation {
	return f.seed(models.Reservation{ClientID: clientID, EventDate: june(day), Status: models.ReservationStatusCompleted, Amount: decimal.NewFromInt(1000)})
}

func TestCreateReviewRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	done := completed(f, client.UserID, 1)
	pending := f.seed(models.Reservation{EventDate: june(2), Status: models.ReservationStatusConfirmed, Amount: decimal.NewFromInt(1000)})

	_, err := f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: done.ID, Rating: 6}, client)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: done.ID, Rating: 5}, photographer)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: done.ID, Rating: 5}, otherClient)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: pending.ID, Rating: 5}, client)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	review, err := f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: done.ID, Rating: 4, Comment: strPtr("great light")}, client)
	require.NoError(t, err)
	assert.True(t, review.Visible)
	assert.Equal(t, photographer.UserID, review.PhotographerID)

	_, err = f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: done.ID, Rating: 1}, client)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	rating, err := f.reviews.Rating(ctx, photographer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, rating.Average)
	assert.Equal(t, 1, rating.Count)
}

func TestRatingRecomputesOverVisibleReviews(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ratings := []int{5, 4, 4}
	var ids []string
	for i, r := range ratings {
		res := completed(f, client.UserID, i+1)
		review, err := f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: res.ID, Rating: r}, client)
		require.NoError(t, err)
		ids = append(ids, review.ID)
	}
	assert.Equal(t, models.RatingAggregate{PhotographerID: photographer.UserID, Average: 4.33, Count: 3, ComputedAt: f.now}, f.db.ratings[photographer.UserID])

	_, err := f.reviews.SetVisibility(ctx, ids[0], dto.SetReviewVisibilityRequest{Visible: boolPtr(false)}, admin)
	require.NoError(t, err)
	assert.Equal(t, 4.0, f.db.ratings[photographer.UserID].Average)
	assert.Equal(t, 2, f.db.ratings[photographer.UserID].Count)

	_, err = f.reviews.SetVisibility(ctx, ids[0], dto.SetReviewVisibilityRequest{Visible: boolPtr(true)}, admin)
	require.NoError(t, err)
	assert.Equal(t, 4.33, f.db.ratings[photographer.UserID].Average)
	assert.Equal(t, 3, f.db.ratings[photographer.UserID].Count)

	assert.Equal(t, []string{models.AuditActionReviewVisibility, models.AuditActionReviewVisibility}, f.db.auditActions())
}

func TestHidingOnlyReviewResetsRating(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res := completed(f, client.UserID, 1)
	review, err := f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: res.ID, Rating: 5}, client)
	require.NoError(t, err)

	_, err = f.reviews.SetVisibility(ctx, review.ID, dto.SetReviewVisibilityRequest{Visible: boolPtr(false)}, photographer)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.reviews.SetVisibility(ctx, review.ID, dto.SetReviewVisibilityRequest{}, admin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	hidden, err := f.reviews.SetVisibility(ctx, review.ID, dto.SetReviewVisibilityRequest{Visible: boolPtr(false)}, admin)
	require.NoError(t, err)
	assert.False(t, hidden.Visible)

	rating, err := f.reviews.Rating(ctx, photographer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rating.Average)
	assert.Equal(t, 0, rating.Count)

	public, page, err := f.reviews.ListByPhotographer(ctx, photographer.UserID, 0, 0, client)
	require.NoError(t, err)
	assert.Empty(t, public)
	assert.Equal(t, 0, page.TotalCount)

	all, _, err := f.reviews.ListByPhotographer(ctx, photographer.UserID, 1, 10, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRespondOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res := completed(f, client.UserID, 1)
	review, err := f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: res.ID, Rating: 3}, client)
	require.NoError(t, err)

	_, err = f.reviews.Respond(ctx, review.ID, dto.RespondReviewRequest{Response: "thanks"}, client)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	responded, err := f.reviews.Respond(ctx, review.ID, dto.RespondReviewRequest{Response: " thanks for booking "}, photographer)
	require.NoError(t, err)
	require.NotNil(t, responded.Response)
	assert.Equal(t, "thanks for booking", *responded.Response)
	require.NotNil(t, responded.RespondedAt)

	_, err = f.reviews.Respond(ctx, review.ID, dto.RespondReviewRequest{Response: "edited"}, photographer)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = f.reviews.Respond(ctx, "missing", dto.RespondReviewRequest{Response: "x"}, photographer)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRatingCacheInvalidatedOnRecompute(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	key := ratingCacheKey(photographer.UserID)
	f.cache.values[key] = models.RatingAggregate{PhotographerID: photographer.UserID, Average: 1, Count: 99}

	cached, err := f.reviews.Rating(ctx, photographer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 99, cached.Count)

	res := completed(f, client.UserID, 1)
	_, err = f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: res.ID, Rating: 5}, client)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, f.cache.invalidated)

	fresh, err := f.reviews.Rating(ctx, photographer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Count)
	assert.Equal(t, 1, f.cache.values[key].Count, "the fresh aggregate is cached again")
	assert.Contains(t, f.notifier.types(), models.NotificationRatingUpdated)
}

func TestRatingCacheFailuresAreLogged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	f.reviews.logger = zap.New(core)
	f.cache.failWrites = true

	res := completed(f, client.UserID, 1)
	_, err := f.reviews.Create(ctx, dto.CreateReviewRequest{ReservationID: res.ID, Rating: 4}, client)
	require.NoError(t, err, "a cache outage never fails the write")

	rating, err := f.reviews.Rating(ctx, photographer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, rating.Count)

	assert.Equal(t, 1, logs.FilterMessage("rating cache invalidation failed").Len())
	fills := logs.FilterMessage("rating cache fill failed").All()
	require.Len(t, fills, 1)
	assert.Equal(t, photographer.UserID, fills[0].ContextMap()["photographer_id"])
}

func boolPtr(v bool) *bool { return &v }
