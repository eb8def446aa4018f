package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/internal/repository"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
	"github.com/noah-isme/lensbook-api/pkg/logger"
)

type reviewStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, review *models.Review) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Review, error)
	ExistsForReservation(ctx context.Context, exec sqlx.ExtContext, reservationID string) (bool, error)
	SetResponse(ctx context.Context, exec sqlx.ExtContext, id, response string, at time.Time) error
	SetVisibility(ctx context.Context, exec sqlx.ExtContext, id string, visible bool, at time.Time) error
	VisibleRatings(ctx context.Context, exec sqlx.ExtContext, photographerID string) ([]int, error)
	ListByPhotographer(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error)
}

type reviewReservationReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error)
}

type ratingStore interface {
	SaveRating(ctx context.Context, exec sqlx.ExtContext, aggregate models.RatingAggregate) error
	FindRating(ctx context.Context, photographerID string) (*models.RatingAggregate, error)
}

type ratingCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// ReviewService handles reviews and keeps photographer ratings consistent with visible reviews.
type ReviewService struct {
	repo         reviewStore
	reservations reviewReservationReader
	ratings      ratingStore
	cache        ratingCache
	tx           transactor
	audit        auditLogger
	notifier     Notifier
	metrics      DomainMetrics
	validator    *validator.Validate
	logger       *zap.Logger
	cacheTTL     time.Duration
	now          func() time.Time
}

// ReviewServiceOption configures the service.
type ReviewServiceOption func(*ReviewService)

// WithReviewClock overrides the time source.
func WithReviewClock(now func() time.Time) ReviewServiceOption {
	return func(s *ReviewService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReviewNotifier sets the event sink.
func WithReviewNotifier(n Notifier) ReviewServiceOption {
	return func(s *ReviewService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithReviewMetrics sets the metrics recorder.
func WithReviewMetrics(m DomainMetrics) ReviewServiceOption {
	return func(s *ReviewService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRatingCache enables read-through caching of rating aggregates.
func WithRatingCache(cache ratingCache, ttl time.Duration) ReviewServiceOption {
	return func(s *ReviewService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// NewReviewService constructs the review service.
func NewReviewService(repo reviewStore, reservations reviewReservationReader, ratings ratingStore, tx transactor, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...ReviewServiceOption) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ReviewService{
		repo:         repo,
		reservations: reservations,
		ratings:      ratings,
		tx:           tx,
		audit:        audit,
		notifier:     nopNotifier{},
		metrics:      nopMetrics{},
		validator:    validate,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ComputeRating averages ratings to two decimals. An empty set yields a zero aggregate.
func ComputeRating(photographerID string, ratings []int, at time.Time) models.RatingAggregate {
	aggregate := models.RatingAggregate{PhotographerID: photographerID, ComputedAt: at}
	if len(ratings) == 0 {
		return aggregate
	}
	var sum int64
	for _, r := range ratings {
		sum += int64(r)
	}
	avg := decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(int64(len(ratings))), 4).Round(2)
	aggregate.Average = avg.InexactFloat64()
	aggregate.Count = len(ratings)
	return aggregate
}

func ratingCacheKey(photographerID string) string {
	return "rating:" + photographerID
}

// Create stores the client's review of a completed reservation and recomputes the rating.
func (s *ReviewService) Create(ctx context.Context, req dto.CreateReviewRequest, actor models.Principal) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid review payload")
	}
	if actor.Role != models.RoleClient {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only clients can review reservations")
	}
	reservation, err := s.reservations.FindByID(ctx, nil, req.ReservationID)
	if err != nil {
		return nil, notFoundOr(err, "reservation not found", "failed to load reservation")
	}
	if reservation.ClientID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the client of the reservation can review it")
	}
	if reservation.Status != models.ReservationStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only completed reservations can be reviewed")
	}

	review := &models.Review{
		ReservationID:  reservation.ID,
		ClientID:       actor.UserID,
		PhotographerID: reservation.PhotographerID,
		Rating:         req.Rating,
		Comment:        optionalString(req.Comment),
		Visible:        true,
		CreatedAt:      s.now().UTC(),
	}
	var aggregate models.RatingAggregate
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		if err := s.tx.LockPhotographer(ctx, tx, reservation.PhotographerID); err != nil {
			return err
		}
		exists, err := s.repo.ExistsForReservation(ctx, tx, reservation.ID)
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "reservation already has a review")
		}
		if err := s.repo.Create(ctx, tx, review); err != nil {
			return err
		}
		aggregate, err = s.recompute(ctx, tx, reservation.PhotographerID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "reservation already has a review")
		}
		return nil, passThrough(err, "failed to create review")
	}
	s.ratingChanged(ctx, aggregate, reservation.ID, actor)
	return review, nil
}

// Respond stores the photographer's single response to a review.
func (s *ReviewService) Respond(ctx context.Context, id string, req dto.RespondReviewRequest, actor models.Principal) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid response payload")
	}
	review, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFoundOr(err, "review not found", "failed to load review")
	}
	if review.PhotographerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the reviewed photographer can respond")
	}
	if review.Response != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "review already has a response")
	}
	response := strings.TrimSpace(req.Response)
	at := s.now().UTC()
	if err := s.repo.SetResponse(ctx, nil, review.ID, response, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "review already has a response")
		}
		return nil, internalError(err, "failed to store review response")
	}
	review.Response = &response
	review.RespondedAt = &at
	review.UpdatedAt = at
	return review, nil
}

// SetVisibility hides or shows a review and recomputes the photographer rating.
func (s *ReviewService) SetVisibility(ctx context.Context, id string, req dto.SetReviewVisibilityRequest, actor models.Principal) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid visibility payload")
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can moderate reviews")
	}
	review, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFoundOr(err, "review not found", "failed to load review")
	}
	previous := review.Visible
	visible := *req.Visible
	at := s.now().UTC()
	var aggregate models.RatingAggregate
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		if err := s.tx.LockPhotographer(ctx, tx, review.PhotographerID); err != nil {
			return err
		}
		if err := s.repo.SetVisibility(ctx, tx, review.ID, visible, at); err != nil {
			return notFoundOr(err, "review not found", "failed to update review visibility")
		}
		aggregate, err = s.recompute(ctx, tx, review.PhotographerID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, "failed to update review visibility")
	}
	review.Visible = visible
	review.UpdatedAt = at
	s.emitAudit(ctx, actor, review.ID, map[string]bool{"visible": previous}, map[string]bool{"visible": visible})
	s.ratingChanged(ctx, aggregate, review.ReservationID, actor)
	return review, nil
}

// ListByPhotographer lists a photographer's reviews. Hidden reviews are only listed for admins.
func (s *ReviewService) ListByPhotographer(ctx context.Context, photographerID string, page, pageSize int, actor models.Principal) ([]models.Review, *models.Pagination, error) {
	page, pageSize = normalizePage(page, pageSize)
	reviews, total, err := s.repo.ListByPhotographer(ctx, models.ReviewFilter{
		PhotographerID: photographerID,
		IncludeHidden:  actor.IsAdmin(),
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		return nil, nil, internalError(err, "failed to list reviews")
	}
	return reviews, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Rating returns the stored aggregate of a photographer, served from cache when enabled.
func (s *ReviewService) Rating(ctx context.Context, photographerID string) (*models.RatingAggregate, error) {
	key := ratingCacheKey(photographerID)
	if s.cache != nil {
		var cached models.RatingAggregate
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}
	aggregate, err := s.ratings.FindRating(ctx, photographerID)
	if err != nil {
		return nil, internalError(err, "failed to load rating")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, aggregate, s.cacheTTL); err != nil {
			logger.FromContext(ctx, s.logger).Debug("rating cache fill failed", zap.String("photographer_id", photographerID), zap.Error(err))
		}
	}
	return aggregate, nil
}

// recompute rebuilds the aggregate from every visible review. Callers hold the photographer lock.
func (s *ReviewService) recompute(ctx context.Context, tx sqlx.ExtContext, photographerID string) (models.RatingAggregate, error) {
	ratings, err := s.repo.VisibleRatings(ctx, tx, photographerID)
	if err != nil {
		return models.RatingAggregate{}, err
	}
	aggregate := ComputeRating(photographerID, ratings, s.now().UTC())
	if err := s.ratings.SaveRating(ctx, tx, aggregate); err != nil {
		return models.RatingAggregate{}, err
	}
	s.metrics.RecordRatingRecompute()
	return aggregate, nil
}

func (s *ReviewService) ratingChanged(ctx context.Context, aggregate models.RatingAggregate, reservationID string, actor models.Principal) {
	if s.cache != nil {
		// the aggregate row is already committed; a stale entry expires with the cache TTL
		if err := s.cache.Invalidate(ctx, ratingCacheKey(aggregate.PhotographerID)); err != nil {
			logger.FromContext(ctx, s.logger).Debug("rating cache invalidation failed", zap.String("photographer_id", aggregate.PhotographerID), zap.Error(err))
		}
	}
	s.notifier.Notify(ctx, models.NotificationEvent{
		Type:          models.NotificationRatingUpdated,
		ReservationID: reservationID,
		ActorID:       actor.UserID,
		Recipients:    []string{aggregate.PhotographerID},
		Payload: map[string]interface{}{
			"photographerId": aggregate.PhotographerID,
			"average":        aggregate.Average,
			"count":          aggregate.Count,
		},
		OccurredAt: aggregate.ComputedAt,
	})
}

func (s *ReviewService) emitAudit(ctx context.Context, actor models.Principal, reviewID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	oldJSON, _ := json.Marshal(oldValues)
	newJSON, _ := json.Marshal(newValues)
	userID := actor.UserID
	resourceID := reviewID
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionReviewVisibility,
		Resource:   "review",
		ResourceID: &resourceID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
		IPAddress:  "system",
		UserAgent:  "review-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		logger.FromContext(ctx, s.logger).Warn("failed to persist audit log", zap.Error(err))
	}
}
