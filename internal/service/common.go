package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/internal/repository"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx sqlx.ExtContext) error) error
	LockPhotographer(ctx context.Context, tx sqlx.ExtContext, photographerID string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Notifier receives fire-and-forget domain events.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent)
}

// DomainMetrics records business counters.
type DomainMetrics interface {
	RecordReservationTransition(status models.ReservationStatus)
	RecordBookingConflict()
	RecordChangeRequestResolution(kind models.ChangeRequestKind, status models.ChangeRequestStatus)
	RecordRatingRecompute()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.NotificationEvent) {}

type nopMetrics struct{}

func (nopMetrics) RecordReservationTransition(models.ReservationStatus) {}

func (nopMetrics) RecordBookingConflict() {}

func (nopMetrics) RecordChangeRequestResolution(models.ChangeRequestKind, models.ChangeRequestStatus) {}

func (nopMetrics) RecordRatingRecompute() {}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(err error, message string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" failed "+fe.Tag())
		}
		message = message + ": " + strings.Join(fields, ", ")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// passThrough returns typed application errors unchanged and wraps anything else as internal.
func passThrough(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return internalError(err, message)
}

func notFoundOr(err error, notFound, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return passThrough(err, message)
}

// retryOnUniqueViolation runs fn and repeats it once when it fails on a unique index.
// A second collision is reported through onConflict.
func retryOnUniqueViolation(fn func() error, onConflict func(error) error) error {
	err := fn()
	if !errors.Is(err, repository.ErrUniqueViolation) {
		return err
	}
	err = fn()
	if errors.Is(err, repository.ErrUniqueViolation) {
		return onConflict(err)
	}
	return err
}

// parseDate reads a wire calendar date as midnight UTC.
func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dto.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "dates must use the YYYY-MM-DD format")
	}
	return t, nil
}

// today returns the current calendar day in loc as midnight UTC.
func today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return CalendarDay(now.In(loc))
}

func optionalString(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func isParty(r *models.Reservation, actor models.Principal) bool {
	return r.IsParty(actor.UserID)
}
