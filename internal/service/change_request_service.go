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
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/internal/repository"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
	"github.com/noah-isme/lensbook-api/pkg/logger"
)

type changeRequestStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, request *models.ChangeRequest) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ChangeRequest, error)
	HasPending(ctx context.Context, exec sqlx.ExtContext, reservationID string) (bool, error)
	ListByReservation(ctx context.Context, reservationID string) ([]models.ChangeRequest, error)
	Resolve(ctx context.Context, exec sqlx.ExtContext, params repository.ResolveChangeRequestParams) error
}

type changeReservationStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error)
	FindByIDForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Reservation, error)
	ListNearDate(ctx context.Context, exec sqlx.ExtContext, photographerID string, date time.Time) ([]models.Reservation, error)
	Update(ctx context.Context, exec sqlx.ExtContext, reservation *models.Reservation) error
}

type clientAccountStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClientAccount, error)
	IncrementCancellations(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (int, error)
	Suspend(ctx context.Context, exec sqlx.ExtContext, id string, until, at time.Time) error
}

// ChangeRequestConfig carries the suspension policy and booking timezone.
type ChangeRequestConfig struct {
	SuspensionThreshold int
	SuspensionDuration  time.Duration
	Location            *time.Location
}

// changeApplier writes an approved request back onto its reservation inside the approval transaction.
type changeApplier func(ctx context.Context, tx sqlx.ExtContext, request *models.ChangeRequest, reservation *models.Reservation, outcome *approvalOutcome) error

type approvalOutcome struct {
	cancellations  int
	suspendedUntil *time.Time
}

// ChangeRequestService runs the cancellation/edit approval workflow.
type ChangeRequestService struct {
	repo         changeRequestStore
	reservations changeReservationStore
	accounts     clientAccountStore
	tx           transactor
	audit        auditLogger
	appliers     map[models.ChangeRequestKind]changeApplier
	notifier     Notifier
	metrics      DomainMetrics
	validator    *validator.Validate
	logger       *zap.Logger
	cfg          ChangeRequestConfig
	now          func() time.Time
}

// ChangeRequestServiceOption configures the service.
type ChangeRequestServiceOption func(*ChangeRequestService)

// WithChangeRequestClock overrides the time source.
func WithChangeRequestClock(now func() time.Time) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithChangeRequestNotifier sets the event sink.
func WithChangeRequestNotifier(n Notifier) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithChangeRequestMetrics sets the metrics recorder.
func WithChangeRequestMetrics(m DomainMetrics) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewChangeRequestService constructs the workflow with its default appliers.
func NewChangeRequestService(repo changeRequestStore, reservations changeReservationStore, accounts clientAccountStore, tx transactor, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg ChangeRequestConfig, opts ...ChangeRequestServiceOption) *ChangeRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SuspensionThreshold <= 0 {
		cfg.SuspensionThreshold = 3
	}
	if cfg.SuspensionDuration <= 0 {
		cfg.SuspensionDuration = 30 * 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	svc := &ChangeRequestService{
		repo:         repo,
		reservations: reservations,
		accounts:     accounts,
		tx:           tx,
		audit:        audit,
		notifier:     nopNotifier{},
		metrics:      nopMetrics{},
		validator:    validate,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
	svc.appliers = map[models.ChangeRequestKind]changeApplier{
		models.ChangeRequestKindCancellation: svc.applyCancellation,
		models.ChangeRequestKindEdit:         svc.applyEdit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RequestCancellation files a cancellation request carrying the tiered penalty at request time.
func (s *ChangeRequestService) RequestCancellation(ctx context.Context, reservationID string, req dto.CancellationChangeRequest, actor models.Principal) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid cancellation request")
	}
	return s.file(ctx, reservationID, actor, func(r *models.Reservation) (*models.ChangeRequest, error) {
		now := s.now()
		days := DaysUntilEvent(r.EventDate, now, s.cfg.Location)
		return &models.ChangeRequest{
			Kind:    models.ChangeRequestKindCancellation,
			Reason:  strings.TrimSpace(req.Reason),
			Penalty: CancellationPenalty(r.Amount, r.Currency, days),
		}, nil
	})
}

// RequestEdit files a proposal to move or relocate the session.
func (s *ChangeRequestService) RequestEdit(ctx context.Context, reservationID string, req dto.EditChangeRequest, actor models.Principal) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid edit request")
	}
	newTime := optionalString(req.NewTime)
	newLocation := optionalString(req.NewLocation)
	var newDate *time.Time
	if req.NewDate != nil {
		d, err := parseDate(*req.NewDate)
		if err != nil {
			return nil, err
		}
		if d.Before(today(s.now(), s.cfg.Location)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "new date cannot be in the past")
		}
		newDate = &d
	}
	if newDate == nil && newTime == nil && newLocation == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "an edit must propose a new date, time or location")
	}
	return s.file(ctx, reservationID, actor, func(*models.Reservation) (*models.ChangeRequest, error) {
		return &models.ChangeRequest{
			Kind:        models.ChangeRequestKindEdit,
			Reason:      strings.TrimSpace(req.Reason),
			NewDate:     newDate,
			NewTime:     newTime,
			NewLocation: newLocation,
		}, nil
	})
}

// file runs the shared eligibility checks and persists the request built by build.
func (s *ChangeRequestService) file(ctx context.Context, reservationID string, actor models.Principal, build func(*models.Reservation) (*models.ChangeRequest, error)) (*models.ChangeRequest, error) {
	var (
		created     *models.ChangeRequest
		reservation *models.Reservation
	)
	err := retryOnUniqueViolation(func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
			r, err := s.reservations.FindByIDForUpdate(ctx, tx, reservationID)
			if err != nil {
				return notFoundOr(err, "reservation not found", "failed to load reservation")
			}
			if !isParty(r, actor) {
				return appErrors.Clone(appErrors.ErrForbidden, "only the parties of the reservation can request changes")
			}
			if r.Status != models.ReservationStatusPending && r.Status != models.ReservationStatusConfirmed {
				return appErrors.Clone(appErrors.ErrInvalidState, "changes can only be requested for pending or confirmed reservations")
			}
			pending, err := s.repo.HasPending(ctx, tx, r.ID)
			if err != nil {
				return err
			}
			if pending {
				return appErrors.Clone(appErrors.ErrConflict, "reservation already has a pending change request")
			}
			request, err := build(r)
			if err != nil {
				return err
			}
			snapshot, err := snapshotOf(r)
			if err != nil {
				return err
			}
			request.ReservationID = r.ID
			request.RequestedBy = actor.UserID
			request.Status = models.ChangeRequestStatusPending
			request.OriginalData = snapshot
			request.CreatedAt = s.now().UTC()
			if err := s.repo.Create(ctx, tx, request); err != nil {
				return err
			}
			created, reservation = request, r
			return nil
		})
	}, func(err error) error {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "reservation already has a pending change request")
	})
	if err != nil {
		return nil, passThrough(err, "failed to create change request")
	}

	s.emitAudit(ctx, actor, models.AuditActionChangeRequestCreate, created, nil, created)
	s.notify(ctx, models.NotificationChangeRequested, created, reservation, actor, map[string]interface{}{
		"kind":    created.Kind,
		"penalty": created.Penalty.String(),
	})
	return created, nil
}

// Approve resolves a pending request and applies it to the reservation in the same transaction.
func (s *ChangeRequestService) Approve(ctx context.Context, id string, req dto.ResolveChangeRequest, actor models.Principal) (*models.ChangeRequest, error) {
	return s.resolve(ctx, id, req, actor, models.ChangeRequestStatusApproved)
}

// Reject resolves a pending request without touching the reservation.
func (s *ChangeRequestService) Reject(ctx context.Context, id string, req dto.ResolveChangeRequest, actor models.Principal) (*models.ChangeRequest, error) {
	return s.resolve(ctx, id, req, actor, models.ChangeRequestStatusRejected)
}

func (s *ChangeRequestService) resolve(ctx context.Context, id string, req dto.ResolveChangeRequest, actor models.Principal, status models.ChangeRequestStatus) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid resolution payload")
	}
	var (
		resolved    *models.ChangeRequest
		reservation *models.Reservation
		outcome     approvalOutcome
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		request, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return notFoundOr(err, "change request not found", "failed to load change request")
		}
		r, err := s.reservations.FindByIDForUpdate(ctx, tx, request.ReservationID)
		if err != nil {
			return notFoundOr(err, "reservation not found", "failed to load reservation")
		}
		if !actor.IsAdmin() && (actor.UserID == request.RequestedBy || r.CounterParty(request.RequestedBy) != actor.UserID) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the other party of the reservation can resolve this request")
		}
		if request.Status != models.ChangeRequestStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "change request already resolved")
		}

		if status == models.ChangeRequestStatusApproved {
			apply, ok := s.appliers[request.Kind]
			if !ok {
				return appErrors.Clone(appErrors.ErrValidation, "unsupported change request kind")
			}
			if err := apply(ctx, tx, request, r, &outcome); err != nil {
				return err
			}
		}

		respondedAt := s.now().UTC()
		note := optionalString(req.Note)
		if err := s.repo.Resolve(ctx, tx, repository.ResolveChangeRequestParams{
			ID:            request.ID,
			Status:        status,
			ResponderID:   actor.UserID,
			ResponderNote: note,
			RespondedAt:   respondedAt,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "change request already resolved")
			}
			return err
		}
		responder := actor.UserID
		request.Status = status
		request.ResponderID = &responder
		request.ResponderNote = note
		request.RespondedAt = &respondedAt
		resolved, reservation = request, r
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to resolve change request")
	}

	s.metrics.RecordChangeRequestResolution(resolved.Kind, resolved.Status)
	action := models.AuditActionChangeRequestReject
	event := models.NotificationChangeRejected
	if status == models.ChangeRequestStatusApproved {
		action = models.AuditActionChangeRequestApprove
		event = models.NotificationChangeApproved
		if resolved.Kind == models.ChangeRequestKindCancellation {
			s.metrics.RecordReservationTransition(models.ReservationStatusCancelled)
		}
	}
	s.emitAudit(ctx, actor, action, resolved, resolved.OriginalData, resolved)
	s.notify(ctx, event, resolved, reservation, actor, map[string]interface{}{"kind": resolved.Kind})
	if outcome.suspendedUntil != nil {
		s.emitAuditRaw(ctx, actor, models.AuditActionClientSuspend, "client_account", reservation.ClientID, nil, map[string]interface{}{
			"cancellationCount": outcome.cancellations,
			"suspendedUntil":    outcome.suspendedUntil,
		})
		s.notify(ctx, models.NotificationClientSuspended, resolved, reservation, actor, map[string]interface{}{
			"clientId":       reservation.ClientID,
			"suspendedUntil": outcome.suspendedUntil,
		})
	}
	return resolved, nil
}

// applyCancellation cancels the reservation, bumps the client's lifetime counter and suspends
// the client once the counter reaches the threshold.
func (s *ChangeRequestService) applyCancellation(ctx context.Context, tx sqlx.ExtContext, _ *models.ChangeRequest, r *models.Reservation, outcome *approvalOutcome) error {
	if r.Status != models.ReservationStatusPending && r.Status != models.ReservationStatusConfirmed {
		return appErrors.Clone(appErrors.ErrInvalidState, "reservation can no longer be cancelled")
	}
	r.Status = models.ReservationStatusCancelled
	if err := s.reservations.Update(ctx, tx, r); err != nil {
		return err
	}
	now := s.now().UTC()
	count, err := s.accounts.IncrementCancellations(ctx, tx, r.ClientID, now)
	if err != nil {
		return err
	}
	outcome.cancellations = count
	if count >= s.cfg.SuspensionThreshold {
		until := now.Add(s.cfg.SuspensionDuration)
		if err := s.accounts.Suspend(ctx, tx, r.ClientID, until, now); err != nil {
			return err
		}
		outcome.suspendedUntil = &until
	}
	return nil
}

// applyEdit writes the proposed values. A new date must still lie ahead and is re-checked
// against the photographer's calendar under the photographer lock.
func (s *ChangeRequestService) applyEdit(ctx context.Context, tx sqlx.ExtContext, request *models.ChangeRequest, r *models.Reservation, _ *approvalOutcome) error {
	if r.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidState, "reservation can no longer be edited")
	}
	if request.NewDate != nil && CalendarDay(*request.NewDate).Before(today(s.now(), s.cfg.Location)) {
		return appErrors.Clone(appErrors.ErrInvalidState, "proposed date has already passed")
	}
	if request.NewDate != nil && !CalendarDay(*request.NewDate).Equal(CalendarDay(r.EventDate)) {
		if err := s.tx.LockPhotographer(ctx, tx, r.PhotographerID); err != nil {
			return err
		}
		existing, err := s.reservations.ListNearDate(ctx, tx, r.PhotographerID, *request.NewDate)
		if err != nil {
			return err
		}
		if HasConflict(existing, r.PhotographerID, *request.NewDate, r.ID) {
			s.metrics.RecordBookingConflict()
			return appErrors.Clone(appErrors.ErrBookingConflict, "photographer already has a booking on "+request.NewDate.Format(dto.DateLayout))
		}
		r.EventDate = CalendarDay(*request.NewDate)
	}
	if request.NewTime != nil {
		r.EventTime = *request.NewTime
	}
	if request.NewLocation != nil {
		r.EventLocation = *request.NewLocation
	}
	if err := s.reservations.Update(ctx, tx, r); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			s.metrics.RecordBookingConflict()
			return appErrors.Wrap(err, appErrors.ErrBookingConflict.Code, appErrors.ErrBookingConflict.Status, appErrors.ErrBookingConflict.Message)
		}
		return err
	}
	return nil
}

// Get returns a change request visible to the reservation parties and admins.
func (s *ChangeRequestService) Get(ctx context.Context, id string, actor models.Principal) (*models.ChangeRequest, error) {
	request, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFoundOr(err, "change request not found", "failed to load change request")
	}
	if _, err := s.authorizedReservation(ctx, request.ReservationID, actor); err != nil {
		return nil, err
	}
	return request, nil
}

// ListByReservation returns the request history of a reservation.
func (s *ChangeRequestService) ListByReservation(ctx context.Context, reservationID string, actor models.Principal) ([]models.ChangeRequest, error) {
	if _, err := s.authorizedReservation(ctx, reservationID, actor); err != nil {
		return nil, err
	}
	requests, err := s.repo.ListByReservation(ctx, reservationID)
	if err != nil {
		return nil, internalError(err, "failed to list change requests")
	}
	return requests, nil
}

// ClientAccount exposes the suspension state of a client to the client and admins.
func (s *ChangeRequestService) ClientAccount(ctx context.Context, clientID string, actor models.Principal) (*models.ClientAccount, error) {
	if actor.UserID != clientID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account belongs to another user")
	}
	account, err := s.accounts.FindByID(ctx, nil, clientID)
	if err != nil {
		return nil, internalError(err, "failed to load client account")
	}
	return account, nil
}

func (s *ChangeRequestService) authorizedReservation(ctx context.Context, reservationID string, actor models.Principal) (*models.Reservation, error) {
	r, err := s.reservations.FindByID(ctx, nil, reservationID)
	if err != nil {
		return nil, notFoundOr(err, "reservation not found", "failed to load reservation")
	}
	if !isParty(r, actor) && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to other users")
	}
	return r, nil
}

func snapshotOf(r *models.Reservation) (types.JSONText, error) {
	payload, err := json.Marshal(models.ReservationSnapshot{
		Status:        r.Status,
		EventDate:     r.EventDate.Format(dto.DateLayout),
		EventTime:     r.EventTime,
		EventLocation: r.EventLocation,
		Amount:        r.Amount,
	})
	if err != nil {
		return nil, internalError(err, "failed to capture reservation snapshot")
	}
	return types.JSONText(payload), nil
}

func (s *ChangeRequestService) notify(ctx context.Context, kind models.NotificationType, request *models.ChangeRequest, r *models.Reservation, actor models.Principal, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["changeRequestId"] = request.ID
	payload["status"] = request.Status
	s.notifier.Notify(ctx, models.NotificationEvent{
		Type:          kind,
		ReservationID: request.ReservationID,
		ActorID:       actor.UserID,
		Recipients:    recipients(r, actor.UserID),
		Payload:       payload,
		OccurredAt:    s.now().UTC(),
	})
}

func (s *ChangeRequestService) emitAudit(ctx context.Context, actor models.Principal, action string, request *models.ChangeRequest, oldValues, newValues interface{}) {
	s.emitAuditRaw(ctx, actor, action, "change_request", request.ID, oldValues, newValues)
}

func (s *ChangeRequestService) emitAuditRaw(ctx context.Context, actor models.Principal, action, resource, resourceID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "change-request-service",
	}
	if actor.UserID != "" {
		userID := actor.UserID
		log.UserID = &userID
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		logger.FromContext(ctx, s.logger).Warn("failed to persist audit log", zap.Error(err))
	}
}
