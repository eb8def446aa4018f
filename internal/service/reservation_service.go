package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
	"github.com/noah-isme/lensbook-api/pkg/logger"
)

type reservationStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, reservation *models.Reservation) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error)
	FindByIDForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Reservation, error)
	ListNearDate(ctx context.Context, exec sqlx.ExtContext, photographerID string, date time.Time) ([]models.Reservation, error)
	Update(ctx context.Context, exec sqlx.ExtContext, reservation *models.Reservation) error
	List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error)
}

type packageReader interface {
	FindPackage(ctx context.Context, id string) (*models.Package, error)
}

// ReservationConfig carries booking policy.
type ReservationConfig struct {
	MaxAmount       decimal.Decimal
	NotesMaxLength  int
	DefaultCurrency string
	CommissionRate  decimal.Decimal
	Location        *time.Location
}

// ReservationService owns the reservation state machine and its payment-proof sub-state.
type ReservationService struct {
	repo       reservationStore
	packages   packageReader
	tx         transactor
	audit      auditLogger
	commission CommissionCalculator
	notifier   Notifier
	metrics    DomainMetrics
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ReservationConfig
	now        func() time.Time
}

// ReservationServiceOption configures the service.
type ReservationServiceOption func(*ReservationService)

// WithReservationClock overrides the time source.
func WithReservationClock(now func() time.Time) ReservationServiceOption {
	return func(s *ReservationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReservationNotifier sets the event sink.
func WithReservationNotifier(n Notifier) ReservationServiceOption {
	return func(s *ReservationService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithReservationMetrics sets the metrics recorder.
func WithReservationMetrics(m DomainMetrics) ReservationServiceOption {
	return func(s *ReservationService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewReservationService wires the reservation state machine.
func NewReservationService(repo reservationStore, packages packageReader, tx transactor, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg ReservationConfig, opts ...ReservationServiceOption) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.MaxAmount.IsPositive() {
		cfg.MaxAmount = decimal.NewFromInt(100000)
	}
	if cfg.NotesMaxLength <= 0 {
		cfg.NotesMaxLength = 500
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "BOB"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	svc := &ReservationService{
		repo:       repo,
		packages:   packages,
		tx:         tx,
		audit:      audit,
		commission: NewCommissionCalculator(cfg.CommissionRate),
		notifier:   nopNotifier{},
		metrics:    nopMetrics{},
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create books a photographer for a calendar day. Conflict detection and the insert share one
// transaction under the photographer lock; the partial unique index backs it up.
func (s *ReservationService) Create(ctx context.Context, req dto.CreateReservationRequest, actor models.Principal) (*models.Reservation, error) {
	if actor.Role != models.RoleClient {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only clients can create reservations")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid reservation payload")
	}
	if req.PhotographerID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book yourself")
	}
	eventDate, err := s.parseFutureDate(req.EventDate)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	var packageID *string
	if req.PackageID != nil {
		pkg, err := s.packages.FindPackage(ctx, *req.PackageID)
		if err != nil {
			return nil, notFoundOr(err, "package not found", "failed to load package")
		}
		if pkg.PhotographerID != req.PhotographerID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "package does not belong to the photographer")
		}
		if !pkg.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "package is not available")
		}
		if amount == nil {
			packagePrice := pkg.Price
			amount = &packagePrice
		}
		if currency == "" {
			currency = strings.ToUpper(pkg.Currency)
		}
		packageID = &pkg.ID
	}
	if amount == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount is required")
	}
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	price := RoundToCurrency(*amount, currency)
	if err := s.validateAmount(price); err != nil {
		return nil, err
	}
	if err := s.validateNotes(req.Notes); err != nil {
		return nil, err
	}
	commission, err := s.commission.Compute(price, currency)
	if err != nil {
		return nil, err
	}

	reservation := &models.Reservation{
		ClientID:       actor.UserID,
		PhotographerID: req.PhotographerID,
		PackageID:      packageID,
		EventDate:      eventDate,
		EventTime:      strings.TrimSpace(req.EventTime),
		EventLocation:  strings.TrimSpace(req.EventLocation),
		Amount:         price,
		Commission:     commission,
		Currency:       currency,
		Status:         models.ReservationStatusPending,
		ProofStatus:    models.ProofStatusNotSent,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedAt:      s.now().UTC(),
	}

	err = retryOnUniqueViolation(func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
			if err := s.tx.LockPhotographer(ctx, tx, reservation.PhotographerID); err != nil {
				return err
			}
			if err := s.ensureDayFree(ctx, tx, reservation.PhotographerID, reservation.EventDate, ""); err != nil {
				return err
			}
			return s.repo.Create(ctx, tx, reservation)
		})
	}, s.conflictFromViolation)
	if err != nil {
		return nil, passThrough(err, "failed to create reservation")
	}

	s.metrics.RecordReservationTransition(reservation.Status)
	s.notify(ctx, models.NotificationReservationCreated, reservation, actor, nil)
	return reservation, nil
}

// Update patches scheduling, amount and notes. Commission is never recomputed.
func (s *ReservationService) Update(ctx context.Context, id string, req dto.UpdateReservationRequest, actor models.Principal) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid reservation payload")
	}
	var newDate *time.Time
	if req.EventDate != nil {
		d, err := s.parseFutureDate(*req.EventDate)
		if err != nil {
			return nil, err
		}
		newDate = &d
	}
	if req.Amount != nil {
		if err := s.validateAmount(*req.Amount); err != nil {
			return nil, err
		}
	}
	if req.Notes != nil {
		if err := s.validateNotes(*req.Notes); err != nil {
			return nil, err
		}
	}

	var updated *models.Reservation
	err := retryOnUniqueViolation(func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
			reservation, err := s.loadForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if !isParty(reservation, actor) {
				return appErrors.Clone(appErrors.ErrForbidden, "only the parties of the reservation can edit it")
			}
			if reservation.Status.Terminal() {
				return appErrors.Clone(appErrors.ErrInvalidState, "reservation can no longer be edited")
			}
			if newDate != nil && !CalendarDay(reservation.EventDate).Equal(*newDate) {
				if err := s.tx.LockPhotographer(ctx, tx, reservation.PhotographerID); err != nil {
					return err
				}
				if err := s.ensureDayFree(ctx, tx, reservation.PhotographerID, *newDate, reservation.ID); err != nil {
					return err
				}
				reservation.EventDate = *newDate
			}
			if req.EventTime != nil {
				reservation.EventTime = strings.TrimSpace(*req.EventTime)
			}
			if req.EventLocation != nil {
				reservation.EventLocation = strings.TrimSpace(*req.EventLocation)
			}
			if req.Amount != nil {
				price := RoundToCurrency(*req.Amount, reservation.Currency)
				if err := s.validateAmount(price); err != nil {
					return err
				}
				reservation.Amount = price
			}
			if req.Notes != nil {
				reservation.Notes = strings.TrimSpace(*req.Notes)
			}
			if err := s.repo.Update(ctx, tx, reservation); err != nil {
				return err
			}
			updated = reservation
			return nil
		})
	}, s.conflictFromViolation)
	if err != nil {
		return nil, passThrough(err, "failed to update reservation")
	}

	s.notify(ctx, models.NotificationReservationUpdated, updated, actor, nil)
	return updated, nil
}

// Confirm moves a PENDING reservation to CONFIRMED. Only the photographer may confirm.
func (s *ReservationService) Confirm(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error) {
	return s.transition(ctx, id, actor, func(r *models.Reservation) error {
		if r.PhotographerID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the photographer can confirm the reservation")
		}
		if r.Status != models.ReservationStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "only pending reservations can be confirmed")
		}
		r.Status = models.ReservationStatusConfirmed
		return nil
	}, models.NotificationReservationConfirmed)
}

// Complete moves a CONFIRMED reservation to COMPLETED. Only the photographer may complete.
func (s *ReservationService) Complete(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error) {
	return s.transition(ctx, id, actor, func(r *models.Reservation) error {
		if r.PhotographerID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the photographer can complete the reservation")
		}
		if r.Status != models.ReservationStatusConfirmed {
			return appErrors.Clone(appErrors.ErrInvalidState, "only confirmed reservations can be completed")
		}
		r.Status = models.ReservationStatusCompleted
		return nil
	}, models.NotificationReservationCompleted)
}

// Cancel moves a PENDING or CONFIRMED reservation to CANCELLED on behalf of either party.
func (s *ReservationService) Cancel(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error) {
	return s.transition(ctx, id, actor, func(r *models.Reservation) error {
		if !isParty(r, actor) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the parties of the reservation can cancel it")
		}
		if r.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidState, "reservation can no longer be cancelled")
		}
		r.Status = models.ReservationStatusCancelled
		return nil
	}, models.NotificationReservationCancelled)
}

// Delete soft-deletes a PENDING reservation by cancelling it. Rows are never removed.
func (s *ReservationService) Delete(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error) {
	return s.transition(ctx, id, actor, func(r *models.Reservation) error {
		if !isParty(r, actor) && !actor.IsAdmin() {
			return appErrors.Clone(appErrors.ErrForbidden, "only the parties of the reservation can delete it")
		}
		if r.Status != models.ReservationStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "only pending reservations can be deleted")
		}
		r.Status = models.ReservationStatusCancelled
		return nil
	}, models.NotificationReservationCancelled)
}

// SubmitProof attaches the client's payment proof and puts it under review.
func (s *ReservationService) SubmitProof(ctx context.Context, id string, req dto.SubmitProofRequest, actor models.Principal) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid proof payload")
	}
	return s.transition(ctx, id, actor, func(r *models.Reservation) error {
		if r.ClientID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the client can submit a payment proof")
		}
		if r.Status == models.ReservationStatusCancelled || r.Status == models.ReservationStatusRejected {
			return appErrors.Clone(appErrors.ErrInvalidState, "reservation no longer accepts payment proofs")
		}
		if r.ProofStatus == models.ProofStatusApproved {
			return appErrors.Clone(appErrors.ErrInvalidState, "payment proof already approved")
		}
		url := strings.TrimSpace(req.ProofURL)
		r.ProofURL = &url
		r.ProofNotes = optionalString(req.Notes)
		r.ProofStatus = models.ProofStatusPending
		return nil
	}, models.NotificationProofSubmitted)
}

// ReviewProof records the photographer's decision on a submitted proof.
//
// Approving while the reservation is PENDING also confirms it; this is the only point where the
// proof axis drives the primary state. Rejecting a previously approved proof is allowed and
// audited, but the reservation status is left as is.
func (s *ReservationService) ReviewProof(ctx context.Context, id string, req dto.ReviewProofRequest, actor models.Principal) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid proof review payload")
	}
	var (
		previousProof  models.ProofStatus
		previousStatus models.ReservationStatus
	)
	reservation, err := s.transition(ctx, id, actor, func(r *models.Reservation) error {
		if r.PhotographerID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the photographer can review the payment proof")
		}
		if r.ProofStatus == models.ProofStatusNotSent {
			return appErrors.Clone(appErrors.ErrInvalidState, "no payment proof has been submitted")
		}
		if req.Decision == models.ProofStatusApproved && r.ProofStatus == models.ProofStatusApproved {
			return appErrors.Clone(appErrors.ErrInvalidState, "payment proof already approved")
		}
		previousProof, previousStatus = r.ProofStatus, r.Status
		r.ProofStatus = req.Decision
		if notes := optionalString(req.Notes); notes != nil {
			r.ProofNotes = notes
		}
		if req.Decision == models.ProofStatusApproved && r.Status == models.ReservationStatusPending {
			r.Status = models.ReservationStatusConfirmed
		}
		return nil
	}, models.NotificationProofReviewed)
	if err != nil {
		return nil, err
	}

	action := models.AuditActionProofReview
	if previousProof == models.ProofStatusApproved && req.Decision == models.ProofStatusRejected {
		action = models.AuditActionProofDowngrade
		logger.FromContext(ctx, s.logger).Warn("approved payment proof revoked",
			zap.String("reservation_id", reservation.ID),
			zap.String("reservation_status", string(reservation.Status)))
	}
	if previousStatus != reservation.Status {
		s.metrics.RecordReservationTransition(reservation.Status)
		s.notify(ctx, models.NotificationReservationConfirmed, reservation, actor, nil)
	}
	s.emitAudit(ctx, actor, action, reservation.ID,
		map[string]interface{}{"proofStatus": previousProof, "status": previousStatus},
		map[string]interface{}{"proofStatus": reservation.ProofStatus, "status": reservation.Status, "notes": req.Notes})
	return reservation, nil
}

// Get returns a reservation visible to its parties and admins.
func (s *ReservationService) Get(ctx context.Context, id string, actor models.Principal) (*models.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFoundOr(err, "reservation not found", "failed to load reservation")
	}
	if !isParty(reservation, actor) && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to other users")
	}
	return reservation, nil
}

// List returns reservations scoped to the caller's role.
func (s *ReservationService) List(ctx context.Context, query dto.ReservationQuery, actor models.Principal) ([]models.Reservation, *models.Pagination, error) {
	filter := models.ReservationFilter{Status: query.Status, Page: query.Page, PageSize: query.PageSize}
	switch actor.Role {
	case models.RoleClient:
		filter.ClientID = actor.UserID
	case models.RolePhotographer:
		filter.PhotographerID = actor.UserID
	case models.RoleAdmin:
	default:
		return nil, nil, appErrors.ErrForbidden
	}
	if query.From != "" {
		from, err := parseDate(query.From)
		if err != nil {
			return nil, nil, err
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := parseDate(query.To)
		if err != nil {
			return nil, nil, err
		}
		filter.To = &to
	}
	reservations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list reservations")
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	return reservations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// transition loads the reservation under a row lock, lets mutate apply the state change and persists it.
func (s *ReservationService) transition(ctx context.Context, id string, actor models.Principal, mutate func(*models.Reservation) error, event models.NotificationType) (*models.Reservation, error) {
	var (
		updated *models.Reservation
		before  models.ReservationStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx sqlx.ExtContext) error {
		reservation, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		before = reservation.Status
		if err := mutate(reservation); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, reservation); err != nil {
			return err
		}
		updated = reservation
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update reservation")
	}
	if updated.Status != before && event != models.NotificationProofReviewed {
		s.metrics.RecordReservationTransition(updated.Status)
	}
	s.notify(ctx, event, updated, actor, nil)
	return updated, nil
}

func (s *ReservationService) loadForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Reservation, error) {
	reservation, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, notFoundOr(err, "reservation not found", "failed to load reservation")
	}
	return reservation, nil
}

func (s *ReservationService) ensureDayFree(ctx context.Context, tx sqlx.ExtContext, photographerID string, date time.Time, excludeID string) error {
	existing, err := s.repo.ListNearDate(ctx, tx, photographerID, date)
	if err != nil {
		return err
	}
	if HasConflict(existing, photographerID, date, excludeID) {
		s.metrics.RecordBookingConflict()
		return appErrors.Clone(appErrors.ErrBookingConflict, "photographer already has a booking on "+date.Format(dto.DateLayout))
	}
	return nil
}

func (s *ReservationService) conflictFromViolation(err error) error {
	s.metrics.RecordBookingConflict()
	return appErrors.Wrap(err, appErrors.ErrBookingConflict.Code, appErrors.ErrBookingConflict.Status, appErrors.ErrBookingConflict.Message)
}

func (s *ReservationService) parseFutureDate(raw string) (time.Time, error) {
	date, err := parseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if date.Before(today(s.now(), s.cfg.Location)) {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "event date cannot be in the past")
	}
	return date, nil
}

func (s *ReservationService) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	if amount.GreaterThan(s.cfg.MaxAmount) {
		return appErrors.Clone(appErrors.ErrValidation, "amount exceeds the maximum of "+s.cfg.MaxAmount.String())
	}
	return nil
}

func (s *ReservationService) validateNotes(notes string) error {
	if utf8.RuneCountInString(strings.TrimSpace(notes)) > s.cfg.NotesMaxLength {
		return appErrors.Clone(appErrors.ErrValidation, "notes are too long")
	}
	return nil
}

func (s *ReservationService) notify(ctx context.Context, kind models.NotificationType, r *models.Reservation, actor models.Principal, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["status"] = r.Status
	payload["proofStatus"] = r.ProofStatus
	payload["eventDate"] = r.EventDate.Format(dto.DateLayout)
	s.notifier.Notify(ctx, models.NotificationEvent{
		Type:          kind,
		ReservationID: r.ID,
		ActorID:       actor.UserID,
		Recipients:    recipients(r, actor.UserID),
		Payload:       payload,
		OccurredAt:    s.now().UTC(),
	})
}

func (s *ReservationService) emitAudit(ctx context.Context, actor models.Principal, action, reservationID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	oldJSON, _ := json.Marshal(oldValues)
	newJSON, _ := json.Marshal(newValues)
	userID := actor.UserID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "reservation",
		ResourceID: &reservationID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
		IPAddress:  "system",
		UserAgent:  "reservation-service",
	}); err != nil {
		logger.FromContext(ctx, s.logger).Warn("failed to persist audit log", zap.Error(err))
	}
}

// recipients lists the parties other than the actor.
func recipients(r *models.Reservation, actorID string) []string {
	out := make([]string, 0, 2)
	for _, id := range []string{r.ClientID, r.PhotographerID} {
		if id != actorID {
			out = append(out, id)
		}
	}
	return out
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
