package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/internal/repository"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

// memDB is an in-memory backing store shared by the stub repositories below.
type memDB struct {
	mu             sync.Mutex
	seq            int
	reservations   map[string]models.Reservation
	changeRequests map[string]models.ChangeRequest
	accounts       map[string]models.ClientAccount
	reviews        map[string]models.Review
	ratings        map[string]models.RatingAggregate
	packages       map[string]models.Package
	audits         []models.AuditLog
	locks          []string
}

func newMemDB() *memDB {
	return &memDB{
		reservations:   map[string]models.Reservation{},
		changeRequests: map[string]models.ChangeRequest{},
		accounts:       map[string]models.ClientAccount{},
		reviews:        map[string]models.Review{},
		ratings:        map[string]models.RatingAggregate{},
		packages:       map[string]models.Package{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) auditActions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.audits))
	for _, a := range db.audits {
		out = append(out, a.Action)
	}
	return out
}

// memTx runs fn directly; the stores below are not transactional.
type memTx struct{ db *memDB }

func (t memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx sqlx.ExtContext) error) error {
	return fn(ctx, nil)
}

func (t memTx) LockPhotographer(_ context.Context, _ sqlx.ExtContext, photographerID string) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.locks = append(t.db.locks, photographerID)
	return nil
}

type memReservations struct{ db *memDB }

func (r memReservations) Create(_ context.Context, _ sqlx.ExtContext, res *models.Reservation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.reservations {
		if existing.PhotographerID == res.PhotographerID && existing.Status != models.ReservationStatusCancelled &&
			CalendarDay(existing.EventDate).Equal(CalendarDay(res.EventDate)) {
			return &repository.UniqueViolationError{Constraint: "uq_reservations_photographer_day"}
		}
	}
	if res.ID == "" {
		res.ID = r.db.nextID("res")
	}
	res.UpdatedAt = res.CreatedAt
	r.db.reservations[res.ID] = *res
	return nil
}

func (r memReservations) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Reservation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	res, ok := r.db.reservations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &res, nil
}

func (r memReservations) FindByIDForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Reservation, error) {
	return r.FindByID(ctx, tx, id)
}

func (r memReservations) ListNearDate(_ context.Context, _ sqlx.ExtContext, photographerID string, date time.Time) ([]models.Reservation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	day := CalendarDay(date)
	var out []models.Reservation
	for _, res := range r.db.reservations {
		if res.PhotographerID != photographerID || res.Status == models.ReservationStatusCancelled {
			continue
		}
		diff := CalendarDay(res.EventDate).Sub(day)
		if diff >= -24*time.Hour && diff <= 24*time.Hour {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r memReservations) Update(_ context.Context, _ sqlx.ExtContext, res *models.Reservation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.reservations[res.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Commission.Cmp(res.Commission) != 0 {
		return fmt.Errorf("commission is immutable")
	}
	r.db.reservations[res.ID] = *res
	return nil
}

func (r memReservations) List(_ context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Reservation
	for _, res := range r.db.reservations {
		if filter.ClientID != "" && res.ClientID != filter.ClientID {
			continue
		}
		if filter.PhotographerID != "" && res.PhotographerID != filter.PhotographerID {
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r memReservations) ListForLedger(_ context.Context, photographerID string, _, _ *time.Time) ([]models.Reservation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Reservation
	for _, res := range r.db.reservations {
		if res.PhotographerID == photographerID &&
			(res.Status == models.ReservationStatusConfirmed || res.Status == models.ReservationStatusCompleted) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memPackages struct{ db *memDB }

func (p memPackages) FindPackage(_ context.Context, id string) (*models.Package, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	pkg, ok := p.db.packages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &pkg, nil
}

func (p memPackages) SaveRating(_ context.Context, _ sqlx.ExtContext, aggregate models.RatingAggregate) error {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	p.db.ratings[aggregate.PhotographerID] = aggregate
	return nil
}

func (p memPackages) FindRating(_ context.Context, photographerID string) (*models.RatingAggregate, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	aggregate, ok := p.db.ratings[photographerID]
	if !ok {
		return &models.RatingAggregate{PhotographerID: photographerID}, nil
	}
	return &aggregate, nil
}

type memChangeRequests struct{ db *memDB }

func (c memChangeRequests) Create(_ context.Context, _ sqlx.ExtContext, cr *models.ChangeRequest) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	for _, existing := range c.db.changeRequests {
		if existing.ReservationID == cr.ReservationID && existing.Status == models.ChangeRequestStatusPending {
			return &repository.UniqueViolationError{Constraint: "uq_change_requests_pending"}
		}
	}
	if cr.ID == "" {
		cr.ID = c.db.nextID("cr")
	}
	c.db.changeRequests[cr.ID] = *cr
	return nil
}

func (c memChangeRequests) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.ChangeRequest, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	cr, ok := c.db.changeRequests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &cr, nil
}

func (c memChangeRequests) HasPending(_ context.Context, _ sqlx.ExtContext, reservationID string) (bool, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	for _, cr := range c.db.changeRequests {
		if cr.ReservationID == reservationID && cr.Status == models.ChangeRequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (c memChangeRequests) ListByReservation(_ context.Context, reservationID string) ([]models.ChangeRequest, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	var out []models.ChangeRequest
	for _, cr := range c.db.changeRequests {
		if cr.ReservationID == reservationID {
			out = append(out, cr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c memChangeRequests) Resolve(_ context.Context, _ sqlx.ExtContext, params repository.ResolveChangeRequestParams) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	cr, ok := c.db.changeRequests[params.ID]
	if !ok || cr.Status != models.ChangeRequestStatusPending {
		return sql.ErrNoRows
	}
	responder := params.ResponderID
	at := params.RespondedAt
	cr.Status = params.Status
	cr.ResponderID = &responder
	cr.ResponderNote = params.ResponderNote
	cr.RespondedAt = &at
	c.db.changeRequests[cr.ID] = cr
	return nil
}

type memAccounts struct{ db *memDB }

func (a memAccounts) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.ClientAccount, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	account, ok := a.db.accounts[id]
	if !ok {
		return &models.ClientAccount{ID: id}, nil
	}
	return &account, nil
}

func (a memAccounts) IncrementCancellations(_ context.Context, _ sqlx.ExtContext, id string, at time.Time) (int, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	account := a.db.accounts[id]
	account.ID = id
	account.CancellationCount++
	account.UpdatedAt = at
	a.db.accounts[id] = account
	return account.CancellationCount, nil
}

func (a memAccounts) Suspend(_ context.Context, _ sqlx.ExtContext, id string, until, at time.Time) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	account := a.db.accounts[id]
	account.ID = id
	account.SuspendedUntil = &until
	account.UpdatedAt = at
	a.db.accounts[id] = account
	return nil
}

type memReviews struct{ db *memDB }

func (r memReviews) Create(_ context.Context, _ sqlx.ExtContext, review *models.Review) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.reviews {
		if existing.ReservationID == review.ReservationID {
			return &repository.UniqueViolationError{Constraint: "reviews_reservation_id_key"}
		}
	}
	if review.ID == "" {
		review.ID = r.db.nextID("rev")
	}
	review.UpdatedAt = review.CreatedAt
	r.db.reviews[review.ID] = *review
	return nil
}

func (r memReviews) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	review, ok := r.db.reviews[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &review, nil
}

func (r memReviews) ExistsForReservation(_ context.Context, _ sqlx.ExtContext, reservationID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, review := range r.db.reviews {
		if review.ReservationID == reservationID {
			return true, nil
		}
	}
	return false, nil
}

func (r memReviews) SetResponse(_ context.Context, _ sqlx.ExtContext, id, response string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	review, ok := r.db.reviews[id]
	if !ok || review.Response != nil {
		return sql.ErrNoRows
	}
	review.Response = &response
	review.RespondedAt = &at
	r.db.reviews[id] = review
	return nil
}

func (r memReviews) SetVisibility(_ context.Context, _ sqlx.ExtContext, id string, visible bool, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	review, ok := r.db.reviews[id]
	if !ok {
		return sql.ErrNoRows
	}
	review.Visible = visible
	review.UpdatedAt = at
	r.db.reviews[id] = review
	return nil
}

func (r memReviews) VisibleRatings(_ context.Context, _ sqlx.ExtContext, photographerID string) ([]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []int
	for _, review := range r.db.reviews {
		if review.PhotographerID == photographerID && review.Visible {
			out = append(out, review.Rating)
		}
	}
	return out, nil
}

func (r memReviews) ListByPhotographer(_ context.Context, filter models.ReviewFilter) ([]models.Review, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Review
	for _, review := range r.db.reviews {
		if review.PhotographerID != filter.PhotographerID {
			continue
		}
		if !review.Visible && !filter.IncludeHidden {
			continue
		}
		out = append(out, review)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

type memAudit struct{ db *memDB }

func (a memAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	a.db.audits = append(a.db.audits, *log)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event models.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []models.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type stubRatingCache struct {
	values      map[string]models.RatingAggregate
	invalidated []string
	failWrites  bool
}

func (c *stubRatingCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*(dest.(*models.RatingAggregate)) = v
	return true, nil
}

func (c *stubRatingCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if c.failWrites {
		return errors.New("cache unavailable")
	}
	c.values[key] = *(value.(*models.RatingAggregate))
	return nil
}

func (c *stubRatingCache) Invalidate(_ context.Context, keys ...string) error {
	if c.failWrites {
		return errors.New("cache unavailable")
	}
	for _, k := range keys {
		delete(c.values, k)
	}
	c.invalidated = append(c.invalidated, keys...)
	return nil
}

// fixture wires every domain service over a shared memDB with a fixed clock.
type fixture struct {
	db           *memDB
	now          time.Time
	notifier     *recordingNotifier
	cache        *stubRatingCache
	reservations *ReservationService
	changes      *ChangeRequestService
	reviews      *ReviewService
	exports      *ExportService
}

var (
	client       = models.Principal{UserID: "client-1", Role: models.RoleClient}
	otherClient  = models.Principal{UserID: "client-2", Role: models.RoleClient}
	photographer = models.Principal{UserID: "photo-1", Role: models.RolePhotographer}
	admin        = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
)

func newFixture() *fixture {
	f := &fixture{
		db:       newMemDB(),
		now:      time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
		cache:    &stubRatingCache{values: map[string]models.RatingAggregate{}},
	}
	clock := func() time.Time { return f.now }
	tx := memTx{db: f.db}
	res := memReservations{db: f.db}
	catalog := memPackages{db: f.db}
	audit := memAudit{db: f.db}
	crs := memChangeRequests{db: f.db}

	f.reservations = NewReservationService(res, catalog, tx, audit, nil, nil, ReservationConfig{},
		WithReservationClock(clock), WithReservationNotifier(f.notifier))
	f.changes = NewChangeRequestService(crs, res, memAccounts{db: f.db}, tx, audit, nil, nil, ChangeRequestConfig{},
		WithChangeRequestClock(clock), WithChangeRequestNotifier(f.notifier))
	f.reviews = NewReviewService(memReviews{db: f.db}, res, catalog, tx, audit, nil, nil,
		WithReviewClock(clock), WithReviewNotifier(f.notifier), WithRatingCache(f.cache, time.Minute))
	f.exports = NewExportService(res, crs, nil, nil, nil)
	f.exports.now = clock
	return f
}

// seed stores a reservation directly, bypassing the state machine.
func (f *fixture) seed(r models.Reservation) *models.Reservation {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if r.ID == "" {
		r.ID = f.db.nextID("res")
	}
	if r.ClientID == "" {
		r.ClientID = client.UserID
	}
	if r.PhotographerID == "" {
		r.PhotographerID = photographer.UserID
	}
	if r.Currency == "" {
		r.Currency = "BOB"
	}
	if r.ProofStatus == "" {
		r.ProofStatus = models.ProofStatusNotSent
	}
	f.db.reservations[r.ID] = r
	return &r
}

func (f *fixture) reservation(id string) models.Reservation {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.reservations[id]
}

func appCode(err error) string {
	if appErr := appErrors.FromError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}
