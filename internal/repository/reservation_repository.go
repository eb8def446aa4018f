package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lensbook-api/internal/models"
)

const reservationColumns = `id, client_id, photographer_id, package_id, event_date, event_time, event_location,
       amount, commission, currency, status, proof_url, proof_notes, proof_status, notes, created_at, updated_at`

// ReservationRepository persists reservations.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs the repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a reservation. A collision on the photographer-day index surfaces as ErrUniqueViolation.
func (r *ReservationRepository) Create(ctx context.Context, exec sqlx.ExtContext, reservation *models.Reservation) error {
	if reservation == nil {
		return fmt.Errorf("reservation payload is nil")
	}
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = now
	}
	reservation.UpdatedAt = reservation.CreatedAt

	const query = `INSERT INTO reservations
	(id, client_id, photographer_id, package_id, event_date, event_time, event_location, amount, commission, currency,
	 status, proof_url, proof_notes, proof_status, notes, created_at, updated_at)
	VALUES (:id, :client_id, :photographer_id, :package_id, :event_date, :event_time, :event_location, :amount, :commission, :currency,
	 :status, :proof_url, :proof_notes, :proof_status, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, reservation); err != nil {
		return fmt.Errorf("create reservation: %w", translate(err))
	}
	return nil
}

// FindByID loads a reservation by identifier.
func (r *ReservationRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, r.exec(exec), &reservation, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return &reservation, nil
}

// FindByIDForUpdate loads and row-locks a reservation inside tx.
func (r *ReservationRepository) FindByIDForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, r.exec(tx), &reservation, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	return &reservation, nil
}

// ListNearDate returns the photographer's non-cancelled reservations within a day of date.
// The window absorbs timezone offsets; callers compare calendar days themselves.
func (r *ReservationRepository) ListNearDate(ctx context.Context, exec sqlx.ExtContext, photographerID string, date time.Time) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	WHERE photographer_id = $1 AND status <> $2 AND event_date BETWEEN $3 AND $4
	ORDER BY event_date`
	from := date.AddDate(0, 0, -1)
	to := date.AddDate(0, 0, 1)
	var reservations []models.Reservation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &reservations, query, photographerID, models.ReservationStatusCancelled, from, to); err != nil {
		return nil, fmt.Errorf("list reservations near date: %w", err)
	}
	return reservations, nil
}

// Update persists every mutable column of the reservation.
func (r *ReservationRepository) Update(ctx context.Context, exec sqlx.ExtContext, reservation *models.Reservation) error {
	reservation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reservations SET
	event_date = :event_date, event_time = :event_time, event_location = :event_location, amount = :amount,
	status = :status, proof_url = :proof_url, proof_notes = :proof_notes, proof_status = :proof_status,
	notes = :notes, updated_at = :updated_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, reservation)
	if err != nil {
		return fmt.Errorf("update reservation: %w", translate(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reservation rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns reservations matching the filter with the total count.
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.PhotographerID != "" {
		args = append(args, filter.PhotographerID)
		conditions = append(conditions, fmt.Sprintf("photographer_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("event_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("event_date <= $%d", len(args)))
	}

	baseQuery := "FROM reservations"
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY event_date DESC, created_at DESC LIMIT %d OFFSET %d", reservationColumns, baseQuery, pageSize, offset)
	var reservations []models.Reservation
	if err := r.db.SelectContext(ctx, &reservations, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}
	return reservations, total, nil
}

// ListForLedger returns the photographer's billable reservations ordered by event date.
func (r *ReservationRepository) ListForLedger(ctx context.Context, photographerID string, from, to *time.Time) ([]models.Reservation, error) {
	args := []interface{}{photographerID, models.ReservationStatusConfirmed, models.ReservationStatusCompleted}
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE photographer_id = $1 AND status IN ($2, $3)`
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND event_date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND event_date <= $%d", len(args))
	}
	query += " ORDER BY event_date"

	var reservations []models.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, args...); err != nil {
		return nil, fmt.Errorf("list ledger reservations: %w", err)
	}
	return reservations, nil
}
