package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/lensbook-api/internal/models"
)

const changeRequestColumns = `id, reservation_id, kind, status, requested_by, original_data, new_date, new_time, new_location,
       reason, penalty, responder_id, responder_note, responded_at, created_at`

// ChangeRequestRepository persists cancellation and edit requests.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a request. A second pending request for the reservation surfaces as ErrUniqueViolation.
func (r *ChangeRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, request *models.ChangeRequest) error {
	if request == nil {
		return fmt.Errorf("change request payload is nil")
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ChangeRequestStatusPending
	}
	if len(request.OriginalData) == 0 {
		request.OriginalData = types.JSONText(`{}`)
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_requests
	(id, reservation_id, kind, status, requested_by, original_data, new_date, new_time, new_location, reason, penalty,
	 responder_id, responder_note, responded_at, created_at)
	VALUES (:id, :reservation_id, :kind, :status, :requested_by, :original_data, :new_date, :new_time, :new_location, :reason, :penalty,
	 :responder_id, :responder_note, :responded_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, request); err != nil {
		return fmt.Errorf("create change request: %w", translate(err))
	}
	return nil
}

// FindByID fetches a request by identifier.
func (r *ChangeRequestRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1`
	var request models.ChangeRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &request, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find change request: %w", err)
	}
	return &request, nil
}

// HasPending reports whether the reservation already has an unresolved request.
func (r *ChangeRequestRepository) HasPending(ctx context.Context, exec sqlx.ExtContext, reservationID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM change_requests WHERE reservation_id = $1 AND status = $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, reservationID, models.ChangeRequestStatusPending); err != nil {
		return false, fmt.Errorf("check pending change request: %w", err)
	}
	return exists, nil
}

// ListByReservation returns every request for the reservation, latest first.
func (r *ChangeRequestRepository) ListByReservation(ctx context.Context, reservationID string) ([]models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE reservation_id = $1 ORDER BY created_at DESC`
	var requests []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &requests, query, reservationID); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}

// ResolveChangeRequestParams groups the columns written when a request is answered.
type ResolveChangeRequestParams struct {
	ID            string
	Status        models.ChangeRequestStatus
	ResponderID   string
	ResponderNote *string
	RespondedAt   time.Time
}

// Resolve answers a pending request. Returns sql.ErrNoRows when it is no longer pending.
func (r *ChangeRequestRepository) Resolve(ctx context.Context, exec sqlx.ExtContext, params ResolveChangeRequestParams) error {
	query := fmt.Sprintf(`UPDATE change_requests
	SET status = :status, responder_id = :responder_id, responder_note = :responder_note, responded_at = :responded_at
	WHERE id = :id AND status = '%s'`, models.ChangeRequestStatusPending)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":             params.ID,
		"status":         params.Status,
		"responder_id":   params.ResponderID,
		"responder_note": params.ResponderNote,
		"responded_at":   params.RespondedAt,
	})
	if err != nil {
		return fmt.Errorf("resolve change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
