package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lensbook-api/internal/models"
)

const reviewColumns = `id, reservation_id, client_id, photographer_id, rating, comment, response, responded_at, visible, created_at, updated_at`

// ReviewRepository persists reviews and feeds rating recomputation.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a review. A second review for the same reservation surfaces as ErrUniqueViolation.
func (r *ReviewRepository) Create(ctx context.Context, exec sqlx.ExtContext, review *models.Review) error {
	if review == nil {
		return fmt.Errorf("review payload is nil")
	}
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = review.CreatedAt
	const query = `INSERT INTO reviews
	(id, reservation_id, client_id, photographer_id, rating, comment, response, responded_at, visible, created_at, updated_at)
	VALUES (:id, :reservation_id, :client_id, :photographer_id, :rating, :comment, :response, :responded_at, :visible, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, review); err != nil {
		return fmt.Errorf("create review: %w", translate(err))
	}
	return nil
}

// FindByID fetches a review by identifier.
func (r *ReviewRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`
	var review models.Review
	if err := sqlx.GetContext(ctx, r.exec(exec), &review, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find review: %w", err)
	}
	return &review, nil
}

// ExistsForReservation reports whether the reservation already has a review.
func (r *ReviewRepository) ExistsForReservation(ctx context.Context, exec sqlx.ExtContext, reservationID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reviews WHERE reservation_id = $1)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, reservationID); err != nil {
		return false, fmt.Errorf("check review existence: %w", err)
	}
	return exists, nil
}

// SetResponse stores the photographer response once. Returns sql.ErrNoRows when a response already exists.
func (r *ReviewRepository) SetResponse(ctx context.Context, exec sqlx.ExtContext, id, response string, at time.Time) error {
	const query = `UPDATE reviews SET response = $2, responded_at = $3, updated_at = $3 WHERE id = $1 AND response IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, id, response, at)
	if err != nil {
		return fmt.Errorf("set review response: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("review response rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetVisibility toggles whether the review is listed and counted.
func (r *ReviewRepository) SetVisibility(ctx context.Context, exec sqlx.ExtContext, id string, visible bool, at time.Time) error {
	const query = `UPDATE reviews SET visible = $2, updated_at = $3 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, visible, at)
	if err != nil {
		return fmt.Errorf("set review visibility: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("review visibility rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// VisibleRatings returns the rating of every visible review of the photographer.
func (r *ReviewRepository) VisibleRatings(ctx context.Context, exec sqlx.ExtContext, photographerID string) ([]int, error) {
	const query = `SELECT rating FROM reviews WHERE photographer_id = $1 AND visible`
	var ratings []int
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ratings, query, photographerID); err != nil {
		return nil, fmt.Errorf("load visible ratings: %w", err)
	}
	return ratings, nil
}

// ListByPhotographer returns reviews of the photographer, newest first, with the total count.
func (r *ReviewRepository) ListByPhotographer(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error) {
	baseQuery := `FROM reviews WHERE photographer_id = $1`
	if !filter.IncludeHidden {
		baseQuery += ` AND visible`
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", reviewColumns, baseQuery, pageSize, offset)
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, listQuery, filter.PhotographerID); err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, filter.PhotographerID); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	return reviews, total, nil
}
