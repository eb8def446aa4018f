package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lensbook-api/internal/models"
)

// CatalogRepository reads packages and writes photographer rating aggregates.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindPackage loads a package by identifier.
func (r *CatalogRepository) FindPackage(ctx context.Context, id string) (*models.Package, error) {
	const query = `SELECT id, photographer_id, name, price, currency, active FROM packages WHERE id = $1`
	var pkg models.Package
	if err := r.db.GetContext(ctx, &pkg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find package: %w", err)
	}
	return &pkg, nil
}

// SaveRating upserts the photographer's rating aggregate.
func (r *CatalogRepository) SaveRating(ctx context.Context, exec sqlx.ExtContext, aggregate models.RatingAggregate) error {
	if exec == nil {
		exec = r.db
	}
	const query = `INSERT INTO photographer_profiles (id, rating_average, rating_count, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET rating_average = EXCLUDED.rating_average, rating_count = EXCLUDED.rating_count, updated_at = EXCLUDED.updated_at`
	if _, err := exec.ExecContext(ctx, query, aggregate.PhotographerID, aggregate.Average, aggregate.Count, aggregate.ComputedAt); err != nil {
		return fmt.Errorf("save photographer rating: %w", err)
	}
	return nil
}

// FindRating returns the stored aggregate. Photographers without a profile row have a zero aggregate.
func (r *CatalogRepository) FindRating(ctx context.Context, photographerID string) (*models.RatingAggregate, error) {
	const query = `SELECT rating_average, rating_count, updated_at FROM photographer_profiles WHERE id = $1`
	var row struct {
		Average   float64   `db:"rating_average"`
		Count     int       `db:"rating_count"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, photographerID); err != nil {
		if err == sql.ErrNoRows {
			return &models.RatingAggregate{PhotographerID: photographerID}, nil
		}
		return nil, fmt.Errorf("find photographer rating: %w", err)
	}
	return &models.RatingAggregate{
		PhotographerID: photographerID,
		Average:        math.Round(row.Average*100) / 100,
		Count:          row.Count,
		ComputedAt:     row.UpdatedAt,
	}, nil
}
