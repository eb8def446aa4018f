package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lensbook-api/internal/models"
)

// ClientAccountRepository persists cancellation counters and suspensions.
type ClientAccountRepository struct {
	db *sqlx.DB
}

// NewClientAccountRepository constructs the repository.
func NewClientAccountRepository(db *sqlx.DB) *ClientAccountRepository {
	return &ClientAccountRepository{db: db}
}

func (r *ClientAccountRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads the account. Clients that never cancelled have no row and get a zero account.
func (r *ClientAccountRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClientAccount, error) {
	const query = `SELECT id, cancellation_count, suspended_until, updated_at FROM client_accounts WHERE id = $1`
	var account models.ClientAccount
	if err := sqlx.GetContext(ctx, r.exec(exec), &account, query, id); err != nil {
		if err == sql.ErrNoRows {
			return &models.ClientAccount{ID: id}, nil
		}
		return nil, fmt.Errorf("find client account: %w", err)
	}
	return &account, nil
}

// IncrementCancellations atomically bumps the lifetime counter and returns the new value.
func (r *ClientAccountRepository) IncrementCancellations(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (int, error) {
	const query = `INSERT INTO client_accounts (id, cancellation_count, updated_at) VALUES ($1, 1, $2)
	ON CONFLICT (id) DO UPDATE SET cancellation_count = client_accounts.cancellation_count + 1, updated_at = EXCLUDED.updated_at
	RETURNING cancellation_count`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, id, at); err != nil {
		return 0, fmt.Errorf("increment cancellations: %w", err)
	}
	return count, nil
}

// Suspend blocks the client from booking until the given instant.
func (r *ClientAccountRepository) Suspend(ctx context.Context, exec sqlx.ExtContext, id string, until, at time.Time) error {
	const query = `UPDATE client_accounts SET suspended_until = $2, updated_at = $3 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, until, at)
	if err != nil {
		return fmt.Errorf("suspend client: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("suspend client rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
