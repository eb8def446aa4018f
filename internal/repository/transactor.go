package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrUniqueViolation reports that a write collided with a unique index.
var ErrUniqueViolation = errors.New("unique constraint violation")

const pqUniqueViolation = "23505"

// UniqueViolationError carries the name of the violated constraint.
type UniqueViolationError struct {
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint %q violated", e.Constraint)
}

// Is lets errors.Is(err, ErrUniqueViolation) match.
func (e *UniqueViolationError) Is(target error) bool {
	return target == ErrUniqueViolation
}

func (e *UniqueViolationError) Unwrap() error {
	return e.Err
}

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return &UniqueViolationError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}

// ViolatedConstraint returns the constraint name when err is a unique violation.
func ViolatedConstraint(err error) string {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv.Constraint
	}
	return ""
}

// Transactor runs units of work inside a database transaction.
type Transactor struct {
	db *sqlx.DB
}

// NewTransactor constructs a Transactor.
func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx begins a transaction, runs fn and commits when fn succeeds. Any error rolls back.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx sqlx.ExtContext) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return translate(err)
	}
	if err = tx.Commit(); err != nil {
		return translate(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// LockPhotographer serialises booking writes for one photographer until the transaction ends.
func (t *Transactor) LockPhotographer(ctx context.Context, tx sqlx.ExtContext, photographerID string) error {
	if tx == nil {
		return fmt.Errorf("lock photographer: transaction required")
	}
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := tx.ExecContext(ctx, query, "photographer:"+photographerID); err != nil {
		return fmt.Errorf("lock photographer: %w", err)
	}
	return nil
}
