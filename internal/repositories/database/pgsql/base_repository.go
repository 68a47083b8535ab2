package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the store translates into core signals.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// runs unchanged in autocommit mode and inside a unit of work.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	q querier
}

func (r BaseRepository) sendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return r.q.SendBatch(ctx, b)
}

// mapError translates driver errors into the sentinels the core understands.
func mapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, apperrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", msg, apperrors.ErrDuplicate, pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%s: %w (%s)", msg, apperrors.ErrWriteConflict, pgErr.Code)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isWriteConflict reports whether err is a retryable concurrency failure.
func isWriteConflict(err error) bool {
	if errors.Is(err, apperrors.ErrWriteConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
