package pgsql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", pgx.ErrNoRows, apperrors.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "uq_transactions_idempotency"}, apperrors.ErrDuplicate},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, apperrors.ErrWriteConflict},
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, apperrors.ErrWriteConflict},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeSerializationFailure}), apperrors.ErrWriteConflict},
		{"lock not available", &pgconn.PgError{Code: codeLockNotAvailable}, apperrors.ErrWriteConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "op %s", "x")
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), "op x")
		})
	}
}

func TestMapError_PassesThroughOtherErrors(t *testing.T) {
	assert.NoError(t, mapError(nil, "noop"))

	cause := &pgconn.PgError{Code: "23503"}
	err := mapError(cause, "save")
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, apperrors.ErrWriteConflict)
	assert.NotErrorIs(t, err, apperrors.ErrDuplicate)
}

func TestIsWriteConflict(t *testing.T) {
	assert.True(t, isWriteConflict(&pgconn.PgError{Code: codeDeadlockDetected}))
	assert.True(t, isWriteConflict(fmt.Errorf("wrapped: %w", apperrors.ErrWriteConflict)))
	assert.False(t, isWriteConflict(errors.New("boom")))
	assert.False(t, isWriteConflict(&pgconn.PgError{Code: codeUniqueViolation}))
}
