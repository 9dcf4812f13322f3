package postgres

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"ncfpos/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	pg := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, TableName: "invoice_sequences"})
	}

	tests := []struct {
		name   string
		err    error
		check  func(error) bool
		status int
	}{
		{"unique violation", pg(pgUniqueViolation), apperror.IsDuplicate, http.StatusConflict},
		{"check violation", pg(pgCheckViolation), apperror.IsValidation, http.StatusBadRequest},
		{"numeric out of range", pg(pgNumericOutOfRange), apperror.IsValidation, http.StatusBadRequest},
		{"serialization failure", pg(pgSerializationFailure), apperror.IsConcurrentModification, http.StatusConflict},
		{"deadlock", pg(pgDeadlockDetected), apperror.IsConcurrentModification, http.StatusConflict},
		{"lock timeout", pg(pgLockNotAvailable), apperror.IsConcurrentModification, http.StatusConflict},
		{"statement timeout", pg(pgQueryCanceled), apperror.IsConcurrentModification, http.StatusConflict},
		{"other sqlstate", pg("08006"), apperror.IsPersistence, http.StatusServiceUnavailable},
		{"plain error", errors.New("connection reset"), apperror.IsPersistence, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.True(t, tt.check(got), "%v", got)
			assert.Equal(t, tt.status, apperror.GetHTTPStatus(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	assert.NoError(t, MapError(nil))

	notFound := apperror.NewNotFound("invoice_sequence", "B02")
	assert.Same(t, notFound, MapError(notFound))
}

func TestConstraintName(t *testing.T) {
	err := MapError(fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           pgUniqueViolation,
		ConstraintName: "sales_store_client_key_idx",
	}))
	assert.Equal(t, "sales_store_client_key_idx", ConstraintName(err))
	assert.Empty(t, ConstraintName(errors.New("plain")))
}
