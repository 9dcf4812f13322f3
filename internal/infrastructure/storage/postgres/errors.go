package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"ncfpos/internal/core/apperror"
)

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgNumericOutOfRange    = "22003"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// MapError converts a driver error into an AppError. AppErrors pass through.
func MapError(err error) error {
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.NewDuplicate(pgErr.TableName, pgErr.ConstraintName, pgErr.Detail).WithCause(err)
		case pgCheckViolation:
			return apperror.NewValidation("value violates a storage constraint").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgNumericOutOfRange:
			return apperror.NewValidation("value out of range").WithCause(err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return apperror.NewConcurrentModification(pgErr.TableName, pgErr.Code).WithCause(err)
		case pgQueryCanceled:
			// statement_timeout while waiting on a row lock
			return apperror.NewConcurrentModification(pgErr.TableName, pgErr.Code).WithCause(err)
		}
	}

	return apperror.NewPersistence(err)
}

// ConstraintName returns the violated constraint carried by err, if any.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
