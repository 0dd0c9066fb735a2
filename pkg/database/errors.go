package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/avivago/avivago-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514":
		return mapCheckConstraint(pqErr)

	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	case "23503":
		return errors.BadRequest("referenced record does not exist")

	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	switch {
	case strings.Contains(pqErr.Constraint, "driver_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: draft, pending_approval, active, rejected, suspended",
		})
	default:
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "driver_profiles_pkey"):
		return "a driver profile already exists for this account"
	case strings.Contains(pqErr.Constraint, "users_email"):
		return "an account with this email already exists"
	default:
		return "a record with these values already exists"
	}
}
