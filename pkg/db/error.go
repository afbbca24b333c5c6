package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL unique_violation
	if hasPGCode(err, "23505") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsSerializationErr reports a transaction-isolation failure that the
// caller may retry.
func IsSerializationErr(err error) bool {
	if err == nil {
		return false
	}

	// PostgreSQL serialization_failure and deadlock_detected
	if hasPGCode(err, "40001") || hasPGCode(err, "40P01") {
		return true
	}

	msg := err.Error()

	// MySQL (error codes 1205, 1213)
	if strings.Contains(msg, "Error 1213") || strings.Contains(msg, "Error 1205") {
		return true
	}

	// SQLite
	if strings.Contains(msg, "database is locked") {
		return true
	}

	return false
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
