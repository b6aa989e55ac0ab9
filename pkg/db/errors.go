package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"gorm.io/gorm"
)

const sqlStateUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres (pgx or lib/pq), sqlite, or GORM's translated ErrDuplicatedKey. When
// constraintName is provided and the driver reported which constraint failed,
// the two must match. Translated errors carry no constraint and always match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if !isUnique(err) {
		return false
	}
	if constraintName == "" {
		return true
	}
	if dump := pkgerrors.Dump(err); dump.PGConstraint != "" {
		return dump.PGConstraint == constraintName
	}
	return true
}

func isUnique(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if pkgerrors.SQLState(err) == sqlStateUniqueViolation {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsNotFound reports whether err is GORM's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
