package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrRetriesExceeded is returned when a busy transaction kept failing
	// past the retry budget.
	ErrRetriesExceeded = errors.New("db tx retries exceeded")

	// ErrNotFound is what MapSQLError turns sql.ErrNoRows into.
	ErrNotFound = errors.New("db row not found")
)

// MapSQLError turns driver errors into the package's driver agnostic error
// types. Unknown errors are returned unchanged.
func MapSQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.Code {
	case sqlite3.ErrConstraint:
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {

			return &ErrSQLUniqueConstraintViolation{DBError: sqliteErr}
		}
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return &ErrForeignKeyViolation{DBError: sqliteErr}
		}

		return fmt.Errorf("sqlite constraint error: %w", sqliteErr)

	case sqlite3.ErrBusy:
		return &ErrSerializationError{DBError: sqliteErr}

	case sqlite3.ErrLocked:
		return &ErrDeadlockError{DBError: sqliteErr}

	case sqlite3.ErrFull:
		return &ErrStorageFull{DBError: sqliteErr}

	case sqlite3.ErrError:
		if strings.Contains(sqliteErr.Error(), "no such table") {
			return &ErrSchemaError{DBError: sqliteErr}
		}
	}

	return fmt.Errorf("unknown sqlite error: %w", sqliteErr)
}

// ErrSQLUniqueConstraintViolation is a unique or primary key violation.
type ErrSQLUniqueConstraintViolation struct {
	DBError error
}

func (e ErrSQLUniqueConstraintViolation) Unwrap() error { return e.DBError }
func (e ErrSQLUniqueConstraintViolation) Error() string {
	return fmt.Sprintf("unique constraint violation: %v", e.DBError)
}

// ErrForeignKeyViolation means a referenced row does not exist.
type ErrForeignKeyViolation struct {
	DBError error
}

func (e ErrForeignKeyViolation) Unwrap() error { return e.DBError }
func (e ErrForeignKeyViolation) Error() string {
	return fmt.Sprintf("foreign key violation: %v", e.DBError)
}

// ErrSerializationError means the database was busy; the transaction can be
// retried.
type ErrSerializationError struct {
	DBError error
}

func (e ErrSerializationError) Unwrap() error { return e.DBError }
func (e ErrSerializationError) Error() string { return e.DBError.Error() }

// ErrDeadlockError means a lock conflict on the same connection.
type ErrDeadlockError struct {
	DBError error
}

func (e ErrDeadlockError) Unwrap() error { return e.DBError }
func (e ErrDeadlockError) Error() string { return e.DBError.Error() }

// ErrStorageFull means the disk or the database size limit is exhausted.
type ErrStorageFull struct {
	DBError error
}

func (e ErrStorageFull) Unwrap() error { return e.DBError }
func (e ErrStorageFull) Error() string { return e.DBError.Error() }

// ErrSchemaError means the schema does not match the query, usually because
// migrations were not applied.
type ErrSchemaError struct {
	DBError error
}

func (e ErrSchemaError) Unwrap() error { return e.DBError }
func (e ErrSchemaError) Error() string { return e.DBError.Error() }

// IsSerializationOrDeadlockError reports whether err is worth retrying.
func IsSerializationOrDeadlockError(err error) bool {
	var (
		serErr  *ErrSerializationError
		deadErr *ErrDeadlockError
	)

	return errors.As(err, &serErr) || errors.As(err, &deadErr)
}

// IsUniqueConstraintViolation reports whether err is a duplicate key.
func IsUniqueConstraintViolation(err error) bool {
	var uErr *ErrSQLUniqueConstraintViolation
	return errors.As(err, &uErr)
}

// IsStorageFull reports whether err means the database ran out of room.
func IsStorageFull(err error) bool {
	var fErr *ErrStorageFull
	return errors.As(err, &fErr)
}
