package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("requested record not found")

	// ErrDatabaseError is returned for unexpected database errors.
	// It can be used to wrap more specific driver errors.
	ErrDatabaseError = errors.New("database error")

	// ErrDuplicateKey is returned when an insert/update violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key value violates unique constraint")

	// ErrConcurrentUpdate is returned for serialization failures and deadlocks. Callers may retry.
	ErrConcurrentUpdate = errors.New("concurrent update, transaction aborted")

	// ErrConditionNotMet is returned when a guarded UPDATE matched no rows.
	ErrConditionNotMet = errors.New("update condition not met")

	// ErrConstraintViolation is returned when a CHECK constraint rejects a write.
	ErrConstraintViolation = errors.New("check constraint violated")
)

// SQLExecutor defines an interface that can be satisfied by *sql.DB or *sql.Tx
// This allows repository methods to be used within transactions or with a direct DB connection.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// scanner is an interface satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// wrapDBError classifies driver errors into the sentinels above.
func wrapDBError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return fmt.Errorf("%w: %s: %s (constraint: %s)", ErrDuplicateKey, op, pqErr.Message, pqErr.Constraint)
		case "serialization_failure", "deadlock_detected":
			return fmt.Errorf("%w: %s: %v", ErrConcurrentUpdate, op, err)
		case "check_violation":
			return fmt.Errorf("%w: %s: %s (constraint: %s)", ErrConstraintViolation, op, pqErr.Message, pqErr.Constraint)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrDatabaseError, op, err)
}

// expectAffected turns a zero-row guarded update into ErrConditionNotMet.
func expectAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s: reading rows affected: %v", ErrDatabaseError, op, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConditionNotMet, op)
	}
	return nil
}
