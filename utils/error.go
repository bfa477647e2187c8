package utils

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// Compensation preconditions. Surfaced immediately, never retried.
var (
	ErrSaleNotFound    = errors.New("sale not found")
	ErrAlreadyReversed = errors.New("sale already reversed")
)

// ValidationError is malformed input: bad reference, non-positive quantity,
// missing required field. Retrying will not help.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InsufficientStockError means a reservation could not be satisfied.
// Retrying will not create stock.
type InsufficientStockError struct {
	ProductId int
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (requested=%s, available=%s)",
		e.ProductId, e.Requested.String(), e.Available.String())
}

// ContentionError is a lock wait timeout or detected deadlock. Retrying the
// whole attempt may succeed.
type ContentionError struct {
	Err error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock contention: %v", e.Err)
}

func (e *ContentionError) Unwrap() error { return e.Err }

// ExhaustedRetriesError wraps the last contention error after the retry
// budget is spent.
type ExhaustedRetriesError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s: exhausted retries after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// PersistenceError is any non-contention failure during the atomic write
// phase. The enclosing attempt has been fully rolled back by the time it
// propagates.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// ClassifyDBError maps a DB failure into the engine's error taxonomy:
// MySQL 1205/1213 become ContentionError, everything else PersistenceError.
func ClassifyDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == mysqlErrLockWaitTimeout || myErr.Number == mysqlErrDeadlock {
			return &ContentionError{Err: err}
		}
	}
	return &PersistenceError{Op: op, Err: err}
}

func IsContention(err error) bool {
	var ce *ContentionError
	return errors.As(err, &ce)
}

func IsDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}

// IsRetryable reports whether re-running the whole attempt can possibly
// succeed. Callers use this to decide between resubmitting and giving up.
func IsRetryable(err error) bool {
	return IsContention(err)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
