package models

import (
	"context"
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrUniqueConstraintConflict is a (employee, business_date) collision that
	// could not be resolved by retrying as an update.
	ErrUniqueConstraintConflict = errors.New("payroll record already exists for employee and date")
	// ErrStaleRecord means the row changed since it was read.
	ErrStaleRecord   = errors.New("payroll record was modified concurrently")
	ErrNotAuthorized = errors.New("actor is not authorized")
	// ErrWithdrawalDecided is a decision on a withdrawal that is no longer pending.
	ErrWithdrawalDecided = errors.New("withdrawal is no longer pending")
	// ErrShortPlanClosed is an installment or cancel on a completed or cancelled plan.
	ErrShortPlanClosed = errors.New("short payment plan is not active")
)

type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindValidation        ErrorKind = "validation"
	ErrorKindLocked            ErrorKind = "locked"
	ErrorKindInvalidTransition ErrorKind = "invalid_transition"
	ErrorKindUniqueConflict    ErrorKind = "unique_conflict"
	ErrorKindExternalFetch     ErrorKind = "external_fetch"
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindNotAuthorized     ErrorKind = "not_authorized"
	ErrorKindStale             ErrorKind = "stale"
	ErrorKindInternal          ErrorKind = "internal"
)

// ValidationError is malformed caller input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// LockedRecordError is a mutation attempted on a locked payroll record.
type LockedRecordError struct {
	RecordId int
}

func (e *LockedRecordError) Error() string {
	return fmt.Sprintf("payroll record %d is locked", e.RecordId)
}

// InvalidTransitionError is a lock-gate step taken out of order.
type InvalidTransitionError struct {
	RecordId int
	From     LockState
	To       LockState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payroll record %d cannot move from %s to %s", e.RecordId, e.From, e.To)
}

// ExternalFetchError wraps a failing or slow report/settings/authorization source.
type ExternalFetchError struct {
	Source     string
	EmployeeId string
	Err        error
}

func (e *ExternalFetchError) Error() string {
	msg := "fetch from " + e.Source
	if e.EmployeeId != "" {
		msg += " for employee " + e.EmployeeId
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return msg + " timed out"
	}
	return msg + ": " + e.Err.Error()
}

func (e *ExternalFetchError) Unwrap() error {
	return e.Err
}

func IsLockedRecord(err error) bool {
	var lockedErr *LockedRecordError
	return errors.As(err, &lockedErr)
}

// KindOf classifies err into the error taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var (
		validationErr *ValidationError
		lockedErr     *LockedRecordError
		transitionErr *InvalidTransitionError
		fetchErr      *ExternalFetchError
	)
	switch {
	case errors.As(err, &validationErr):
		return ErrorKindValidation
	case errors.As(err, &lockedErr):
		return ErrorKindLocked
	case errors.As(err, &transitionErr), errors.Is(err, ErrWithdrawalDecided), errors.Is(err, ErrShortPlanClosed):
		return ErrorKindInvalidTransition
	case errors.As(err, &fetchErr):
		return ErrorKindExternalFetch
	case errors.Is(err, ErrUniqueConstraintConflict):
		return ErrorKindUniqueConflict
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrNotAuthorized):
		return ErrorKindNotAuthorized
	case errors.Is(err, ErrStaleRecord):
		return ErrorKindStale
	case isOutOfRangeErr(err):
		return ErrorKindValidation
	}
	return ErrorKindInternal
}

// isOutOfRangeErr is MySQL strict mode refusing a value that does not fit
// its column (1264 out of range, 1406 data too long).
func isOutOfRangeErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1264 || mysqlErr.Number == 1406
	}
	return false
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
