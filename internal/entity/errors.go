package entity

import (
	"errors"
	"fmt"

	"github.com/roach88/initiative/internal/medium"
)

// Error is returned by Store operations.
//
// Quota errors wrap medium.ErrQuotaExceeded, so both IsQuotaExceeded and
// errors.Is(err, medium.ErrQuotaExceeded) hold.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Kind and ID identify the affected record, when known.
	Kind string
	ID   string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed save request. Nothing was written.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates no record exists for the id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeQuotaExceeded indicates the medium refused the write for capacity.
	// Callers must assume the write did not happen.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeConflict indicates the stored version changed underneath the write.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeStorage indicates any other medium failure.
	ErrCodeStorage ErrorCode = "STORAGE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Kind != "" || e.ID != "" {
		msg = fmt.Sprintf("%s (kind=%s, id=%s)", msg, e.Kind, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsQuotaExceeded reports whether err is a capacity error.
func IsQuotaExceeded(err error) bool {
	return hasCode(err, ErrCodeQuotaExceeded) || medium.IsQuotaExceeded(err)
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func validationError(kind, id, format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...), Kind: kind, ID: id}
}

// storageError classifies a medium failure.
func storageError(kind, id, op string, err error) *Error {
	if medium.IsQuotaExceeded(err) {
		return &Error{Code: ErrCodeQuotaExceeded, Message: op + " rejected: storage quota exceeded", Kind: kind, ID: id, Err: err}
	}
	return &Error{Code: ErrCodeStorage, Message: op + " failed", Kind: kind, ID: id, Err: err}
}
