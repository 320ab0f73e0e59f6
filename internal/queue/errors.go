package queue

import (
	"errors"
	"fmt"

	"github.com/roach88/initiative/internal/medium"
)

// Error is returned by Queue operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// OpID identifies the affected operation, when known.
	OpID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes queue errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates no queued operation has the id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeQuotaExceeded indicates the snapshot write was refused for capacity.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeStorage indicates any other medium failure.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeInvalid indicates a malformed enqueue request.
	ErrCodeInvalid ErrorCode = "INVALID"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.OpID != "" {
		msg = fmt.Sprintf("%s (op=%s)", msg, e.OpID)
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

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeNotFound
	}
	return false
}

// IsQuotaExceeded reports whether err is a capacity error.
func IsQuotaExceeded(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeQuotaExceeded {
		return true
	}
	return medium.IsQuotaExceeded(err)
}

// IsInvalid reports whether err is an invalid-request error.
func IsInvalid(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalid
	}
	return false
}

func storageError(opID, op string, err error) *Error {
	if medium.IsQuotaExceeded(err) {
		return &Error{Code: ErrCodeQuotaExceeded, Message: op + " rejected: storage quota exceeded", OpID: opID, Err: err}
	}
	return &Error{Code: ErrCodeStorage, Message: op + " failed", OpID: opID, Err: err}
}

func notFound(opID string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "no queued operation", OpID: opID}
}
