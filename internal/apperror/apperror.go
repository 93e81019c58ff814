// Package apperror defines the error taxonomy shared by every layer.
//
// SENTINELS + ONE STRUCT:
// Each category is a sentinel (ErrNotFound, ErrValidation, ...). Concrete errors
// are *AppError values that carry the sentinel plus a human-readable message.
// Callers never compare messages; they ask errors.Is(err, apperror.ErrNotFound).
//
// The transport layer maps categories to status codes, the CLI maps them to
// exit messages. Neither needs to know which layer produced the error.
package apperror

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")

	// ErrStorage marks I/O failures, schema corruption or disk exhaustion.
	ErrStorage = errors.New("storage error")

	// ErrBusy marks a database another connection has locked for longer than
	// the caller was willing to wait. Retrying later can succeed.
	ErrBusy = errors.New("database busy")

	// ErrSafetyBackup marks a restore aborted because the pre-restore copy of
	// the live database could not be written. The live file is untouched.
	ErrSafetyBackup = errors.New("pre-restore safety backup failed")
)

type AppError struct {
	Err     error  // category sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error (driver, filesystem)
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the category and the cause, so errors.Is matches
// apperror.ErrStorage as well as, say, context.Canceled or fs.ErrNotExist.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Storage wraps a low-level failure. op describes what was being attempted,
// e.g. "creating todo" or "copying snapshot".
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: op,
		Cause:   cause,
	}
}

// Busy wraps a lock-contention failure (SQLITE_BUSY, SQLITE_LOCKED). It does
// not match ErrStorage, so IsFatal ignores it.
func Busy(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrBusy,
		Message: op,
		Cause:   cause,
	}
}

// SafetyBackupFailed wraps the error that stopped the pre-restore copy.
func SafetyBackupFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrSafetyBackup,
		Message: "restore aborted: could not back up the live database",
		Cause:   cause,
	}
}

// IsFatal reports whether err is a storage failure the serving process should
// not survive. Abandoned requests (cancelled or timed-out contexts) and lock
// contention (ErrBusy) are not fatal.
func IsFatal(err error) bool {
	if err == nil || !errors.Is(err, ErrStorage) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
