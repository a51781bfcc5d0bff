/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the repository failure categories.
// Callers branch on Kind, never on concrete error types.
type Kind int

const (
	// KindUnknown is the zero kind, used when a failure cannot be classified.
	KindUnknown Kind = iota

	// KindNotFound indicates the addressed entity does not exist.
	KindNotFound

	// KindValidationFailed indicates the caller's input failed validation.
	KindValidationFailed

	// KindPermissionDenied indicates the caller is not allowed to perform
	// the operation.
	KindPermissionDenied

	// KindConflict indicates an optimistic-lock or concurrent-modification
	// failure.
	KindConflict

	// KindFailedPrecondition indicates the operation cannot run in the
	// current system state (for example: a second Init attempt).
	KindFailedPrecondition

	// KindInvalidArgument indicates a malformed request (for example: a
	// cursor paired with a non-identity terminal sort key).
	KindInvalidArgument

	// KindBatchFailed indicates a partial failure within a multi-item write.
	KindBatchFailed

	// KindTransactionFailed indicates the store transaction could not commit.
	KindTransactionFailed

	// KindMigrationFailed indicates a schema migration step failed.
	KindMigrationFailed

	// KindOfflineQueued indicates the operation was deferred to the offline
	// queue and has not yet been applied.
	KindOfflineQueued

	// KindUnavailable indicates a transient infrastructure failure.
	KindUnavailable

	// KindDeadlineExceeded indicates the store call timed out.
	KindDeadlineExceeded

	// KindAborted indicates the store aborted the operation, typically a
	// transaction contention signal.
	KindAborted

	// KindInternal indicates an internal invariant was violated.
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNotFound:           "not found",
	KindValidationFailed:   "validation failed",
	KindPermissionDenied:   "permission denied",
	KindConflict:           "conflict",
	KindFailedPrecondition: "failed precondition",
	KindInvalidArgument:    "invalid argument",
	KindBatchFailed:        "batch failed",
	KindTransactionFailed:  "transaction failed",
	KindMigrationFailed:    "migration failed",
	KindOfflineQueued:      "offline queued",
	KindUnavailable:        "unavailable",
	KindDeadlineExceeded:   "deadline exceeded",
	KindAborted:            "aborted",
	KindInternal:           "internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the single error type surfaced by the library. It carries a
// Kind for classification, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match two classified errors by kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// E constructs an *Error with the given kind and formatted message.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. A nil cause
// yields nil so call sites can wrap unconditionally.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether an error's kind is a transient infrastructure
// failure that the retry policy may re-attempt. Precondition, validation
// and permission failures are never retryable.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindDeadlineExceeded, KindAborted, KindInternal:
		return true
	default:
		return false
	}
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict checks if an error is an optimistic-lock or concurrency conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsValidationFailed checks if an error is a validation error.
func IsValidationFailed(err error) bool { return KindOf(err) == KindValidationFailed }

// IsPermissionDenied checks if an error is a permission error.
func IsPermissionDenied(err error) bool { return KindOf(err) == KindPermissionDenied }

// IsFailedPrecondition checks if an error is a failed-precondition error.
func IsFailedPrecondition(err error) bool { return KindOf(err) == KindFailedPrecondition }

// IsInvalidArgument checks if an error is an invalid-argument error.
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }

// IsBatchFailed checks if an error is a partial batch failure.
func IsBatchFailed(err error) bool { return KindOf(err) == KindBatchFailed }

// IsOfflineQueued checks if an error marks an operation deferred to the
// offline queue.
func IsOfflineQueued(err error) bool { return KindOf(err) == KindOfflineQueued }

// IsInternal checks if an error is an internal-invariant violation.
func IsInternal(err error) bool { return KindOf(err) == KindInternal }

// IsAborted checks if an error marks a transaction lost to a concurrent
// writer.
func IsAborted(err error) bool { return KindOf(err) == KindAborted }

// IsUnavailable checks if an error reports a transiently unreachable store.
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }
