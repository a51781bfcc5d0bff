/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package errors defines the classified error surface of repokit.
//
// Every error that leaves the library is an *Error tagged with a Kind.
// Callers pattern-match on the kind, either directly via KindOf or
// through the IsXxx helpers:
//
//	rec, err := repo.GetByID(ctx, id)
//	if errors.IsNotFound(err) {
//	    // handle missing entity
//	}
//
// Retryable reports whether the retry policy is allowed to re-attempt an
// operation that failed with the given error. Validation, permission and
// precondition failures are terminal.
package errors
