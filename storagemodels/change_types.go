/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import "time"

// ChangeKind enumerates the realtime change notifications a listener
// receives.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// ChangeEvent is one realtime change pushed to a subscriber.
type ChangeEvent struct {
	Kind     ChangeKind
	Document Document
	At       time.Time
}

// ListenTarget addresses either one document or one query within a
// collection. Exactly one of ID or Query is set.
type ListenTarget struct {
	ID    string
	Query *QueryParams
}

// SubscribeOptions configures subscription delivery.
type SubscribeOptions struct {
	// BufferSize is the event channel buffer (default 16).
	BufferSize int
	// IncludeDeleted delivers events for soft-deleted documents too.
	IncludeDeleted bool
}

// SubscribeOption is a functional option for configuring subscriptions.
type SubscribeOption func(*SubscribeOptions)

// DefaultSubscribeOptions returns the default subscription options.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{BufferSize: 16}
}

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) SubscribeOption {
	return func(opts *SubscribeOptions) {
		opts.BufferSize = size
	}
}

// WithDeleted delivers events for soft-deleted documents.
func WithDeleted() SubscribeOption {
	return func(opts *SubscribeOptions) {
		opts.IncludeDeleted = true
	}
}
