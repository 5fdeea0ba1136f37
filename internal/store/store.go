// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists per-session message logs and summary logs.
//
// The durable history is an audit log, independent of the in-memory
// conversation window: clearing one never touches the other. The one
// non-negotiable is CompactRange, which must apply the summary insert
// and the message-range delete as a single atomic unit so a crash cannot
// silently lose messages.
package store

import (
	"context"
	"errors"

	"github.com/jeranaias/chatrelay/internal/model"
)

// ErrWriteFailed indicates a durable write did not complete. Callers
// must surface it; losing durability silently is unacceptable.
var ErrWriteFailed = errors.New("store write failed")

// Store is the conversation persistence interface.
type Store interface {
	// AppendMessage durably appends one message to the session log.
	AppendMessage(ctx context.Context, msg model.Message) error

	// ListRecent returns up to limit of the newest messages for the
	// session, oldest first.
	ListRecent(ctx context.Context, key model.SessionKey, limit int) ([]model.Message, error)

	// CompactRange records a compaction: the summary is appended and the
	// messages with seq in [startSeq, endSeq] are deleted, atomically.
	CompactRange(ctx context.Context, key model.SessionKey, summary model.Summary, startSeq, endSeq int64) error

	// ListSummaries returns the session's summaries ordered by range end.
	ListSummaries(ctx context.Context, key model.SessionKey) ([]model.Summary, error)

	// DeleteSession removes all messages and summaries for the session.
	DeleteSession(ctx context.Context, key model.SessionKey) error

	// Close releases the store's resources.
	Close() error
}
