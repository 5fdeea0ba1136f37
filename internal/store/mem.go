// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"sync"

	"github.com/jeranaias/chatrelay/internal/model"
)

// MemStore is an in-memory Store. Used in tests and as a stand-in when
// no database path is configured.
type MemStore struct {
	mu        sync.Mutex
	messages  map[model.SessionKey][]model.Message
	summaries map[model.SessionKey][]model.Summary

	// FailWrites, when set, makes every write return ErrWriteFailed.
	FailWrites bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		messages:  make(map[model.SessionKey][]model.Message),
		summaries: make(map[model.SessionKey][]model.Summary),
	}
}

// AppendMessage implements Store.
func (m *MemStore) AppendMessage(ctx context.Context, msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	m.messages[msg.SessionKey] = append(m.messages[msg.SessionKey], msg)
	return nil
}

// ListRecent implements Store.
func (m *MemStore) ListRecent(ctx context.Context, key model.SessionKey, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[key]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CompactRange implements Store.
func (m *MemStore) CompactRange(ctx context.Context, key model.SessionKey, summary model.Summary, startSeq, endSeq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	m.summaries[key] = append(m.summaries[key], summary)
	var kept []model.Message
	for _, msg := range m.messages[key] {
		if msg.Seq >= startSeq && msg.Seq <= endSeq {
			continue
		}
		kept = append(kept, msg)
	}
	m.messages[key] = kept
	return nil
}

// ListSummaries implements Store.
func (m *MemStore) ListSummaries(ctx context.Context, key model.SessionKey) ([]model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Summary, len(m.summaries[key]))
	copy(out, m.summaries[key])
	return out, nil
}

// DeleteSession implements Store.
func (m *MemStore) DeleteSession(ctx context.Context, key model.SessionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	delete(m.messages, key)
	delete(m.summaries, key)
	return nil
}

// Close implements Store.
func (m *MemStore) Close() error { return nil }
