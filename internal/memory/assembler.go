// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memory owns the per-session rolling conversation window.
//
// Each window is a run of leading summaries followed by live messages,
// bounded by maxMessages. Appending past the summarize threshold
// triggers compaction: the oldest live messages are replaced by one new
// summary. Every mutation of a window runs under that session's own
// lock, so two concurrent appends on the same key cannot interleave
// with a compaction; different sessions proceed in parallel.
package memory

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/jeranaias/chatrelay/internal/model"
	"github.com/jeranaias/chatrelay/internal/store"
)

// minKeepCount is the floor on messages surviving a compaction.
const minKeepCount = 3

// keepFraction of maxMessages survives a compaction.
const keepFraction = 0.4

// Compactor produces summary text for a message range. Satisfied by
// summarize.Summarizer.
type Compactor interface {
	Summarize(ctx context.Context, messages []model.Message) (string, error)
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler manages all session windows.
type Assembler struct {
	mu      sync.Mutex
	windows map[model.SessionKey]*window

	store       store.Store
	compactor   Compactor
	maxMessages int
	threshold   float64
}

// window is one session's in-memory state. Guarded by its own mutex for
// the full duration of an append-plus-compaction.
type window struct {
	mu        sync.Mutex
	summaries []model.Summary
	messages  []model.Message
	nextSeq   int64
}

// New creates an assembler. st may be nil for a purely in-memory window;
// maxMessages defaults to 15 and threshold to 0.8 when out of range.
func New(st store.Store, compactor Compactor, maxMessages int, threshold float64) *Assembler {
	if maxMessages <= 0 {
		maxMessages = 15
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &Assembler{
		windows:     make(map[model.SessionKey]*window),
		store:       st,
		compactor:   compactor,
		maxMessages: maxMessages,
		threshold:   threshold,
	}
}

// getWindow returns (creating if needed) the window for key.
func (a *Assembler) getWindow(key model.SessionKey) *window {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[key]
	if !ok {
		w = &window{}
		a.windows[key] = w
	}
	return w
}

// =============================================================================
// APPEND + COMPACTION
// =============================================================================

// AddMessage appends one message to the session window, persists it, and
// compacts the window if the summarize threshold is reached.
//
// The message is always applied to the in-memory window first; a durable
// write failure is returned to the caller but never leaves the window
// inconsistent. After AddMessage returns, the window never holds more
// than maxMessages entries.
func (a *Assembler) AddMessage(ctx context.Context, key model.SessionKey, role model.Role, content string) error {
	w := a.getWindow(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextSeq++
	msg := model.NewMessage(key, role, content, w.nextSeq)
	w.messages = append(w.messages, msg)

	var writeErr error
	if a.store != nil {
		writeErr = a.store.AppendMessage(ctx, msg)
	}

	if len(w.summaries)+len(w.messages) >= a.thresholdCount() {
		if err := a.compactLocked(ctx, key, w); err != nil && writeErr == nil {
			writeErr = err
		}
	}

	// The bound is authoritative, whatever the compaction arithmetic
	// did: drop the oldest live messages until it holds. Summaries are
	// never dropped.
	for len(w.summaries)+len(w.messages) > a.maxMessages && len(w.messages) > 0 {
		w.messages = w.messages[1:]
	}

	return writeErr
}

// thresholdCount is the entry count at which compaction fires.
func (a *Assembler) thresholdCount() int {
	return int(math.Ceil(float64(a.maxMessages) * a.threshold))
}

// compactLocked replaces the oldest live messages with one summary. The
// window lock must be held.
//
// Summarizer failure degrades to lossy truncation: the same messages are
// dropped without a summary. Only a durable-write failure is returned,
// and by then the in-memory compaction has already been applied.
func (a *Assembler) compactLocked(ctx context.Context, key model.SessionKey, w *window) error {
	keepCount := int(math.Floor(float64(a.maxMessages) * keepFraction))
	if keepCount < minKeepCount {
		keepCount = minKeepCount
	}
	if len(w.messages) <= keepCount {
		return nil
	}

	toCompact := w.messages[:len(w.messages)-keepCount]
	kept := w.messages[len(w.messages)-keepCount:]

	text, err := a.compactor.Summarize(ctx, toCompact)
	if err != nil {
		// Lossy fallback: drop without summarizing. The bound still
		// holds; only long-term recall suffers.
		log.Printf("Compaction summarize failed for %s, truncating %d messages: %v", key, len(toCompact), err)
		w.messages = append([]model.Message(nil), kept...)
		return nil
	}

	summary := model.Summary{
		SessionKey:   key,
		Text:         text,
		MessageCount: len(toCompact),
		RangeStart:   toCompact[0].Seq,
		RangeEnd:     toCompact[len(toCompact)-1].Seq,
		CreatedAt:    time.Now(),
	}

	// New summaries merge after any pre-existing ones; they are never
	// collapsed into each other.
	w.summaries = append(w.summaries, summary)
	w.messages = append([]model.Message(nil), kept...)

	if a.store != nil {
		if err := a.store.CompactRange(ctx, key, summary, summary.RangeStart, summary.RangeEnd); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// READ SIDE
// =============================================================================

// GetContext returns the flattened window for key: all summaries as
// plain context entries, then live messages, oldest first.
func (a *Assembler) GetContext(key model.SessionKey) []model.Entry {
	w := a.getWindow(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]model.Entry, 0, len(w.summaries)+len(w.messages))
	for _, s := range w.summaries {
		out = append(out, model.EntryFromSummary(s))
	}
	for _, m := range w.messages {
		out = append(out, model.EntryFromMessage(m))
	}
	return out
}

// EntryCount returns the window's current entry count (summaries plus
// live messages).
func (a *Assembler) EntryCount(key model.SessionKey) int {
	w := a.getWindow(key)
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.summaries) + len(w.messages)
}

// Clear empties the in-memory window for key. Durable history in the
// store is untouched; callers wanting that gone must also issue a store
// DeleteSession — the two are independent operations.
func (a *Assembler) Clear(key model.SessionKey) {
	w := a.getWindow(key)
	w.mu.Lock()
	defer w.mu.Unlock()
	// The sequence counter survives so durable seq numbers stay unique
	// per session.
	w.summaries = nil
	w.messages = nil
}
