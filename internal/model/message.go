// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSummary marks an entry derived from compaction. Summary-derived
	// entries are tagged distinctly inside the window; GetContext renders
	// them as ordinary user turns for providers that reject system roles.
	RoleSummary Role = "summary"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid returns true if the role is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSummary
}

// =============================================================================
// SESSION KEY
// =============================================================================

// SessionKey identifies one conversation window: a user in a channel.
// Different keys are fully independent and may be mutated in parallel.
type SessionKey string

// NewSessionKey builds the canonical session key from a user and channel ID.
func NewSessionKey(userID, channelID string) SessionKey {
	return SessionKey(userID + ":" + channelID)
}

// String returns the string representation of the key.
func (k SessionKey) String() string {
	return string(k)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single conversation turn.
// Messages are immutable once created; compaction removes them from the
// window but never edits them.
type Message struct {
	// Identity
	ID         string     `json:"id"`
	SessionKey SessionKey `json:"session_key"`
	Role       Role       `json:"role"`

	// Seq is the per-session monotone sequence number, assigned when the
	// message enters the window. Summary ranges are expressed in Seq.
	Seq int64 `json:"seq"`

	// Content
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a new message with a generated ID. seq is the
// per-session sequence number assigned by the caller.
func NewMessage(key SessionKey, role Role, content string, seq int64) Message {
	return Message{
		ID:         uuid.NewString(),
		SessionKey: key,
		Role:       role,
		Seq:        seq,
		Content:    content,
		Timestamp:  time.Now(),
	}
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// =============================================================================
// SUMMARY TYPE
// =============================================================================

// Summary is a compacted prefix of older messages.
// Summaries are append-only: ordered by RangeEnd ascending, never mutated
// in place, and never dropped by the window size invariant.
type Summary struct {
	SessionKey SessionKey `json:"session_key"`

	// Text is the summary content (LLM-generated or deterministic fallback).
	Text string `json:"text"`

	// MessageCount is how many live messages this summary replaced.
	MessageCount int `json:"message_count"`

	// RangeStart and RangeEnd are the Seq bounds of the compacted messages,
	// inclusive. For any two summaries i < j in a window,
	// summaries[i].RangeEnd <= summaries[j].RangeStart.
	RangeStart int64 `json:"range_start"`
	RangeEnd   int64 `json:"range_end"`

	CreatedAt time.Time `json:"created_at"`
}

// ContextText renders the summary the way it is handed to providers:
// as a bracketed context note, not an authoritative turn.
func (s Summary) ContextText() string {
	return fmt.Sprintf("[Previous conversation summary: %s]", s.Text)
}

// =============================================================================
// CONTEXT ENTRY
// =============================================================================

// Entry is one flattened context item handed to a provider: either a live
// message or a summary rendered as a plain conversational turn.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EntryFromMessage converts a live message into a provider entry.
func EntryFromMessage(m Message) Entry {
	return Entry{Role: m.Role.String(), Content: m.Content}
}

// EntryFromSummary converts a summary into a provider entry. The role is
// normalized to "user" because several providers reject system turns in
// the middle of a conversation.
func EntryFromSummary(s Summary) Entry {
	return Entry{Role: RoleUser.String(), Content: s.ContextText()}
}
