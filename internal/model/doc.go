// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation memory.
//
// # Key Types
//
//   - Message: a single immutable conversation turn (user/assistant)
//   - Summary: a compacted prefix of older turns, append-only
//   - Role: message sender enumeration
//   - SessionKey: user+channel identity for a conversation window
//
// Messages are created once per turn and removed from the in-memory
// window only by compaction. Summaries are created only during
// compaction and are never mutated in place.
package model
