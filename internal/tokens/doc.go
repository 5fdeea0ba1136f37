// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens estimates token costs and truncates message lists to a
// budget, preventing prompt overflow before a provider call.
//
// # Key Types
//
//   - Estimator: text -> approximate token count
//   - Heuristic: default ~4 chars/token estimator with per-message overhead
//   - Tiktoken: optional cl100k_base BPE estimator for tighter budgets
//
// # Truncation
//
// TruncateToFit keeps the most recent messages, scanning newest to
// oldest, and always returns a subset whose estimated total fits the
// budget. Recency is prioritized over completeness: the oldest messages
// are the ones dropped, never ones from the middle.
package tokens
