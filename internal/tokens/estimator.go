// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/jeranaias/chatrelay/internal/model"
)

// =============================================================================
// ESTIMATION CONSTANTS
// =============================================================================

const (
	// CharsPerToken is the approximate character-to-token ratio for
	// Claude-class models (~4 chars per token on average).
	CharsPerToken = 4

	// MessageOverheadTokens is the fixed formatting overhead added per
	// message body (~10 tokens).
	MessageOverheadTokens = 10

	// RoleOverheadTokens is the fixed overhead for the role field of a
	// message (~5 tokens).
	RoleOverheadTokens = 5
)

// =============================================================================
// ESTIMATOR INTERFACE
// =============================================================================

// Estimator approximates the token cost of a text string.
type Estimator interface {
	// Estimate returns the approximate token count for text, including
	// per-message formatting overhead. Empty text costs zero.
	Estimate(text string) int
}

// =============================================================================
// HEURISTIC ESTIMATOR
// =============================================================================

// Heuristic is the default estimator: ceil(len/4) plus fixed overhead.
// Cheap, deterministic, and slightly pessimistic, which is the right
// direction for an overflow guard.
type Heuristic struct{}

// Estimate returns ceil(len(text)/CharsPerToken) + MessageOverheadTokens.
func (Heuristic) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text)+CharsPerToken-1)/CharsPerToken + MessageOverheadTokens
}

// =============================================================================
// TIKTOKEN ESTIMATOR
// =============================================================================

// Tiktoken estimates with the cl100k_base BPE encoding. More accurate
// than the heuristic for mixed-script text, at the cost of encoding work
// per call.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken creates a cl100k_base estimator.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

// Estimate returns the encoded token count plus per-message overhead.
func (t *Tiktoken) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil)) + MessageOverheadTokens
}

// =============================================================================
// MESSAGE ESTIMATION
// =============================================================================

// EstimateEntry returns the token cost of one context entry: the content
// estimate plus the role overhead.
func EstimateEntry(est Estimator, e model.Entry) int {
	return est.Estimate(e.Content) + RoleOverheadTokens
}

// EstimateEntries returns the total token cost of a list of entries.
func EstimateEntries(est Estimator, entries []model.Entry) int {
	total := 0
	for _, e := range entries {
		total += EstimateEntry(est, e)
	}
	return total
}

// =============================================================================
// TRUNCATION
// =============================================================================

// TruncateToFit trims entries so their estimated total fits within
// maxTokens minus reservedTokens. It keeps the most recent entries,
// scanning newest to oldest and stopping at the first entry that would
// exceed the budget; the result preserves chronological order.
//
// Dropping the oldest entries first is a hard requirement: recency wins
// over completeness. The returned slice's estimate never exceeds
// maxTokens - reservedTokens.
func TruncateToFit(est Estimator, entries []model.Entry, maxTokens, reservedTokens int) []model.Entry {
	available := maxTokens - reservedTokens
	if available <= 0 {
		return nil
	}

	// Walk backwards from the newest entry until the budget is spent.
	kept := 0
	current := 0
	for i := len(entries) - 1; i >= 0; i-- {
		cost := EstimateEntry(est, entries[i])
		if current+cost > available {
			break
		}
		current += cost
		kept++
	}

	if kept == 0 {
		return nil
	}
	out := make([]model.Entry, kept)
	copy(out, entries[len(entries)-kept:])
	return out
}

// TruncateSummariesToFit trims a summary list to a token budget, keeping
// summaries oldest-first until the budget is exhausted. Used when
// injecting long-term memory into a system prompt.
func TruncateSummariesToFit(est Estimator, summaries []string, maxTokens, reservedTokens int) []string {
	available := maxTokens - reservedTokens
	if available <= 0 {
		return nil
	}

	var out []string
	current := 0
	for _, s := range summaries {
		cost := est.Estimate(s)
		if current+cost > available {
			break
		}
		current += cost
		out = append(out, s)
	}
	return out
}
