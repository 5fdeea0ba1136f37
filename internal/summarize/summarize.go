// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package summarize compresses a range of conversation messages into one
// short summary text for long-term memory.
//
// The summarizer is deliberately non-failing: the only error it can
// return is ErrTooFewMessages. Every other problem (backend failure,
// timeout, context too large) resolves to a deterministic fallback
// summary built from the messages themselves, so compaction upstream can
// always proceed.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jeranaias/chatrelay/internal/model"
	"github.com/jeranaias/chatrelay/internal/router"
	"github.com/jeranaias/chatrelay/internal/tokens"
)

// ErrTooFewMessages indicates there is nothing meaningful to compress.
var ErrTooFewMessages = errors.New("too few messages to summarize")

// instruction is the fixed summarization prompt.
const instruction = "You are summarizing a past conversation between an assistant and a user. " +
	"Create a concise summary (2-3 sentences) that captures the key topics discussed, " +
	"important facts shared, and any user preferences or ongoing plans. " +
	"Keep it factual and useful for future context."

const (
	// reservedTokens is held back from the context window for the
	// instruction and the summary response.
	reservedTokens = 500

	// DefaultContextWindow is the assumed backend input budget.
	DefaultContextWindow = 8192

	// DefaultTimeout bounds each summarization call. On timeout the
	// deterministic fallback is used; there is nothing to cancel beyond
	// the request itself.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxTokens caps the summary response length.
	DefaultMaxTokens = 300
)

// topicWords is how many leading words of a user message make it into
// the fallback topic list.
const topicWords = 5

// topicMessages is how many user messages contribute fallback topics.
const topicMessages = 3

// =============================================================================
// SUMMARIZER
// =============================================================================

// Summarizer produces summary texts via the router, with a deterministic
// local fallback.
type Summarizer struct {
	router        *router.Router
	est           tokens.Estimator
	contextWindow int
	timeout       time.Duration
	maxTokens     int
	temperature   float64
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithContextWindow overrides the assumed backend input budget.
func WithContextWindow(n int) Option {
	return func(s *Summarizer) { s.contextWindow = n }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Summarizer) { s.timeout = d }
}

// WithMaxTokens overrides the summary response cap.
func WithMaxTokens(n int) Option {
	return func(s *Summarizer) { s.maxTokens = n }
}

// New creates a summarizer that generates through r.
func New(r *router.Router, est tokens.Estimator, opts ...Option) *Summarizer {
	s := &Summarizer{
		router:        r,
		est:           est,
		contextWindow: DefaultContextWindow,
		timeout:       DefaultTimeout,
		maxTokens:     DefaultMaxTokens,
		temperature:   0.3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize compresses messages into one summary text.
//
// Fails only when len(messages) < 2. All downstream failures resolve to
// FallbackSummary, so callers can treat a nil error as "summary text is
// usable".
func (s *Summarizer) Summarize(ctx context.Context, messages []model.Message) (string, error) {
	if len(messages) < 2 {
		return "", ErrTooFewMessages
	}

	entries := make([]model.Entry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, model.EntryFromMessage(m))
	}

	truncated := tokens.TruncateToFit(s.est, entries, s.contextWindow, reservedTokens)
	if len(truncated) == 0 {
		log.Printf("Summarize: no messages fit the context window, using fallback")
		return FallbackSummary(messages), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.router.Generate(callCtx, instruction, truncated, router.Options{
		SystemPrompt: instruction,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	})
	if err != nil {
		log.Printf("Summarize: generation failed, using fallback: %v", err)
		return FallbackSummary(messages), nil
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		log.Printf("Summarize: empty response from %s, using fallback", resp.Provider)
		return FallbackSummary(messages), nil
	}
	return text, nil
}

// =============================================================================
// FALLBACK
// =============================================================================

// FallbackSummary builds a deterministic summary with no backend call:
// message counts plus the opening words of the first few user messages.
func FallbackSummary(messages []model.Message) string {
	userCount := 0
	botCount := 0
	var topics []string
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			userCount++
			if len(topics) < topicMessages {
				if t := firstWords(m.Content, topicWords); t != "" {
					topics = append(topics, t)
				}
			}
		case model.RoleAssistant:
			botCount++
		}
	}

	summary := fmt.Sprintf("Conversation with %d user messages and %d bot responses.", userCount, botCount)
	if len(topics) > 0 {
		summary += " Topics: " + strings.Join(topics, "; ")
	}
	return summary
}

// firstWords returns the first n whitespace-separated words of s.
func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
