// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the caller-facing surface of the relay: one Respond
// call per conversational turn, plus observability accessors.
//
// Failure policy: backend problems are absorbed and answered with one
// fixed friendly message, never a raw error string. Durable-write
// failures are the exception; those propagate, because silently losing
// history is worse than a failed turn.
package chat

import (
	"context"
	"log"
	"time"

	"github.com/jeranaias/chatrelay/internal/cache"
	"github.com/jeranaias/chatrelay/internal/memory"
	"github.com/jeranaias/chatrelay/internal/model"
	"github.com/jeranaias/chatrelay/internal/provider"
	"github.com/jeranaias/chatrelay/internal/router"
	"github.com/jeranaias/chatrelay/internal/util"
)

// FriendlyFailureMessage is the single user-visible text for a turn no
// backend could serve.
const FriendlyFailureMessage = "I'm having trouble connecting to AI services right now. Please try again in a moment."

// =============================================================================
// SERVICE
// =============================================================================

// Service wires the window assembler and the router into one turn loop.
type Service struct {
	assembler *memory.Assembler
	router    *router.Router
	registry  *provider.Registry

	systemPrompt string
	maxTokens    int
	temperature  float64
}

// Params holds the service's construction parameters.
type Params struct {
	Assembler *memory.Assembler
	Router    *router.Router
	Registry  *provider.Registry

	// SystemPrompt is sent with every generation request.
	SystemPrompt string
	// MaxTokens caps each response.
	MaxTokens int
	// Temperature controls sampling randomness.
	Temperature float64
}

// NewService creates the chat service.
func NewService(p Params) *Service {
	if p.MaxTokens <= 0 {
		p.MaxTokens = 1024
	}
	return &Service{
		assembler:    p.Assembler,
		router:       p.Router,
		registry:     p.Registry,
		systemPrompt: p.SystemPrompt,
		maxTokens:    p.MaxTokens,
		temperature:  p.Temperature,
	}
}

// =============================================================================
// TURN LOOP
// =============================================================================

// TurnOptions carries per-turn extras.
type TurnOptions struct {
	// ImageURL attaches an image to the user's message.
	ImageURL string
}

// Respond runs one conversational turn: record the user message, flatten
// the window, generate, record the assistant message, return the text.
//
// A nil error with the friendly failure text means every backend failed;
// a non-nil error means durable history could not be written.
func (s *Service) Respond(ctx context.Context, key model.SessionKey, userText string) (string, error) {
	return s.RespondWith(ctx, key, userText, TurnOptions{})
}

// RespondWith is Respond with per-turn options.
func (s *Service) RespondWith(ctx context.Context, key model.SessionKey, userText string, opts TurnOptions) (string, error) {
	if err := s.assembler.AddMessage(ctx, key, model.RoleUser, userText); err != nil {
		return "", err
	}

	entries := s.assembler.GetContext(key)

	resp, err := s.router.Generate(ctx, userText, entries, router.Options{
		SystemPrompt: s.systemPrompt,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
		ImageURL:     opts.ImageURL,
	})
	if err != nil {
		// Total backend failure degrades to the fixed friendly text. The
		// user message stays in the window; the turn simply had no answer.
		log.Printf("Respond failed for %s (query=%q): %v",
			key, util.TruncateRunes(userText, 50), err)
		return FriendlyFailureMessage, nil
	}

	if err := s.assembler.AddMessage(ctx, key, model.RoleAssistant, resp.Text); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ClearSession empties the in-memory window for key. Durable history is
// kept; use the store's DeleteSession separately to erase it.
func (s *Service) ClearSession(key model.SessionKey) {
	s.assembler.Clear(key)
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// Stats is the external observability snapshot.
type Stats struct {
	Providers map[string]provider.Snapshot
	Cache     cache.Stats
	TotalCost float64
}

// GetStats returns per-backend stats, cache stats, and total spend.
func (s *Service) GetStats() Stats {
	providers := s.router.ProviderStats()
	total := 0.0
	for _, snap := range providers {
		total += snap.TotalCost
	}
	return Stats{
		Providers: providers,
		Cache:     s.router.CacheStats(),
		TotalCost: total,
	}
}

// ProviderStatus reports, per backend, whether a minimal generation
// round-trip succeeds right now. Keys are backend names; a nil value
// means healthy.
func (s *Service) ProviderStatus(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for _, p := range s.registry.All() {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := p.Generator.Generate(pingCtx, provider.Request{
			Entries:   []model.Entry{{Role: "user", Content: "ping"}},
			MaxTokens: 5,
		})
		cancel()
		out[p.Name] = err
	}
	return out
}
