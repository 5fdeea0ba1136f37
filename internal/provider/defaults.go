// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import "log"

// Standard backend names.
const (
	NameClaude     = "claude"
	NameGemini     = "gemini"
	NameGroq       = "groq"
	NameOpenRouter = "openrouter"
)

// Keys holds the API keys for the standard backends. Empty keys leave
// the backend unregistered.
type Keys struct {
	Claude     string
	Gemini     string
	Groq       string
	OpenRouter string
}

// Standard backend metadata. Prices are dollars per million tokens.
var (
	ClaudeInfo = Info{
		Name:              NameClaude,
		Capabilities:      []Capability{CapText, CapVision, CapTranslation},
		CostInPerMillion:  0.25,
		CostOutPerMillion: 1.25,
		SpeedRank:         3,
		CapabilityRank:    1,
		RequestsPerMinute: 50,
	}

	// Gemini free tier: zero marginal cost, also the fastest.
	GeminiInfo = Info{
		Name:              NameGemini,
		Capabilities:      []Capability{CapText, CapTranslation},
		CostInPerMillion:  0,
		CostOutPerMillion: 0,
		SpeedRank:         1,
		CapabilityRank:    3,
		RequestsPerMinute: 15,
	}

	GroqInfo = Info{
		Name:              NameGroq,
		Capabilities:      []Capability{CapText, CapTranslation},
		CostInPerMillion:  0.10,
		CostOutPerMillion: 0.10,
		SpeedRank:         2,
		CapabilityRank:    4,
		RequestsPerMinute: 30,
	}

	OpenRouterInfo = Info{
		Name:              NameOpenRouter,
		Capabilities:      []Capability{CapText, CapTranslation},
		CostInPerMillion:  0.15,
		CostOutPerMillion: 0.15,
		SpeedRank:         4,
		CapabilityRank:    2,
		RequestsPerMinute: 20,
	}
)

// RegisterDefaults registers a client for every backend with a key.
// Registration order fixes the last-resort selection order.
func RegisterDefaults(reg *Registry, keys Keys) {
	if keys.Claude != "" {
		reg.Register(ClaudeInfo, NewClaudeClient(keys.Claude))
		log.Printf("Registered backend: claude (key fingerprint %s)", keyFingerprint(keys.Claude))
	}
	if keys.Gemini != "" {
		reg.Register(GeminiInfo, NewGeminiClient(keys.Gemini))
		log.Printf("Registered backend: gemini (key fingerprint %s)", keyFingerprint(keys.Gemini))
	}
	if keys.Groq != "" {
		reg.Register(GroqInfo, NewGroqClient(keys.Groq))
		log.Printf("Registered backend: groq (key fingerprint %s)", keyFingerprint(keys.Groq))
	}
	if keys.OpenRouter != "" {
		reg.Register(OpenRouterInfo, NewOpenRouterClient(keys.OpenRouter))
		log.Printf("Registered backend: openrouter (key fingerprint %s)", keyFingerprint(keys.OpenRouter))
	}
}
