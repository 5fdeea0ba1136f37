// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the text-generation backend abstraction and
// the concrete HTTP clients for each supported backend.
//
// # Key Types
//
//   - Generator: the single-method interface every backend implements.
//   - Info: static metadata about a backend (capabilities, pricing, ranks).
//   - Provider: a registered backend with its rate limiter.
//   - Registry: the set of registered backends plus per-backend Stats.
//   - Stats: per-backend call counts, latency history, and cost buckets.
//
// Four backends ship with the relay: Claude (vision, highest capability),
// Gemini (cheapest, fastest), Groq (fast, cheap), and OpenRouter (generic
// fallback). Groq and OpenRouter speak the OpenAI-compatible chat
// completions protocol and share one client implementation.
package provider
