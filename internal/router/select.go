// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"github.com/jeranaias/chatrelay/internal/classify"
	"github.com/jeranaias/chatrelay/internal/provider"
)

// =============================================================================
// FALLBACK CHAINS
// =============================================================================

// fallbackChains maps each backend to its fixed, ordered alternates.
// A chain never contains its own root; order must not be randomized so
// that cost accounting and failure attribution stay reproducible.
var fallbackChains = map[string][]string{
	provider.NameClaude:     {provider.NameGemini, provider.NameGroq, provider.NameOpenRouter},
	provider.NameGemini:     {provider.NameGroq, provider.NameClaude, provider.NameOpenRouter},
	provider.NameGroq:       {provider.NameGemini, provider.NameClaude, provider.NameOpenRouter},
	provider.NameOpenRouter: {provider.NameClaude, provider.NameGemini, provider.NameGroq},
}

// FallbackChain returns the fallback chain rooted at name, filtered to
// the backends currently registered in reg. Unknown names get an empty
// chain.
func FallbackChain(reg *provider.Registry, name string) []string {
	var out []string
	for _, candidate := range fallbackChains[name] {
		if _, ok := reg.Get(candidate); ok {
			out = append(out, candidate)
		}
	}
	return out
}

// dispatchChain builds the full candidate order for a request: the
// selected backend followed by its fallback chain, capability-filtered.
func (r *Router) dispatchChain(selected string, hasImage bool) []string {
	chain := []string{selected}
	if r.enableFallback {
		chain = append(chain, FallbackChain(r.registry, selected)...)
	}

	var out []string
	for _, name := range chain {
		p, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		if compatible(p.Info, hasImage) {
			out = append(out, name)
		}
	}
	return out
}

// =============================================================================
// SELECTION
// =============================================================================

// compatible reports whether a backend can serve a request.
func compatible(info provider.Info, hasImage bool) bool {
	if hasImage {
		return info.Has(provider.CapVision)
	}
	return info.Has(provider.CapText)
}

// totalPrice is the comparison price for "cheapest" selection.
func totalPrice(info provider.Info) float64 {
	return info.CostInPerMillion + info.CostOutPerMillion
}

// selectProvider picks the starting backend for a category.
//
// Rules:
//   - image requests: a vision-capable backend, or ErrProviderUnavailable
//   - simple: the cheapest backend
//   - speed-critical: the lowest-latency backend
//   - complex: the highest-capability backend
//   - translation: the cheapest backend
//   - otherwise: the configured primary, else the first registered
func (r *Router) selectProvider(category classify.Category, hasImage bool) (string, error) {
	if hasImage {
		name := r.pick(func(best, p provider.Info) bool {
			return p.CapabilityRank < best.CapabilityRank
		}, true)
		if name == "" {
			return "", ErrProviderUnavailable
		}
		return name, nil
	}

	var name string
	switch category {
	case classify.CategorySimple, classify.CategoryTranslation:
		name = r.pick(func(best, p provider.Info) bool {
			return totalPrice(p) < totalPrice(best)
		}, false)
	case classify.CategorySpeedCritical:
		name = r.pick(func(best, p provider.Info) bool {
			return p.SpeedRank < best.SpeedRank
		}, false)
	case classify.CategoryComplex:
		name = r.pick(func(best, p provider.Info) bool {
			return p.CapabilityRank < best.CapabilityRank
		}, false)
	}

	if name == "" {
		name = r.defaultProvider(hasImage)
	}
	if name == "" {
		return "", ErrProviderUnavailable
	}
	return name, nil
}

// pick scans registered backends in registration order and returns the
// one the better function prefers. Ties keep the earlier registration.
func (r *Router) pick(better func(best, p provider.Info) bool, needVision bool) string {
	var best provider.Info
	name := ""
	for _, p := range r.registry.All() {
		if !compatible(p.Info, needVision) {
			continue
		}
		if name == "" || better(best, p.Info) {
			best = p.Info
			name = p.Name
		}
	}
	return name
}

// defaultProvider returns the configured primary if registered and
// compatible, else the first registered compatible backend.
func (r *Router) defaultProvider(hasImage bool) string {
	if p, ok := r.registry.Get(r.primary); ok && compatible(p.Info, hasImage) {
		return r.primary
	}
	for _, p := range r.registry.All() {
		if compatible(p.Info, hasImage) {
			return p.Name
		}
	}
	return ""
}
