// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router dispatches generation requests to the best backend.
//
// Routing runs in stages: response cache first, then keyword
// classification, then backend selection by category, then sequential
// dispatch down the selected backend's fallback chain. A budget guard
// silently substitutes a cheaper backend when the selected one is close
// to its monthly cap.
//
// Focus: never fail a request that any registered backend could serve.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jeranaias/chatrelay/internal/cache"
	"github.com/jeranaias/chatrelay/internal/classify"
	"github.com/jeranaias/chatrelay/internal/model"
	"github.com/jeranaias/chatrelay/internal/provider"
)

// Error variables for routing failures.
var (
	// ErrProviderUnavailable indicates no registered backend satisfies a
	// required capability.
	ErrProviderUnavailable = errors.New("no provider available for request")

	// ErrAllProvidersFailed indicates every candidate in the fallback
	// chain failed.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// budgetGuardThreshold is the fraction of the monthly cap at which the
// budget guard starts substituting cheaper backends.
const budgetGuardThreshold = 0.9

// =============================================================================
// ROUTER
// =============================================================================

// Options carries per-request generation parameters.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	// ImageURL marks the request as a vision request when non-empty.
	ImageURL string
}

// Response is the outcome of a successful Generate call.
type Response struct {
	Text     string
	Provider string
	Latency  time.Duration
	Cost     float64
	Category classify.Category
	Cached   bool
}

// Router selects and dispatches to backends.
type Router struct {
	registry       *provider.Registry
	cache          *cache.ResponseCache
	primary        string
	enableFallback bool
	monthlyBudget  float64
}

// Config holds the router's construction parameters.
type Config struct {
	// Primary is the backend used when no category rule applies.
	Primary string
	// EnableFallback enables the per-backend fallback chains.
	EnableFallback bool
	// MonthlyBudget is the per-backend monthly spend cap in dollars.
	// Zero disables the budget guard.
	MonthlyBudget float64
}

// New creates a router over the given registry and response cache.
func New(reg *provider.Registry, rc *cache.ResponseCache, cfg Config) *Router {
	return &Router{
		registry:       reg,
		cache:          rc,
		primary:        cfg.Primary,
		enableFallback: cfg.EnableFallback,
		monthlyBudget:  cfg.MonthlyBudget,
	}
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate answers a query given its conversation context.
//
// The response cache is consulted first. On a miss the query is
// classified, a backend is selected for the category, and dispatch walks
// the backend's fallback chain sequentially until one succeeds. Each
// failed attempt increments that backend's error count. If every
// candidate fails, the returned error wraps the last attempt's error.
func (r *Router) Generate(ctx context.Context, query string, entries []model.Entry, opts Options) (*Response, error) {
	hasImage := opts.ImageURL != ""
	category := classify.Classify(query)

	// Vision requests are never cached; the image is not part of the key.
	if r.cache != nil && !hasImage {
		if payload, ok := r.cache.Get(query, entries); ok {
			return &Response{
				Text:     payload.Text,
				Provider: payload.Provider,
				Category: category,
				Cached:   true,
			}, nil
		}
	}

	selected, err := r.selectProvider(category, hasImage)
	if err != nil {
		return nil, err
	}

	selected = r.applyBudgetGuard(selected, hasImage)

	chain := r.dispatchChain(selected, hasImage)
	if len(chain) == 0 {
		return nil, ErrProviderUnavailable
	}

	req := provider.Request{
		Entries:      entries,
		SystemPrompt: opts.SystemPrompt,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
		ImageURL:     opts.ImageURL,
	}

	// Strictly sequential: one backend at a time, first success wins.
	var lastErr error
	for _, name := range chain {
		p, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		stats := r.registry.Stats(name)

		if err := p.Acquire(ctx); err != nil {
			stats.RecordError()
			lastErr = err
			continue
		}

		start := time.Now()
		result, err := p.Generator.Generate(ctx, req)
		latency := time.Since(start)
		if err != nil {
			stats.RecordError()
			lastErr = err
			log.Printf("Provider %s failed (%v): %v", name, latency, err)
			continue
		}

		cost := p.Cost(result.InputTokens, result.OutputTokens)
		stats.RecordSuccess(latency, result.InputTokens, result.OutputTokens, cost)

		if r.cache != nil && !hasImage {
			r.cache.Set(query, entries, cache.Payload{
				Text:      result.Text,
				Provider:  name,
				TokensIn:  result.InputTokens,
				TokensOut: result.OutputTokens,
			})
		}

		return &Response{
			Text:     result.Text,
			Provider: name,
			Latency:  latency,
			Cost:     cost,
			Category: category,
		}, nil
	}

	if lastErr == nil {
		lastErr = ErrProviderUnavailable
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// =============================================================================
// BUDGET GUARD
// =============================================================================

// applyBudgetGuard substitutes a cheaper capability-compatible backend
// when the selected one has spent 90% of its monthly cap. Substitution
// is silent toward the caller: logged, never surfaced as an error.
func (r *Router) applyBudgetGuard(selected string, hasImage bool) string {
	if r.monthlyBudget <= 0 {
		return selected
	}
	stats := r.registry.Stats(selected)
	if stats == nil {
		return selected
	}
	spend := stats.Spend(provider.PeriodMonthly)
	if spend < budgetGuardThreshold*r.monthlyBudget {
		return selected
	}

	cur, ok := r.registry.Get(selected)
	if !ok {
		return selected
	}
	cheaper := ""
	cheaperPrice := totalPrice(cur.Info)
	for _, p := range r.registry.All() {
		if p.Name == selected || !compatible(p.Info, hasImage) {
			continue
		}
		if price := totalPrice(p.Info); price < cheaperPrice {
			cheaper = p.Name
			cheaperPrice = price
		}
	}
	if cheaper == "" {
		return selected
	}

	log.Printf("Budget guard: %s at $%.2f of $%.2f cap, substituting %s",
		selected, spend, r.monthlyBudget, cheaper)
	return cheaper
}

// =============================================================================
// STATS
// =============================================================================

// ProviderStats returns a stats snapshot per registered backend.
func (r *Router) ProviderStats() map[string]provider.Snapshot {
	out := make(map[string]provider.Snapshot)
	for _, name := range r.registry.Names() {
		if s := r.registry.Stats(name); s != nil {
			out[name] = s.Snapshot()
		}
	}
	return out
}

// CacheStats returns the response cache statistics.
func (r *Router) CacheStats() cache.Stats {
	if r.cache == nil {
		return cache.Stats{}
	}
	return r.cache.Stats()
}
