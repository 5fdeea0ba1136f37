// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/chatrelay/internal/model"
)

// =============================================================================
// CAPABILITIES
// =============================================================================

// Capability describes something a backend can do.
type Capability string

const (
	// CapText is ordinary text generation. Every backend has it.
	CapText Capability = "text"
	// CapVision is image understanding.
	CapVision Capability = "vision"
	// CapTranslation marks backends that handle translation well.
	CapTranslation Capability = "translation"
)

// =============================================================================
// GENERATION INTERFACE
// =============================================================================

// Request is a single generation request.
type Request struct {
	// Entries is the flattened conversation context, oldest first.
	Entries []model.Entry
	// SystemPrompt is prepended as the system instruction when non-empty.
	SystemPrompt string
	// MaxTokens caps the response length.
	MaxTokens int
	// Temperature controls sampling randomness.
	Temperature float64
	// ImageURL, when non-empty, attaches an image to the newest user turn.
	// Only vision-capable backends accept it.
	ImageURL string
}

// Result is a successful generation.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Generator is the interface every text-generation backend implements.
type Generator interface {
	// Generate produces a completion for the request. Transport, auth, and
	// API errors are returned as-is; the caller decides about fallback.
	Generate(ctx context.Context, req Request) (*Result, error)
}

// =============================================================================
// PROVIDER METADATA
// =============================================================================

// Info is the static metadata for a backend.
type Info struct {
	// Name is the registry key, e.g. "claude".
	Name string
	// Capabilities lists what the backend can do.
	Capabilities []Capability
	// CostInPerMillion is the input price in dollars per million tokens.
	CostInPerMillion float64
	// CostOutPerMillion is the output price in dollars per million tokens.
	CostOutPerMillion float64
	// SpeedRank orders backends by typical latency. Lower is faster.
	SpeedRank int
	// CapabilityRank orders backends by response quality. Lower is better.
	CapabilityRank int
	// RequestsPerMinute bounds the request rate. Zero means unlimited.
	RequestsPerMinute int
}

// Has reports whether the backend has the given capability.
func (i Info) Has(c Capability) bool {
	for _, have := range i.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Cost computes the dollar cost of a call from its token usage.
func (i Info) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*i.CostInPerMillion +
		float64(outputTokens)/1e6*i.CostOutPerMillion
}

// Provider is a registered backend: metadata, the generator itself, and
// the rate limiter guarding it.
type Provider struct {
	Info
	Generator Generator

	limiter *rate.Limiter
}

// ErrRateLimitWait indicates the rate limiter could not grant a slot
// before the context expired.
var ErrRateLimitWait = errors.New("rate limit wait aborted")

// Acquire blocks until the backend's rate limiter grants a request slot
// or the context is done.
func (p *Provider) Acquire(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return errors.Join(ErrRateLimitWait, err)
	}
	return nil
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the registered backends and their stats. Constructed
// once at startup and passed by reference to every consumer; there is no
// process-wide instance.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]*Provider
	stats     map[string]*Stats
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*Provider),
		stats:     make(map[string]*Stats),
	}
}

// Register adds a backend. Registration order is preserved and used as
// the last-resort selection order. Re-registering a name replaces the
// generator but keeps existing stats.
func (r *Registry) Register(info Info, gen Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var limiter *rate.Limiter
	if info.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(info.RequestsPerMinute)), info.RequestsPerMinute)
	}

	if _, ok := r.providers[info.Name]; !ok {
		r.order = append(r.order, info.Name)
		r.stats[info.Name] = NewStats()
	}
	r.providers[info.Name] = &Provider{Info: info, Generator: gen, limiter: limiter}
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Stats returns the stats tracker for name, or nil if unregistered.
func (r *Registry) Stats(name string) *Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats[name]
}

// All returns the registered backends in registration order.
func (r *Registry) All() []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}
