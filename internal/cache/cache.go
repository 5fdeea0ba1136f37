// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides an LRU response cache with per-query TTLs.
//
// Responses are keyed by a hash of the normalized query plus the
// serialized conversation context, so the same question asked in a
// different conversation state is a different entry. The TTL of an entry
// is fixed at insertion time from the query's classification and never
// changes afterwards.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatrelay/internal/classify"
	"github.com/jeranaias/chatrelay/internal/model"
)

// =============================================================================
// TTL BUCKETS
// =============================================================================

// TTLBucket is a named cache-expiration class assigned at insertion.
type TTLBucket string

const (
	// BucketGreeting covers hellos and pleasantries (1 hour).
	BucketGreeting TTLBucket = "greeting"
	// BucketCommonQuestion covers frequent factual questions (1 hour).
	BucketCommonQuestion TTLBucket = "common_question"
	// BucketTranslation covers translation results (24 hours).
	BucketTranslation TTLBucket = "translation"
	// BucketHelp covers help and command listings (7 days).
	BucketHelp TTLBucket = "help"
	// BucketStatic never expires. Reserved for fixed content.
	BucketStatic TTLBucket = "static"
	// BucketDefault covers everything else (30 minutes).
	BucketDefault TTLBucket = "default"
)

// TTL returns the time-to-live for the bucket. Zero means never expires.
func (b TTLBucket) TTL() time.Duration {
	switch b {
	case BucketGreeting, BucketCommonQuestion:
		return time.Hour
	case BucketTranslation:
		return 24 * time.Hour
	case BucketHelp:
		return 7 * 24 * time.Hour
	case BucketStatic:
		return 0
	default:
		return 30 * time.Minute
	}
}

var (
	greetingKeywords = []string{"hello", "hi", "hey", "greetings", "سڵاو", "merheba"}
	helpKeywords     = []string{"help", "commands", "what can you do"}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// BucketFor maps a query to its TTL bucket. It reuses the router's
// classification so cache and routing never disagree about what a query
// is, then refines simple queries into greeting vs common-question and
// pulls out help queries for long-lived caching.
func BucketFor(query string) TTLBucket {
	q := strings.ToLower(query)

	switch classify.Classify(query) {
	case classify.CategorySimple:
		if containsAny(q, greetingKeywords) {
			return BucketGreeting
		}
		return BucketCommonQuestion
	case classify.CategoryTranslation:
		return BucketTranslation
	}

	if containsAny(q, helpKeywords) {
		return BucketHelp
	}
	return BucketDefault
}

// =============================================================================
// RESPONSE CACHE
// =============================================================================

// Payload is the cached result of a provider call.
type Payload struct {
	Text      string
	Provider  string
	TokensIn  int
	TokensOut int
}

// entry is a cached response with its expiry metadata.
type entry struct {
	payload    Payload
	bucket     TTLBucket
	insertedAt time.Time
}

// ResponseCache is an LRU cache of provider responses with TTL expiry.
// Safe for concurrent use; the LRU order mutates on every read and write
// so all operations take the write lock.
type ResponseCache struct {
	mu          sync.Mutex
	cache       map[string]*entry
	maxEntries  int
	accessOrder []string // For LRU eviction

	// Statistics
	hits    int
	misses  int
	sets    map[TTLBucket]int
	evicted int
	expired int

	now func() time.Time // Injectable clock for tests
}

// Stats holds cache statistics.
type Stats struct {
	Hits       int
	Misses     int
	EntryCount int
	MaxEntries int
	HitRate    float64
	Evicted    int
	Expired    int
	SetsByTTL  map[TTLBucket]int
}

// New creates a response cache holding at most maxEntries entries.
// maxEntries defaults to 1000 when non-positive.
func New(maxEntries int) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &ResponseCache{
		cache:       make(map[string]*entry),
		maxEntries:  maxEntries,
		accessOrder: make([]string, 0, maxEntries),
		sets:        make(map[TTLBucket]int),
		now:         time.Now,
	}
}

// key derives the cache key from the normalized query and the serialized
// conversation context. Context serialization failure degrades to a
// query-only key rather than failing the lookup.
func key(query string, context []model.Entry) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))
	h.Write([]byte{0})
	if len(context) > 0 {
		if b, err := json.Marshal(context); err == nil {
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached payload for (query, context) if present and not
// expired. An expired entry is evicted on access and reported as a miss.
// A hit moves the entry to the most-recently-used position.
func (rc *ResponseCache) Get(query string, context []model.Entry) (Payload, bool) {
	k := key(query, context)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	e, ok := rc.cache[k]
	if !ok {
		rc.misses++
		return Payload{}, false
	}

	if ttl := e.bucket.TTL(); ttl > 0 && rc.now().Sub(e.insertedAt) > ttl {
		rc.removeLocked(k)
		rc.expired++
		rc.misses++
		return Payload{}, false
	}

	rc.touchLocked(k)
	rc.hits++
	return e.payload, true
}

// Set stores a payload for (query, context). The TTL bucket is fixed now,
// from the query classification, and never revised. Inserting at capacity
// evicts the least recently used entry.
func (rc *ResponseCache) Set(query string, context []model.Entry, payload Payload) {
	k := key(query, context)
	bucket := BucketFor(query)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, ok := rc.cache[k]; !ok {
		for len(rc.cache) >= rc.maxEntries {
			if len(rc.accessOrder) == 0 {
				break
			}
			rc.removeLocked(rc.accessOrder[0])
			rc.evicted++
		}
	}

	rc.cache[k] = &entry{
		payload:    payload,
		bucket:     bucket,
		insertedAt: rc.now(),
	}
	rc.touchLocked(k)
	rc.sets[bucket]++
}

// Clear removes all entries. Statistics are preserved.
func (rc *ResponseCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache = make(map[string]*entry)
	rc.accessOrder = make([]string, 0, rc.maxEntries)
}

// Stats returns a snapshot of cache statistics.
func (rc *ResponseCache) Stats() Stats {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	hitRate := 0.0
	if total := rc.hits + rc.misses; total > 0 {
		hitRate = float64(rc.hits) / float64(total)
	}

	byTTL := make(map[TTLBucket]int, len(rc.sets))
	for b, n := range rc.sets {
		byTTL[b] = n
	}

	return Stats{
		Hits:       rc.hits,
		Misses:     rc.misses,
		EntryCount: len(rc.cache),
		MaxEntries: rc.maxEntries,
		HitRate:    hitRate,
		Evicted:    rc.evicted,
		Expired:    rc.expired,
		SetsByTTL:  byTTL,
	}
}

// removeLocked removes an entry (must hold lock).
func (rc *ResponseCache) removeLocked(k string) {
	if _, ok := rc.cache[k]; !ok {
		return
	}
	delete(rc.cache, k)
	for i, key := range rc.accessOrder {
		if key == k {
			rc.accessOrder = append(rc.accessOrder[:i], rc.accessOrder[i+1:]...)
			break
		}
	}
}

// touchLocked moves an entry to the most-recently-used position (must
// hold lock).
func (rc *ResponseCache) touchLocked(k string) {
	for i, key := range rc.accessOrder {
		if key == k {
			rc.accessOrder = append(rc.accessOrder[:i], rc.accessOrder[i+1:]...)
			break
		}
	}
	rc.accessOrder = append(rc.accessOrder, k)
}
