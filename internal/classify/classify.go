// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package classify categorizes user queries with keyword heuristics.
//
// The same pure classification function drives two consumers: the router
// uses categories to pick providers, and the response cache uses them to
// assign TTL buckets. Keeping it in its own package lets both depend on
// it without depending on each other.
package classify

import (
	"fmt"
	"strings"
)

// ============================================================================
// CATEGORY TYPE
// ============================================================================

// Category is the closed set of query categories used for routing and
// cache TTL decisions.
type Category int

const (
	// CategorySimple covers greetings, thanks, and small talk.
	CategorySimple Category = iota
	// CategoryTranslation covers translation requests.
	CategoryTranslation
	// CategoryComplex covers analysis, code, and explanations. Also the
	// default when nothing else matches.
	CategoryComplex
	// CategorySpeedCritical covers short questions that want a fast answer.
	CategorySpeedCritical
)

// String returns the human-readable name of the category.
func (c Category) String() string {
	switch c {
	case CategorySimple:
		return "simple"
	case CategoryTranslation:
		return "translation"
	case CategoryComplex:
		return "complex"
	case CategorySpeedCritical:
		return "speed"
	default:
		return fmt.Sprintf("Category(%d)", c)
	}
}

// ============================================================================
// KEYWORD SETS
// ============================================================================

var (
	simpleKeywords = []string{
		"hello", "hi", "hey", "thanks", "thank you", "bye", "goodbye",
		"how are you", "what's up", "sup",
	}

	// Includes Arabic and Kurdish forms since the deployment serves both.
	translationKeywords = []string{
		"translate", "translation", "ترجم", "wergêre",
	}

	complexKeywords = []string{
		"explain", "analyze", "code", "program", "implement",
		"how does", "why", "compare", "difference",
	}
)

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ============================================================================
// CLASSIFICATION
// ============================================================================

// Classify categorizes a query by keyword matching. It is a pure function
// of the query string: identical input always yields the same category.
//
// Rules, in priority order (first match wins):
//  1. Simple: greetings, thanks, goodbyes
//  2. Translation: "translate" and localized equivalents
//  3. Complex: analytical keywords (explain, analyze, code, compare, ...)
//  4. SpeedCritical: short (< 50 chars) question
//  5. Default: complex, for safety
func Classify(query string) Category {
	q := strings.ToLower(query)

	if containsAny(q, simpleKeywords) {
		return CategorySimple
	}

	if containsAny(q, translationKeywords) {
		return CategoryTranslation
	}

	if containsAny(q, complexKeywords) {
		return CategoryComplex
	}

	// Short questions want fast answers over deep ones.
	if len(query) < 50 && strings.Contains(query, "?") {
		return CategorySpeedCritical
	}

	return CategoryComplex
}
