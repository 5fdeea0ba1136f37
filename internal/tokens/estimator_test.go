// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"strings"
	"testing"

	"github.com/jeranaias/chatrelay/internal/model"
)

func TestHeuristicEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1 + MessageOverheadTokens},
		{"exactly four chars", "abcd", 1 + MessageOverheadTokens},
		{"five chars rounds up", "abcde", 2 + MessageOverheadTokens},
		{"hundred chars", strings.Repeat("x", 100), 25 + MessageOverheadTokens},
	}

	var h Heuristic
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateEntry(t *testing.T) {
	var h Heuristic
	e := model.Entry{Role: "user", Content: "abcd"}
	want := 1 + MessageOverheadTokens + RoleOverheadTokens
	if got := EstimateEntry(h, e); got != want {
		t.Errorf("EstimateEntry = %d, want %d", got, want)
	}
}

func TestEstimateEntries(t *testing.T) {
	var h Heuristic
	entries := []model.Entry{
		{Role: "user", Content: "abcd"},
		{Role: "assistant", Content: "abcdefgh"},
	}
	want := (1 + MessageOverheadTokens + RoleOverheadTokens) +
		(2 + MessageOverheadTokens + RoleOverheadTokens)
	if got := EstimateEntries(h, entries); got != want {
		t.Errorf("EstimateEntries = %d, want %d", got, want)
	}
}

func entryOfSize(role string, chars int) model.Entry {
	return model.Entry{Role: role, Content: strings.Repeat("x", chars)}
}

func TestTruncateToFit(t *testing.T) {
	var h Heuristic

	// Each entry below costs 25+10+5 = 40 tokens.
	entries := []model.Entry{
		entryOfSize("user", 100),
		entryOfSize("assistant", 100),
		entryOfSize("user", 100),
		entryOfSize("assistant", 100),
	}

	tests := []struct {
		name      string
		maxTokens int
		reserved  int
		wantLen   int
	}{
		{"all fit", 200, 0, 4},
		{"exactly all fit", 160, 0, 4},
		{"drop oldest", 120, 0, 3},
		{"keep only newest", 40, 0, 1},
		{"reserved shrinks budget", 200, 80, 3},
		{"nothing fits", 39, 0, 0},
		{"zero budget", 100, 100, 0},
		{"negative budget", 50, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateToFit(h, entries, tt.maxTokens, tt.reserved)
			if len(got) != tt.wantLen {
				t.Fatalf("kept %d entries, want %d", len(got), tt.wantLen)
			}
			// Result must be the newest entries in original order.
			for i, e := range got {
				want := entries[len(entries)-tt.wantLen+i]
				if e.Content != want.Content || e.Role != want.Role {
					t.Errorf("entry %d = %+v, want %+v", i, e, want)
				}
			}
			// Kept subset must fit the budget.
			if total := EstimateEntries(h, got); total > tt.maxTokens-tt.reserved {
				t.Errorf("kept entries estimate %d exceeds budget %d", total, tt.maxTokens-tt.reserved)
			}
		})
	}
}

func TestTruncateToFitStopsAtFirstOverflow(t *testing.T) {
	var h Heuristic

	// A huge old entry followed by small recent ones. The scan must stop
	// at the huge entry even if older small entries would fit.
	entries := []model.Entry{
		entryOfSize("user", 4),      // 16 tokens
		entryOfSize("user", 4000),   // 1015 tokens
		entryOfSize("assistant", 4), // 16 tokens
		entryOfSize("user", 4),      // 16 tokens
	}

	got := TruncateToFit(h, entries, 100, 0)
	if len(got) != 2 {
		t.Fatalf("kept %d entries, want 2", len(got))
	}
	if got[0].Role != "assistant" {
		t.Errorf("first kept entry role = %q, want assistant", got[0].Role)
	}
}

func TestTruncateToFitEmpty(t *testing.T) {
	var h Heuristic
	if got := TruncateToFit(h, nil, 100, 0); got != nil {
		t.Errorf("TruncateToFit(nil) = %v, want nil", got)
	}
}

func TestTruncateSummariesToFit(t *testing.T) {
	var h Heuristic

	// Each summary costs 25+10 = 35 tokens.
	summaries := []string{
		strings.Repeat("a", 100),
		strings.Repeat("b", 100),
		strings.Repeat("c", 100),
	}

	tests := []struct {
		name      string
		maxTokens int
		reserved  int
		wantLen   int
	}{
		{"all fit", 200, 0, 3},
		{"oldest kept first", 75, 0, 2},
		{"one fits", 35, 0, 1},
		{"none fit", 34, 0, 0},
		{"zero budget after reserve", 100, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateSummariesToFit(h, summaries, tt.maxTokens, tt.reserved)
			if len(got) != tt.wantLen {
				t.Fatalf("kept %d summaries, want %d", len(got), tt.wantLen)
			}
			for i, s := range got {
				if s != summaries[i] {
					t.Errorf("summary %d does not match oldest-first order", i)
				}
			}
		})
	}
}
