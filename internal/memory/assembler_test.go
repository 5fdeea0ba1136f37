// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/chatrelay/internal/model"
	"github.com/jeranaias/chatrelay/internal/store"
)

// fakeCompactor returns canned summary text or an error.
type fakeCompactor struct {
	mu    sync.Mutex
	calls int
	fail  bool
	seen  [][]model.Message
}

func (f *fakeCompactor) Summarize(ctx context.Context, messages []model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, messages)
	if f.fail {
		return "", errors.New("summarizer down")
	}
	return fmt.Sprintf("summary of %d messages", len(messages)), nil
}

func (f *fakeCompactor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func addTurns(t *testing.T, a *Assembler, key model.SessionKey, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		if err := a.AddMessage(ctx, key, role, fmt.Sprintf("message %d", i+1)); err != nil {
			t.Fatalf("AddMessage %d: %v", i+1, err)
		}
	}
}

func TestCompactionFiresAtThreshold(t *testing.T) {
	// maxMessages=10, threshold=0.8: the 8th message triggers compaction.
	fc := &fakeCompactor{}
	a := New(store.NewMemStore(), fc, 10, 0.8)
	key := model.NewSessionKey("u1", "c1")

	addTurns(t, a, key, 7)
	if fc.callCount() != 0 {
		t.Fatalf("compaction fired before threshold: %d calls", fc.callCount())
	}

	addTurns(t, a, key, 1)
	if fc.callCount() != 1 {
		t.Fatalf("compaction calls = %d after 8th message, want 1", fc.callCount())
	}

	// keepCount = max(3, floor(10*0.4)) = 4: one summary + 4 live.
	entries := a.GetContext(key)
	if len(entries) != 5 {
		t.Fatalf("window has %d entries, want 5", len(entries))
	}
	if !strings.Contains(entries[0].Content, "summary of 4 messages") {
		t.Errorf("first entry should be the summary, got %q", entries[0].Content)
	}
	if entries[1].Content != "message 5" {
		t.Errorf("oldest kept message = %q, want message 5", entries[1].Content)
	}
	if entries[4].Content != "message 8" {
		t.Errorf("newest message = %q, want message 8", entries[4].Content)
	}
}

func TestWindowBoundAlwaysHolds(t *testing.T) {
	fc := &fakeCompactor{}
	a := New(store.NewMemStore(), fc, 10, 0.8)
	key := model.NewSessionKey("u1", "c1")

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := a.AddMessage(ctx, key, model.RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
		if got := a.EntryCount(key); got > 10 {
			t.Fatalf("window has %d entries after message %d, bound is 10", got, i+1)
		}
	}
}

func TestSummariesMergeInOrder(t *testing.T) {
	fc := &fakeCompactor{}
	st := store.NewMemStore()
	a := New(st, fc, 10, 0.8)
	key := model.NewSessionKey("u1", "c1")

	// Enough turns for at least two compactions.
	addTurns(t, a, key, 20)
	if fc.callCount() < 2 {
		t.Fatalf("expected at least 2 compactions, got %d", fc.callCount())
	}

	sums, err := st.ListSummaries(context.Background(), key)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(sums) < 2 {
		t.Fatalf("persisted summaries = %d, want >= 2", len(sums))
	}
	for i := 0; i+1 < len(sums); i++ {
		if sums[i].RangeEnd > sums[i+1].RangeStart {
			t.Errorf("summary ranges overlap: [%d..%d] then [%d..%d]",
				sums[i].RangeStart, sums[i].RangeEnd, sums[i+1].RangeStart, sums[i+1].RangeEnd)
		}
	}

	// In the window, summaries come first, oldest first.
	entries := a.GetContext(key)
	sawMessage := false
	for _, e := range entries {
		isSummary := strings.HasPrefix(e.Content, "[Previous conversation summary:")
		if isSummary && sawMessage {
			t.Fatal("summary entry after a live message entry")
		}
		if !isSummary {
			sawMessage = true
		}
	}
}

func TestSummarizerFailureTruncatesLossily(t *testing.T) {
	fc := &fakeCompactor{fail: true}
	st := store.NewMemStore()
	a := New(st, fc, 10, 0.8)
	key := model.NewSessionKey("u1", "c1")

	addTurns(t, a, key, 8)

	// No summary: just the kept live messages.
	entries := a.GetContext(key)
	if len(entries) != 4 {
		t.Fatalf("window has %d entries, want 4 after lossy truncation", len(entries))
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Content, "[Previous conversation summary:") {
			t.Error("no summary should exist when the summarizer fails")
		}
	}

	// Lossy truncation must not record a compaction in the store.
	sums, err := st.ListSummaries(context.Background(), key)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(sums) != 0 {
		t.Errorf("persisted summaries = %d, want 0", len(sums))
	}
}

func TestStoreWriteFailurePropagatesButWindowStaysConsistent(t *testing.T) {
	st := store.NewMemStore()
	st.FailWrites = true
	a := New(st, &fakeCompactor{}, 10, 0.8)
	key := model.NewSessionKey("u1", "c1")

	err := a.AddMessage(context.Background(), key, model.RoleUser, "hello")
	if !errors.Is(err, store.ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
	// The message is still in the window.
	entries := a.GetContext(key)
	if len(entries) != 1 || entries[0].Content != "hello" {
		t.Errorf("window inconsistent after write failure: %+v", entries)
	}
}

func TestGetContextRoles(t *testing.T) {
	a := New(nil, &fakeCompactor{}, 15, 0.8)
	key := model.NewSessionKey("u1", "c1")
	ctx := context.Background()

	a.AddMessage(ctx, key, model.RoleUser, "question")
	a.AddMessage(ctx, key, model.RoleAssistant, "answer")

	entries := a.GetContext(key)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Errorf("roles = %q/%q", entries[0].Role, entries[1].Role)
	}
}

func TestClearLeavesStoreUntouched(t *testing.T) {
	st := store.NewMemStore()
	a := New(st, &fakeCompactor{}, 15, 0.8)
	key := model.NewSessionKey("u1", "c1")

	addTurns(t, a, key, 4)
	a.Clear(key)

	if got := a.EntryCount(key); got != 0 {
		t.Errorf("EntryCount = %d after Clear, want 0", got)
	}
	msgs, err := st.ListRecent(context.Background(), key, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("durable log has %d messages after Clear, want 4", len(msgs))
	}
}

func TestSeqContinuesAfterClear(t *testing.T) {
	st := store.NewMemStore()
	a := New(st, &fakeCompactor{}, 15, 0.8)
	key := model.NewSessionKey("u1", "c1")
	ctx := context.Background()

	addTurns(t, a, key, 3)
	a.Clear(key)
	a.AddMessage(ctx, key, model.RoleUser, "after clear")

	msgs, err := st.ListRecent(ctx, key, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	last := msgs[len(msgs)-1]
	if last.Seq != 4 {
		t.Errorf("seq after clear = %d, want 4 (counter must not reset)", last.Seq)
	}
}

func TestSessionsIndependent(t *testing.T) {
	a := New(nil, &fakeCompactor{}, 10, 0.8)
	keyA := model.NewSessionKey("u1", "c1")
	keyB := model.NewSessionKey("u2", "c1")

	addTurns(t, a, keyA, 8) // compacts
	addTurns(t, a, keyB, 2)

	if got := a.EntryCount(keyB); got != 2 {
		t.Errorf("session B entries = %d, want 2", got)
	}
}

func TestConcurrentAddsSameKey(t *testing.T) {
	fc := &fakeCompactor{}
	a := New(store.NewMemStore(), fc, 10, 0.8)
	key := model.NewSessionKey("u1", "c1")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := a.AddMessage(context.Background(), key, model.RoleUser, fmt.Sprintf("g%d-m%d", g, i)); err != nil {
					t.Errorf("AddMessage: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	if got := a.EntryCount(key); got > 10 {
		t.Errorf("window has %d entries after concurrent adds, bound is 10", got)
	}
}

func TestConcurrentAddsDifferentKeys(t *testing.T) {
	a := New(store.NewMemStore(), &fakeCompactor{}, 10, 0.8)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key := model.NewSessionKey(fmt.Sprintf("u%d", g), "c1")
			for i := 0; i < 30; i++ {
				a.AddMessage(context.Background(), key, model.RoleUser, "m")
			}
			if got := a.EntryCount(key); got > 10 {
				t.Errorf("key %s has %d entries", key, got)
			}
		}(g)
	}
	wg.Wait()
}
