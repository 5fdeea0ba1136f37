// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatrelay/internal/model"
)

// forEachStore runs a test against both Store implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("mem", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()
		fn(t, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func msg(key model.SessionKey, role model.Role, content string, seq int64) model.Message {
	return model.NewMessage(key, role, content, seq)
}

func TestAppendAndListRecent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := model.NewSessionKey("u1", "c1")

		for i := int64(1); i <= 5; i++ {
			require.NoError(t, s.AppendMessage(ctx, msg(key, model.RoleUser, "message", i)))
		}

		got, err := s.ListRecent(ctx, key, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		// Newest three, chronological order.
		assert.Equal(t, int64(3), got[0].Seq)
		assert.Equal(t, int64(5), got[2].Seq)
	})
}

func TestListRecentEmptySession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		got, err := s.ListRecent(context.Background(), model.NewSessionKey("u", "c"), 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSessionsAreIndependent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		keyA := model.NewSessionKey("u1", "c1")
		keyB := model.NewSessionKey("u2", "c1")

		require.NoError(t, s.AppendMessage(ctx, msg(keyA, model.RoleUser, "for A", 1)))
		require.NoError(t, s.AppendMessage(ctx, msg(keyB, model.RoleUser, "for B", 1)))

		got, err := s.ListRecent(ctx, keyA, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "for A", got[0].Content)
	})
}

func TestCompactRange(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := model.NewSessionKey("u1", "c1")

		for i := int64(1); i <= 6; i++ {
			require.NoError(t, s.AppendMessage(ctx, msg(key, model.RoleUser, "message", i)))
		}

		summary := model.Summary{
			SessionKey:   key,
			Text:         "they talked",
			MessageCount: 4,
			RangeStart:   1,
			RangeEnd:     4,
			CreatedAt:    time.Now(),
		}
		require.NoError(t, s.CompactRange(ctx, key, summary, 1, 4))

		msgs, err := s.ListRecent(ctx, key, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, int64(5), msgs[0].Seq)

		sums, err := s.ListSummaries(ctx, key)
		require.NoError(t, err)
		require.Len(t, sums, 1)
		assert.Equal(t, "they talked", sums[0].Text)
		assert.Equal(t, int64(4), sums[0].RangeEnd)
	})
}

func TestSummariesOrderedByRangeEnd(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := model.NewSessionKey("u1", "c1")

		for i := int64(1); i <= 12; i++ {
			require.NoError(t, s.AppendMessage(ctx, msg(key, model.RoleUser, "message", i)))
		}
		require.NoError(t, s.CompactRange(ctx, key, model.Summary{
			SessionKey: key, Text: "first", MessageCount: 4, RangeStart: 1, RangeEnd: 4, CreatedAt: time.Now(),
		}, 1, 4))
		require.NoError(t, s.CompactRange(ctx, key, model.Summary{
			SessionKey: key, Text: "second", MessageCount: 4, RangeStart: 5, RangeEnd: 8, CreatedAt: time.Now(),
		}, 5, 8))

		sums, err := s.ListSummaries(ctx, key)
		require.NoError(t, err)
		require.Len(t, sums, 2)
		assert.Equal(t, "first", sums[0].Text)
		assert.Equal(t, "second", sums[1].Text)
		// Ranges never overlap: each summary ends before the next begins.
		assert.LessOrEqual(t, sums[0].RangeEnd, sums[1].RangeStart)
	})
}

func TestDeleteSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := model.NewSessionKey("u1", "c1")
		other := model.NewSessionKey("u2", "c2")

		require.NoError(t, s.AppendMessage(ctx, msg(key, model.RoleUser, "gone", 1)))
		require.NoError(t, s.AppendMessage(ctx, msg(other, model.RoleUser, "stays", 1)))
		require.NoError(t, s.CompactRange(ctx, key, model.Summary{
			SessionKey: key, Text: "old", MessageCount: 1, RangeStart: 1, RangeEnd: 1, CreatedAt: time.Now(),
		}, 1, 1))

		require.NoError(t, s.DeleteSession(ctx, key))

		msgs, err := s.ListRecent(ctx, key, 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
		sums, err := s.ListSummaries(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, sums)

		kept, err := s.ListRecent(ctx, other, 10)
		require.NoError(t, err)
		assert.Len(t, kept, 1)
	})
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.db")
	key := model.NewSessionKey("u1", "c1")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, msg(key, model.RoleUser, "durable", 1)))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.ListRecent(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "durable", got[0].Content)
	assert.Equal(t, model.RoleUser, got[0].Role)
}

func TestSQLiteUnicodeContent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	defer s.Close()

	key := model.NewSessionKey("u1", "c1")
	content := "سڵاو! چۆنی؟ — hello"
	require.NoError(t, s.AppendMessage(ctx, msg(key, model.RoleUser, content, 1)))

	got, err := s.ListRecent(ctx, key, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, content, got[0].Content)
}

func TestMemStoreFailWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.FailWrites = true
	key := model.NewSessionKey("u1", "c1")

	err := s.AppendMessage(ctx, msg(key, model.RoleUser, "x", 1))
	assert.ErrorIs(t, err, ErrWriteFailed)
	err = s.CompactRange(ctx, key, model.Summary{}, 1, 1)
	assert.ErrorIs(t, err, ErrWriteFailed)
}
