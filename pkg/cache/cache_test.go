package cache

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlikebear/maestro/pkg/engine"
	"github.com/devlikebear/maestro/pkg/event"
)

func testStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := NewStore(Config{
		Path:   filepath.Join(t.TempDir(), "cache.db"),
		TTL:    ttl,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreKey(t *testing.T) {
	s := testStore(t, 0)

	t.Run("should be deterministic for identical inputs", func(t *testing.T) {
		a := s.Key("sys", nil, "msg", "model", 0.7)
		b := s.Key("sys", nil, "msg", "model", 0.7)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("should change when any input changes", func(t *testing.T) {
		base := s.Key("sys", nil, "msg", "model", 0.7)
		assert.NotEqual(t, base, s.Key("sys2", nil, "msg", "model", 0.7))
		assert.NotEqual(t, base, s.Key("sys", nil, "msg2", "model", 0.7))
		assert.NotEqual(t, base, s.Key("sys", nil, "msg", "model2", 0.7))
		assert.NotEqual(t, base, s.Key("sys", nil, "msg", "model", 0.3))
	})

	t.Run("should only consider the recent history window", func(t *testing.T) {
		recent := []engine.Turn{
			{Role: "user", Content: "a"},
			{Role: "assistant", Content: "b"},
			{Role: "user", Content: "c"},
		}
		longer := append([]engine.Turn{{Role: "user", Content: "ancient"}}, recent...)

		assert.Equal(t,
			s.Key("sys", recent, "msg", "model", 0.7),
			s.Key("sys", longer, "msg", "model", 0.7),
		)
	})

	t.Run("should truncate oversized history entries in key material", func(t *testing.T) {
		long := strings.Repeat("x", keyHistoryEntryLen+100)
		a := []engine.Turn{{Role: "user", Content: long}}
		b := []engine.Turn{{Role: "user", Content: long + "tail beyond the window"}}

		assert.Equal(t,
			s.Key("sys", a, "msg", "model", 0.7),
			s.Key("sys", b, "msg", "model", 0.7),
		)
	})
}

func TestStoreGetPut(t *testing.T) {
	t.Run("should round-trip an event sequence", func(t *testing.T) {
		s := testStore(t, 0)
		events := []event.Event{
			event.Token("hello"),
			event.ToolEnd("search", "result", 12),
			event.Done(),
		}

		s.Put(context.Background(), "k1", events)
		got, ok := s.Get(context.Background(), "k1")

		require.True(t, ok)
		assert.Equal(t, events, got)
	})

	t.Run("should miss on unknown keys", func(t *testing.T) {
		s := testStore(t, 0)
		_, ok := s.Get(context.Background(), "missing")
		assert.False(t, ok)
	})

	t.Run("should replace an existing entry", func(t *testing.T) {
		s := testStore(t, 0)
		s.Put(context.Background(), "k", []event.Event{event.Token("old")})
		s.Put(context.Background(), "k", []event.Event{event.Token("new")})

		got, ok := s.Get(context.Background(), "k")
		require.True(t, ok)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].Content)
	})

	t.Run("should treat expired entries as misses", func(t *testing.T) {
		s := testStore(t, time.Nanosecond)
		s.Put(context.Background(), "k", []event.Event{event.Token("x")})
		time.Sleep(5 * time.Millisecond)

		_, ok := s.Get(context.Background(), "k")
		assert.False(t, ok)
	})

	t.Run("should miss after flush", func(t *testing.T) {
		s := testStore(t, 0)
		s.Put(context.Background(), "k", []event.Event{event.Token("x")})
		require.NoError(t, s.Flush(context.Background()))

		_, ok := s.Get(context.Background(), "k")
		assert.False(t, ok)
	})
}
