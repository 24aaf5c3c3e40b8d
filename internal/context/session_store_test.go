package context

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple2chat/pkg/chattypes"
)

func newSession(id string) *chattypes.ChatSession {
	return chattypes.NewChatSession(id, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "test-model")
}

func TestNewSessionStore(t *testing.T) {
	tests := []struct {
		name        string
		maxSize     int
		expectedMax int
	}{
		{name: "positive max size", maxSize: 10, expectedMax: 10},
		{name: "zero max size uses default", maxSize: 0, expectedMax: DefaultMaxSessions},
		{name: "negative max size uses default", maxSize: -5, expectedMax: DefaultMaxSessions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSessionStore(tt.maxSize)
			assert.Equal(t, tt.expectedMax, store.MaxSize())
			assert.Equal(t, 0, store.Size())
		})
	}
}

func TestSessionStore_PutGetDelete(t *testing.T) {
	store := NewSessionStore(3)

	store.Put(newSession("a"))
	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = store.Get("missing")
	assert.False(t, ok)

	store.Delete("a")
	_, ok = store.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Size())

	// Deleting twice is harmless
	store.Delete("a")
}

func TestSessionStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store := NewSessionStore(2)
	var evicted []string
	store.OnEvict(func(s *chattypes.ChatSession) {
		evicted = append(evicted, s.ID)
	})

	store.Put(newSession("a"))
	store.Put(newSession("b"))

	// Touch "a" so "b" becomes the eviction candidate
	_, ok := store.Get("a")
	require.True(t, ok)

	store.Put(newSession("c"))

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, store.IDs())
	_, ok = store.Get("b")
	assert.False(t, ok)
}

func TestSessionStore_PutReplaces(t *testing.T) {
	store := NewSessionStore(2)
	first := newSession("a")
	second := newSession("a")

	store.Put(first)
	store.Put(second)

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, store.Size())
}

func TestSessionStore_Concurrent(t *testing.T) {
	store := NewSessionStore(50)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				id := fmt.Sprintf("s-%d-%d", n, j)
				store.Put(newSession(id))
				store.Get(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Size())
}
