package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := NewMap(Item{Key: "foo", Flags: 3, Value: []byte("bar")})

	item, ok := m.Get([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, uint32(3), item.Flags)
	assert.Equal(t, []byte("bar"), item.Value)

	_, ok = m.Get([]byte("missing"))
	require.False(t, ok)

	require.True(t, m.Delete("foo"))
	require.False(t, m.Delete("foo"))
	require.Equal(t, 0, m.Len())
}

func TestMapSetCopiesValue(t *testing.T) {
	value := []byte("bar")
	m := NewMap()
	m.Set(Item{Key: "foo", Value: value})
	value[0] = 'X'

	item, ok := m.Get([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, []byte("bar"), item.Value)
}

func TestMapEmptyValue(t *testing.T) {
	m := NewMap(Item{Key: "empty"})
	item, ok := m.Get([]byte("empty"))
	require.True(t, ok)
	assert.NotNil(t, item.Value)
	assert.Empty(t, item.Value)
}

func TestSharded(t *testing.T) {
	s := NewSharded(8)
	require.Equal(t, 8, s.Shards())

	for i := range 100 {
		s.Set(Item{Key: fmt.Sprintf("key-%d", i), Flags: uint32(i), Value: []byte("v")})
	}
	require.Equal(t, 100, s.Len())

	for i := range 100 {
		item, ok := s.Get([]byte(fmt.Sprintf("key-%d", i)))
		require.True(t, ok)
		assert.Equal(t, uint32(i), item.Flags)
	}

	require.True(t, s.Delete("key-1"))
	_, ok := s.Get([]byte("key-1"))
	require.False(t, ok)
}

func TestShardedDefaultShards(t *testing.T) {
	require.Equal(t, DefaultShards, NewSharded(0).Shards())
}

func TestShardedConcurrentReads(t *testing.T) {
	s := NewSharded(4)
	s.Set(Item{Key: "foo", Value: []byte("bar")})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				item, ok := s.Get([]byte("foo"))
				if !ok || string(item.Value) != "bar" {
					t.Error("unexpected lookup result")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkShardedGet(b *testing.B) {
	s := NewSharded(0)
	s.Set(Item{Key: "some_medium_length_key_123", Value: []byte("value")})
	key := []byte("some_medium_length_key_123")

	for b.Loop() {
		s.Get(key)
	}
}
