// Package store holds the key/value data served by the memcached engine.
//
// Connections only read from a Store. Every implementation must tolerate
// concurrent Get calls, so a server may run one loop per core over a shared
// store.
package store

import (
	"bytes"
	"sync"

	"github.com/pior/memcached/internal"
)

// Item is a stored value with its opaque client flags.
type Item struct {
	Key   string
	Flags uint32
	Value []byte
}

// Store is the lookup contract used by connections.
type Store interface {
	// Get returns the item for key. The key slice is only valid during the
	// call. The returned Value must not be modified by the caller.
	Get(key []byte) (Item, bool)
}

// Map is a Store backed by a map guarded by a RWMutex.
type Map struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMap returns a Map preloaded with items.
func NewMap(items ...Item) *Map {
	m := &Map{items: make(map[string]Item, len(items))}
	for _, item := range items {
		m.Set(item)
	}
	return m
}

func (m *Map) Get(key []byte) (Item, bool) {
	m.mu.RLock()
	item, ok := m.items[string(key)]
	m.mu.RUnlock()
	return item, ok
}

// Set stores a copy of item.Value under item.Key.
func (m *Map) Set(item Item) {
	item.Value = bytes.Clone(item.Value)
	if item.Value == nil {
		item.Value = []byte{}
	}

	m.mu.Lock()
	m.items[item.Key] = item
	m.mu.Unlock()
}

// Delete removes key, reporting whether it was present.
func (m *Map) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.items[key]
	delete(m.items, key)
	return ok
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// DefaultShards is the shard count used by NewSharded when n <= 0.
const DefaultShards = 32

// Sharded spreads keys over independent Maps to reduce lock contention.
// Keys are placed with xxh3 and jump consistent hashing.
type Sharded struct {
	shards []*Map
}

func NewSharded(n int) *Sharded {
	if n <= 0 {
		n = DefaultShards
	}
	s := &Sharded{shards: make([]*Map, n)}
	for i := range s.shards {
		s.shards[i] = NewMap()
	}
	return s
}

func (s *Sharded) shard(key []byte) *Map {
	return s.shards[internal.ShardIndex(key, len(s.shards))]
}

func (s *Sharded) Get(key []byte) (Item, bool) {
	return s.shard(key).Get(key)
}

func (s *Sharded) Set(item Item) {
	s.shard([]byte(item.Key)).Set(item)
}

func (s *Sharded) Delete(key string) bool {
	return s.shard([]byte(key)).Delete(key)
}

// Len returns the number of items across all shards.
func (s *Sharded) Len() int {
	total := 0
	for _, m := range s.shards {
		total += m.Len()
	}
	return total
}

// Shards returns the shard count.
func (s *Sharded) Shards() int {
	return len(s.shards)
}
