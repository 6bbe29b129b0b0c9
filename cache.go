package media_resolver

import (
	"container/list"
	"sync"
)

const DefaultCacheSize = 50

// LimitedMap is a bounded map with strict FIFO eviction: once full, each insert of a new key evicts the oldest
// inserted key. Reads never change eviction order, and replacing an existing key keeps its original position.
type LimitedMap[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[K]*list.Element
}

type limitedMapEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLimitedMap creates a LimitedMap holding at most capacity entries (minimum 1).
func NewLimitedMap[K comparable, V any](capacity int) *LimitedMap[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LimitedMap[K, V]{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[K]*list.Element),
	}
}

func (m *LimitedMap[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.Value.(*limitedMapEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, evicting the oldest entry if the map would exceed its capacity.
func (m *LimitedMap[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.Value.(*limitedMapEntry[K, V]).value = value
		return
	}
	m.entries[key] = m.order.PushBack(&limitedMapEntry[K, V]{key: key, value: value})
	for m.order.Len() > m.capacity {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*limitedMapEntry[K, V]).key)
	}
}

func (m *LimitedMap[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.order.Remove(e)
		delete(m.entries, key)
		return true
	}
	return false
}

func (m *LimitedMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *LimitedMap[K, V]) Capacity() int {
	return m.capacity
}

// Keys returns the keys from oldest to newest.
func (m *LimitedMap[K, V]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]K, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*limitedMapEntry[K, V]).key)
	}
	return keys
}

// ResultCache maps raw matched text to the ParseResult computed for it.
type ResultCache = LimitedMap[string, *ParseResult]

func NewResultCache(capacity int) *ResultCache {
	return NewLimitedMap[string, *ParseResult](capacity)
}
