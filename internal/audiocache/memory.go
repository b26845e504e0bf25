package audiocache

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxEntries bounds a Memory cache created with a non-positive size.
const DefaultMaxEntries = 256

// Memory is an in-process LRU cache.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	max     int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type memoryEntry struct {
	key   string
	audio []byte
}

// NewMemory creates a cache holding at most maxEntries clips.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		max:     maxEntries,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	m.order.MoveToFront(el)
	return el.Value.(*memoryEntry).audio, true, nil
}

// Set stores a copy of audio, evicting the least recently used clip when
// full.
func (m *Memory) Set(_ context.Context, key string, audio []byte) error {
	clip := make([]byte, len(audio))
	copy(clip, audio)

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		el.Value.(*memoryEntry).audio = clip
		m.order.MoveToFront(el)
		return nil
	}

	m.entries[key] = m.order.PushFront(&memoryEntry{key: key, audio: clip})
	for m.order.Len() > m.max {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// Len returns the number of cached clips.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
