package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

// Window is the fixed-window counter kept per key.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Store performs atomic read-modify-write on per-key windows. fn runs while
// the key is locked; exists is false on first contact.
type Store interface {
	Update(key string, fn func(w *Window, exists bool))
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	windows map[string]*Window
}

// MemoryStore is a process-local Store. Keys are spread over shards so
// unrelated senders do not contend on one mutex.
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{windows: map[string]*Window{}}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Update implements Store.
func (s *MemoryStore) Update(key string, fn func(w *Window, exists bool)) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	w, ok := sh.windows[key]
	if !ok {
		w = &Window{}
		sh.windows[key] = w
	}
	fn(w, ok)
}

// Sweep drops windows that expired before now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, w := range sh.windows {
			if now.After(w.ResetAt) {
				delete(sh.windows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}
