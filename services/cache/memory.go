package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry represents a single cache entry with its own expiry
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element // For LRU tracking
}

func (e *memoryEntry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryStore is an in-memory LRU Store with per-entry TTL.
// Thread-safe implementation using sync.Mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lruList *list.List // Doubly linked list for LRU tracking
	maxSize int        // Maximum number of entries
	hits    uint64
	misses  uint64
}

// NewMemoryStore creates a MemoryStore bounded to maxSize entries.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Get returns the stored value when present and fresh. Expired entries
// are removed on access.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists || entry.isExpired(time.Now()) {
		s.misses++
		if exists {
			s.removeEntry(key)
		}
		return nil, false, nil
	}

	s.lruList.MoveToFront(entry.element)
	s.hits++

	// Copy so callers cannot mutate the stored bytes.
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Set stores a value with the given TTL. Last writer wins.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	expiresAt := time.Now().Add(ttl)

	if entry, exists := s.entries[key]; exists {
		entry.value = stored
		entry.expiresAt = expiresAt
		s.lruList.MoveToFront(entry.element)
		return nil
	}

	if s.lruList.Len() >= s.maxSize {
		s.evictLRU()
	}

	entry := &memoryEntry{
		key:       key,
		value:     stored,
		expiresAt: expiresAt,
	}
	entry.element = s.lruList.PushFront(key)
	s.entries[key] = entry
	return nil
}

// Stats returns hit/miss counters and the current size.
func (s *MemoryStore) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StoreStats{
		Size:    s.lruList.Len(),
		MaxSize: s.maxSize,
		Hits:    s.hits,
		Misses:  s.misses,
	}
}

// StoreStats represents memory store statistics
type StoreStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
}

// CleanupExpired removes all expired entries and returns how many were
// dropped. Should be called periodically in a background goroutine.
func (s *MemoryStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expiredKeys := make([]string, 0)
	for key, entry := range s.entries {
		if entry.isExpired(now) {
			expiredKeys = append(expiredKeys, key)
		}
	}
	for _, key := range expiredKeys {
		s.removeEntry(key)
	}
	return len(expiredKeys)
}

// StartCleanupWorker starts a background worker to periodically clean up expired entries
func (s *MemoryStore) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (s *MemoryStore) removeEntry(key string) {
	if entry, exists := s.entries[key]; exists {
		s.lruList.Remove(entry.element)
		delete(s.entries, key)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (s *MemoryStore) evictLRU() {
	backElement := s.lruList.Back()
	if backElement != nil {
		key := backElement.Value.(string)
		s.lruList.Remove(backElement)
		delete(s.entries, key)
	}
}
