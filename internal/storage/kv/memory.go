package kv

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryEntry holds an encoded value with its expiry in memory.
type memoryEntry struct {
	data      []byte
	expiresAt time.Time // Zero value means no expiry
}

// isExpired returns true if the entry has expired.
func (e *memoryEntry) isExpired() bool {
	if e.expiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.expiresAt)
}

// MemoryBucket is an in-memory bucket (not persisted).
// Values are stored JSON-encoded so Load behaves exactly like SQLiteBucket.
type MemoryBucket struct {
	name    string
	entries map[string]*memoryEntry
	mu      sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]*memoryEntry),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string {
	return b.name
}

// IsPersistent returns false (memory buckets are not persistent).
func (b *MemoryBucket) IsPersistent() bool {
	return false
}

// Store saves a value with the given key.
func (b *MemoryBucket) Store(key string, value any, opts *StoreOptions) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	entry := &memoryEntry{data: data}
	if opts != nil && opts.TTL > 0 {
		entry.expiresAt = time.Now().Add(opts.TTL)
	}

	b.mu.Lock()
	b.entries[key] = entry
	b.mu.Unlock()
	return nil
}

// Load decodes a value by key into dst.
func (b *MemoryBucket) Load(key string, dst any) (bool, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if entry.isExpired() {
		// Lazy deletion of expired entry
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return false, nil
	}

	if err := json.Unmarshal(entry.data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// Delete removes a key from the bucket.
func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[key]
	if ok {
		delete(b.entries, key)
	}
	return ok, nil
}

// Keys returns all non-expired keys in the bucket.
func (b *MemoryBucket) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var keys []string
	for key, entry := range b.entries {
		if entry.isExpired() {
			delete(b.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// Clear removes all keys from the bucket.
func (b *MemoryBucket) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]*memoryEntry)
	return nil
}

// CleanupExpired removes all expired entries from the bucket.
// Returns the number of entries removed.
func (b *MemoryBucket) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for key, entry := range b.entries {
		if entry.isExpired() {
			delete(b.entries, key)
			count++
		}
	}
	return count
}
