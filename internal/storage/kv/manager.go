package kv

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager manages bucket lifecycle and provides access to buckets.
type Manager struct {
	db             *sql.DB
	buckets        map[string]Bucket
	mu             sync.RWMutex
	cleanupStop    chan struct{}
	cleanupStopped chan struct{}
}

// NewManager creates a new KV manager. A nil db yields memory-only buckets.
func NewManager(db *sql.DB) *Manager {
	return &Manager{
		db:      db,
		buckets: make(map[string]Bucket),
	}
}

// Bucket returns a bucket by name, creating it if it doesn't exist.
// If persistent is true, the bucket is backed by SQLite; otherwise it's in-memory.
func (m *Manager) Bucket(name string, persistent bool) Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, ok := m.buckets[name]; ok {
		return bucket
	}

	var bucket Bucket
	if persistent && m.db != nil {
		bucket = NewSQLiteBucket(m.db, name)
	} else {
		bucket = NewMemoryBucket(name)
	}

	m.buckets[name] = bucket
	log.Debug().
		Str("bucket", name).
		Bool("persistent", bucket.IsPersistent()).
		Msg("Created KV bucket")

	return bucket
}

// Delete removes a bucket and all its data.
func (m *Manager) Delete(name string) (bool, error) {
	m.mu.Lock()
	bucket, known := m.buckets[name]
	delete(m.buckets, name)
	m.mu.Unlock()

	if known && !bucket.IsPersistent() {
		return true, bucket.Clear()
	}
	if m.db == nil {
		return known, nil
	}

	result, err := m.db.Exec(`DELETE FROM kv_store WHERE bucket = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete bucket: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		log.Debug().Str("bucket", name).Int64("keys_deleted", affected).Msg("Deleted KV bucket")
	}

	return affected > 0, nil
}

// StartCleanup starts a background goroutine that periodically cleans up expired entries.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	m.cleanupStop = make(chan struct{})
	m.cleanupStopped = make(chan struct{})

	go func() {
		defer close(m.cleanupStopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.cleanupStop:
				return
			case <-ticker.C:
				m.cleanup()
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started KV cleanup goroutine")
}

// StopCleanup stops the background cleanup goroutine.
func (m *Manager) StopCleanup() {
	if m.cleanupStop != nil {
		close(m.cleanupStop)
		<-m.cleanupStopped
		m.cleanupStop = nil
		log.Debug().Msg("Stopped KV cleanup goroutine")
	}
}

// cleanup removes expired entries from all buckets.
func (m *Manager) cleanup() {
	if m.db != nil {
		count, err := CleanupExpired(m.db)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to cleanup expired KV entries from SQLite")
		} else if count > 0 {
			log.Debug().Int64("count", count).Msg("Cleaned up expired KV entries from SQLite")
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, bucket := range m.buckets {
		if mb, ok := bucket.(*MemoryBucket); ok {
			if cleaned := mb.CleanupExpired(); cleaned > 0 {
				log.Debug().
					Str("bucket", mb.Name()).
					Int("count", cleaned).
					Msg("Cleaned up expired KV entries from memory bucket")
			}
		}
	}
}
