// Package kv provides bucketed JSON slots with SQLite persistence and in-memory options.
package kv

import "time"

// StoreOptions contains optional parameters for Store operations.
type StoreOptions struct {
	TTL time.Duration // Time-to-live; zero means no expiry
}

// Bucket is the interface for key-value storage operations.
// Values are JSON documents; every Store replaces the whole document.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket is backed by SQLite.
	IsPersistent() bool

	// Store saves a value with the given key, replacing any previous value.
	// Options can specify TTL for automatic expiry.
	Store(key string, value any, opts *StoreOptions) error

	// Load decodes the value stored under key into dst.
	// Returns false if the key doesn't exist or has expired.
	Load(key string, dst any) (bool, error)

	// Delete removes a key from the bucket.
	// Returns true if the key existed.
	Delete(key string) (bool, error)

	// Keys returns all non-expired keys in the bucket.
	Keys() ([]string, error)

	// Clear removes all keys from the bucket.
	Clear() error
}
