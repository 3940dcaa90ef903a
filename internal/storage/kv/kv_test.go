package kv

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daybetterd/internal/db"
)

type slot struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func bucketsUnderTest(t *testing.T) map[string]Bucket {
	return map[string]Bucket{
		"memory": NewMemoryBucket("test"),
		"sqlite": NewSQLiteBucket(openTestDB(t).DB, "test"),
	}
}

func TestBucketStoreLoad(t *testing.T) {
	for name, bucket := range bucketsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			var got slot
			found, err := bucket.Load("missing", &got)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, bucket.Store("cred", slot{Token: "a", ExpiresAt: 10}, nil))
			require.NoError(t, bucket.Store("cred", slot{Token: "b"}, nil))

			found, err = bucket.Load("cred", &got)
			require.NoError(t, err)
			assert.True(t, found)
			// Whole-object replacement: no field from the first write survives
			assert.Equal(t, slot{Token: "b"}, got)

			keys, err := bucket.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"cred"}, keys)

			existed, err := bucket.Delete("cred")
			require.NoError(t, err)
			assert.True(t, existed)

			existed, err = bucket.Delete("cred")
			require.NoError(t, err)
			assert.False(t, existed)
		})
	}
}

func TestBucketExpiry(t *testing.T) {
	bucket := NewMemoryBucket("ttl")
	require.NoError(t, bucket.Store("k", 1, &StoreOptions{TTL: time.Millisecond}))
	time.Sleep(5 * time.Millisecond)

	var v int
	found, err := bucket.Load("k", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBucketClear(t *testing.T) {
	for name, bucket := range bucketsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bucket.Store("a", 1, nil))
			require.NoError(t, bucket.Store("b", 2, nil))
			require.NoError(t, bucket.Clear())

			keys, err := bucket.Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestTyped(t *testing.T) {
	typed := NewTyped[slot](NewMemoryBucket("typed"))

	_, found, err := typed.Get("x")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, typed.Set("x", slot{Token: "x"}))
	require.NoError(t, typed.Set("y", slot{Token: "y"}))

	got, found, err := typed.Get("y")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "y", got.Token)

	require.NoError(t, typed.Delete("x"))
	_, found, err = typed.Get("x")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager(t *testing.T) {
	database := openTestDB(t)
	m := NewManager(database.DB)

	persistent := m.Bucket("cred", true)
	assert.True(t, persistent.IsPersistent())
	assert.Same(t, persistent, m.Bucket("cred", true))

	volatile := m.Bucket("scratch", false)
	assert.False(t, volatile.IsPersistent())

	require.NoError(t, persistent.Store("k", "v", nil))
	deleted, err := m.Delete("cred")
	require.NoError(t, err)
	assert.True(t, deleted)

	var v string
	found, err := m.Bucket("cred", true).Load("k", &v)
	require.NoError(t, err)
	assert.False(t, found)
}
