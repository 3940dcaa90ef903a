package kv

// Typed wraps a Bucket with a fixed value type.
type Typed[T any] struct {
	bucket Bucket
}

// NewTyped creates a typed view over a bucket.
func NewTyped[T any](bucket Bucket) *Typed[T] {
	return &Typed[T]{bucket: bucket}
}

// Bucket returns the underlying bucket.
func (t *Typed[T]) Bucket() Bucket {
	return t.bucket
}

// Get returns the value for key. found is false if the key is absent.
func (t *Typed[T]) Get(key string) (value T, found bool, err error) {
	found, err = t.bucket.Load(key, &value)
	return value, found, err
}

// Set replaces the value for key.
func (t *Typed[T]) Set(key string, value T) error {
	return t.bucket.Store(key, value, nil)
}

// Delete removes key.
func (t *Typed[T]) Delete(key string) error {
	_, err := t.bucket.Delete(key)
	return err
}
