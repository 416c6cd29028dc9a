package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a type-safe cache keyed by string, with singleflight so a factory
// runs at most once per key even under concurrent load. Used for provider SDK
// clients, which are expensive to construct and safe to share.
type Cache[T any] struct {
	cache   sync.Map
	sfGroup singleflight.Group
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate returns the cached value for key, invoking factory exactly once
// when it is absent.
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.cache.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.sfGroup.Do(key, func() (any, error) {
		// Re-check after winning the singleflight slot; a concurrent caller
		// may have populated the entry already.
		if cached, ok := c.cache.Load(key); ok {
			return cached.(T), nil
		}

		value, err := factory()
		if err != nil {
			var zero T
			return zero, err
		}
		c.cache.Store(key, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Delete drops one entry, forcing the next GetOrCreate to rebuild it. Called
// when a credential rotation invalidates the client built from it.
func (c *Cache[T]) Delete(key string) {
	c.cache.Delete(key)
}

// Clear empties the cache.
func (c *Cache[T]) Clear() {
	c.cache.Range(func(key, value any) bool {
		c.cache.Delete(key)
		return true
	})
}
