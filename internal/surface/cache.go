package surface

import (
	"context"
	"sort"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCacheStorage is an in-process CacheStorage backed by go-cache.
type MemoryCacheStorage struct {
	caches *gocache.Cache
}

// NewMemoryCacheStorage creates an empty storage.
func NewMemoryCacheStorage() *MemoryCacheStorage {
	return &MemoryCacheStorage{caches: gocache.New(gocache.NoExpiration, 0)}
}

type memoryCache struct {
	entries *gocache.Cache
}

// Open returns the named cache, creating it when missing.
func (m *MemoryCacheStorage) Open(_ context.Context, name string) (Cache, error) {
	fresh := &memoryCache{entries: gocache.New(gocache.NoExpiration, 0)}
	if err := m.caches.Add(name, fresh, gocache.NoExpiration); err == nil {
		return fresh, nil
	}
	if existing, ok := m.caches.Get(name); ok {
		return existing.(*memoryCache), nil
	}
	// Deleted between Add and Get.
	m.caches.Set(name, fresh, gocache.NoExpiration)
	return fresh, nil
}

// Keys lists cache names in sorted order.
func (m *MemoryCacheStorage) Keys(context.Context) ([]string, error) {
	items := m.caches.Items()
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named cache and reports whether it existed.
func (m *MemoryCacheStorage) Delete(_ context.Context, name string) (bool, error) {
	if _, ok := m.caches.Get(name); !ok {
		return false, nil
	}
	m.caches.Delete(name)
	return true, nil
}

func (c *memoryCache) Put(_ context.Context, req Request, resp *Response) error {
	cp := *resp
	cp.Body = append([]byte(nil), resp.Body...)
	cp.Header = resp.Header.Clone()
	c.entries.Set(req.Key(), &cp, gocache.NoExpiration)
	return nil
}

func (c *memoryCache) Match(_ context.Context, req Request) (*Response, bool, error) {
	v, ok := c.entries.Get(req.Key())
	if !ok {
		return nil, false, nil
	}
	stored := v.(*Response)
	cp := *stored
	cp.Body = append([]byte(nil), stored.Body...)
	cp.Header = stored.Header.Clone()
	return &cp, true, nil
}
