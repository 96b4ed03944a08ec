package secrets

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes a Source. Concurrent first reads of the same name share a
// single upstream call; failures are never cached.
type Cache struct {
	src   Source
	items *gocache.Cache
	group singleflight.Group
}

// NewCache wraps src. A ttl <= 0 keeps entries until invalidated.
func NewCache(src Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Cache{
		src:   src,
		items: gocache.New(ttl, time.Minute),
	}
}

func (c *Cache) GetSecret(ctx context.Context, name string) (string, error) {
	if v, ok := c.items.Get(name); ok {
		return v.(string), nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		if v, ok := c.items.Get(name); ok {
			return v.(string), nil
		}
		// detached so one caller's cancellation does not fail the others
		value, err := c.src.GetSecret(context.WithoutCancel(ctx), name)
		if err != nil {
			return "", err
		}
		c.items.SetDefault(name, value)
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops name so the next read goes to the source.
func (c *Cache) Invalidate(name string) {
	c.items.Delete(name)
	c.group.Forget(name)
}

// InvalidateAll drops every cached secret.
func (c *Cache) InvalidateAll() {
	c.items.Flush()
}
