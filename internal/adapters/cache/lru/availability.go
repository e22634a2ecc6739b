package lru

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 256
	DefaultTTL  = 30 * time.Second
)

// AvailabilityCache implementa appointments.AvailabilityCache con un LRU que
// expira entradas. Solo alimenta lecturas de UI.
type AvailabilityCache struct {
	cache *expirable.LRU[string, []string]
}

func NewAvailabilityCache(size int, ttl time.Duration) *AvailabilityCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AvailabilityCache{
		cache: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

func (c *AvailabilityCache) Get(date string) ([]string, bool) {
	taken, ok := c.cache.Get(date)
	if !ok {
		return nil, false
	}
	return append([]string(nil), taken...), true
}

func (c *AvailabilityCache) Put(date string, taken []string) {
	c.cache.Add(date, append([]string(nil), taken...))
}

func (c *AvailabilityCache) Invalidate(date string) {
	c.cache.Remove(date)
}

func (c *AvailabilityCache) Len() int {
	return c.cache.Len()
}
