package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
)

// memoryCache keeps entries in a map with lazy and periodic eviction.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newMemory(o *options) *memoryCache {
	c := &memoryCache{
		entries: make(map[string]Entry),
		now:     o.now,
		stop:    make(chan struct{}),
	}
	if o.sweepEvery > 0 {
		c.wg.Add(1)
		go c.sweepLoop(o.sweepEvery)
	}
	return c
}

// Get implements Cache.
func (c *memoryCache) Get(_ context.Context, fingerprint string) (*domain.AIResponse, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.ExpiresAt) {
		c.mu.Lock()
		if current, still := c.entries[fingerprint]; still && !c.now().Before(current.ExpiresAt) {
			delete(c.entries, fingerprint)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.Response.Clone(), true, nil
}

// Put implements Cache.
func (c *memoryCache) Put(_ context.Context, fingerprint string, resp *domain.AIResponse, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = Entry{Response: resp.Clone(), ExpiresAt: c.now().Add(ttl)}
	return nil
}

// Len implements Cache.
func (c *memoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper.
func (c *memoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
	return nil
}

func (c *memoryCache) sweepLoop(every time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *memoryCache) sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
