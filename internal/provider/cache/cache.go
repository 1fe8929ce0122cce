package cache

import (
	"context"
	"sync"
	"time"

	"optionchain/internal/provider"
)

// Provider serves the last successful snapshot of P for TTL.
// Failures are never cached and do not evict a fresh entry.
// A snapshot served from the cache is labelled IsRecentData; only the
// call that reached P returns it unlabelled.
type Provider struct {
	P   provider.Provider
	TTL time.Duration
	Now func() time.Time

	mu        sync.RWMutex
	snap      provider.Snapshot
	expiresAt time.Time
	ok        bool
}

func (c *Provider) Name() string { return c.P.Name() }

func (c *Provider) Fetch(ctx context.Context) (provider.Snapshot, error) {
	if c.TTL <= 0 {
		return c.P.Fetch(ctx)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	c.mu.RLock()
	if c.ok && now().Before(c.expiresAt) {
		out := c.snap.Clone()
		c.mu.RUnlock()
		out.IsRecentData = true
		return out, nil
	}
	c.mu.RUnlock()

	fresh, err := c.P.Fetch(ctx)
	if err != nil {
		return provider.Snapshot{}, err
	}

	c.mu.Lock()
	c.snap = fresh.Clone()
	c.expiresAt = now().Add(c.TTL)
	c.ok = true
	c.mu.Unlock()
	return fresh, nil
}

// Invalidate drops the cached snapshot.
func (c *Provider) Invalidate() {
	c.mu.Lock()
	c.ok = false
	c.mu.Unlock()
}
