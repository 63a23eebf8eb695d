// Package tokens provides a process-wide read-through cache of resolved token
// metadata. The store remains the source of truth; the cache is an
// eventually-consistent snapshot, and pipeline stages treat a miss as "not
// ready" rather than "does not exist".
package tokens

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// Cache holds resolved tokens keyed by lowercase address. Reads never block
// on I/O; mutation happens only through Add, called by token-resolution
// consumers after a token resolves.
type Cache struct {
	mu        sync.RWMutex
	byAddress map[string]domain.Token
}

// NewCache creates an empty Cache. Call Init before first use to seed it from
// the store.
func NewCache() *Cache {
	return &Cache{byAddress: make(map[string]domain.Token)}
}

// Init bulk-loads every resolved token from the store. It replaces the
// current contents and is intended to run once at startup.
func (c *Cache) Init(ctx context.Context, store domain.TokenStore) error {
	resolved, err := store.ListResolved(ctx)
	if err != nil {
		return fmt.Errorf("tokens: load resolved tokens: %w", err)
	}

	next := make(map[string]domain.Token, len(resolved))
	for _, t := range resolved {
		next[strings.ToLower(t.Address)] = t
	}

	c.mu.Lock()
	c.byAddress = next
	c.mu.Unlock()
	return nil
}

// Get returns the cached token for the address, if present.
func (c *Cache) Get(address string) (domain.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byAddress[strings.ToLower(address)]
	return t, ok
}

// All returns a copy of the cached tokens keyed by lowercase address.
func (c *Cache) All() map[string]domain.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Token, len(c.byAddress))
	for k, v := range c.byAddress {
		out[k] = v
	}
	return out
}

// Add inserts or replaces a token in the cache.
func (c *Cache) Add(t domain.Token) {
	c.mu.Lock()
	c.byAddress[strings.ToLower(t.Address)] = t
	c.mu.Unlock()
}
