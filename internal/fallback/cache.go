package fallback

import "sync"

type cacheKey struct {
	provider string
	prompt   string
}

// Cache memoizes (provider, prompt) -> reply for the life of the process.
// Entries never expire.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]string
}

func NewCache() *Cache {
	return &Cache{entries: map[cacheKey]string{}}
}

func (c *Cache) Get(provider, prompt string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey{provider, prompt}]
	return v, ok
}

func (c *Cache) Put(provider, prompt, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{provider, prompt}] = reply
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
