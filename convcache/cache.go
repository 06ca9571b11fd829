// Package convcache implements the conversation cache (C11): a small,
// thread-safe map from a prompt-history fingerprint to a paused
// InferenceState, so a follow-up request sharing a prompt prefix can
// resume decoding instead of re-running the whole prefill.
package convcache

import (
	"sync"
	"time"
)

// TTL is the maximum idle time before an entry is considered expired.
const TTL = 5 * time.Minute

// MaxEntries bounds the cache; once full, put evicts the
// least-recently-accessed entry before inserting.
const MaxEntries = 4

// Entry is the cached state for one conversation. State is opaque to
// the cache — callers type-assert or parametrize it.
type Entry struct {
	State        any
	PromptTokens []int
	lastAccess   time.Time
}

// Cache is the conversation cache of spec §4.11. Safe for concurrent
// use; the take/put discipline gives the active caller exclusive
// ownership of an entry between the two calls.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// New builds an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry), now: time.Now}
}

// Take atomically removes and returns the entry for key, or nil if
// absent or expired (now-last_access > TTL). The caller owns the
// returned entry exclusively until it calls Put.
func (c *Cache) Take(key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	delete(c.entries, key)
	if c.now().Sub(e.lastAccess) > TTL {
		return nil
	}
	return e
}

// Put evicts expired entries, then — if the cache is still at capacity
// — evicts the entry with the smallest last_access, then inserts entry
// under key with last_access = now.
func (c *Cache) Put(key string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.lastAccess) > TTL {
			delete(c.entries, k)
		}
	}

	if len(c.entries) >= MaxEntries {
		var oldestKey string
		var oldest time.Time
		first := true
		for k, e := range c.entries {
			if first || e.lastAccess.Before(oldest) {
				oldestKey, oldest = k, e.lastAccess
				first = false
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}

	entry.lastAccess = now
	c.entries[key] = entry
}

// Len reports the number of live entries, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
