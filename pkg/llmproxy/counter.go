package llmproxy

import "sync"

// counters tracks per-key token usage — a map from api key to count behind
// a mutex. There is no package-level "active key" singleton: the active key
// is a field of each Server. /init takes the key in its request body and
// marks it as that Server's active key; /reset, /count and /call then act
// on the active key.
type counters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCounters() *counters {
	return &counters{counts: make(map[string]int64)}
}

// Init creates a counter for key if absent. It is idempotent: calling it
// again on an existing key does not reset the count.
func (c *counters) Init(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counts[key]; !ok {
		c.counts[key] = 0
	}
}

// Reset zeroes the counter for key.
func (c *counters) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] = 0
}

// Add adds n to key's counter. The key must already have been Init'd;
// Add on an unknown key still records the value (a container that raced
// /init and /call is still billed correctly).
func (c *counters) Add(key string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] += n
}

// Count returns (count, true) if key has a counter, else (0, false).
func (c *counters) Count(key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[key]
	return n, ok
}
