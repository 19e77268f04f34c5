package ledgernode

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	// defaultReplayTTL is how long a write response is kept for retransmits.
	defaultReplayTTL = 30 * time.Second

	// replayCleanupInterval is the interval between cleanup runs.
	replayCleanupInterval = 5 * time.Second
)

// replayEntry is a cached write response.
type replayEntry struct {
	response []byte // response is the encoded reply sent the first time
	at       int64  // at is the unix nano time the write was served
}

// ReplayCache remembers recent write responses so a byte-identical retransmit
// from the same caller gets the original answer instead of being applied twice.
type ReplayCache struct {
	seen map[[32]byte]replayEntry
	mu   sync.Mutex
	ttl  int64         // ttl in nanoseconds
	stop chan struct{} // stop signals the cleanup goroutine to stop
	wg   sync.WaitGroup
}

// NewReplayCache creates a cache expiring entries after ttl (default if zero).
func NewReplayCache(ttl time.Duration) *ReplayCache {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}

	c := &ReplayCache{
		seen: make(map[[32]byte]replayEntry),
		ttl:  int64(ttl),
		stop: make(chan struct{}),
	}

	c.startCleanup()

	return c
}

// key hashes caller and raw request bytes.
func (c *ReplayCache) key(caller ed25519.PublicKey, data []byte) [32]byte {
	h := blake3.New()
	h.Write(caller)
	h.Write(data)

	var out [32]byte
	h.Sum(out[:0])

	return out
}

// Lookup returns the cached response for a retransmitted request.
func (c *ReplayCache) Lookup(caller ed25519.PublicKey, data []byte) ([]byte, bool) {
	k := c.key(caller, data)
	now := time.Now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[k]
	if !ok || now-e.at >= c.ttl {
		return nil, false
	}

	return e.response, true
}

// Store records the response served for a request.
func (c *ReplayCache) Store(caller ed25519.PublicKey, data, response []byte) {
	k := c.key(caller, data)

	c.mu.Lock()
	c.seen[k] = replayEntry{response: response, at: time.Now().UnixNano()}
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.seen)
}

// Close stops the cleanup goroutine.
func (c *ReplayCache) Close() {
	close(c.stop)
	c.wg.Wait()
}

// startCleanup starts the background cleanup goroutine.
func (c *ReplayCache) startCleanup() {
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(replayCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.cleanup()
			case <-c.stop:
				return
			}
		}
	}()
}

// cleanup removes expired entries.
func (c *ReplayCache) cleanup() {
	now := time.Now().UnixNano()

	c.mu.Lock()

	for k, e := range c.seen {
		if now-e.at >= c.ttl {
			delete(c.seen, k)
		}
	}

	c.mu.Unlock()
}
