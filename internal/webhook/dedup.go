package webhook

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// dedupCache is a bounded, TTL-aware delivery-id cache: Seen reports
// whether deliveryID has already been processed within the configured
// window, recording it if not. Grounded in
// hashicorp/golang-lru/v2 (already present in the pack's dependency
// tree via iruldev-golang-api-hexagonal) for the bounded-eviction part;
// the TTL check on top mirrors internal/idempotency.Store's
// expiry-timestamp idiom since an LRU cache alone can't express "seen
// in the last 24h" once the capacity, not the clock, is what evicts.
type dedupCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, time.Time]
	window time.Duration
	now    func() time.Time
}

func newDedupCache(capacity int, window time.Duration, now func() time.Time) *dedupCache {
	if capacity <= 0 {
		capacity = 10000
	}
	c, _ := lru.New[string, time.Time](capacity)
	if now == nil {
		now = time.Now
	}
	return &dedupCache{lru: c, window: window, now: now}
}

// Seen returns true if deliveryID was already recorded within window
// and still valid; otherwise it records deliveryID and returns false.
func (d *dedupCache) Seen(deliveryID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.lru.Get(deliveryID); ok {
		if d.window <= 0 || d.now().Sub(ts) < d.window {
			return true
		}
	}
	d.lru.Add(deliveryID, d.now())
	return false
}
