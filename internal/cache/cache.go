// Package cache holds bounded, expiring memo caches used on the request path.
package cache

import (
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/YassChaai/SmartCare-Analytics/internal/similarity"
)

// TTL is a thread-safe LRU cache whose entries expire after a fixed
// duration. A zero ttl disables expiry.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	cache   *lru.Cache[K, entry[V]]
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
	evicted uint64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTL creates a cache holding at most size entries.
func NewTTL[K comparable, V any](size int, ttl time.Duration) (*TTL[K, V], error) {
	c, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTL[K, V]{cache: c, ttl: ttl, now: time.Now}, nil
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if ok && c.ttl > 0 && c.now().After(e.expiresAt) {
		c.cache.Remove(key)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	if c.cache.Add(key, entry[V]{value: value, expiresAt: expiresAt}) {
		c.evicted++
	}
}

// Len returns the number of entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Purge drops every entry. Counters are kept.
func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns the current counters.
func (c *TTL[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, Evicted: c.evicted, Size: c.cache.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Neighbours memoises similarity searches. Keys include the history
// version so a reload never serves searches over the previous series.
type Neighbours struct {
	*TTL[string, *similarity.Search]
}

// NewNeighbours creates a neighbour cache.
func NewNeighbours(size int, ttl time.Duration) (*Neighbours, error) {
	c, err := NewTTL[string, *similarity.Search](size, ttl)
	if err != nil {
		return nil, err
	}
	return &Neighbours{TTL: c}, nil
}

// Key identifies a search by history version, descriptor, k and weights.
func Key(version string, d similarity.Descriptor, k int, w similarity.Weights) string {
	temp := "-"
	if !math.IsNaN(d.Temperature) {
		temp = fmt.Sprintf("%.2f", d.Temperature)
	}
	return fmt.Sprintf("%s|%s|%t|%s|%s|%s|%d|%g,%g,%g,%g,%g,%g",
		version, d.Date.Format("2006-01-02"), d.Holiday, temp, d.Weather, d.Event, k,
		w.Day, w.Season, w.Holiday, w.Temperature, w.Weather, w.Event)
}
