// Package terrain caches point heights so repeated analysis runs over
// the same ground do not spend upstream quota. Entries live in an
// R-tree keyed by LV03 position, optionally backed by a SQLite store
// that survives restarts.
package terrain

import (
	"math"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"

	"github.com/RX12/RF-LOS-CH/model"
)

const (
	// DefaultMatchRadiusMeters is how far a cached sample may sit from
	// the queried position and still answer for it. Heatmap grids
	// re-ask for the same planar points, so a tight radius is enough.
	DefaultMatchRadiusMeters = 1.0

	// DefaultTTL bounds how long a cached height is trusted.
	DefaultTTL = 12 * time.Hour

	rtreeMinChildren = 8
	rtreeMaxChildren = 16
	// Side length of the degenerate rect a point entry occupies.
	pointExtent = 0.01
)

type heightEntry struct {
	pos     model.PlanarPoint
	height  float64
	fetched time.Time
	rect    *rtreego.Rect
}

func (e *heightEntry) Bounds() *rtreego.Rect { return e.rect }

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// HitRatio returns hits/(hits+misses), zero before any lookup.
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a thread-safe spatial height cache.
type Cache struct {
	mu     sync.RWMutex
	tree   *rtreego.Rtree
	count  int
	hits   int64
	misses int64
	radius float64
	ttl    time.Duration
}

// NewCache builds an empty cache. Non-positive radius or ttl fall back
// to the defaults.
func NewCache(radiusMeters float64, ttl time.Duration) *Cache {
	if radiusMeters <= 0 {
		radiusMeters = DefaultMatchRadiusMeters
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		tree:   rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren),
		radius: radiusMeters,
		ttl:    ttl,
	}
}

// Put stores a height sample at the current time.
func (c *Cache) Put(p model.PlanarPoint, height float64) {
	if c == nil {
		return
	}
	c.putAt(p, height, time.Now())
}

func (c *Cache) putAt(p model.PlanarPoint, height float64, fetched time.Time) {
	rect, err := rtreego.NewRect(rtreego.Point{p.E, p.N}, []float64{pointExtent, pointExtent})
	if err != nil {
		return
	}
	c.mu.Lock()
	c.tree.Insert(&heightEntry{pos: p, height: height, fetched: fetched, rect: rect})
	c.count++
	c.mu.Unlock()
}

// Lookup returns the nearest fresh cached height within the match
// radius of p, if any.
func (c *Cache) Lookup(p model.PlanarPoint) (float64, bool) {
	if c == nil {
		return 0, false
	}
	probe := rtreego.Point{p.E, p.N}.ToRect(c.radius)

	c.mu.RLock()
	candidates := c.tree.SearchIntersect(probe)
	c.mu.RUnlock()

	var best *heightEntry
	bestDist := math.Inf(1)
	for _, cand := range candidates {
		e := cand.(*heightEntry)
		if time.Since(e.fetched) > c.ttl {
			continue
		}
		d := math.Hypot(e.pos.E-p.E, e.pos.N-p.N)
		if d > c.radius {
			continue
		}
		if d < bestDist || (d == bestDist && best != nil && e.fetched.After(best.fetched)) {
			best, bestDist = e, d
		}
	}

	if best == nil {
		c.recordMiss()
		return 0, false
	}
	c.recordHit()
	return best.height, true
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// rtreego cannot iterate in place, so collect via a whole-plane
	// search and delete the stale ones.
	all := c.tree.SearchIntersect(everything())
	dropped := 0
	for _, cand := range all {
		e := cand.(*heightEntry)
		if time.Since(e.fetched) > c.ttl {
			if c.tree.Delete(e) {
				c.count--
				dropped++
			}
		}
	}
	return dropped
}

// Stats returns a snapshot of the hit counters and entry count.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: c.count}
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func everything() *rtreego.Rect {
	// Covers the whole LV03 plane and then some.
	r, _ := rtreego.NewRect(rtreego.Point{-1e9, -1e9}, []float64{2e9, 2e9})
	return r
}
