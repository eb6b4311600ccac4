package terrain

import (
	"context"
	"time"

	"github.com/RX12/RF-LOS-CH/internal/logging"
	"github.com/RX12/RF-LOS-CH/model"
)

// HeightSource is the upstream point-height lookup the service shields.
type HeightSource interface {
	Height(ctx context.Context, p model.PlanarPoint) (float64, error)
}

// Service answers height lookups cache-first, falling back to the
// upstream source and writing successful answers through to the cache
// and, when configured, the persistent store. Upstream failures pass
// through untouched so callers keep their error semantics.
type Service struct {
	src   HeightSource
	cache *Cache
	store *Store // optional
	log   logging.Logger
}

// NewService wires a caching height service. store may be nil.
func NewService(src HeightSource, cache *Cache, store *Store, log logging.Logger) *Service {
	if cache == nil {
		cache = NewCache(0, 0)
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Service{src: src, cache: cache, store: store, log: log}
}

// Height implements the HeightSource interface with caching on top of
// the wrapped source.
func (s *Service) Height(ctx context.Context, p model.PlanarPoint) (float64, error) {
	if h, ok := s.cache.Lookup(p); ok {
		return h, nil
	}

	h, err := s.src.Height(ctx, p)
	if err != nil {
		return 0, err
	}

	s.cache.Put(p, h)
	if s.store != nil {
		if err := s.store.Save(ctx, p, h, time.Now()); err != nil {
			// Persistence is best effort; the lookup already succeeded.
			s.log.Warn(ctx, "terrain store write failed",
				logging.Float64("easting", p.E),
				logging.Float64("northing", p.N),
				logging.Err(err),
			)
		}
	}
	return h, nil
}

// Warm preloads the cache from the store, skipping samples older than
// the cache TTL. It returns the number of entries loaded.
func (s *Service) Warm(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.cache.ttl)
	stored, err := s.store.Load(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, sh := range stored {
		s.cache.putAt(sh.Pos, sh.HeightM, sh.FetchedAt)
	}
	s.log.Info(ctx, "terrain cache warmed", logging.Int("entries", len(stored)))
	return len(stored), nil
}

// Sweep drops expired cache entries and, when a store is configured,
// deletes persisted samples older than the cache TTL. Store failures
// are logged, not returned; the sweep is housekeeping.
func (s *Service) Sweep(ctx context.Context) (purged int, pruned int64) {
	purged = s.cache.Purge()
	if s.store != nil {
		n, err := s.store.Prune(ctx, time.Now().Add(-s.cache.ttl))
		if err != nil {
			s.log.Warn(ctx, "terrain store prune failed", logging.Err(err))
		} else {
			pruned = n
		}
	}
	return purged, pruned
}

// CacheStats exposes the cache counters for the status API.
func (s *Service) CacheStats() CacheStats { return s.cache.Stats() }

// StoredCount reports how many samples the persistent store holds,
// zero without a store.
func (s *Service) StoredCount(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.Count(ctx)
}
