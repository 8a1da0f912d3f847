package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/footprint"
	"btcFootprint/internal/metrics"
	"btcFootprint/internal/ports"
)

// Key identifies one cached footprint series. Every request parameter that changes
// the aggregation result is part of it.
type Key struct {
	Interval   string
	Step       float64
	FilterMode domain.FilterMode
	Percentile int
	MinQty     float64
	TopN       int
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%g_%s_%d_%g_%d", k.Interval, k.Step, k.FilterMode, k.Percentile, k.MinQty, k.TopN)
}

// ComputeFunc produces a full footprint series.
type ComputeFunc func(ctx context.Context) (*domain.Footprint, error)

// RefreshFunc produces the freshest bar of a series. cached reports whether a series
// is held for the key; without one the function should return a complete series.
type RefreshFunc func(ctx context.Context, cached bool) (*domain.Footprint, error)

// OrderBookFunc fetches an order book snapshot.
type OrderBookFunc func(ctx context.Context) (*domain.OrderBook, error)

type entry struct {
	footprint *domain.Footprint
	fetchedAt time.Time
}

// Cache holds footprint series and the latest order book. A single mutex guards
// every read and write, and computations run while it is held, so concurrent
// requests for any key queue behind one another.
//
// Returned footprints are shared with the cache and must be treated as read-only.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	book    *domain.OrderBook
	bookAt  time.Time
	ttl     time.Duration
	bookTTL time.Duration
	window  int
	now     func() time.Time
	logger  ports.Logger
	metrics *metrics.Metrics
}

// Config holds configuration for the Cache.
type Config struct {
	TTL          time.Duration // full series lifetime, 0 never expires
	OrderBookTTL time.Duration // default 3s
	Window       int           // bars kept after a merge, 0 keeps all
	Logger       ports.Logger
	Metrics      *metrics.Metrics // optional
	Clock        func() time.Time // optional, defaults to time.Now
}

// New creates an empty Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for cache: %w", ports.ErrConfigurationError)
	}
	if cfg.TTL < 0 || cfg.OrderBookTTL < 0 || cfg.Window < 0 {
		return nil, fmt.Errorf("cache durations and window must not be negative: %w", ports.ErrConfigurationError)
	}
	bookTTL := cfg.OrderBookTTL
	if bookTTL == 0 {
		bookTTL = 3 * time.Second
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[Key]*entry),
		ttl:     cfg.TTL,
		bookTTL: bookTTL,
		window:  cfg.Window,
		now:     now,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

func (c *Cache) live(e *entry) bool {
	return c.ttl == 0 || c.now().Sub(e.fetchedAt) < c.ttl
}

// GetOrCompute returns the live series for key, computing and storing it when absent
// or expired. Errors and error-tagged results are returned but never stored.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (*domain.Footprint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.live(e) {
		c.metrics.RecordCacheLookup(metrics.CacheHit)
		return e.footprint, nil
	}
	c.metrics.RecordCacheLookup(metrics.CacheMiss)

	fp, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if fp.Failed() {
		c.logger.Warn(ctx, "Series unavailable, not caching", map[string]interface{}{"key": key.String(), "error": fp.Stats.Error})
		return fp, nil
	}

	c.entries[key] = &entry{footprint: fp, fetchedAt: c.now()}
	c.logger.Debug(ctx, "Series cached", map[string]interface{}{"key": key.String(), "bars": len(fp.Bars)})
	return fp, nil
}

// RefreshLast recomputes the newest bar and merges it into the series held for key,
// whatever its age. The merged series is trimmed to the window, its stats are
// recomputed from every bar held, and the entry keeps its original fetch time.
// With nothing held, the refresh result is returned as is and not stored.
func (c *Cache) RefreshLast(ctx context.Context, key Key, refresh RefreshFunc) (*domain.Footprint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, cached := c.entries[key]
	fresh, err := refresh(ctx, cached)
	if err != nil {
		return nil, err
	}
	if !cached {
		c.metrics.RecordCacheLookup(metrics.CacheBypass)
		return fresh, nil
	}
	if fresh.Failed() || len(fresh.Bars) == 0 {
		return fresh, nil
	}
	c.metrics.RecordCacheLookup(metrics.CacheRefresh)

	bars := footprint.MergeLastBar(e.footprint.Bars, fresh.Bars[len(fresh.Bars)-1])
	bars = footprint.Trim(bars, c.window)
	merged := &domain.Footprint{Bars: bars, Stats: footprint.Summarize(bars)}
	c.entries[key] = &entry{footprint: merged, fetchedAt: e.fetchedAt}
	return merged, nil
}

// OrderBook returns the held order book while it is younger than the order book TTL,
// fetching a new one otherwise. Failed fetches are not stored.
func (c *Cache) OrderBook(ctx context.Context, fetch OrderBookFunc) (*domain.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.book != nil && c.now().Sub(c.bookAt) < c.bookTTL {
		return c.book, nil
	}

	book, err := fetch(ctx)
	if err != nil {
		return book, err
	}
	c.book = book
	c.bookAt = c.now()
	return book, nil
}

// Len returns the number of series held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
