package universe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ma-screener/internal/model"
)

// MemoryCache is an in-process model.UniverseCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	symbols []string
	expires time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) LoadUniverse(_ context.Context, key string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out, true, nil
}

func (c *MemoryCache) StoreUniverse(_ context.Context, key string, symbols []string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(symbols))
	copy(cp, symbols)
	c.entries[key] = memEntry{symbols: cp, expires: c.now().Add(ttl)}
	return nil
}

// Cached memoizes a source through a UniverseCache. Cache errors fall back
// to the source; a source error with a cold cache is returned.
type Cached struct {
	Source Source
	Cache  model.UniverseCache
	TTL    time.Duration
	Log    *slog.Logger
}

func (c Cached) Name() string { return c.Source.Name() }

func (c Cached) key() string { return "universe:" + c.Source.Name() }

func (c Cached) Symbols(ctx context.Context) ([]string, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	syms, ok, err := c.Cache.LoadUniverse(ctx, c.key())
	if err != nil {
		log.Warn("[universe] cache read failed", "source", c.Source.Name(), "error", err)
	}
	if ok {
		return syms, nil
	}

	syms, err = c.Source.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.StoreUniverse(ctx, c.key(), syms, c.TTL); err != nil {
		log.Warn("[universe] cache write failed", "source", c.Source.Name(), "error", err)
	}
	return syms, nil
}
