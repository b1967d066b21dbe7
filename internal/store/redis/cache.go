// Package redis holds the shared cache: resolved universes and the latest
// scan per strategy, guarded by a circuit breaker so a Redis outage never
// blocks a scan.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"ma-screener/internal/model"
)

const (
	defaultPrefix    = "screener:"
	defaultLatestTTL = 7 * 24 * time.Hour

	// ChannelScanCompleted receives a ScanEvent after each stored scan.
	ChannelScanCompleted = "scan:completed"
)

// Config configures the Redis cache.
type Config struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	KeyPrefix string

	// Breaker settings; zero values use 5 failures and 30s.
	MaxFailures  int
	ResetTimeout time.Duration
}

// ScanEvent is published on ChannelScanCompleted.
type ScanEvent struct {
	ID       string    `json:"id"`
	Strategy string    `json:"strategy"`
	Mode     string    `json:"mode"`
	Matched  int       `json:"matched"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Finished time.Time `json:"finished_at"`
}

// Cache implements model.UniverseCache and model.ResultWriter.
type Cache struct {
	client *goredis.Client
	cb     *CircuitBreaker
	prefix string
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker guarding the client.
func (c *Cache) Breaker() *CircuitBreaker { return c.cb }

// New connects and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxFailures, reset := cfg.MaxFailures, cfg.ResetTimeout
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if reset <= 0 {
		reset = 30 * time.Second
	}
	cb := NewCircuitBreaker(maxFailures, reset)
	cb.OnStateChange = func(from, to State) {
		slog.Warn("[redis] circuit breaker", "from", from.String(), "to", to.String())
	}

	slog.Info("[redis] connected", "addr", cfg.Addr)
	return NewWithClient(client, cb, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, cb *CircuitBreaker, prefix string) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if cb == nil {
		cb = NewCircuitBreaker(5, 30*time.Second)
	}
	return &Cache{client: client, cb: cb, prefix: prefix}
}

func (c *Cache) key(parts ...string) string {
	k := c.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// LoadUniverse implements model.UniverseCache.
func (c *Cache) LoadUniverse(ctx context.Context, key string) ([]string, bool, error) {
	var raw string
	err := c.cb.Execute(func() error {
		var err error
		raw, err = c.client.Get(ctx, c.key(key)).Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis load universe: %w", err)
	}
	if raw == "" {
		return nil, false, nil
	}
	var symbols []string
	if err := json.Unmarshal([]byte(raw), &symbols); err != nil {
		return nil, false, fmt.Errorf("redis decode universe: %w", err)
	}
	return symbols, true, nil
}

// StoreUniverse implements model.UniverseCache.
func (c *Cache) StoreUniverse(ctx context.Context, key string, symbols []string, ttl time.Duration) error {
	data, err := json.Marshal(symbols)
	if err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		return c.client.Set(ctx, c.key(key), data, ttl).Err()
	})
}

// WriteScan caches res as the latest scan of its strategy and announces it
// on ChannelScanCompleted. Backtest runs are not screens and are ignored.
func (c *Cache) WriteScan(ctx context.Context, res *model.ScanResult) error {
	if res.Backtest() {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal scan: %w", err)
	}
	event, err := json.Marshal(ScanEvent{
		ID: res.ID, Strategy: res.Strategy, Mode: res.Mode,
		Matched: len(res.Records), Failed: len(res.Failures), Skipped: len(res.Skipped),
		Finished: res.FinishedAt,
	})
	if err != nil {
		return err
	}

	return c.cb.Execute(func() error {
		pipe := c.client.Pipeline()
		pipe.Set(ctx, c.key("scan", "latest", res.Strategy), data, defaultLatestTTL)
		pipe.Publish(ctx, c.key(ChannelScanCompleted), event)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis write scan: %w", err)
		}
		return nil
	})
}

// LatestScan returns the cached latest scan of strategy, or nil.
func (c *Cache) LatestScan(ctx context.Context, strategy string) (*model.ScanResult, error) {
	var raw []byte
	err := c.cb.Execute(func() error {
		var err error
		raw, err = c.client.Get(ctx, c.key("scan", "latest", strategy)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis latest scan: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var res model.ScanResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("redis decode scan: %w", err)
	}
	return &res, nil
}

// SubscribeScans returns a subscription to scan-completed events.
func (c *Cache) SubscribeScans(ctx context.Context) *goredis.PubSub {
	return c.client.Subscribe(ctx, c.key(ChannelScanCompleted))
}

// Ping checks the server without going through the breaker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
