package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ma-screener/config"
	"ma-screener/internal/api"
	"ma-screener/internal/metrics"
	"ma-screener/internal/model"
	"ma-screener/internal/scanner"
	redisstore "ma-screener/internal/store/redis"
	sqlitestore "ma-screener/internal/store/sqlite"
	"ma-screener/internal/universe"
)

// Runtime is a Service together with the stores it owns.
type Runtime struct {
	Service *Service
	SQLite  *sqlitestore.Writer
	Reader  *sqlitestore.Reader
	Redis   *redisstore.Cache
	log     *slog.Logger
}

// Options adjusts Open for the calling binary.
type Options struct {
	// Metrics receives scan timings and breaker transitions when set.
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus

	// MemoryCache memoizes remote universes in process when Redis is off.
	MemoryCache bool
}

// Open connects the configured stores and assembles a Service. A Redis
// failure is logged and the runtime continues without it; a SQLite failure
// is fatal because the operator asked for persistence.
func Open(ctx context.Context, cfg *config.Config, opts Options, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}
	rt := &Runtime{log: log}

	if cfg.SQLite.Path != "" {
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("sqlite writer: %w", err)
		}
		rt.SQLite = w
		r, err := sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("sqlite reader: %w", err)
		}
		rt.Reader = r
		log.Info("[app] sqlite ready", "path", cfg.SQLite.Path)
	}
	if opts.Health != nil {
		opts.Health.SQLiteConfigured = rt.SQLite != nil
		opts.Health.RedisConfigured = cfg.Redis.Enabled
	}

	if cfg.Redis.Enabled {
		c, err := redisstore.New(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("[app] redis unavailable, continuing without cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			rt.Redis = c
			if m := opts.Metrics; m != nil {
				cb := c.Breaker()
				cb.OnStateChange = func(from, to redisstore.State) {
					log.Warn("[redis] circuit breaker", "from", from.String(), "to", to.String())
					m.ObserveBreaker(int(to))
				}
			}
		}
	}

	var barWriter model.BarWriter
	if cfg.SQLite.WriteThrough && rt.SQLite != nil {
		barWriter = rt.SQLite
	}
	fetcher, err := NewFetcher(cfg, rt.Reader, barWriter, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var cache model.UniverseCache
	switch {
	case rt.Redis != nil:
		cache = rt.Redis
	case opts.MemoryCache:
		cache = universe.NewMemoryCache()
	}
	src, err := NewUniverse(cfg.Universe, cache, cfg.Redis.UniverseTTL, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	strat, err := NewStrategy(cfg.Strategy)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%w: %v", scanner.ErrConfig, err)
	}
	mode, err := scanner.ParseMode(cfg.Scan.Mode, cfg.Scan.Window)
	if err != nil {
		rt.Close()
		return nil, err
	}

	svc := &Service{
		Fetcher:     fetcher,
		Universe:    src,
		Suffix:      cfg.Universe.Suffix,
		Strategy:    strat,
		Mode:        mode,
		Lookback:    cfg.Scan.LookbackDays,
		Workers:     cfg.Scan.Workers,
		TrimForming: cfg.Scan.TrimForming,
		KeepScans:   cfg.SQLite.KeepScans,
		Notifier:    NewNotifier(cfg.Notify, log),
		Health:      opts.Health,
		Precision:   cfg.Output.Precision,
		Ctx:         ctx,
		Log:         log,
	}
	if rt.SQLite != nil {
		svc.Writers = append(svc.Writers, rt.SQLite)
	}
	if rt.Redis != nil {
		svc.Writers = append(svc.Writers, rt.Redis)
	}
	if opts.Metrics != nil {
		svc.Observer = opts.Metrics
	}
	rt.Service = svc
	return rt, nil
}

// Latest returns the store that answers "latest scan" queries: Redis
// first, then SQLite. It is nil when neither is open.
func (rt *Runtime) Latest() api.LatestStore {
	var chain latestChain
	if rt.Redis != nil {
		chain = append(chain, rt.Redis)
	}
	if rt.Reader != nil {
		chain = append(chain, rt.Reader)
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// Pingers returns the open stores as liveness probes; absent ones are nil.
func (rt *Runtime) Pingers() (redis, sqlite metrics.Pinger) {
	if rt.Redis != nil {
		redis = rt.Redis
	}
	if rt.Reader != nil {
		sqlite = rt.Reader
	}
	return redis, sqlite
}

// Close releases every open store.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.Reader != nil {
		errs = append(errs, rt.Reader.Close())
	}
	if rt.SQLite != nil {
		errs = append(errs, rt.SQLite.Close())
	}
	return errors.Join(errs...)
}

// latestChain asks each store in turn and returns the first hit. A store
// error is logged by the caller only when no later store answers.
type latestChain []api.LatestStore

func (c latestChain) LatestScan(ctx context.Context, strategy string) (*model.ScanResult, error) {
	var firstErr error
	for _, s := range c {
		res, err := s.LatestScan(ctx, strategy)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, firstErr
}
