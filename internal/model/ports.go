package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the scan engine from concrete collaborators
// (Yahoo, Angel One, SQLite, Redis). Each implementation satisfies one or
// more of them.

// HistoryFetcher returns daily bars for a symbol.
type HistoryFetcher interface {
	// FetchHistory returns the daily bars of the trailing lookback calendar
	// days, ordered by date ascending. lookback <= 0 asks for the full
	// history the source holds. An empty slice with a nil error means
	// "no data".
	FetchHistory(ctx context.Context, symbol string, lookback int) ([]Bar, error)
}

// BarWriter persists fetched bars so later runs can work offline.
type BarWriter interface {
	WriteBars(ctx context.Context, symbol string, bars []Bar) error
}

// ResultWriter persists a finished scan.
type ResultWriter interface {
	WriteScan(ctx context.Context, res *ScanResult) error

	// Close releases underlying resources.
	Close() error
}

// UniverseCache memoizes a resolved instrument universe.
type UniverseCache interface {
	// LoadUniverse returns the cached symbols; ok is false on a miss.
	LoadUniverse(ctx context.Context, key string) (symbols []string, ok bool, err error)

	// StoreUniverse caches symbols for ttl.
	StoreUniverse(ctx context.Context, key string, symbols []string, ttl time.Duration) error
}
