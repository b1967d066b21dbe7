// Package app assembles the screener from configuration and runs screens
// and backtests end to end: universe, fetch, scan, rank, persist, notify.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"ma-screener/config"
	"ma-screener/internal/marketdata"
	"ma-screener/internal/model"
	"ma-screener/internal/notification"
	"ma-screener/internal/scanner"
	sqlitestore "ma-screener/internal/store/sqlite"
	"ma-screener/internal/strategy"
	"ma-screener/internal/universe"
	"ma-screener/pkg/smartconnect"
)

// NewFetcher builds the configured bar source. reader is required for the
// sqlite provider; writer, when set, receives every fetched series.
func NewFetcher(cfg *config.Config, reader *sqlitestore.Reader, writer model.BarWriter, log *slog.Logger) (model.HistoryFetcher, error) {
	var src model.HistoryFetcher
	switch cfg.Provider {
	case "yahoo":
		opts := []marketdata.YahooOption{
			marketdata.WithBaseURL(cfg.Yahoo.BaseURL),
			marketdata.WithRateLimit(cfg.Yahoo.RateLimit),
			marketdata.WithRetries(cfg.Yahoo.Retries),
			marketdata.WithTimeout(cfg.Yahoo.Timeout),
			marketdata.WithLogger(log),
		}
		if cfg.Yahoo.Proxy != "" {
			opts = append(opts, marketdata.WithProxy(cfg.Yahoo.Proxy))
		}
		src = marketdata.NewYahoo(opts...)
	case "angel":
		client := smartconnect.New(smartconnect.Config{APIKey: cfg.Angel.APIKey, RootURL: cfg.Angel.RootURL})
		src = marketdata.NewAngel(client, marketdata.AngelConfig{
			ClientCode: cfg.Angel.ClientCode,
			Password:   cfg.Angel.Password,
			TOTPSecret: cfg.Angel.TOTPSecret,
			RateLimit:  cfg.Angel.RateLimit,
		}, log)
	case "sqlite":
		if reader == nil {
			return nil, fmt.Errorf("%w: provider sqlite needs an open database", scanner.ErrConfig)
		}
		// Reading back what was just read would only rewrite it.
		return reader, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", scanner.ErrConfig, cfg.Provider)
	}
	if writer != nil {
		return marketdata.NewWriteThrough(src, writer, log), nil
	}
	return src, nil
}

// NewUniverse builds the configured symbol source, memoized through cache
// when one is given.
func NewUniverse(cfg config.UniverseConfig, cache model.UniverseCache, ttl time.Duration, log *slog.Logger) (universe.Source, error) {
	var src universe.Source
	switch cfg.Source {
	case "file":
		src = universe.File{Path: cfg.File}
	case "csv":
		src = universe.CSVURL{URL: cfg.URL, Column: cfg.Column}
	case "list":
		src = universe.Static{Label: "list", List: cfg.Symbols}
	default:
		b, ok := universe.Builtin(cfg.Source)
		if !ok {
			return nil, fmt.Errorf("%w: unknown universe %q", scanner.ErrConfig, cfg.Source)
		}
		src = b
	}
	// Local sources are cheap to re-read and may change between runs.
	if cache != nil && cfg.Source == "csv" {
		src = universe.Cached{Source: src, Cache: cache, TTL: ttl, Log: log}
	}
	return src, nil
}

// NewStrategy returns the configured strategy with its period overrides.
func NewStrategy(cfg config.StrategyConfig) (strategy.Strategy, error) {
	return strategy.New(cfg.Name, cfg.Periods)
}

// NewNotifier returns the configured alert backends, or nil when none is.
func NewNotifier(cfg config.NotifyConfig, log *slog.Logger) notification.Notifier {
	var m notification.Multi
	if cfg.Log {
		m = append(m, notification.NewLogNotifier(log))
	}
	if cfg.TelegramToken != "" {
		m = append(m, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		m = append(m, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
