package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"ma-screener/internal/api"
	"ma-screener/internal/indicator"
	"ma-screener/internal/logger"
	"ma-screener/internal/markethours"
	"ma-screener/internal/metrics"
	"ma-screener/internal/model"
	"ma-screener/internal/notification"
	"ma-screener/internal/rank"
	"ma-screener/internal/report"
	"ma-screener/internal/scanner"
	"ma-screener/internal/strategy"
	"ma-screener/internal/universe"
)

// Publisher receives live scan events (the websocket hub).
type Publisher interface {
	PublishStarted(scanID, strategy, mode string)
	PublishProgress(p model.Progress)
	PublishScan(res *model.ScanResult, err error)
}

// pruner is implemented by result stores that cap their history.
type pruner interface {
	PruneScans(ctx context.Context, keep int) error
}

// Service runs screens and backtests. Only one scan runs at a time.
type Service struct {
	Fetcher  model.HistoryFetcher
	Universe universe.Source
	Suffix   string

	// Strategy is the configured strategy, period overrides applied.
	Strategy strategy.Strategy

	Mode        scanner.Mode
	Lookback    int
	Workers     int
	TrimForming bool

	Writers   []model.ResultWriter
	KeepScans int
	Notifier  notification.Notifier
	Publisher Publisher
	Observer  scanner.Observer
	Health    *metrics.HealthStatus
	Precision report.Precision

	// Ctx is the parent of scans started by Trigger.
	Ctx context.Context
	Log *slog.Logger
	Now func() time.Time

	running atomic.Bool
}

func (s *Service) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Symbols resolves and normalizes the universe.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	syms, err := universe.Resolve(ctx, s.Universe, s.Suffix)
	if err != nil {
		return nil, fmt.Errorf("%w: universe: %v", scanner.ErrConfig, err)
	}
	return syms, nil
}

func (s *Service) scanner(strat strategy.Strategy, mode scanner.Mode, lookback int) (*scanner.Scanner, error) {
	cfg := scanner.Config{
		Fetcher:  s.Fetcher,
		Strategy: strat,
		Mode:     mode,
		Lookback: lookback,
		Workers:  s.Workers,
		Observer: s.Observer,
		Logger:   s.Log,
		Now:      s.Now,
	}
	if s.Publisher != nil {
		cfg.Progress = s.Publisher.PublishProgress
	}
	if s.TrimForming {
		cfg.Trim = func(bars []model.Bar) []model.Bar { return markethours.DropForming(bars, s.now()) }
	}
	return scanner.New(cfg)
}

// Screen runs the configured strategy (or strat, when non-nil) over the
// universe, ranks the matches, stores the result and sends alerts. Storage
// and alert failures are logged; the scan result is still returned. A
// cancelled scan returns its partial result with the context error.
func (s *Service) Screen(ctx context.Context, strat strategy.Strategy) (*model.ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, api.ErrScanRunning
	}
	defer s.running.Store(false)
	return s.screen(ctx, strat)
}

func (s *Service) screen(ctx context.Context, strat strategy.Strategy) (*model.ScanResult, error) {
	if strat == nil {
		strat = s.Strategy
	}
	if logger.ScanID(ctx) == "" {
		ctx = logger.WithScanID(ctx, logger.NewScanID())
	}
	log := s.logger()

	if s.Health != nil {
		s.Health.ScanStarted()
	}
	if s.Publisher != nil {
		s.Publisher.PublishStarted(logger.ScanID(ctx), strat.Name(), s.Mode.String())
	}
	res, err := s.runScan(ctx, strat, s.Mode, s.Lookback)
	if s.Health != nil {
		s.Health.ScanFinished(logger.ScanID(ctx), err)
	}
	if res == nil {
		if s.Publisher != nil {
			s.Publisher.PublishScan(&model.ScanResult{ID: logger.ScanID(ctx), Strategy: strat.Name()}, err)
		}
		return nil, err
	}
	res.Records = rank.Screen(res.Records)

	// Persist and notify even after cancellation so partial work is kept.
	outCtx := context.WithoutCancel(ctx)
	s.persist(outCtx, res)
	if s.Notifier != nil {
		if nerr := s.Notifier.Send(outCtx, notification.ScanAlert(res, s.Precision)); nerr != nil {
			log.Warn("[app] notify failed", append(logger.LogWithScan(ctx), "error", nerr)...)
		}
	}
	if s.Publisher != nil {
		s.Publisher.PublishScan(res, err)
	}
	return res, err
}

func (s *Service) runScan(ctx context.Context, strat strategy.Strategy, mode scanner.Mode, lookback int) (*model.ScanResult, error) {
	symbols, err := s.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := s.scanner(strat, mode, lookback)
	if err != nil {
		return nil, err
	}
	return sc.Run(ctx, symbols)
}

func (s *Service) persist(ctx context.Context, res *model.ScanResult) {
	log := s.logger()
	for _, w := range s.Writers {
		if err := w.WriteScan(ctx, res); err != nil {
			log.Warn("[app] store scan failed", "scan_id", res.ID, "error", err)
			continue
		}
		if p, ok := w.(pruner); ok && s.KeepScans > 0 {
			if err := p.PruneScans(ctx, s.KeepScans); err != nil {
				log.Warn("[app] prune scans failed", "error", err)
			}
		}
	}
}

// Trigger starts a screen in the background and returns its scan ID. An
// empty name runs the configured strategy.
func (s *Service) Trigger(name string) (string, error) {
	strat, err := s.strategyFor(name)
	if err != nil {
		return "", err
	}
	if !s.running.CompareAndSwap(false, true) {
		return "", api.ErrScanRunning
	}

	parent := s.Ctx
	if parent == nil {
		parent = context.Background()
	}
	id := logger.NewScanID()
	ctx := logger.WithScanID(parent, id)
	go func() {
		defer s.running.Store(false)
		if _, err := s.screen(ctx, strat); err != nil && !errors.Is(err, context.Canceled) {
			s.logger().Error("[app] triggered scan failed", "scan_id", id, "error", err)
		}
	}()
	return id, nil
}

// strategyFor resolves a strategy by name. Configured period overrides
// belong to the configured strategy only; any other name gets its defaults.
func (s *Service) strategyFor(name string) (strategy.Strategy, error) {
	name = strings.TrimSpace(name)
	if name == "" || (s.Strategy != nil && strings.EqualFold(name, s.Strategy.Name())) {
		return s.Strategy, nil
	}
	return strategy.New(name, indicator.Periods{})
}

// Running reports whether a scan is in flight.
func (s *Service) Running() bool { return s.running.Load() }

// BacktestResult is a full-history run with its trade log and statistics.
type BacktestResult struct {
	Scan     *model.ScanResult
	Summary  rank.Summary
	BySymbol map[string]rank.Summary
}

// Backtest evaluates strat on every bar of each symbol's history within
// lookbackDays (<= 0 for all) and summarises next-bar returns.
func (s *Service) Backtest(ctx context.Context, strat strategy.Strategy, lookbackDays int) (*BacktestResult, error) {
	if strat == nil {
		strat = s.Strategy
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, api.ErrScanRunning
	}
	defer s.running.Store(false)

	res, err := s.runScan(ctx, strat, scanner.FullHistory(), lookbackDays)
	if res == nil {
		return nil, err
	}
	res.Records = rank.Backtest(res.Records)
	s.persist(context.WithoutCancel(ctx), res)
	return &BacktestResult{
		Scan:     res,
		Summary:  rank.Summarize(res.Records),
		BySymbol: rank.BySymbol(res.Records),
	}, err
}
