package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ma-screener/internal/logger"
	"ma-screener/internal/model"
	"ma-screener/internal/strategy"
)

// Observer receives per-symbol and per-scan timings. The metrics package
// provides the Prometheus implementation.
type Observer interface {
	ObserveSymbol(strategy string, outcome model.Outcome, fetch time.Duration)
	ObserveScan(res *model.ScanResult, elapsed time.Duration)
}

// Config wires a Scanner.
type Config struct {
	Fetcher  model.HistoryFetcher
	Strategy strategy.Strategy
	Mode     Mode

	// Lookback is passed to the fetcher in calendar days; <= 0 asks for the
	// full history.
	Lookback int

	// Workers > 1 fetches and evaluates symbols concurrently. Output order
	// is the universe order regardless.
	Workers int

	// Progress is called after every symbol. It runs on the scanning
	// goroutine and must not block.
	Progress func(model.Progress)

	// Trim, when set, is applied to each fetched series before evaluation
	// (e.g. dropping a forming bar).
	Trim func(bars []model.Bar) []model.Bar

	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Scanner runs one strategy over a universe of symbols.
type Scanner struct {
	cfg Config
	log *slog.Logger
}

// New validates cfg and returns a Scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Fetcher == nil {
		return nil, configError("no history fetcher")
	}
	if cfg.Strategy == nil {
		return nil, configError("no strategy")
	}
	if err := cfg.Mode.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, configError("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{cfg: cfg, log: log}, nil
}

// Strategy returns the configured strategy.
func (s *Scanner) Strategy() strategy.Strategy { return s.cfg.Strategy }

// Mode returns the configured mode.
func (s *Scanner) Mode() Mode { return s.cfg.Mode }

// symbolResult is one slot of the scan, indexed by universe position.
type symbolResult struct {
	done    bool
	records []model.SignalRecord
	failure *model.Failure
	skip    *model.Skip
}

// Run scans universe in order. A failing symbol is recorded and the batch
// continues. If ctx is cancelled the symbols already finished are returned
// together with ctx.Err(); the rest are recorded as skipped.
func (s *Scanner) Run(ctx context.Context, universe []string) (*model.ScanResult, error) {
	if err := validateUniverse(universe); err != nil {
		return nil, err
	}

	id := logger.ScanID(ctx)
	if id == "" {
		id = logger.NewScanID()
		ctx = logger.WithScanID(ctx, id)
	}
	started := s.cfg.Now()
	s.log.Info("[scanner] scan started", append(logger.LogWithScan(ctx),
		"strategy", s.cfg.Strategy.Name(),
		"mode", s.cfg.Mode.String(),
		"symbols", len(universe),
		"workers", s.cfg.Workers,
	)...)

	slots := make([]symbolResult, len(universe))
	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int, r symbolResult, outcome model.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		r.done = true
		slots[i] = r
		done++
		if s.cfg.Progress != nil {
			s.cfg.Progress(model.Progress{
				ScanID:  id,
				Done:    done,
				Total:   len(universe),
				Symbol:  universe[i],
				Outcome: outcome,
			})
		}
	}

	if s.cfg.Workers <= 1 {
		for i, sym := range universe {
			if ctx.Err() != nil {
				break
			}
			r, outcome := s.scanSymbol(ctx, sym)
			finish(i, r, outcome)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < s.cfg.Workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					if ctx.Err() != nil {
						continue
					}
					r, outcome := s.scanSymbol(ctx, universe[i])
					finish(i, r, outcome)
				}
			}()
		}
	feed:
		for i := range universe {
			select {
			case <-ctx.Done():
				break feed
			case jobs <- i:
			}
		}
		close(jobs)
		wg.Wait()
	}

	res := &model.ScanResult{
		ID:         id,
		Strategy:   s.cfg.Strategy.Name(),
		Mode:       s.cfg.Mode.String(),
		StartedAt:  started,
		FinishedAt: s.cfg.Now(),
		Universe:   len(universe),
	}
	for i, r := range slots {
		switch {
		case !r.done:
			res.Skipped = append(res.Skipped, model.Skip{Symbol: universe[i], Reason: "scan cancelled"})
		case r.failure != nil:
			res.Failures = append(res.Failures, *r.failure)
		case r.skip != nil:
			res.Skipped = append(res.Skipped, *r.skip)
		default:
			res.Records = append(res.Records, r.records...)
		}
	}

	elapsed := res.FinishedAt.Sub(started)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveScan(res, elapsed)
	}
	s.log.Info("[scanner] scan finished", append(logger.LogWithScan(ctx),
		"records", len(res.Records),
		"failures", len(res.Failures),
		"skipped", len(res.Skipped),
		"elapsed", elapsed.String(),
	)...)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Scanner) scanSymbol(ctx context.Context, symbol string) (r symbolResult, outcome model.Outcome) {
	t0 := time.Now()
	bars, err := s.fetch(ctx, symbol)
	fetchDur := time.Since(t0)
	defer func() {
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveSymbol(s.cfg.Strategy.Name(), outcome, fetchDur)
		}
	}()

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return symbolResult{skip: &model.Skip{Symbol: symbol, Reason: "scan cancelled"}}, model.OutcomeCancelled
		}
		s.log.Warn("[scanner] fetch failed", append(logger.LogWithScan(ctx), "symbol", symbol, "error", err)...)
		return symbolResult{failure: &model.Failure{
			Symbol: symbol,
			Kind:   model.FailureFetch,
			Reason: err.Error(),
		}}, model.OutcomeFailed
	}

	bars = model.NormalizeBars(bars)
	if s.cfg.Trim != nil {
		bars = s.cfg.Trim(bars)
	}
	if len(bars) == 0 {
		return symbolResult{skip: &model.Skip{Symbol: symbol, Reason: "no data"}}, model.OutcomeSkipped
	}

	records, err := ScanSeries(symbol, bars, s.cfg.Strategy, s.cfg.Mode)
	switch {
	case errors.Is(err, ErrInsufficientHistory):
		s.log.Debug("[scanner] skipped", append(logger.LogWithScan(ctx), "symbol", symbol, "bars", len(bars))...)
		return symbolResult{skip: &model.Skip{Symbol: symbol, Reason: err.Error()}}, model.OutcomeSkipped
	case err != nil:
		s.log.Warn("[scanner] compute failed", append(logger.LogWithScan(ctx), "symbol", symbol, "error", err)...)
		return symbolResult{failure: &model.Failure{
			Symbol: symbol,
			Kind:   model.FailureCompute,
			Reason: err.Error(),
		}}, model.OutcomeFailed
	}

	if len(records) == 0 {
		return symbolResult{}, model.OutcomeNoSignal
	}
	return symbolResult{records: records}, model.OutcomeMatched
}

// fetch calls the fetcher, turning errors and panics into *FetchError.
func (s *Scanner) fetch(ctx context.Context, symbol string) (bars []model.Bar, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &FetchError{Symbol: symbol, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	bars, err = s.cfg.Fetcher.FetchHistory(ctx, symbol, s.cfg.Lookback)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Err: err}
	}
	return bars, nil
}

func validateUniverse(universe []string) error {
	if len(universe) == 0 {
		return configError("empty universe")
	}
	seen := make(map[string]int, len(universe))
	for i, sym := range universe {
		if strings.TrimSpace(sym) == "" {
			return configError("blank symbol at position %d", i)
		}
		if j, ok := seen[sym]; ok {
			return configError("duplicate symbol %q at positions %d and %d", sym, j, i)
		}
		seen[sym] = i
	}
	return nil
}
