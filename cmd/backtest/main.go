// cmd/backtest evaluates a strategy on every bar of each symbol's history
// and reports the next-day return of every signal.
//
// Usage:
//
//	go run ./cmd/backtest --universe=nifty50 --strategy=containment --days=730 --chart=equity.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ma-screener/config"
	"ma-screener/internal/app"
	"ma-screener/internal/logger"
	"ma-screener/internal/report"
	"ma-screener/internal/scanner"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", os.Getenv("SCREENER_CONFIG"), "YAML config file")
	var o config.Overrides
	flag.StringVar(&o.LogLevel, "log-level", "", "debug, info, warn or error")
	flag.StringVar(&o.Provider, "provider", "", "Bar source: yahoo, angel or sqlite")
	flag.StringVar(&o.Universe, "universe", "", "Universe: nifty50, core15, file, csv or list")
	flag.StringVar(&o.File, "file", "", "Read symbols from a file, one per line")
	flag.StringVar(&o.Symbols, "symbols", "", "Comma-separated symbols")
	flag.StringVar(&o.Strategy, "strategy", "", "Strategy name")
	flag.StringVar(&o.CSV, "out", report.DefaultBacktestPath, "Trade log CSV path")
	flag.StringVar(&o.Chart, "chart", "", "Equity curve PNG path")
	flag.BoolVar(&o.NoCSV, "no-csv", false, "Do not write the trade log")
	days := flag.Int("days", 365, "Calendar days of history, 0 for all available")
	workers := flag.Int("workers", 0, "Concurrent symbol fetches")
	bySymbol := flag.Bool("by-symbol", false, "Print per-symbol statistics")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			o.Workers = workers
		}
	})
	if *days < 0 {
		fmt.Fprintln(os.Stderr, "backtest: --days must not be negative")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		return 2
	}
	if err := cfg.Apply(o); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		return 2
	}
	// Alerts are for live screens only.
	cfg.Notify = config.NotifyConfig{}

	log := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return backtest(ctx, cfg, *days, *bySymbol, log)
}

func backtest(ctx context.Context, cfg *config.Config, days int, bySymbol bool, log *slog.Logger) int {
	rt, err := app.Open(ctx, cfg, app.Options{}, log)
	if err != nil {
		log.Error("[backtest] startup failed", "error", err)
		return exitCode(err)
	}
	defer rt.Close()

	svc := rt.Service
	log.Info("[backtest] starting",
		"universe", svc.Universe.Name(),
		"strategy", svc.Strategy.Name(),
		"days", days,
		"provider", cfg.Provider,
	)

	bt, err := svc.Backtest(ctx, nil, days)
	if bt == nil {
		log.Error("[backtest] failed", "error", err)
		return exitCode(err)
	}
	if err != nil {
		log.Warn("[backtest] interrupted, results are partial", "error", err)
	}

	report.PrintSummary(os.Stdout, bt.Scan, bt.Summary, cfg.Output.Precision)
	if bySymbol && len(bt.BySymbol) > 0 {
		fmt.Fprintln(os.Stdout)
		if werr := report.WriteBySymbol(os.Stdout, bt.BySymbol, cfg.Output.Precision); werr != nil {
			log.Error("[backtest] print per-symbol stats", "error", werr)
		}
	}
	if werr := report.WriteIssues(os.Stderr, bt.Scan); werr != nil {
		log.Error("[backtest] print issues", "error", werr)
	}

	code := exitCode(err)
	if cfg.Output.CSV != "" {
		layout := report.NewLayout(svc.Strategy.Periods(), true, cfg.Output.Precision)
		if werr := report.WriteCSVFile(cfg.Output.CSV, layout, bt.Scan.Records); werr != nil {
			log.Error("[backtest] write csv", "path", cfg.Output.CSV, "error", werr)
			code = 1
		} else {
			log.Info("[backtest] trade log saved", "path", cfg.Output.CSV, "records", len(bt.Scan.Records))
		}
	}
	if cfg.Output.Chart != "" {
		title := fmt.Sprintf("%s equity (%d signals)", svc.Strategy.Name(), bt.Summary.Signals)
		if werr := report.WriteEquityChart(cfg.Output.Chart, title, bt.Summary.Equity); werr != nil {
			log.Warn("[backtest] equity chart not written", "path", cfg.Output.Chart, "error", werr)
		} else {
			log.Info("[backtest] equity chart saved", "path", cfg.Output.Chart)
		}
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, scanner.ErrConfig):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
