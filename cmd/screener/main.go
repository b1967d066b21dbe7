// cmd/screener scans an NSE universe for moving-average setups.
//
// One-shot:
//
//	go run ./cmd/screener --symbols=TCS,INFY --strategy=golden-cross --window=5
//
// Service mode (HTTP API, progress websocket, metrics, scheduled scans):
//
//	go run ./cmd/screener --config=screener.yaml --serve
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"ma-screener/config"
	"ma-screener/internal/api"
	"ma-screener/internal/app"
	"ma-screener/internal/logger"
	"ma-screener/internal/markethours"
	"ma-screener/internal/metrics"
	"ma-screener/internal/report"
	"ma-screener/internal/scanner"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", getEnv("SCREENER_CONFIG", ""), "YAML config file")
	var o config.Overrides
	flag.StringVar(&o.LogLevel, "log-level", "", "debug, info, warn or error")
	flag.StringVar(&o.Provider, "provider", "", "Bar source: yahoo, angel or sqlite")
	flag.StringVar(&o.Universe, "universe", "", "Universe: nifty50, core15, file, csv or list")
	flag.StringVar(&o.File, "file", "", "Read symbols from a file, one per line")
	flag.StringVar(&o.Symbols, "symbols", "", "Comma-separated symbols to scan")
	flag.StringVar(&o.Strategy, "strategy", "", "Strategy name")
	flag.StringVar(&o.Mode, "mode", "", "latest or window")
	flag.StringVar(&o.CSV, "out", "", "CSV output path")
	flag.BoolVar(&o.NoCSV, "no-csv", false, "Do not write a CSV file")
	window := flag.Int("window", 0, "Report signals on any of the last N bars")
	workers := flag.Int("workers", 0, "Concurrent symbol fetches")
	lookback := flag.Int("lookback", 0, "Calendar days of history to fetch")
	serve := flag.Bool("serve", false, "Run the API server and scheduled scans")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "window":
			o.Window = window
		case "workers":
			o.Workers = workers
		case "lookback":
			o.LookbackDays = lookback
		}
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "screener: %v\n", err)
		return 2
	}
	if err := cfg.Apply(o); err != nil {
		fmt.Fprintf(os.Stderr, "screener: %v\n", err)
		return 2
	}

	log := logger.Init("screener", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		return runServer(ctx, cfg, log)
	}
	return screenOnce(ctx, cfg, log)
}

func screenOnce(ctx context.Context, cfg *config.Config, log *slog.Logger) int {
	rt, err := app.Open(ctx, cfg, app.Options{}, log)
	if err != nil {
		log.Error("[screener] startup failed", "error", err)
		return exitCode(err)
	}
	defer rt.Close()

	svc := rt.Service
	log.Info("[screener] scanning",
		"universe", svc.Universe.Name(),
		"strategy", svc.Strategy.Name(),
		"mode", svc.Mode.String(),
		"provider", cfg.Provider,
	)

	res, err := svc.Screen(ctx, nil)
	if res == nil {
		log.Error("[screener] scan failed", "error", err)
		return exitCode(err)
	}

	layout := report.NewLayout(svc.Strategy.Periods(), false, cfg.Output.Precision)
	if werr := report.WriteTable(os.Stdout, layout, res.Records); werr != nil {
		log.Error("[screener] print results", "error", werr)
	}
	if werr := report.WriteIssues(os.Stderr, res); werr != nil {
		log.Error("[screener] print issues", "error", werr)
	}
	if cfg.Output.CSV != "" {
		if werr := report.WriteCSVFile(cfg.Output.CSV, layout, res.Records); werr != nil {
			log.Error("[screener] write csv", "path", cfg.Output.CSV, "error", werr)
			return 1
		}
		log.Info("[screener] results saved", "path", cfg.Output.CSV, "records", len(res.Records))
	}
	if err != nil {
		log.Warn("[screener] scan interrupted, results are partial", "error", err)
	}
	return exitCode(err)
}

// scheduleParser accepts the six-field expressions the scheduler runs with.
var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// validateSchedule rejects a cron expression the scheduler would refuse.
// An empty expression disables scheduled scans.
func validateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", scanner.ErrConfig, expr, err)
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, log *slog.Logger) int {
	if err := validateSchedule(cfg.Schedule.Cron); err != nil {
		log.Error("[screener] invalid schedule", "cron", cfg.Schedule.Cron, "error", err)
		return exitCode(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()

	rt, err := app.Open(ctx, cfg, app.Options{Metrics: prom, Health: health, MemoryCache: true}, log)
	if err != nil {
		log.Error("[screener] startup failed", "error", err)
		return exitCode(err)
	}
	defer rt.Close()

	svc := rt.Service
	hub := api.NewHub(512, log)
	svc.Publisher = hub
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "screener_ws_clients",
		Help: "Connected progress websocket clients.",
	}, func() float64 { return float64(hub.Clients()) }))

	redisPinger, sqlitePinger := rt.Pingers()
	health.StartLivenessChecker(ctx, redisPinger, sqlitePinger, 10*time.Second)

	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, reg, health)
	metricsSrv.Start()

	apiSrv := &http.Server{
		Addr: cfg.Server.APIAddr,
		Handler: api.NewRouter(api.Deps{
			Hub:             hub,
			Latest:          rt.Latest(),
			Runner:          svc,
			Health:          health,
			DefaultStrategy: svc.Strategy.Name(),
			Log:             log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("[api] server listening", "addr", cfg.Server.APIAddr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("[api] server error", "error", err)
		}
	}()

	sched := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLocation(markethours.IST),
		cron.WithLogger(cronLogger{log}),
	)
	if cfg.Schedule.Cron != "" {
		if _, err := sched.AddFunc(cfg.Schedule.Cron, func() {
			id, err := svc.Trigger("")
			if err != nil {
				log.Warn("[screener] scheduled scan not started", "error", err)
				return
			}
			log.Info("[screener] scheduled scan started", "scan_id", id)
		}); err != nil {
			log.Error("[screener] schedule job", "cron", cfg.Schedule.Cron, "error", err)
			return 1
		}
	}
	marketTick := func() { prom.SetMarketOpen(markethours.IsMarketOpen(time.Now())) }
	marketTick()
	if _, err := sched.AddFunc("0 * * * * *", marketTick); err != nil {
		log.Error("[screener] market state job", "error", err)
		return 1
	}
	sched.Start()

	fmt.Fprintln(os.Stderr, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║  MA Screener — service mode                                    ║")
	fmt.Fprintf(os.Stderr, "║  Strategy: %-52s║\n", svc.Strategy.Name())
	fmt.Fprintf(os.Stderr, "║  Universe: %-52s║\n", svc.Universe.Name())
	fmt.Fprintf(os.Stderr, "║  API: %-20s Metrics: %-24s║\n", cfg.Server.APIAddr, cfg.Server.MetricsAddr)
	fmt.Fprintf(os.Stderr, "║  Schedule (IST): %-46s║\n", orNone(cfg.Schedule.Cron))
	fmt.Fprintln(os.Stderr, "╚════════════════════════════════════════════════════════════════╝")
	log.Info("[screener] " + markethours.StatusString(time.Now()))

	<-ctx.Done()
	log.Info("[screener] shutdown signal received, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
	}
	waitIdle(shutdownCtx, svc)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("[api] shutdown", "error", err)
	}
	hub.Close()
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("[metrics] shutdown", "error", err)
	}
	log.Info("[screener] shutdown complete")
	return 0
}

// waitIdle lets a cancelled scan store its partial result before the
// stores are closed.
func waitIdle(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for svc.Running() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
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

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// cronLogger routes scheduler logs through slog.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("[cron] "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("[cron] "+msg, append(keysAndValues, "error", err)...)
}
