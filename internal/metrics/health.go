package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency whose liveness can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus tracks dependency liveness and the last scan.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConfigured  bool
	SQLiteConfigured bool
	RedisConnected   bool
	SQLiteOK         bool
	RedisLatencyMs   float64
	SQLiteLatencyMs  float64
	LastCheckAt      time.Time

	Scanning    bool
	LastScanID  string
	LastScanAt  time.Time
	LastScanErr string

	StartedAt time.Time
	now       func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), now: time.Now}
}

// ScanStarted marks a scan in flight.
func (h *HealthStatus) ScanStarted() {
	h.mu.Lock()
	h.Scanning = true
	h.mu.Unlock()
}

// ScanFinished records the end of a scan. err is the scan-level error, if any.
func (h *HealthStatus) ScanFinished(id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Scanning = false
	h.LastScanID = id
	h.LastScanAt = h.now()
	h.LastScanErr = ""
	if err != nil {
		h.LastScanErr = err.Error()
	}
}

func probe(ctx context.Context, p Pinger) (bool, float64) {
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, p Pinger) {
	ok, ms := probe(ctx, p)
	h.mu.Lock()
	h.RedisConfigured = true
	h.RedisConnected, h.RedisLatencyMs = ok, ms
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings SQLite and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, p Pinger) {
	ok, ms := probe(ctx, p)
	h.mu.Lock()
	h.SQLiteConfigured = true
	h.SQLiteOK, h.SQLiteLatencyMs = ok, ms
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the given dependencies now and then every
// interval until ctx is done. Either may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, redis, sqlite Pinger, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if redis != nil {
			h.CheckRedis(probeCtx, redis)
		}
		if sqlite != nil {
			h.CheckSQLite(probeCtx, sqlite)
		}
	}
	check()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles /healthz. Only configured dependencies count; a down
// Redis degrades the service because scans still run without the cache.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	if h.RedisConfigured && !h.RedisConnected {
		overall = "degraded"
	}
	if h.SQLiteConfigured && !h.SQLiteOK {
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	lastScan := ""
	if !h.LastScanAt.IsZero() {
		lastScan = h.LastScanAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Scanning        bool    `json:"scanning"`
		LastScanID      string  `json:"last_scan_id,omitempty"`
		LastScanAt      string  `json:"last_scan_at,omitempty"`
		LastScanErr     string  `json:"last_scan_error,omitempty"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overall,
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Scanning:        h.Scanning,
		LastScanID:      h.LastScanID,
		LastScanAt:      lastScan,
		LastScanErr:     h.LastScanErr,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server over gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("[metrics] server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[metrics] server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
