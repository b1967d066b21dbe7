// Package api serves the screener over HTTP: health, the latest stored
// scan, on-demand scans, and a websocket stream of scan progress.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ma-screener/internal/model"
	"ma-screener/internal/strategy"
)

// ErrScanRunning is returned by Runner.Trigger while a scan is in flight.
var ErrScanRunning = errors.New("a scan is already running")

// Runner starts a scan in the background and returns its ID.
type Runner interface {
	Trigger(strategyName string) (scanID string, err error)
}

// LatestStore returns the most recent stored scan of a strategy, or nil.
type LatestStore interface {
	LatestScan(ctx context.Context, strategy string) (*model.ScanResult, error)
}

// Deps wires the router.
type Deps struct {
	Hub             *Hub
	Latest          LatestStore
	Runner          Runner
	Health          http.Handler
	DefaultStrategy string
	Log             *slog.Logger
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			d.Health.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/v1/strategies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, strategy.Names())
	})

	mux.HandleFunc("GET /api/v1/scans/latest", func(w http.ResponseWriter, r *http.Request) {
		if d.Latest == nil {
			writeError(w, http.StatusServiceUnavailable, "no result store configured")
			return
		}
		name := strings.TrimSpace(r.URL.Query().Get("strategy"))
		if name == "" {
			name = d.DefaultStrategy
		}
		res, err := d.Latest.LatestScan(r.Context(), name)
		if err != nil {
			log.Error("[api] latest scan", "strategy", name, "error", err)
			writeError(w, http.StatusInternalServerError, "could not load latest scan")
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "no scan stored for "+name)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /api/v1/scans", func(w http.ResponseWriter, r *http.Request) {
		if d.Runner == nil {
			writeError(w, http.StatusServiceUnavailable, "scans cannot be triggered")
			return
		}
		var body struct {
			Strategy string `json:"strategy"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
				return
			}
		}
		id, err := d.Runner.Trigger(body.Strategy)
		switch {
		case errors.Is(err, ErrScanRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, strategy.ErrUnknownStrategy):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			log.Error("[api] trigger scan", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": id})
		}
	})

	if d.Hub != nil {
		mux.Handle("GET /api/v1/progress", d.Hub)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
