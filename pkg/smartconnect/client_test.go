package smartconnect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	for route, h := range handlers {
		mux.HandleFunc(routes[route], h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "key", RootURL: srv.URL, ClientLocalIP: "10.0.0.1", ClientMAC: "aa:bb"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginAndCandles(t *testing.T) {
	sc := newTestServer(t, map[string]http.HandlerFunc{
		"api.login": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["totp"] != "123456" || r.Header.Get("X-PrivateKey") != "key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, map[string]any{"status": true, "data": map[string]string{
				"jwtToken": "jwt-1", "refreshToken": "rt-1", "feedToken": "ft",
			}})
		},
		"api.candle.data": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer jwt-1" {
				w.WriteHeader(http.StatusForbidden)
				writeJSON(w, map[string]any{"status": false, "error_type": "TokenException", "message": "Invalid Token"})
				return
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["interval"] != IntervalDay || body["fromdate"] != "2025-01-01 09:15" {
				t.Errorf("unexpected params %v", body)
			}
			writeJSON(w, map[string]any{"status": true, "data": [][]any{
				{"2025-01-01T00:00:00+05:30", 100.5, 102, 99, 101.25, 120000},
				{"2025-01-02T00:00:00+05:30", 101.25, 103, 100, 102, 98000},
			}})
		},
	})

	ctx := context.Background()
	if _, err := sc.CandleData(ctx, CandleParams{Interval: IntervalDay}); err == nil {
		t.Fatal("expected token error before login")
	}

	s, err := sc.Login(ctx, "C1", "0000", "123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.JWTToken != "jwt-1" || !sc.LoggedIn() {
		t.Fatalf("unexpected session %+v", s)
	}

	ist := time.FixedZone("IST", 5*3600+30*60)
	candles, err := sc.CandleData(ctx, CandleParams{
		Exchange: "NSE", SymbolToken: "2885", Interval: IntervalDay,
		From: time.Date(2025, 1, 1, 9, 15, 0, 0, ist), To: time.Date(2025, 1, 2, 15, 30, 0, 0, ist),
	})
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Close != 101.25 || candles[0].Volume != 120000 {
		t.Errorf("unexpected candle %+v", candles[0])
	}
	if candles[1].Time.In(ist).Day() != 2 {
		t.Errorf("unexpected time %s", candles[1].Time)
	}
}

func TestAPIError(t *testing.T) {
	expired := false
	sc := newTestServer(t, map[string]http.HandlerFunc{
		"api.search.scrip": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"status": false, "error_type": "TokenException", "message": "Invalid Token"})
		},
		"api.login": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"status": false, "errorcode": "AB1050", "message": "Invalid totp"})
		},
	})
	sc.SessionExpiryHook = func() { expired = true }

	_, err := sc.SearchScrip(context.Background(), "NSE", "SBIN")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.HTTPStatus != http.StatusForbidden || !expired {
		t.Errorf("unexpected error %+v (hook called=%v)", apiErr, expired)
	}

	_, err = sc.Login(context.Background(), "C1", "0000", "000000")
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != "AB1050" {
		t.Fatalf("expected AB1050, got %v", err)
	}
	if apiErr.Temporary() {
		t.Error("invalid totp is not temporary")
	}
}
