package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ma-screener/internal/indicator"
	"ma-screener/internal/model"
	"ma-screener/internal/strategy"
)

type memLatest map[string]*model.ScanResult

func (m memLatest) LatestScan(_ context.Context, s string) (*model.ScanResult, error) {
	return m[s], nil
}

type stubRunner struct {
	busy  bool
	calls []string
}

func (s *stubRunner) Trigger(name string) (string, error) {
	if s.busy {
		return "", ErrScanRunning
	}
	if name != "" {
		if _, err := strategy.New(name, indicator.Periods{}); err != nil {
			return "", err
		}
	}
	s.calls = append(s.calls, name)
	return fmt.Sprintf("scan-%d", len(s.calls)), nil
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestRouter_Latest(t *testing.T) {
	h := NewRouter(Deps{
		Latest:          memLatest{"containment": {ID: "s1", Strategy: "containment"}},
		DefaultStrategy: "containment",
	})

	code, body := do(t, h, http.MethodGet, "/api/v1/scans/latest", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "s1", body["id"])

	code, _ = do(t, h, http.MethodGet, "/api/v1/scans/latest?strategy=golden-cross", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, NewRouter(Deps{}), http.MethodGet, "/api/v1/scans/latest", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestRouter_Trigger(t *testing.T) {
	r := &stubRunner{}
	h := NewRouter(Deps{Runner: r})

	code, body := do(t, h, http.MethodPost, "/api/v1/scans", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "scan-1", body["scan_id"])

	code, _ = do(t, h, http.MethodPost, "/api/v1/scans", `{"strategy":"golden-cross"}`)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, []string{"", "golden-cross"}, r.calls)

	code, _ = do(t, h, http.MethodPost, "/api/v1/scans", `{"strategy":"rsi"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, h, http.MethodPost, "/api/v1/scans", `{`)
	assert.Equal(t, http.StatusBadRequest, code)

	r.busy = true
	code, _ = do(t, h, http.MethodPost, "/api/v1/scans", "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/scans", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestRouter_HealthAndStrategies(t *testing.T) {
	h := NewRouter(Deps{})
	code, body := do(t, h, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil))
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, strategy.Names(), names)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/progress" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StreamsProgress(t *testing.T) {
	hub := NewHub(10, nil)
	srv := httptest.NewServer(NewRouter(Deps{Hub: hub}))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	hub.PublishStarted("s1", "containment", "latest")
	hub.PublishProgress(model.Progress{ScanID: "s1", Done: 1, Total: 2, Symbol: "TCS.NS", Outcome: model.OutcomeMatched})
	hub.PublishScan(&model.ScanResult{ID: "s1", Strategy: "containment", Records: make([]model.SignalRecord, 1)}, nil)

	env := read(t, conn)
	assert.Equal(t, EventScanStarted, env.Type)
	assert.Equal(t, int64(1), env.Seq)
	var started ScanStarted
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.Equal(t, ScanStarted{ScanID: "s1", Strategy: "containment", Mode: "latest"}, started)

	env = read(t, conn)
	assert.Equal(t, EventProgress, env.Type)
	assert.Equal(t, int64(2), env.Seq)
	var p model.Progress
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "TCS.NS", p.Symbol)
	assert.Equal(t, model.OutcomeMatched, p.Outcome)

	env = read(t, conn)
	assert.Equal(t, EventScanCompleted, env.Type)
	var done ScanCompleted
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.Equal(t, 1, done.Matched)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_ReplaysForLateClients(t *testing.T) {
	hub := NewHub(10, nil)
	srv := httptest.NewServer(NewRouter(Deps{Hub: hub}))
	defer srv.Close()

	for i := 1; i <= 3; i++ {
		hub.PublishProgress(model.Progress{Done: i, Total: 3})
	}

	conn := dial(t, srv, "?since_seq=1")
	assert.Equal(t, int64(2), read(t, conn).Seq)
	assert.Equal(t, int64(3), read(t, conn).Seq)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(2, nil)
	for i := 0; i < 5; i++ {
		hub.Publish(EventScanStarted, map[string]int{"i": i})
	}
	assert.Equal(t, 2, hub.replay.Len())
	assert.Len(t, hub.replay.Since(0), 2)
	assert.Len(t, hub.replay.Since(4), 1)
	hub.Close()
}

func TestReplayBuffer_Order(t *testing.T) {
	rb := NewReplayBuffer(3)
	for i := int64(1); i <= 5; i++ {
		rb.Push(i, []byte{byte('0' + i)})
	}
	got := rb.Since(0)
	require.Len(t, got, 3)
	assert.Equal(t, "345", string(got[0])+string(got[1])+string(got[2]))
}
