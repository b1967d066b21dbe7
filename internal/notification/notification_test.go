package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ma-screener/internal/model"
	"ma-screener/internal/report"
)

func sampleScan() *model.ScanResult {
	d := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	return &model.ScanResult{
		ID: "scan-1", Strategy: "containment", Mode: "latest", Universe: 3,
		Records: []model.SignalRecord{
			{Symbol: "TCS.NS", Snapshot: model.Snapshot{Date: d, Close: 4100.456}, Strength: model.Some(1.2345)},
			{Symbol: "INFY.NS", Snapshot: model.Snapshot{Date: d, Close: 1900}},
		},
		Failures: []model.Failure{{Symbol: "BAD.NS", Kind: model.FailureFetch, Reason: "timeout"}},
	}
}

func TestScanAlert(t *testing.T) {
	a := ScanAlert(sampleScan(), report.DefaultPrecision)
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "containment: 2 match(es) in 3 symbols", a.Title)
	lines := strings.Split(a.Message, "\n")
	assert.Equal(t, "TCS.NS 2025-01-03 close 4100.46 strength 1.23%", lines[0])
	assert.Equal(t, "INFY.NS 2025-01-03 close 1900.00", lines[1])
	assert.Contains(t, a.Message, "1 symbol(s) failed")

	s := a.Data.(ScanSummary)
	assert.Equal(t, []string{"TCS.NS", "INFY.NS"}, s.Matches)
	assert.Equal(t, []string{"BAD.NS"}, s.Failed)
}

func TestScanAlert_EmptyAndMostlyFailed(t *testing.T) {
	res := &model.ScanResult{Strategy: "golden-cross", Universe: 3, Failures: make([]model.Failure, 2)}
	a := ScanAlert(res, report.DefaultPrecision)
	assert.Equal(t, AlertWarning, a.Level)
	assert.True(t, strings.HasPrefix(a.Message, "No matches found."))
}

func TestScanAlert_Truncates(t *testing.T) {
	res := &model.ScanResult{Strategy: "containment", Universe: 40}
	for i := 0; i < 30; i++ {
		res.Records = append(res.Records, model.SignalRecord{Symbol: "X.NS"})
	}
	a := ScanAlert(res, report.DefaultPrecision)
	assert.Contains(t, a.Message, "... and 5 more")
	assert.Len(t, a.Data.(ScanSummary).Matches, 30)
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertWarning, Title: "M&M.NS", Message: "close 1.5"}))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "⚠️ *M&M\\.NS*\n\nclose 1\\.5", got["text"])
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, n.Send(context.Background(), ScanAlert(sampleScan(), report.DefaultPrecision)))
	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "2025-01-03T10:00:00Z", got["ts"])
	data := got["data"].(map[string]any)
	assert.Equal(t, "scan-1", data["scan_id"])

	bad := NewWebhookNotifier("http://127.0.0.1:1")
	assert.Error(t, bad.Send(context.Background(), Alert{}))
}

type failing struct{}

func (failing) Send(context.Context, Alert) error { return errors.New("down") }

func TestMulti(t *testing.T) {
	m := Multi{NewLogNotifier(nil), failing{}}
	err := m.Send(context.Background(), Alert{Title: "x"})
	assert.EqualError(t, err, "down")
}
