package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ma-screener/internal/model"
)

func day(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

func openBoth(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screener.db")
	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func TestBarsRoundTrip(t *testing.T) {
	w, r := openBoth(t)
	ctx := context.Background()

	require.NoError(t, w.WriteBars(ctx, "TCS.NS", []model.Bar{
		{Date: day(2), Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
		{Date: day(3), Open: 2, High: 3, Low: 2, Close: 3, Volume: 20},
	}))
	// Re-fetch of the latest session overwrites it.
	require.NoError(t, w.WriteBars(ctx, "TCS.NS", []model.Bar{
		{Date: day(3), Open: 2, High: 4, Low: 2, Close: 3.5, Volume: 25},
	}))
	require.NoError(t, w.WriteBars(ctx, "INFY.NS", []model.Bar{{Date: day(2), Close: 9, Open: 9, High: 9, Low: 9}}))

	bars, err := r.FetchHistory(ctx, "TCS.NS", 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2025-01-02", bars[0].DateKey())
	assert.Equal(t, 3.5, bars[1].Close)
	assert.Equal(t, int64(25), bars[1].Volume)

	r.now = func() time.Time { return day(4) }
	bars, err = r.FetchHistory(ctx, "TCS.NS", 1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "2025-01-03", bars[0].DateKey())

	bars, err = r.FetchHistory(ctx, "UNKNOWN.NS", 0)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func scan(id string, finished time.Time) *model.ScanResult {
	return &model.ScanResult{
		ID: id, Strategy: "containment", Mode: "latest",
		StartedAt: finished.Add(-time.Minute), FinishedAt: finished, Universe: 3,
		Records: []model.SignalRecord{{
			Symbol: "TCS.NS", Strategy: "containment",
			Snapshot: model.Snapshot{Date: day(3), Close: 101, EMAFast: model.Some(100.5),
				EMATrend: model.Some(99), SMAFast: model.Some(100.8), SMASlow: model.Some(98)},
			Strength: model.Some(1.25),
		}},
		Failures: []model.Failure{{Symbol: "BAD.NS", Kind: model.FailureFetch, Reason: "timeout"}},
		Skipped:  []model.Skip{{Symbol: "NEW.NS", Reason: "insufficient history"}},
	}
}

func TestLatestScan(t *testing.T) {
	w, r := openBoth(t)
	ctx := context.Background()

	res, err := r.LatestScan(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, res)

	now := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteScan(ctx, scan("old", now)))
	require.NoError(t, w.WriteScan(ctx, scan("new", now.Add(time.Hour))))
	// Rewriting a scan replaces its rows.
	require.NoError(t, w.WriteScan(ctx, scan("new", now.Add(time.Hour))))

	res, err = r.LatestScan(ctx, "containment")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "new", res.ID)
	assert.True(t, res.FinishedAt.Equal(now.Add(time.Hour)))
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "2025-01-03", rec.Date.Format(model.DateLayout))
	assert.Equal(t, model.Some(1.25), rec.Strength)
	assert.False(t, rec.SMAMid.Valid)
	assert.False(t, rec.Return.Valid)
	assert.Equal(t, []model.Failure{{Symbol: "BAD.NS", Kind: model.FailureFetch, Reason: "timeout"}}, res.Failures)
	assert.Equal(t, []model.Skip{{Symbol: "NEW.NS", Reason: "insufficient history"}}, res.Skipped)

	res, err = r.LatestScan(ctx, "golden-cross")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestPruneScans(t *testing.T) {
	w, r := openBoth(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, w.WriteScan(ctx, scan(id, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, w.PruneScans(ctx, 1))

	var runs, signals int
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM scan_runs`).Scan(&runs))
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM scan_signals`).Scan(&signals))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, signals)

	res, err := r.LatestScan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "c", res.ID)
}

func TestLatestScan_IgnoresBacktests(t *testing.T) {
	w, r := openBoth(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, w.WriteScan(ctx, scan("screen", now)))
	bt := scan("backtest", now.Add(time.Hour))
	bt.Mode = model.ModeFullHistory
	require.NoError(t, w.WriteScan(ctx, bt))

	res, err := r.LatestScan(ctx, "containment")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "screen", res.ID)

	var runs int
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM scan_runs`).Scan(&runs))
	assert.Equal(t, 2, runs, "backtests are still stored")
}
