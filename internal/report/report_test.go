package report

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ma-screener/internal/indicator"
	"ma-screener/internal/model"
	"ma-screener/internal/rank"
)

var containmentPeriods = indicator.Periods{EMAFast: 8, EMATrend: 44, SMAFast: 5, SMASlow: 50}

func sampleRecord() model.SignalRecord {
	return model.SignalRecord{
		Symbol:   "RELIANCE.NS",
		Strategy: "containment",
		Snapshot: model.Snapshot{
			Date:     time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC),
			Close:    1375.456,
			EMAFast:  model.Some(1370.1249),
			EMATrend: model.Some(1350),
			SMAFast:  model.Some(1368.005),
			SMASlow:  model.Some(1390.7),
		},
		Strength: model.Some(0.38912),
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, "1.24", Round(1.235, 2))
	assert.Equal(t, "-1.24", Round(-1.235, 2))
	assert.Equal(t, "10.0000", Round(10, 4))
	assert.Equal(t, "", RoundValue(model.None(), 2))
}

func TestLayout_Screen(t *testing.T) {
	l := NewLayout(containmentPeriods, false, DefaultPrecision)
	assert.Equal(t, []string{"symbol", "date", "close", "EMA_8", "EMA_44", "SMA_5", "SMA_50", "strength"}, l.Header())
	assert.Equal(t,
		[]string{"RELIANCE.NS", "2025-08-14", "1375.46", "1370.12", "1350.00", "1368.01", "1390.70", "0.39"},
		l.Row(sampleRecord()))
}

func TestLayout_Backtest(t *testing.T) {
	l := NewLayout(containmentPeriods, true, Precision{PricePlaces: 2, PctPlaces: 4})
	r := sampleRecord()
	r.Strength = model.None()
	r.NextClose = model.Some(1380)
	r.Return = model.Some(0.330338)

	h := l.Header()
	assert.Equal(t, []string{"next_close", "return"}, h[len(h)-2:])
	row := l.Row(r)
	assert.Equal(t, []string{"1380.00", "0.3303"}, row[len(row)-2:])
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", DefaultScreenPath)
	l := NewLayout(containmentPeriods, false, DefaultPrecision)
	require.NoError(t, WriteCSVFile(path, l, []model.SignalRecord{sampleRecord(), sampleRecord()}))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, l, nil))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

func TestWriteTable(t *testing.T) {
	l := NewLayout(containmentPeriods, false, DefaultPrecision)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, l, nil))
	assert.Equal(t, "No matches found.\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteTable(&buf, l, []model.SignalRecord{sampleRecord()}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "EMA_44")
	assert.Contains(t, lines[1], "RELIANCE.NS")
}

func TestWriteIssues(t *testing.T) {
	res := &model.ScanResult{
		Failures: []model.Failure{{Symbol: "BAD.NS", Kind: model.FailureFetch, Reason: "HTTP 404"}},
		Skipped:  []model.Skip{{Symbol: "NEW.NS", Reason: "insufficient history"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteIssues(&buf, res))
	out := buf.String()
	assert.Contains(t, out, "BAD.NS")
	assert.Contains(t, out, "FETCH")
	assert.Contains(t, out, "SKIPPED")

	buf.Reset()
	require.NoError(t, WriteIssues(&buf, &model.ScanResult{}))
	assert.Empty(t, buf.String())
}

func TestPrintSummary(t *testing.T) {
	s := rank.Summary{Signals: 4, Wins: 3, WinRate: 0.75, MeanReturn: 0.4567,
		Equity: []rank.EquityPoint{{Cumulative: 1.8268}}}
	var buf bytes.Buffer
	PrintSummary(&buf, &model.ScanResult{Strategy: "containment", Universe: 50}, s, DefaultPrecision)
	out := buf.String()
	assert.Contains(t, out, "BACKTEST COMPLETE")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "0.46%")
	assert.Contains(t, out, "1.83%")
}

func TestRenderEquityChart(t *testing.T) {
	d := func(n int) time.Time { return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC) }

	_, err := RenderEquityChart("x", []rank.EquityPoint{{Date: d(1)}, {Date: d(1)}})
	assert.Error(t, err, "a single date cannot form a curve")

	png, err := RenderEquityChart("Containment", []rank.EquityPoint{
		{Date: d(1), Cumulative: 1},
		{Date: d(2), Cumulative: -0.5},
		{Date: d(3), Cumulative: 2},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestWriteBySymbol(t *testing.T) {
	by := map[string]rank.Summary{
		"LOSER.NS":  {Signals: 2, WinRate: 0, MeanReturn: -1, Best: model.Some(-0.5), Worst: model.Some(-1.5), Equity: []rank.EquityPoint{{Cumulative: -2}}},
		"WINNER.NS": {Signals: 1, Wins: 1, WinRate: 1, MeanReturn: 3, Best: model.Some(3), Worst: model.Some(3), Equity: []rank.EquityPoint{{Cumulative: 3}}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteBySymbol(&buf, by, DefaultPrecision))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "WINNER.NS")
	assert.Contains(t, lines[1], "100.00")
	assert.Contains(t, lines[2], "-2.00")
}
