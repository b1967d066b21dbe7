package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ma-screener/config"
	"ma-screener/internal/api"
	"ma-screener/internal/indicator"
	"ma-screener/internal/marketdata"
	"ma-screener/internal/metrics"
	"ma-screener/internal/model"
	"ma-screener/internal/notification"
	"ma-screener/internal/report"
	"ma-screener/internal/scanner"
	"ma-screener/internal/strategy"
	"ma-screener/internal/universe"
)

// lastAbove fires on a bar whose close exceeds the given level and scores
// it by the close.
type lastAbove struct{ level float64 }

func (lastAbove) Name() string               { return "above" }
func (lastAbove) Periods() indicator.Periods { return indicator.Periods{SMAFast: 2} }
func (lastAbove) MinBars() int               { return 2 }
func (s lastAbove) Evaluate(f *indicator.Frame, i int) (bool, model.Value) {
	c := f.Bar(i).Close
	return c > s.level, model.Some(c)
}

type memFetcher struct {
	mu    sync.Mutex
	data  map[string][]model.Bar
	block chan struct{}
}

func (m *memFetcher) FetchHistory(ctx context.Context, symbol string, _ int) ([]model.Bar, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bars, ok := m.data[symbol]
	if !ok {
		return nil, errors.New("404")
	}
	return bars, nil
}

func bars(closes ...float64) []model.Bar {
	d := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{Date: d.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

type memWriter struct {
	mu     sync.Mutex
	scans  []*model.ScanResult
	pruned int
}

func (w *memWriter) WriteScan(_ context.Context, res *model.ScanResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scans = append(w.scans, res)
	return nil
}
func (w *memWriter) PruneScans(_ context.Context, keep int) error { w.pruned = keep; return nil }
func (w *memWriter) Close() error                                 { return nil }

type memNotifier struct{ alerts []notification.Alert }

func (n *memNotifier) Send(_ context.Context, a notification.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

type memPublisher struct {
	mu       sync.Mutex
	started  []string
	progress []model.Progress
	done     []string
}

func (p *memPublisher) PublishStarted(scanID, strategy, mode string) {
	p.mu.Lock()
	p.started = append(p.started, scanID+"/"+strategy+"/"+mode)
	p.mu.Unlock()
}

func (p *memPublisher) PublishProgress(pr model.Progress) {
	p.mu.Lock()
	p.progress = append(p.progress, pr)
	p.mu.Unlock()
}
func (p *memPublisher) PublishScan(res *model.ScanResult, err error) {
	p.mu.Lock()
	p.done = append(p.done, res.ID)
	p.mu.Unlock()
}

func newService(f *memFetcher) (*Service, *memWriter, *memNotifier, *memPublisher) {
	w, n, p := &memWriter{}, &memNotifier{}, &memPublisher{}
	return &Service{
		Fetcher:   f,
		Universe:  universe.Static{Label: "test", List: []string{"aaa", "bbb", "ccc", "ddd"}},
		Suffix:    universe.DefaultSuffix,
		Strategy:  lastAbove{level: 10},
		Mode:      scanner.Latest(),
		Workers:   2,
		Writers:   []model.ResultWriter{w},
		KeepScans: 5,
		Notifier:  n,
		Publisher: p,
		Health:    metrics.NewHealthStatus(),
		Precision: report.DefaultPrecision,
	}, w, n, p
}

func TestService_Screen(t *testing.T) {
	f := &memFetcher{data: map[string][]model.Bar{
		"AAA.NS": bars(1, 11),
		"BBB.NS": bars(1, 30),
		"CCC.NS": bars(1, 5),
	}}
	svc, w, n, p := newService(f)

	res, err := svc.Screen(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "BBB.NS", res.Records[0].Symbol, "ranked by strength")
	assert.Equal(t, "AAA.NS", res.Records[1].Symbol)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "DDD.NS", res.Failures[0].Symbol)

	require.Len(t, w.scans, 1)
	assert.Equal(t, res.ID, w.scans[0].ID)
	assert.Equal(t, 5, w.pruned)
	require.Len(t, n.alerts, 1)
	assert.Contains(t, n.alerts[0].Message, "BBB.NS")
	assert.Equal(t, []string{res.ID + "/above/latest"}, p.started)
	assert.Len(t, p.progress, 4)
	assert.Equal(t, []string{res.ID}, p.done)
	assert.False(t, svc.Running())
	assert.Equal(t, res.ID, svc.Health.LastScanID)
}

func TestService_ScreenEmptyUniverse(t *testing.T) {
	svc, w, _, _ := newService(&memFetcher{})
	svc.Universe = universe.Static{Label: "empty"}
	_, err := svc.Screen(context.Background(), nil)
	assert.ErrorIs(t, err, scanner.ErrConfig)
	assert.Empty(t, w.scans)
}

func TestService_TriggerIsExclusive(t *testing.T) {
	f := &memFetcher{data: map[string][]model.Bar{"AAA.NS": bars(1, 11)}, block: make(chan struct{})}
	svc, w, _, p := newService(f)
	svc.Universe = universe.Static{Label: "one", List: []string{"AAA"}}

	id, err := svc.Trigger("")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, svc.Running())

	_, err = svc.Trigger("")
	assert.ErrorIs(t, err, api.ErrScanRunning)
	_, err = svc.Screen(context.Background(), nil)
	assert.ErrorIs(t, err, api.ErrScanRunning)

	close(f.block)
	require.Eventually(t, func() bool { return !svc.Running() }, 2*time.Second, 5*time.Millisecond)
	w.mu.Lock()
	require.Len(t, w.scans, 1)
	assert.Equal(t, id, w.scans[0].ID)
	w.mu.Unlock()
	p.mu.Lock()
	assert.Equal(t, []string{id}, p.done)
	p.mu.Unlock()

	_, err = svc.Trigger("no-such-strategy")
	assert.Error(t, err)
}

func TestService_StrategyOverridesStayWithConfiguredStrategy(t *testing.T) {
	configured, err := strategy.New(strategy.ContainmentName, indicator.Periods{SMASlow: 60})
	require.NoError(t, err)
	svc := &Service{Strategy: configured}

	got, err := svc.strategyFor("")
	require.NoError(t, err)
	assert.Same(t, configured, got)
	got, err = svc.strategyFor(" Containment ")
	require.NoError(t, err)
	assert.Same(t, configured, got)
	assert.Equal(t, 60, got.Periods().SMASlow)

	other, err := svc.strategyFor(strategy.GoldenCrossName)
	require.NoError(t, err)
	assert.Equal(t, strategy.DefaultGoldenCrossPeriods, other.Periods())

	_, err = svc.strategyFor("no-such-strategy")
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)
}

func TestService_Backtest(t *testing.T) {
	f := &memFetcher{data: map[string][]model.Bar{
		"AAA.NS": bars(20, 22, 11),
		"BBB.NS": bars(5, 50, 55),
	}}
	svc, w, n, _ := newService(f)
	svc.Universe = universe.Static{Label: "two", List: []string{"AAA", "BBB"}}

	bt, err := svc.Backtest(context.Background(), nil, 0)
	require.NoError(t, err)
	// AAA fires on bars 0 and 1, BBB on bar 1; the last bar has no next close.
	require.Len(t, bt.Scan.Records, 3)
	assert.Equal(t, "AAA.NS", bt.Scan.Records[0].Symbol)
	assert.Equal(t, 3, bt.Summary.Signals)
	assert.Equal(t, 2, bt.Summary.Wins)
	assert.Len(t, bt.BySymbol, 2)
	assert.Len(t, w.scans, 1)
	assert.Empty(t, n.alerts, "backtests do not alert")
}

func TestNewFetcherAndUniverse(t *testing.T) {
	cfg := config.Default()
	f, err := NewFetcher(cfg, nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &marketdata.Yahoo{}, f)

	f, err = NewFetcher(cfg, nil, &memBarWriter{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &marketdata.WriteThrough{}, f)

	cfg.Provider = "sqlite"
	_, err = NewFetcher(cfg, nil, nil, nil)
	assert.ErrorIs(t, err, scanner.ErrConfig)

	src, err := NewUniverse(config.UniverseConfig{Source: "nifty50"}, nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "nifty50", src.Name())

	src, err = NewUniverse(config.UniverseConfig{Source: "csv", URL: "http://x/y.csv"}, universe.NewMemoryCache(), time.Hour, nil)
	require.NoError(t, err)
	assert.IsType(t, universe.Cached{}, src)

	_, err = NewUniverse(config.UniverseConfig{Source: "sensex"}, nil, 0, nil)
	assert.ErrorIs(t, err, scanner.ErrConfig)

	assert.Nil(t, NewNotifier(config.NotifyConfig{}, nil))
	assert.Len(t, NewNotifier(config.NotifyConfig{Log: true, WebhookURL: "http://hook"}, nil), 2)
}

type memBarWriter struct{}

func (memBarWriter) WriteBars(context.Context, string, []model.Bar) error { return nil }
