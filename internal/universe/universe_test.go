package universe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" reliance ", "TCS.NS", "", "RELIANCE", "m&m"}, DefaultSuffix)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS", "M&M.NS"}, got)
	assert.Equal(t, []string{"AAPL"}, Normalize([]string{"aapl"}, ""))
}

func TestBuiltin(t *testing.T) {
	n, ok := Builtin("NIFTY50")
	require.True(t, ok)
	syms, err := Resolve(context.Background(), n, DefaultSuffix)
	require.NoError(t, err)
	assert.Len(t, syms, len(Nifty50().List))
	assert.Contains(t, syms, "BAJAJ-AUTO.NS")

	_, ok = Builtin("sensex")
	assert.False(t, ok)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickers.txt")
	require.NoError(t, os.WriteFile(path, []byte("# watchlist\nRELIANCE\n\n  INFY.NS \n"), 0o644))

	syms, err := Resolve(context.Background(), File{Path: path}, DefaultSuffix)
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS", "INFY.NS"}, syms)

	_, err = File{Path: filepath.Join(t.TempDir(), "missing")}.Symbols(context.Background())
	assert.Error(t, err)
}

func TestResolve_Empty(t *testing.T) {
	_, err := Resolve(context.Background(), Static{Label: "x", List: []string{" "}}, DefaultSuffix)
	assert.ErrorIs(t, err, ErrEmpty)
}

const niftyCSV = "\uFEFFCompany Name,Industry,Symbol,Series,ISIN Code\n" +
	"Reliance Industries Ltd.,Oil Gas & Consumable Fuels,RELIANCE,EQ,INE002A01018\n" +
	"Tata Consultancy Services Ltd.,Information Technology,TCS,EQ,INE467B01029\n"

func TestCSVURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ind_nifty50list.csv" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, niftyCSV)
	}))
	defer srv.Close()

	syms, err := Resolve(context.Background(), CSVURL{URL: srv.URL + "/ind_nifty50list.csv"}, DefaultSuffix)
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS"}, syms)

	_, err = CSVURL{URL: srv.URL + "/missing.csv"}.Symbols(context.Background())
	assert.Error(t, err)
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Ticker\nRELIANCE\n"), "")
	assert.Error(t, err)

	syms, err := ReadCSV(strings.NewReader("Ticker\nRELIANCE\n"), "ticker")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE"}, syms)
}

type countingSource struct {
	calls int
	err   error
}

func (c *countingSource) Name() string { return "count" }
func (c *countingSource) Symbols(context.Context) ([]string, error) {
	c.calls++
	return []string{"A", "B"}, c.err
}

func TestCached(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	mem := NewMemoryCache()
	mem.now = func() time.Time { return now }
	src := &countingSource{}
	c := Cached{Source: src, Cache: mem, TTL: time.Hour}

	for i := 0; i < 3; i++ {
		syms, err := c.Symbols(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, syms)
	}
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Hour)
	_, err := c.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "expired entry refreshes")

	now = now.Add(2 * time.Hour)
	src.err = errors.New("nse down")
	_, err = c.Symbols(context.Background())
	assert.Error(t, err)
}
