// Package marketdata provides the daily-bar sources a scan can read from:
// the Yahoo Finance chart API, Angel One SmartAPI, and a write-through
// wrapper that mirrors fetched bars into a local store.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"ma-screener/internal/model"
)

const (
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"
	DefaultTimeout      = 30 * time.Second
	DefaultRateLimit    = 4 // requests per second
	DefaultRetries      = 3
)

// APIError is a non-200 response or an error object in the chart payload.
type APIError struct {
	StatusCode int
	Message    string
	Symbol     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yahoo: %s (status: %d, symbol: %s)", e.Message, e.StatusCode, e.Symbol)
}

// retryable reports whether the request may succeed when repeated.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Yahoo fetches daily bars from the public chart API. Prices are split and
// dividend adjusted when the payload carries adjusted closes.
type Yahoo struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    uint64
	backOff    func() backoff.BackOff
	log        *slog.Logger
	now        func() time.Time
}

// YahooOption configures the client.
type YahooOption func(*Yahoo)

// WithBaseURL sets the base URL.
func WithBaseURL(baseURL string) YahooOption {
	return func(y *Yahoo) {
		y.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRateLimit sets the request rate.
func WithRateLimit(requestsPerSecond int) YahooOption {
	return func(y *Yahoo) {
		y.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) YahooOption {
	return func(y *Yahoo) {
		y.httpClient.Timeout = timeout
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) YahooOption {
	return func(y *Yahoo) {
		if n < 0 {
			n = 0
		}
		y.retries = uint64(n)
	}
}

// WithProxy routes requests through an HTTP proxy.
func WithProxy(proxyURL string) YahooOption {
	return func(y *Yahoo) {
		if u, err := url.Parse(proxyURL); err == nil && proxyURL != "" {
			y.httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) YahooOption {
	return func(y *Yahoo) {
		y.log = l
	}
}

// WithClock overrides the clock used to compute the requested range.
func WithClock(now func() time.Time) YahooOption {
	return func(y *Yahoo) {
		y.now = now
	}
}

// NewYahoo creates a Yahoo client.
func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		baseURL:    DefaultYahooBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		retries:    DefaultRetries,
		backOff:    func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchHistory implements model.HistoryFetcher.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, lookback int) ([]model.Bar, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("events", "div,splits")
	params.Set("includeAdjustedClose", "true")
	if lookback <= 0 {
		params.Set("range", "max")
	} else {
		now := y.now()
		params.Set("period1", strconv.FormatInt(now.AddDate(0, 0, -lookback).Unix(), 10))
		params.Set("period2", strconv.FormatInt(now.Unix(), 10))
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), params.Encode())

	var chart yahooChart
	op := func() error {
		err := y.get(ctx, symbol, u, &chart)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(y.backOff(), y.retries), ctx)
	notify := func(err error, wait time.Duration) {
		y.log.Warn("[yahoo] retrying", "symbol", symbol, "error", err, "wait", wait.String())
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return chartBars(symbol, &chart)
}

// get performs a rate-limited GET request
func (y *Yahoo) get(ctx context.Context, symbol, u string, out *yahooChart) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("yahoo read body: %w", err)
	}

	*out = yahooChart{}
	decodeErr := json.Unmarshal(body, out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && out.Chart.Error != nil {
			msg = out.Chart.Error.Description
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg, Symbol: symbol}
	}
	if decodeErr != nil {
		return fmt.Errorf("yahoo decode: %w", decodeErr)
	}
	if out.Chart.Error != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: out.Chart.Error.Description, Symbol: symbol}
	}
	return nil
}

// chartBars converts the payload. Null rows (holidays, suspended days) are
// dropped. Bar dates are the exchange-local session date at midnight UTC.
func chartBars(symbol string, chart *yahooChart) ([]model.Bar, error) {
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, nil
	}
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: %s: no quote block", symbol)
	}
	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	at := func(s []*float64, i int) (float64, bool) {
		if i >= len(s) || s[i] == nil {
			return 0, false
		}
		return *s[i], true
	}

	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c, ok := at(quote.Close, i)
		if !ok {
			continue
		}
		o, _ := at(quote.Open, i)
		h, _ := at(quote.High, i)
		l, _ := at(quote.Low, i)
		v, _ := at(quote.Volume, i)

		if a, ok := at(adj, i); ok && c != 0 {
			ratio := a / c
			o, h, l, c = o*ratio, h*ratio, l*ratio, a
		}

		local := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		bars = append(bars, model.Bar{
			Date:   time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: int64(v),
		})
	}
	return model.NormalizeBars(bars), nil
}
