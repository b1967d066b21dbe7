package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"

	"ma-screener/internal/markethours"
	"ma-screener/internal/model"
	"ma-screener/pkg/smartconnect"
)

// AngelConfig holds SmartAPI credentials.
type AngelConfig struct {
	ClientCode string
	Password   string
	TOTPSecret string
	Exchange   string // default NSE
	RateLimit  int    // candle requests per second, default 3
}

// candleAPI is the part of smartconnect.Client the fetcher uses.
type candleAPI interface {
	LoggedIn() bool
	SetAccessToken(t string)
	Login(ctx context.Context, clientCode, password, totp string) (*smartconnect.Session, error)
	SearchScrip(ctx context.Context, exchange, query string) ([]smartconnect.Scrip, error)
	CandleData(ctx context.Context, p smartconnect.CandleParams) ([]smartconnect.Candle, error)
}

// Angel fetches daily candles from Angel One. Symbols may carry a Yahoo
// style exchange suffix (".NS"); it is stripped before the scrip lookup.
type Angel struct {
	api     candleAPI
	cfg     AngelConfig
	limiter *rate.Limiter
	log     *slog.Logger
	now     func() time.Time

	loginMu sync.Mutex
	mu      sync.Mutex
	tokens  map[string]string // trading symbol → symbol token
}

// NewAngel creates the fetcher over a SmartAPI client.
func NewAngel(api *smartconnect.Client, cfg AngelConfig, log *slog.Logger) *Angel {
	return newAngel(api, cfg, log)
}

func newAngel(api candleAPI, cfg AngelConfig, log *slog.Logger) *Angel {
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Angel{
		api:     api,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		log:     log,
		now:     time.Now,
		tokens:  make(map[string]string),
	}
}

// ensureSession logs in with a fresh TOTP code when no token is held.
func (a *Angel) ensureSession(ctx context.Context) error {
	a.loginMu.Lock()
	defer a.loginMu.Unlock()
	if a.api.LoggedIn() {
		return nil
	}
	code, err := totp.GenerateCode(a.cfg.TOTPSecret, a.now())
	if err != nil {
		return fmt.Errorf("angel: generate totp: %w", err)
	}
	if _, err := a.api.Login(ctx, a.cfg.ClientCode, a.cfg.Password, code); err != nil {
		return fmt.Errorf("angel: login: %w", err)
	}
	a.log.Info("[angel] session established", "client", a.cfg.ClientCode)
	return nil
}

// tradingSymbol maps "RELIANCE.NS" to "RELIANCE-EQ". Symbols already
// carrying a series suffix are kept.
func tradingSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.LastIndex(s, "."); i > 0 {
		s = s[:i]
	}
	for _, series := range []string{"-EQ", "-BE", "-BZ", "-SM"} {
		if strings.HasSuffix(s, series) {
			return s
		}
	}
	return s + "-EQ"
}

func (a *Angel) symbolToken(ctx context.Context, symbol string) (string, error) {
	ts := tradingSymbol(symbol)
	a.mu.Lock()
	tok, ok := a.tokens[ts]
	a.mu.Unlock()
	if ok {
		return tok, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	scrips, err := a.api.SearchScrip(ctx, a.cfg.Exchange, strings.TrimSuffix(ts, "-EQ"))
	if err != nil {
		return "", err
	}
	for _, s := range scrips {
		if strings.EqualFold(s.TradingSymbol, ts) {
			a.mu.Lock()
			a.tokens[ts] = s.Token
			a.mu.Unlock()
			return s.Token, nil
		}
	}
	return "", fmt.Errorf("angel: no %s scrip for %s", a.cfg.Exchange, ts)
}

// FetchHistory implements model.HistoryFetcher. Requests longer than one
// SmartAPI window are split into consecutive windows.
func (a *Angel) FetchHistory(ctx context.Context, symbol string, lookback int) ([]model.Bar, error) {
	if err := a.ensureSession(ctx); err != nil {
		return nil, err
	}
	token, err := a.symbolToken(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if lookback <= 0 {
		lookback = 3 * smartconnect.MaxDaysPerRequest
	}
	to := a.now().In(markethours.IST)
	from := to.AddDate(0, 0, -lookback)

	var bars []model.Bar
	for start := from; start.Before(to); {
		end := start.AddDate(0, 0, smartconnect.MaxDaysPerRequest)
		if end.After(to) {
			end = to
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		candles, err := a.api.CandleData(ctx, smartconnect.CandleParams{
			Exchange:    a.cfg.Exchange,
			SymbolToken: token,
			Interval:    smartconnect.IntervalDay,
			From:        start,
			To:          end,
		})
		if err != nil {
			var apiErr *smartconnect.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusForbidden {
				// Force a fresh login on the next fetch.
				a.api.SetAccessToken("")
			}
			return nil, err
		}
		for _, c := range candles {
			d := c.Time.In(markethours.IST)
			bars = append(bars, model.Bar{
				Date:   time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
		}
		start = end.AddDate(0, 0, 1)
	}
	return model.NormalizeBars(bars), nil
}
