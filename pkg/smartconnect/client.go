// Package smartconnect is a minimal Angel One SmartAPI client covering the
// session and historical-data endpoints: password+TOTP login, token renewal,
// scrip search and daily candles.
//
// Usage example:
//
//	sc := smartconnect.New(smartconnect.Config{APIKey: "your_api_key"})
//	if _, err := sc.Login(ctx, "CLIENTID", "PIN", totpCode); err != nil { ... }
//	scrips, _ := sc.SearchScrip(ctx, "NSE", "SBIN")
//	candles, err := sc.CandleData(ctx, smartconnect.CandleParams{
//	    Exchange: "NSE", SymbolToken: scrips[0].Token, Interval: smartconnect.IntervalDay,
//	    From: time.Now().AddDate(-1, 0, 0), To: time.Now(),
//	})
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ---- Config & client ----

type Config struct {
	APIKey string

	RootURL        string        // default: https://apiconnect.angelone.in
	Timeout        time.Duration // default: 7s
	ProxyURL       string        // optional HTTP proxy URL
	UserType       string        // default: USER
	SourceID       string        // default: WEB
	ClientPublicIP string        // default 106.193.147.98
	ClientLocalIP  string        // default: first non-loopback IPv4, else 127.0.0.1
	ClientMAC      string        // default: first interface MAC
}

// Client talks to SmartAPI. It is safe for concurrent use.
type Client struct {
	apiKey     string
	rootURL    string
	httpClient *http.Client

	userType       string
	sourceID       string
	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	clientCode   string

	// SessionExpiryHook is called when the API rejects the access token.
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
}

// New initializes the client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = "106.193.147.98"
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}

	tr := &http.Transport{}
	if cfg.ProxyURL != "" {
		if purl, err := url.Parse(cfg.ProxyURL); err == nil {
			tr.Proxy = http.ProxyURL(purl)
		}
	}

	return &Client{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		httpClient:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Errors ----

// APIError is a SmartAPI rejection: an HTTP error status, an error_type
// body, or status=false.
type APIError struct {
	HTTPStatus int
	ErrorCode  string
	Message    string
	Route      string
}

func (e *APIError) Error() string {
	code := e.ErrorCode
	if code == "" {
		code = fmt.Sprintf("HTTP %d", e.HTTPStatus)
	}
	return fmt.Sprintf("smartapi %s: %s: %s", e.Route, code, e.Message)
}

// Temporary reports whether a retry may succeed.
func (e *APIError) Temporary() bool {
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500 || e.ErrorCode == "AB1004"
}

// envelope is the common response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// ---- Helpers ----

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.clientLocalIP)
	h.Set("X-ClientPublicIP", c.clientPublicIP)
	h.Set("X-MACAddress", c.clientMAC)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", c.userType)
	h.Set("X-SourceID", c.sourceID)
	if tok := c.AccessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

// post sends params as JSON to route and decodes data into out.
func (c *Client) post(ctx context.Context, route string, params any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+uri, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header = c.requestHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("smartapi %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartapi %s: read body: %w", route, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(raw)), Route: route}
		}
		return fmt.Errorf("smartapi %s: couldn't parse JSON response: %w", route, err)
	}
	if env.ErrorType != "" || resp.StatusCode != http.StatusOK || !env.Status {
		if resp.StatusCode == http.StatusForbidden && env.ErrorType == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		code := env.ErrorCode
		if code == "" {
			code = env.ErrorType
		}
		return &APIError{HTTPStatus: resp.StatusCode, ErrorCode: code, Message: env.Message, Route: route}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("smartapi %s: decode data: %w", route, err)
	}
	return nil
}

// ---- Session ----

// Session holds the tokens issued at login.
type Session struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// AccessToken returns the current JWT.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken installs a JWT obtained elsewhere.
func (c *Client) SetAccessToken(t string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = t
}

// LoggedIn reports whether an access token is present.
func (c *Client) LoggedIn() bool { return c.AccessToken() != "" }

// Login authenticates with client code, PIN and a current TOTP code.
func (c *Client) Login(ctx context.Context, clientCode, password, totp string) (*Session, error) {
	var s Session
	params := map[string]string{"clientcode": clientCode, "password": password, "totp": totp}
	if err := c.post(ctx, "api.login", params, &s); err != nil {
		return nil, err
	}
	if s.JWTToken == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, Message: "login returned no token", Route: "api.login"}
	}
	c.mu.Lock()
	c.accessToken = s.JWTToken
	c.refreshToken = s.RefreshToken
	c.clientCode = clientCode
	c.mu.Unlock()
	return &s, nil
}

// RenewToken exchanges the refresh token for a new access token.
func (c *Client) RenewToken(ctx context.Context) error {
	c.mu.RLock()
	rt := c.refreshToken
	c.mu.RUnlock()
	if rt == "" {
		return fmt.Errorf("smartapi: no refresh token, login first")
	}
	var s Session
	if err := c.post(ctx, "api.token", map[string]string{"refreshToken": rt}, &s); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.JWTToken != "" {
		c.accessToken = s.JWTToken
	}
	if s.RefreshToken != "" {
		c.refreshToken = s.RefreshToken
	}
	return nil
}

// Logout terminates the session and clears the tokens.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	cc := c.clientCode
	c.mu.RUnlock()
	err := c.post(ctx, "api.logout", map[string]string{"clientcode": cc}, nil)
	c.mu.Lock()
	c.accessToken, c.refreshToken = "", ""
	c.mu.Unlock()
	return err
}

// ---- Market data ----

// Scrip is one instrument returned by SearchScrip.
type Scrip struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	Token         string `json:"symboltoken"`
}

// SearchScrip looks up instruments whose trading symbol matches query.
func (c *Client) SearchScrip(ctx context.Context, exchange, query string) ([]Scrip, error) {
	var out []Scrip
	err := c.post(ctx, "api.search.scrip", map[string]string{"exchange": exchange, "searchscrip": query}, &out)
	return out, err
}

// Candle intervals accepted by CandleData.
const (
	IntervalDay = "ONE_DAY"

	// MaxDaysPerRequest is the widest ONE_DAY range one call may span.
	MaxDaysPerRequest = 2000
)

const candleTimeLayout = "2006-01-02 15:04"

// CandleParams selects a candle range.
type CandleParams struct {
	Exchange    string
	SymbolToken string
	Interval    string
	From, To    time.Time
}

// Candle is one OHLCV row.
type Candle struct {
	Time                   time.Time
	Open, High, Low, Close float64
	Volume                 int64
}

// CandleData returns candles for p. Rows come back oldest first as
// [timestamp, open, high, low, close, volume].
func (c *Client) CandleData(ctx context.Context, p CandleParams) ([]Candle, error) {
	params := map[string]string{
		"exchange":    p.Exchange,
		"symboltoken": p.SymbolToken,
		"interval":    p.Interval,
		"fromdate":    p.From.Format(candleTimeLayout),
		"todate":      p.To.Format(candleTimeLayout),
	}
	var rows [][]json.RawMessage
	if err := c.post(ctx, "api.candle.data", params, &rows); err != nil {
		return nil, err
	}

	out := make([]Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("smartapi candle row %d: %d fields", i, len(row))
		}
		var ts string
		var o, h, l, cl float64
		var v float64
		for j, dst := range []any{&ts, &o, &h, &l, &cl, &v} {
			if err := json.Unmarshal(row[j], dst); err != nil {
				return nil, fmt.Errorf("smartapi candle row %d field %d: %w", i, j, err)
			}
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("smartapi candle row %d: %w", i, err)
		}
		out = append(out, Candle{Time: t, Open: o, High: h, Low: l, Close: cl, Volume: int64(v)})
	}
	return out, nil
}
