// Package universe resolves the list of instruments a scan covers: built-in
// index lists, a symbols file, or an index-constituents CSV download.
package universe

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultSuffix is the Yahoo exchange suffix for NSE listings.
const DefaultSuffix = ".NS"

// Source produces raw symbols.
type Source interface {
	// Name identifies the source in logs and cache keys.
	Name() string
	Symbols(ctx context.Context) ([]string, error)
}

// ErrEmpty is returned when a source yields no symbols.
var ErrEmpty = errors.New("universe is empty")

// Static is a fixed list.
type Static struct {
	Label string
	List  []string
}

func (s Static) Name() string { return s.Label }

func (s Static) Symbols(context.Context) ([]string, error) {
	out := make([]string, len(s.List))
	copy(out, s.List)
	return out, nil
}

// Nifty50 is the NIFTY 50 constituent list bundled with the screener.
func Nifty50() Static {
	return Static{Label: "nifty50", List: []string{
		"ADANIENT", "ADANIPORTS", "APOLLOHOSP", "ASIANPAINT", "AXISBANK",
		"BAJAJ-AUTO", "BAJFINANCE", "BAJAJFINSV", "BPCL", "BHARTIARTL",
		"BRITANNIA", "CIPLA", "COALINDIA", "DIVISLAB", "DRREDDY",
		"EICHERMOT", "GRASIM", "HCLTECH", "HDFCBANK", "HDFCLIFE",
		"HEROMOTOCO", "HINDALCO", "HINDUNILVR", "ICICIBANK", "ITC",
		"INFY", "JSWSTEEL", "KOTAKBANK", "LT", "M&M", "MARUTI",
		"NTPC", "ONGC", "POWERGRID", "RELIANCE", "SBILIFE", "SBIN",
		"SUNPHARMA", "TCS", "TATACONSUM", "TATAMOTORS", "TATASTEEL",
		"TECHM", "TITAN", "ULTRACEMCO", "UPL", "WIPRO",
	}}
}

// Core15 is the short large-cap list used when nothing else is configured.
func Core15() Static {
	return Static{Label: "core15", List: []string{
		"RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK",
		"ITC", "LT", "SBIN", "BHARTIARTL", "AXISBANK",
		"HINDUNILVR", "KOTAKBANK", "MARUTI", "SUNPHARMA", "ASIANPAINT",
	}}
}

// Builtin returns a bundled list by name.
func Builtin(name string) (Static, bool) {
	switch strings.ToLower(name) {
	case "nifty50":
		return Nifty50(), true
	case "core15", "default":
		return Core15(), true
	}
	return Static{}, false
}

// File reads one symbol per line. Blank lines and lines starting with '#'
// are ignored.
type File struct {
	Path string
}

func (f File) Name() string { return "file:" + f.Path }

func (f File) Symbols(context.Context) ([]string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("universe file: %w", err)
	}
	defer fh.Close()

	var out []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("universe file: %w", err)
	}
	return out, nil
}

// CSVURL downloads an index-constituents CSV (as published by NSE) and
// reads the symbol column.
type CSVURL struct {
	URL    string
	Column string // default "Symbol"
	Client *http.Client
}

func (c CSVURL) Name() string { return "csv:" + c.URL }

func (c CSVURL) Symbols(ctx context.Context) ([]string, error) {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("universe csv: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("universe csv: status %d", resp.StatusCode)
	}
	return ReadCSV(resp.Body, c.Column)
}

// ReadCSV extracts column (default "Symbol", case-insensitive) from a CSV
// with a header row.
func ReadCSV(r io.Reader, column string) ([]string, error) {
	if column == "" {
		column = "Symbol"
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("universe csv header: %w", err)
	}
	idx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("universe csv: no %q column in %v", column, header)
	}

	var out []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("universe csv: %w", err)
		}
		if idx < len(rec) {
			out = append(out, rec[idx])
		}
	}
	return out, nil
}

// Normalize trims and upper-cases symbols, appends suffix to those that do
// not already end with it, and drops blanks and repeats keeping the first
// occurrence.
func Normalize(symbols []string, suffix string) []string {
	suffix = strings.ToUpper(suffix)
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if suffix != "" && !strings.HasSuffix(s, suffix) {
			s += suffix
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Resolve reads src and normalizes the result.
func Resolve(ctx context.Context, src Source, suffix string) ([]string, error) {
	raw, err := src.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	out := Normalize(raw, suffix)
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", src.Name(), ErrEmpty)
	}
	return out, nil
}
