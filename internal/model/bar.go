package model

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV bar for a single instrument.
// Prices are in the instrument's quote currency (rupees for NSE symbols).
type Bar struct {
	Date   time.Time `json:"date"` // session date, truncated to midnight
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// DateKey returns the bar's session date as "2006-01-02".
func (b *Bar) DateKey() string {
	return b.Date.Format(DateLayout)
}

// DateLayout is the layout used for session dates in every external format.
const DateLayout = "2006-01-02"

// SessionDate truncates t to midnight in its own location.
func SessionDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Closes extracts the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// NormalizeBars returns a copy of bars ordered by date ascending with one bar
// per session date. Empty bars (all prices zero) are dropped. When a date
// repeats, the later occurrence in the input wins.
func NormalizeBars(bars []Bar) []Bar {
	byDate := make(map[string]int, len(bars))
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Open == 0 && b.High == 0 && b.Low == 0 && b.Close == 0 {
			continue
		}
		b.Date = SessionDate(b.Date)
		key := b.DateKey()
		if idx, ok := byDate[key]; ok {
			out[idx] = b
			continue
		}
		byDate[key] = len(out)
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
