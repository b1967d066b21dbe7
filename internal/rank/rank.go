// Package rank orders scan records and aggregates backtest statistics.
// All functions return new slices; inputs are not reordered.
package rank

import (
	"sort"
	"time"

	"ma-screener/internal/model"
)

// Screen orders screener records for display: records with a strength
// first, strongest first; then records without strength, most recent date
// first and symbol ascending. The sort is stable, so equal keys keep their
// input order.
func Screen(records []model.SignalRecord) []model.SignalRecord {
	out := clone(records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Strength.Valid != b.Strength.Valid {
			return a.Strength.Valid
		}
		if a.Strength.Valid {
			return a.Strength.Float > b.Strength.Float
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.Symbol < b.Symbol
	})
	return out
}

// Backtest orders a trade log by date ascending, then symbol ascending.
func Backtest(records []model.SignalRecord) []model.SignalRecord {
	out := clone(records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Symbol < b.Symbol
	})
	return out
}

// EquityPoint is one step of the cumulative-return curve.
type EquityPoint struct {
	Date       time.Time `json:"date"`
	Symbol     string    `json:"symbol"`
	Return     float64   `json:"return"`
	Cumulative float64   `json:"cumulative"`
}

// Summary aggregates a backtest trade log.
type Summary struct {
	Signals    int           `json:"signals"`
	Wins       int           `json:"wins"`
	WinRate    float64       `json:"win_rate"`    // fraction in [0, 1]
	MeanReturn float64       `json:"mean_return"` // percent
	Best       model.Value   `json:"best"`
	Worst      model.Value   `json:"worst"`
	Equity     []EquityPoint `json:"equity"`
}

// Total is the final cumulative return, 0 for an empty log.
func (s Summary) Total() float64 {
	if len(s.Equity) == 0 {
		return 0
	}
	return s.Equity[len(s.Equity)-1].Cumulative
}

// Summarize computes win rate, mean next-bar return and the equity curve.
// Records without a defined return are ignored. A win is a strictly
// positive return. The curve is the running sum of returns in Backtest
// order.
func Summarize(records []model.SignalRecord) Summary {
	var s Summary
	sum := 0.0
	for _, r := range Backtest(records) {
		ret, ok := r.Return.Get()
		if !ok {
			continue
		}
		s.Signals++
		if ret > 0 {
			s.Wins++
		}
		if !s.Best.Valid || ret > s.Best.Float {
			s.Best = model.Some(ret)
		}
		if !s.Worst.Valid || ret < s.Worst.Float {
			s.Worst = model.Some(ret)
		}
		sum += ret
		s.Equity = append(s.Equity, EquityPoint{
			Date:       r.Date,
			Symbol:     r.Symbol,
			Return:     ret,
			Cumulative: sum,
		})
	}
	if s.Signals > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Signals)
		s.MeanReturn = sum / float64(s.Signals)
	}
	return s
}

// BySymbol splits records into per-symbol summaries.
func BySymbol(records []model.SignalRecord) map[string]Summary {
	groups := make(map[string][]model.SignalRecord)
	for _, r := range records {
		groups[r.Symbol] = append(groups[r.Symbol], r)
	}
	out := make(map[string]Summary, len(groups))
	for sym, recs := range groups {
		out[sym] = Summarize(recs)
	}
	return out
}

func clone(records []model.SignalRecord) []model.SignalRecord {
	out := make([]model.SignalRecord, len(records))
	copy(out, records)
	return out
}
