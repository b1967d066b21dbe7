// Package report renders scan results: CSV files, console tables, the
// backtest summary box and the equity-curve chart.
package report

import (
	"github.com/shopspring/decimal"

	"ma-screener/internal/indicator"
	"ma-screener/internal/model"
)

// Precision sets output rounding. Values are rounded only when rendered.
type Precision struct {
	PricePlaces int32 `yaml:"price_places" json:"price_places" validate:"gte=0,lte=8"`
	PctPlaces   int32 `yaml:"pct_places" json:"pct_places" validate:"gte=0,lte=8"`
}

// DefaultPrecision rounds prices and percentages to two places.
var DefaultPrecision = Precision{PricePlaces: 2, PctPlaces: 2}

// Round formats v with places decimals, rounding half away from zero.
func Round(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// RoundValue is Round for an optional value; undefined renders as "".
func RoundValue(v model.Value, places int32) string {
	f, ok := v.Get()
	if !ok {
		return ""
	}
	return Round(f, places)
}

// Layout is the flat record-per-row table shape shared by every output:
// symbol, date, close, indicator columns, then strength for screens or
// next_close and return for backtests.
type Layout struct {
	Columns   []indicator.Column
	Backtest  bool
	Precision Precision
}

// NewLayout builds the layout for a strategy's periods.
func NewLayout(p indicator.Periods, backtest bool, prec Precision) Layout {
	return Layout{Columns: p.Columns(), Backtest: backtest, Precision: prec}
}

// Header returns the column names.
func (l Layout) Header() []string {
	h := []string{"symbol", "date", "close"}
	for _, c := range l.Columns {
		h = append(h, c.Label)
	}
	if l.Backtest {
		return append(h, "next_close", "return")
	}
	return append(h, "strength")
}

// Row renders one record.
func (l Layout) Row(r model.SignalRecord) []string {
	pp, pct := l.Precision.PricePlaces, l.Precision.PctPlaces
	row := []string{r.Symbol, r.Date.Format(model.DateLayout), Round(r.Close, pp)}
	for _, c := range l.Columns {
		row = append(row, RoundValue(slotValue(r.Snapshot, c.Slot), pp))
	}
	if l.Backtest {
		return append(row, RoundValue(r.NextClose, pp), RoundValue(r.Return, pct))
	}
	return append(row, RoundValue(r.Strength, pct))
}

func slotValue(s model.Snapshot, slot string) model.Value {
	switch slot {
	case "ema_fast":
		return s.EMAFast
	case "ema_trend":
		return s.EMATrend
	case "sma_fast":
		return s.SMAFast
	case "sma_mid":
		return s.SMAMid
	case "sma_slow":
		return s.SMASlow
	}
	return model.None()
}
