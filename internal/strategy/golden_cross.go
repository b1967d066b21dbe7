package strategy

import (
	"ma-screener/internal/indicator"
	"ma-screener/internal/model"
)

// GoldenCrossName is the registry name of the golden-cross strategy.
const GoldenCrossName = "golden-cross"

// DefaultGoldenCrossPeriods: SMA50 crossing SMA100, filtered by SMA20 and EMA8.
var DefaultGoldenCrossPeriods = indicator.Periods{
	EMAFast: 8,
	SMAFast: 20,
	SMAMid:  50,
	SMASlow: 100,
}

// GoldenCrossStrategy implements the SMA golden cross with a trend filter.
//
// Signal: mid SMA crosses above slow SMA on this bar (edge, not level)
// Filter: fast SMA > mid SMA and fast EMA > fast SMA on the same bar
//
// The strategy does not score signals; Strength is always undefined.
type GoldenCrossStrategy struct {
	periods indicator.Periods
}

// NewGoldenCross creates the strategy. EMATrend in the override is ignored.
func NewGoldenCross(override indicator.Periods) (*GoldenCrossStrategy, error) {
	p := merge(DefaultGoldenCrossPeriods, override)
	p.EMATrend = 0
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &GoldenCrossStrategy{periods: p}, nil
}

func (s *GoldenCrossStrategy) Name() string                { return GoldenCrossName }
func (s *GoldenCrossStrategy) Periods() indicator.Periods { return s.periods }

// MinBars includes one extra bar: the crossover compares against the
// previous bar's averages.
func (s *GoldenCrossStrategy) MinBars() int { return s.periods.Max() + 1 }

func (s *GoldenCrossStrategy) Evaluate(f *indicator.Frame, i int) (bool, model.Value) {
	// Need the previous bar for crossover detection
	if i < 1 || i >= f.Len() {
		return false, model.None()
	}
	cur := f.At(i)
	if !GoldenCross(f.At(i-1), cur) {
		return false, model.None()
	}
	return TrendOK(cur), model.None()
}
