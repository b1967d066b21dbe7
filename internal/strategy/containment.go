package strategy

import (
	"ma-screener/internal/indicator"
	"ma-screener/internal/model"
)

// ContainmentName is the registry name of the containment strategy.
const ContainmentName = "containment"

// DefaultContainmentPeriods: EMA8 & SMA5 between EMA44 & SMA50.
var DefaultContainmentPeriods = indicator.Periods{
	EMAFast:  8,
	EMATrend: 44,
	SMAFast:  5,
	SMASlow:  50,
}

// ContainmentStrategy fires when the fast averages pull back inside the
// slow band while price stays above the fast EMA. Signals are ranked by
// Strength.
type ContainmentStrategy struct {
	periods indicator.Periods
}

// NewContainment creates the strategy. Only EMAFast, EMATrend, SMAFast and
// SMASlow are read; SMAMid in the override is ignored.
func NewContainment(override indicator.Periods) (*ContainmentStrategy, error) {
	p := merge(DefaultContainmentPeriods, override)
	p.SMAMid = 0
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &ContainmentStrategy{periods: p}, nil
}

func (s *ContainmentStrategy) Name() string                { return ContainmentName }
func (s *ContainmentStrategy) Periods() indicator.Periods { return s.periods }
func (s *ContainmentStrategy) MinBars() int               { return s.periods.Max() }

func (s *ContainmentStrategy) Evaluate(f *indicator.Frame, i int) (bool, model.Value) {
	if i < 0 || i >= f.Len() {
		return false, model.None()
	}
	return Containment(f.At(i))
}
