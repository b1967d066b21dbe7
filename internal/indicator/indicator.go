// Package indicator provides moving-average calculations over daily close
// series.
//
// SMA and EMA implement the streaming Indicator interface. Compute feeds a
// whole close series through a set of indicators and returns aligned series
// where positions without enough history are undefined; Enrich attaches
// those series to a bar history as a Frame.
package indicator

import "strconv"

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "EMA_8").
	Name() string

	// Update feeds the next close price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Only meaningful when Ready.
	Value() float64

	// Ready returns true when enough prices have been accumulated.
	Ready() bool

	// Reset clears all state so the instance can be reused on another series.
	Reset()
}

// Kind identifies an indicator family.
type Kind string

const (
	KindSMA Kind = "SMA"
	KindEMA Kind = "EMA"
)

// Spec specifies a single indicator to compute.
type Spec struct {
	Kind   Kind
	Period int // SMA window or EMA span
}

// String returns the canonical name, e.g. "EMA_8".
func (s Spec) String() string {
	return string(s.Kind) + "_" + strconv.Itoa(s.Period)
}

// New creates a fresh indicator for the spec.
func (s Spec) New() (Indicator, error) {
	if s.Period <= 0 {
		return nil, invalidSpec(s, "period must be positive")
	}
	switch s.Kind {
	case KindSMA:
		return NewSMA(s.Period), nil
	case KindEMA:
		return NewEMA(s.Period), nil
	default:
		return nil, invalidSpec(s, "unknown kind")
	}
}
