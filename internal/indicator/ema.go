package indicator

import "strconv"

// EMA calculates Exponential Moving Average with weight 2/(span+1).
// The recursion is seeded with the first price and never re-seeded, so a
// value exists from the first update; Ready reports whether span prices have
// been observed, which is when callers start trusting it.
// O(1) per update with no window storage.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given span.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.current = price
		return
	}
	// Equivalent to price*k + prev*(1-k); this form keeps a flat series exact.
	e.current += (price - e.current) * e.multiplier
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// RawEMA returns the unmasked EMA recursion for every index of closes.
func RawEMA(closes []float64, span int) []float64 {
	out := make([]float64, len(closes))
	if span <= 0 {
		return out
	}
	e := NewEMA(span)
	for i, c := range closes {
		e.Update(c)
		out[i] = e.Value()
	}
	return out
}
