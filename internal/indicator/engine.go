package indicator

import (
	"errors"
	"fmt"
	"math"

	"ma-screener/internal/model"
)

// ErrInvalidSpec is returned for a spec with an unknown kind or a
// non-positive period.
var ErrInvalidSpec = errors.New("invalid indicator spec")

func invalidSpec(s Spec, reason string) error {
	return fmt.Errorf("%w %s: %s", ErrInvalidSpec, s, reason)
}

// Series is an indicator output aligned with its input closes.
// Undefined positions hold NaN and are reported invalid by At.
type Series []float64

// At returns the value at index i; invalid when out of range or undefined.
func (s Series) At(i int) model.Value {
	if i < 0 || i >= len(s) {
		return model.None()
	}
	return model.Some(s[i])
}

// Defined reports whether index i holds a value.
func (s Series) Defined(i int) bool {
	return i >= 0 && i < len(s) && !math.IsNaN(s[i])
}

// Compute runs every spec over closes in one pass per indicator and returns
// aligned series of len(closes). A position is defined only once the
// indicator is Ready, which applies the same minimum-history rule to SMA and
// EMA. Duplicate specs are computed once.
func Compute(closes []float64, specs []Spec) (map[Spec]Series, error) {
	out := make(map[Spec]Series, len(specs))
	for _, spec := range specs {
		if _, done := out[spec]; done {
			continue
		}
		ind, err := spec.New()
		if err != nil {
			return nil, err
		}
		out[spec] = run(ind, closes)
	}
	return out, nil
}

func run(ind Indicator, closes []float64) Series {
	s := make(Series, len(closes))
	for i, c := range closes {
		ind.Update(c)
		if ind.Ready() {
			s[i] = ind.Value()
		} else {
			s[i] = math.NaN()
		}
	}
	return s
}
