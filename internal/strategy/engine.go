// Package strategy provides the signal conditions evaluated by the scanner.
//
// A Strategy names the indicator periods it needs and decides, for one bar
// of an enriched Frame, whether its condition holds and how strong the
// signal is. Strategies are stateless; the same instance can evaluate any
// number of series concurrently.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ma-screener/internal/indicator"
	"ma-screener/internal/model"
)

// Strategy is the interface that all screening conditions implement.
type Strategy interface {
	// Name returns the unique registry name of the strategy.
	Name() string

	// Periods returns the indicator periods the strategy reads.
	Periods() indicator.Periods

	// MinBars is the shortest history on which the latest bar can be
	// evaluated with every operand defined.
	MinBars() int

	// Evaluate reports whether the condition holds at bar i of f and the
	// signal strength, which is undefined for unscored strategies.
	Evaluate(f *indicator.Frame, i int) (bool, model.Value)
}

// ErrUnknownStrategy is returned by New for an unregistered name.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Factory builds a strategy with optional period overrides. Zero fields of
// the override keep the strategy's defaults.
type Factory func(override indicator.Periods) (Strategy, error)

var registry = map[string]Factory{
	ContainmentName: func(o indicator.Periods) (Strategy, error) { return NewContainment(o) },
	GoldenCrossName: func(o indicator.Periods) (Strategy, error) { return NewGoldenCross(o) },
}

// New returns the registered strategy called name.
func New(name string, override indicator.Periods) (Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
	return f(override)
}

// Names lists registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func merge(base, override indicator.Periods) indicator.Periods {
	pick := func(b, o int) int {
		if o != 0 {
			return o
		}
		return b
	}
	return indicator.Periods{
		EMAFast:  pick(base.EMAFast, override.EMAFast),
		EMATrend: pick(base.EMATrend, override.EMATrend),
		SMAFast:  pick(base.SMAFast, override.SMAFast),
		SMAMid:   pick(base.SMAMid, override.SMAMid),
		SMASlow:  pick(base.SMASlow, override.SMASlow),
	}
}
