package scanner

import (
	"fmt"
	"strings"

	"ma-screener/internal/model"
	"ma-screener/internal/strategy"
)

// ModeKind selects which bars of a series are evaluated.
type ModeKind int

const (
	// ModeLatest evaluates the final bar only.
	ModeLatest ModeKind = iota
	// ModeWindow evaluates the final N+1 bars and keeps the most recent hit.
	ModeWindow
	// ModeFullHistory evaluates every bar that has a successor.
	ModeFullHistory
)

// Mode is a scan mode with its parameter.
type Mode struct {
	Kind ModeKind
	N    int
}

// Latest returns the latest-bar mode.
func Latest() Mode { return Mode{Kind: ModeLatest} }

// Window returns the trailing-window mode. Window(0) behaves like Latest.
func Window(n int) Mode { return Mode{Kind: ModeWindow, N: n} }

// FullHistory returns the backtest mode.
func FullHistory() Mode { return Mode{Kind: ModeFullHistory} }

// ParseMode maps "latest", "window" and "full" (or "backtest") to a Mode.
func ParseMode(name string, window int) (Mode, error) {
	var m Mode
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latest":
		m = Latest()
		if window > 0 {
			m = Window(window)
		}
	case "window", "recent":
		m = Window(window)
	case "full", "full-history", "backtest":
		m = FullHistory()
	default:
		return Mode{}, configError("unknown mode %q", name)
	}
	return m, m.Validate()
}

// Validate rejects negative windows and unknown kinds.
func (m Mode) Validate() error {
	switch m.Kind {
	case ModeLatest, ModeFullHistory:
		return nil
	case ModeWindow:
		if m.N < 0 {
			return configError("window must not be negative, got %d", m.N)
		}
		return nil
	default:
		return configError("unknown mode kind %d", m.Kind)
	}
}

// Backtest reports whether the mode produces next-bar returns.
func (m Mode) Backtest() bool { return m.Kind == ModeFullHistory }

// RequiredBars is the shortest series the mode can evaluate for s.
func (m Mode) RequiredBars(s strategy.Strategy) int {
	switch m.Kind {
	case ModeWindow:
		return s.MinBars() + m.N
	case ModeFullHistory:
		// One fully defined bar plus the bar that prices its return.
		return max(2, s.MinBars()+1)
	default:
		return s.MinBars()
	}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeWindow:
		return fmt.Sprintf("window(%d)", m.N)
	case ModeFullHistory:
		return model.ModeFullHistory
	default:
		return "latest"
	}
}
