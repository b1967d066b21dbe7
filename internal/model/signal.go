package model

import "time"

// Snapshot holds the indicator values of one bar. Slots whose period is not
// configured for the active strategy stay undefined.
type Snapshot struct {
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	EMAFast  Value     `json:"ema_fast"`
	EMATrend Value     `json:"ema_trend"`
	SMAFast  Value     `json:"sma_fast"`
	SMAMid   Value     `json:"sma_mid"`
	SMASlow  Value     `json:"sma_slow"`
}

// SignalRecord is one bar on which a strategy's condition held.
// Strength is set only by strategies that score their signal; NextClose and
// Return are set only by full-history (backtest) scans.
type SignalRecord struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Snapshot
	Strength  Value `json:"strength"`
	NextClose Value `json:"next_close"`
	Return    Value `json:"return"`
}

// FailureKind classifies a per-symbol failure.
type FailureKind string

const (
	FailureFetch   FailureKind = "FETCH"
	FailureCompute FailureKind = "COMPUTE"
)

// Failure records why a symbol produced no result.
type Failure struct {
	Symbol string      `json:"symbol"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// Skip records a symbol excluded without error (e.g. too little history).
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// ScanResult is the outcome of one universe scan. Records are in universe
// order until ranked.
type ScanResult struct {
	ID         string         `json:"id"`
	Strategy   string         `json:"strategy"`
	Mode       string         `json:"mode"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Universe   int            `json:"universe"`
	Records    []SignalRecord `json:"records"`
	Failures   []Failure      `json:"failures"`
	Skipped    []Skip         `json:"skipped"`
}

// ModeFullHistory is the Mode of a backtest run.
const ModeFullHistory = "full-history"

// Backtest reports whether res is a full-history trade log rather than a
// screen.
func (res *ScanResult) Backtest() bool { return res.Mode == ModeFullHistory }

// Outcome is the per-symbol result reported through Progress.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeNoSignal  Outcome = "no_signal"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCancelled Outcome = "cancelled"
)

// Progress is emitted after each symbol of a scan completes.
type Progress struct {
	ScanID  string  `json:"scan_id"`
	Done    int     `json:"done"`
	Total   int     `json:"total"`
	Symbol  string  `json:"symbol"`
	Outcome Outcome `json:"outcome"`
}
