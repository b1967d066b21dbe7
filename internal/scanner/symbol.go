package scanner

import (
	"fmt"

	"ma-screener/internal/indicator"
	"ma-screener/internal/model"
	"ma-screener/internal/strategy"
)

// ScanSeries evaluates s over one symbol's bars according to mode.
//
// Latest and Window return at most one record: the final bar, or the most
// recent hit inside the trailing window. FullHistory returns one record per
// hit on bars 0..len-2, each carrying the next bar's close and the
// percentage return to it; the final bar has no successor and is never
// evaluated.
//
// A series shorter than mode.RequiredBars(s) yields ErrInsufficientHistory.
func ScanSeries(symbol string, bars []model.Bar, s strategy.Strategy, mode Mode) ([]model.SignalRecord, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if need := mode.RequiredBars(s); len(bars) < need {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d", ErrInsufficientHistory, symbol, len(bars), need)
	}

	f, err := indicator.Enrich(bars, s.Periods())
	if err != nil {
		return nil, err
	}
	last := f.Len() - 1

	switch mode.Kind {
	case ModeLatest:
		if ok, strength := s.Evaluate(f, last); ok {
			return []model.SignalRecord{newRecord(symbol, s, f, last, strength)}, nil
		}
		return nil, nil

	case ModeWindow:
		hit, hitStrength := -1, model.None()
		for i := last - mode.N; i <= last; i++ {
			if ok, strength := s.Evaluate(f, i); ok {
				hit, hitStrength = i, strength
			}
		}
		if hit < 0 {
			return nil, nil
		}
		return []model.SignalRecord{newRecord(symbol, s, f, hit, hitStrength)}, nil

	default:
		var out []model.SignalRecord
		for i := 0; i < last; i++ {
			ok, strength := s.Evaluate(f, i)
			if !ok {
				continue
			}
			rec := newRecord(symbol, s, f, i, strength)
			rec.NextClose, rec.Return = nextBarReturn(f.Bar(i).Close, f.Bar(i+1).Close)
			out = append(out, rec)
		}
		return out, nil
	}
}

func newRecord(symbol string, s strategy.Strategy, f *indicator.Frame, i int, strength model.Value) model.SignalRecord {
	return model.SignalRecord{
		Symbol:   symbol,
		Strategy: s.Name(),
		Snapshot: f.At(i),
		Strength: strength,
	}
}

// nextBarReturn is (next-price)/price*100; undefined for a zero price.
func nextBarReturn(price, next float64) (model.Value, model.Value) {
	if price == 0 {
		return model.Some(next), model.None()
	}
	return model.Some(next), model.Some((next - price) / price * 100)
}
