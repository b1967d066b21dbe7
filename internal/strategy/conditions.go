package strategy

import "ma-screener/internal/model"

// Containment reports whether the fast EMA and fast SMA both sit strictly
// inside the band formed by the trend EMA and slow SMA while the close is
// above the fast EMA. When it holds, strength is the close's percentage
// distance above the fast EMA. Any undefined operand yields false.
func Containment(s model.Snapshot) (bool, model.Value) {
	emaFast, ok1 := s.EMAFast.Get()
	emaTrend, ok2 := s.EMATrend.Get()
	smaFast, ok3 := s.SMAFast.Get()
	smaSlow, ok4 := s.SMASlow.Get()
	if !(ok1 && ok2 && ok3 && ok4) {
		return false, model.None()
	}

	lower, upper := emaTrend, smaSlow
	if lower > upper {
		lower, upper = upper, lower
	}
	between := lower < emaFast && emaFast < upper &&
		lower < smaFast && smaFast < upper
	bullish := s.Close > emaFast
	if !between || !bullish {
		return false, model.None()
	}
	return true, Strength(s.Close, emaFast)
}

// Strength is the signed percentage distance of price from base.
func Strength(price, base float64) model.Value {
	if base == 0 {
		return model.None()
	}
	return model.Some((price - base) / base * 100)
}

// GoldenCross reports whether the mid SMA crossed above the slow SMA on cur:
// above now, at or below on the previous bar. It fires on the crossing bar
// only.
func GoldenCross(prev, cur model.Snapshot) bool {
	mid, ok1 := cur.SMAMid.Get()
	slow, ok2 := cur.SMASlow.Get()
	prevMid, ok3 := prev.SMAMid.Get()
	prevSlow, ok4 := prev.SMASlow.Get()
	if !(ok1 && ok2 && ok3 && ok4) {
		return false
	}
	return mid > slow && prevMid <= prevSlow
}

// TrendOK reports whether the averages are stacked bullishly:
// SMA fast > SMA mid and EMA fast > SMA fast.
func TrendOK(s model.Snapshot) bool {
	smaFast, ok1 := s.SMAFast.Get()
	smaMid, ok2 := s.SMAMid.Get()
	emaFast, ok3 := s.EMAFast.Get()
	if !(ok1 && ok2 && ok3) {
		return false
	}
	return smaFast > smaMid && emaFast > smaFast
}
