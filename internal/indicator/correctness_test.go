package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6g, diff=%.6g)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after price 3: (100+102+104)/3 = 102.0
	// SMA after price 4: (102+104+103)/3 = 103.0
	// SMA after price 5: (104+103+105)/3 = 104.0

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-9)
		}
	}
}

func TestSMA_Correctness_Period5(t *testing.T) {
	// Prices: 10 .. 16
	// SMA(5) after 5: 12.0, after 6: 13.0, after 7: 14.0

	sma := NewSMA(5)
	prices := []float64{10, 11, 12, 13, 14, 15, 16}
	expected := []float64{0, 0, 0, 0, 12.0, 13.0, 14.0}

	for i, p := range prices {
		sma.Update(p)
		if i >= 4 {
			assertClose(t, "SMA(5)", sma.Value(), expected[i], 1e-9)
		}
	}
}

func TestSMA_Name(t *testing.T) {
	if got := NewSMA(50).Name(); got != "SMA_50" {
		t.Errorf("expected SMA_50, got %s", got)
	}
}

func TestSMA_Reset(t *testing.T) {
	sma := NewSMA(2)
	sma.Update(10)
	sma.Update(20)
	sma.Reset()
	if sma.Ready() {
		t.Fatal("expected not ready after Reset")
	}
	sma.Update(4)
	sma.Update(6)
	assertClose(t, "SMA(2) after reset", sma.Value(), 5.0, 1e-9)
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5, seeded with the first price.
	// Prices: 100, 102, 104, 103, 105
	//
	// Price 1: EMA = 100
	// Price 2: EMA = 102*0.5 + 100*0.5    = 101
	// Price 3: EMA = 104*0.5 + 101*0.5    = 102.5
	// Price 4: EMA = 103*0.5 + 102.5*0.5  = 102.75
	// Price 5: EMA = 105*0.5 + 102.75*0.5 = 103.875

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{100, 101, 102.5, 102.75, 103.875}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		assertClose(t, "EMA(3)", ema.Value(), expected[i], 1e-9)
	}
}

func TestEMA_Correctness_Period8(t *testing.T) {
	// EMA(8): multiplier = 2/9
	prices := []float64{44, 44.25, 44.5, 43.75, 44.5, 44.25, 44}
	k := 2.0 / 9.0

	want := prices[0]
	ema := NewEMA(8)
	for i, p := range prices {
		ema.Update(p)
		if i > 0 {
			want = p*k + want*(1-k)
		}
		assertClose(t, "EMA(8)", ema.Value(), want, 1e-9)
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 250.35
	}
	raw := RawEMA(closes, 8)
	for i := 1; i < len(raw); i++ {
		if raw[i] != raw[i-1] || raw[i] != 250.35 {
			t.Fatalf("bar %d: EMA=%v prev=%v, want exactly 250.35", i, raw[i], raw[i-1])
		}
	}
}

func TestEMA_NeverReseeded(t *testing.T) {
	// A jump after warm-up must blend into the running value, not restart it.
	ema := NewEMA(3)
	for _, p := range []float64{10, 10, 10, 10} {
		ema.Update(p)
	}
	ema.Update(30)
	assertClose(t, "EMA after jump", ema.Value(), 20.0, 1e-9)
}

func TestRawEMA_DefinedFromFirstBar(t *testing.T) {
	raw := RawEMA([]float64{5, 7}, 44)
	assertClose(t, "EMA(0)", raw[0], 5, 1e-12)
	assertClose(t, "EMA(1)", raw[1], 5+(7-5)*2.0/45.0, 1e-12)
}
