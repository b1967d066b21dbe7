package indicator

import (
	"fmt"

	"ma-screener/internal/model"
)

// Periods selects the indicator for each snapshot slot. Zero leaves the slot
// undefined.
type Periods struct {
	EMAFast  int `yaml:"ema_fast" json:"ema_fast" validate:"gte=0"`
	EMATrend int `yaml:"ema_trend" json:"ema_trend" validate:"gte=0"`
	SMAFast  int `yaml:"sma_fast" json:"sma_fast" validate:"gte=0"`
	SMAMid   int `yaml:"sma_mid" json:"sma_mid" validate:"gte=0"`
	SMASlow  int `yaml:"sma_slow" json:"sma_slow" validate:"gte=0"`
}

// Validate rejects negative periods and an empty selection.
func (p Periods) Validate() error {
	configured := false
	for _, s := range p.slots() {
		if s.spec.Period < 0 {
			return invalidSpec(s.spec, "period must not be negative")
		}
		if s.spec.Period > 0 {
			configured = true
		}
	}
	if !configured {
		return fmt.Errorf("%w: no periods configured", ErrInvalidSpec)
	}
	return nil
}

// Max returns the longest configured period, i.e. the bars needed before
// every slot is defined.
func (p Periods) Max() int {
	m := 0
	for _, s := range p.slots() {
		if s.spec.Period > m {
			m = s.spec.Period
		}
	}
	return m
}

// Specs returns the configured specs in slot order.
func (p Periods) Specs() []Spec {
	var specs []Spec
	for _, s := range p.slots() {
		if s.spec.Period > 0 {
			specs = append(specs, s.spec)
		}
	}
	return specs
}

type slot struct {
	name string
	spec Spec
}

func (p Periods) slots() []slot {
	return []slot{
		{"ema_fast", Spec{KindEMA, p.EMAFast}},
		{"ema_trend", Spec{KindEMA, p.EMATrend}},
		{"sma_fast", Spec{KindSMA, p.SMAFast}},
		{"sma_mid", Spec{KindSMA, p.SMAMid}},
		{"sma_slow", Spec{KindSMA, p.SMASlow}},
	}
}

// Column is a named output column for one configured slot.
type Column struct {
	Slot  string // "ema_fast", ...
	Label string // "EMA_8", ...
}

// Columns lists the configured slots for tabular output.
func (p Periods) Columns() []Column {
	var cols []Column
	for _, s := range p.slots() {
		if s.spec.Period > 0 {
			cols = append(cols, Column{Slot: s.name, Label: s.spec.String()})
		}
	}
	return cols
}

// Frame is a bar history with its indicator series attached. Series are
// computed once in Enrich; the bars slice is a private copy.
type Frame struct {
	bars     []model.Bar
	emaFast  Series
	emaTrend Series
	smaFast  Series
	smaMid   Series
	smaSlow  Series
}

// Enrich computes the configured indicators over bars.
func Enrich(bars []model.Bar, p Periods) (*Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	owned := make([]model.Bar, len(bars))
	copy(owned, bars)

	series, err := Compute(model.Closes(owned), p.Specs())
	if err != nil {
		return nil, err
	}
	pick := func(k Kind, period int) Series {
		if period <= 0 {
			return nil
		}
		return series[Spec{k, period}]
	}
	return &Frame{
		bars:     owned,
		emaFast:  pick(KindEMA, p.EMAFast),
		emaTrend: pick(KindEMA, p.EMATrend),
		smaFast:  pick(KindSMA, p.SMAFast),
		smaMid:   pick(KindSMA, p.SMAMid),
		smaSlow:  pick(KindSMA, p.SMASlow),
	}, nil
}

// Len returns the number of bars.
func (f *Frame) Len() int { return len(f.bars) }

// Bar returns bar i.
func (f *Frame) Bar(i int) model.Bar { return f.bars[i] }

// Bars returns a copy of the frame's bars.
func (f *Frame) Bars() []model.Bar {
	out := make([]model.Bar, len(f.bars))
	copy(out, f.bars)
	return out
}

// At returns the snapshot of bar i. Unconfigured or warming-up slots are
// undefined.
func (f *Frame) At(i int) model.Snapshot {
	b := f.bars[i]
	return model.Snapshot{
		Date:     b.Date,
		Close:    b.Close,
		EMAFast:  f.emaFast.At(i),
		EMATrend: f.emaTrend.At(i),
		SMAFast:  f.smaFast.At(i),
		SMAMid:   f.smaMid.At(i),
		SMASlow:  f.smaSlow.At(i),
	}
}
