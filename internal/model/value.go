package model

import (
	"encoding/json"
	"math"
)

// Value is an optional float. Indicator positions without enough history,
// and record fields that do not apply to a mode, are invalid rather than zero.
type Value struct {
	Float float64
	Valid bool
}

// Some wraps a defined value. NaN and ±Inf are treated as undefined.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{Float: v, Valid: true}
}

// None is the undefined value.
func None() Value { return Value{} }

// Get returns the float and whether it is defined.
func (v Value) Get() (float64, bool) { return v.Float, v.Valid }

// MarshalJSON encodes undefined values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// UnmarshalJSON decodes null as undefined.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}
