package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a sensor value that may be missing. Upstream payloads carry
// nulls, numeric strings and the occasional garbage string; anything that
// does not parse to a finite float decodes as missing instead of failing the
// whole reading.
type Number struct {
	val float64
	set bool
}

func Num(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{val: v, set: true}
}

func (n Number) Float64() (float64, bool) { return n.val, n.set }

// Or returns the value, or def when missing.
func (n Number) Or(def float64) float64 {
	if !n.set {
		return def
	}
	return n.val
}

func (n Number) Valid() bool  { return n.set }
func (n Number) IsZero() bool { return !n.set }

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	return json.Marshal(n.val)
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = Num(v)
		}
		return nil
	case 't', 'f', '{', '[':
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	*n = Num(v)
	return nil
}

// Flag is a boolean safety indicator. Besides JSON booleans it accepts 0/1
// numbers and "true"/"false" strings, which CSV-backed feeds tend to emit.
type Flag struct {
	val bool
	set bool
}

func FlagOf(v bool) Flag { return Flag{val: v, set: true} }

func (f Flag) True() bool   { return f.set && f.val }
func (f Flag) IsZero() bool { return !f.set }

func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.val)
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	*f = Flag{}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case bool:
		*f = FlagOf(v)
	case float64:
		*f = FlagOf(v != 0)
	case string:
		if p, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*f = FlagOf(p)
		}
	}
	return nil
}
