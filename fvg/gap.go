// Package fvg finds Fair Value Gaps in a bar series, resolves when each
// gap is filled and summarizes the resulting gap population.
//
// Functions here do no I/O and keep no state; independent series may be
// scanned concurrently.
package fvg

import (
	"fmt"
	"time"
)

// Type is the direction of a gap.
type Type uint8

const (
	Bullish Type = iota + 1
	Bearish
)

func (t Type) String() string {
	switch t {
	case Bullish:
		return "Bullish"
	case Bearish:
		return "Bearish"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

func (t Type) MarshalText() ([]byte, error) {
	switch t {
	case Bullish, Bearish:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("fvg: unknown gap type %d", uint8(t))
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "Bullish":
		return Bullish, nil
	case "Bearish":
		return Bearish, nil
	}
	return 0, fmt.Errorf("fvg: unknown gap type %q", s)
}

// Gap is one detected imbalance. Timestamp is the time of the third bar of
// the pattern. GapLow < GapHigh always holds. FillTime is nil while the gap
// is unfilled.
type Gap struct {
	Timestamp time.Time  `json:"Timestamp"`
	Type      Type       `json:"Type"`
	GapLow    float64    `json:"Gap_Low"`
	GapHigh   float64    `json:"Gap_High"`
	Filled    bool       `json:"Filled"`
	FillTime  *time.Time `json:"Fill_Time"`
}

// Size is GapHigh - GapLow.
func (g Gap) Size() float64 {
	return g.GapHigh - g.GapLow
}

// TimeToFill is the time from creation to fill; ok is false for an
// unfilled gap.
func (g Gap) TimeToFill() (d time.Duration, ok bool) {
	if !g.Filled || g.FillTime == nil {
		return 0, false
	}
	return g.FillTime.Sub(g.Timestamp), true
}
