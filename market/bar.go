package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV candle. Time is the bar's open time.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ErrInvalidBar is wrapped by every error Validate returns.
var ErrInvalidBar = errors.New("invalid bar")

// BarError reports which bar failed validation and why.
type BarError struct {
	Index  int
	Time   time.Time
	Reason string
}

func (e *BarError) Error() string {
	return fmt.Sprintf("bar %d (%s): %s", e.Index, e.Time.UTC().Format(time.RFC3339), e.Reason)
}

func (e *BarError) Unwrap() error { return ErrInvalidBar }

// Validate checks that bars are clean enough to scan: finite prices,
// non-negative volume, High >= Low and strictly increasing timestamps.
func Validate(bars []Bar) error {
	for i, b := range bars {
		if reason := b.check(); reason != "" {
			return &BarError{Index: i, Time: b.Time, Reason: reason}
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return &BarError{Index: i, Time: b.Time, Reason: "timestamp not after previous bar"}
		}
	}
	return nil
}

func (b Bar) check() string {
	for _, v := range [...]struct {
		name string
		val  float64
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return v.name + " is not finite"
		}
	}
	if b.Volume < 0 {
		return "negative volume"
	}
	if b.High < b.Low {
		return "high below low"
	}
	return ""
}

