package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Timeframe names a bar size such as "1h" or "15min".
type Timeframe string

var ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

var timeframes = map[Timeframe]time.Duration{
	"1D":    24 * time.Hour,
	"12h":   12 * time.Hour,
	"6h":    6 * time.Hour,
	"4h":    4 * time.Hour,
	"2h":    2 * time.Hour,
	"1h":    time.Hour,
	"30min": 30 * time.Minute,
	"15min": 15 * time.Minute,
	"5min":  5 * time.Minute,
}

// Timeframes returns the supported timeframes, longest first.
func Timeframes() []Timeframe {
	out := make([]Timeframe, 0, len(timeframes))
	for tf := range timeframes {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool {
		return timeframes[out[i]] > timeframes[out[j]]
	})
	return out
}

// Duration returns the bar size of tf.
func (tf Timeframe) Duration() (time.Duration, error) {
	d, ok := timeframes[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, tf)
	}
	return d, nil
}

// Supported reports whether tf can be passed to Resample.
func (tf Timeframe) Supported() bool {
	_, ok := timeframes[tf]
	return ok
}

// Resample aggregates time-ordered bars into tf buckets aligned to UTC
// midnight: first open, max high, min low, last close, summed volume.
// Buckets without any source bar are omitted.
func Resample(bars []Bar, tf Timeframe) ([]Bar, error) {
	d, err := tf.Duration()
	if err != nil {
		return nil, err
	}

	var out []Bar
	for _, b := range bars {
		start := b.Time.UTC().Truncate(d)
		n := len(out)
		if n > 0 && out[n-1].Time.Equal(start) {
			cur := &out[n-1]
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		out = append(out, Bar{
			Time:   start,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return out, nil
}
