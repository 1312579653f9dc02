package fvg

import (
	"time"
)

// Insights summarizes a gap list. Total is always set; Breakdown is nil
// for an empty list, in which case the report marshals as
// {"total_fvgs":0}.
type Insights struct {
	Total int `json:"total_fvgs"`
	*Breakdown
}

// Breakdown holds every statistic that needs at least one gap. Pointer
// fields are nil when their sample is empty: no gaps of that type, or no
// filled gaps for the time-to-fill figures. Times to fill are in minutes.
type Breakdown struct {
	Bullish  int `json:"bullish_fvgs"`
	Bearish  int `json:"bearish_fvgs"`
	Filled   int `json:"filled_fvgs"`
	Unfilled int `json:"unfilled_fvgs"`

	FillRate        float64 `json:"fill_rate"`
	BullishFilled   int     `json:"bullish_filled"`
	BearishFilled   int     `json:"bearish_filled"`
	BullishFillRate float64 `json:"bullish_fill_rate"`
	BearishFillRate float64 `json:"bearish_fill_rate"`

	AvgGapSize    float64  `json:"avg_gap_size"`
	MinGapSize    float64  `json:"min_gap_size"`
	MaxGapSize    float64  `json:"max_gap_size"`
	AvgBullishGap *float64 `json:"avg_bullish_gap"`
	AvgBearishGap *float64 `json:"avg_bearish_gap"`

	AvgTimeToFill *float64 `json:"avg_time_to_fill_min"`
	MinTimeToFill *float64 `json:"min_time_to_fill_min"`
	MaxTimeToFill *float64 `json:"max_time_to_fill_min"`

	Largest LargestGap `json:"largest_fvg"`

	FirstGap time.Time `json:"first_fvg_timestamp"`
	LastGap  time.Time `json:"last_fvg_timestamp"`
}

// LargestGap identifies the widest gap in a list.
type LargestGap struct {
	Timestamp time.Time `json:"Timestamp"`
	Type      Type      `json:"Type"`
	GapSize   float64   `json:"Gap_Size"`
	GapLow    float64   `json:"Gap_Low"`
	GapHigh   float64   `json:"Gap_High"`
}

// Analyze aggregates gaps, which must be in creation order as returned by
// Scan. Ties for the largest gap go to the earliest one.
func Analyze(gaps []Gap) Insights {
	ins := Insights{Total: len(gaps)}
	if len(gaps) == 0 {
		return ins
	}

	var (
		b                    Breakdown
		sizes                stat
		bullSizes, bearSizes stat
		fillMins             stat
	)
	largest := 0

	for i, g := range gaps {
		size := g.Size()
		sizes.add(size)
		if size > gaps[largest].Size() {
			largest = i
		}

		switch g.Type {
		case Bullish:
			b.Bullish++
			bullSizes.add(size)
			if g.Filled {
				b.BullishFilled++
			}
		case Bearish:
			b.Bearish++
			bearSizes.add(size)
			if g.Filled {
				b.BearishFilled++
			}
		}

		if g.Filled {
			b.Filled++
		}
		if d, ok := g.TimeToFill(); ok {
			fillMins.add(d.Minutes())
		}
	}

	b.Unfilled = ins.Total - b.Filled
	b.FillRate = ratio(b.Filled, ins.Total)
	b.BullishFillRate = ratio(b.BullishFilled, b.Bullish)
	b.BearishFillRate = ratio(b.BearishFilled, b.Bearish)

	b.AvgGapSize = sizes.mean()
	b.MinGapSize = sizes.lo
	b.MaxGapSize = sizes.hi
	b.AvgBullishGap = bullSizes.meanPtr()
	b.AvgBearishGap = bearSizes.meanPtr()

	b.AvgTimeToFill = fillMins.meanPtr()
	if fillMins.n > 0 {
		b.MinTimeToFill = ptr(fillMins.lo)
		b.MaxTimeToFill = ptr(fillMins.hi)
	}

	lg := gaps[largest]
	b.Largest = LargestGap{
		Timestamp: lg.Timestamp,
		Type:      lg.Type,
		GapSize:   lg.Size(),
		GapLow:    lg.GapLow,
		GapHigh:   lg.GapHigh,
	}
	b.FirstGap = gaps[0].Timestamp
	b.LastGap = gaps[len(gaps)-1].Timestamp

	ins.Breakdown = &b
	return ins
}

// stat accumulates count, sum and extremes of a sample.
type stat struct {
	n      int
	sum    float64
	lo, hi float64
}

func (s *stat) add(v float64) {
	if s.n == 0 || v < s.lo {
		s.lo = v
	}
	if s.n == 0 || v > s.hi {
		s.hi = v
	}
	s.n++
	s.sum += v
}

func (s *stat) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

func (s *stat) meanPtr() *float64 {
	if s.n == 0 {
		return nil
	}
	return ptr(s.mean())
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func ptr[T any](v T) *T { return &v }
