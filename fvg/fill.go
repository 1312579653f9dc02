package fvg

import (
	"time"

	"github.com/rustyeddy/fvg/market"
)

// Fill is the outcome of a forward fill search.
type Fill struct {
	Filled bool
	Index  int // index of the filling bar, -1 if unfilled
	Time   *time.Time
}

var unfilled = Fill{Index: -1}

// TrackFill walks bars after created in order and returns the first one
// that closes the gap: a bar whose Low reaches gapLow for a bullish gap, or
// whose High reaches gapHigh for a bearish gap.
func TrackFill(bars []market.Bar, typ Type, gapLow, gapHigh float64, created int) Fill {
	for j := created + 1; j < len(bars); j++ {
		if fills(bars[j], typ, gapLow, gapHigh) {
			return filledAt(bars, j)
		}
	}
	return unfilled
}

func fills(b market.Bar, typ Type, gapLow, gapHigh float64) bool {
	switch typ {
	case Bullish:
		return b.Low <= gapLow
	case Bearish:
		return b.High >= gapHigh
	}
	return false
}

func filledAt(bars []market.Bar, j int) Fill {
	ts := bars[j].Time
	return Fill{Filled: true, Index: j, Time: &ts}
}

// fillIndex answers the same question as TrackFill in O(log n) using a
// segment tree of per-node minimum lows and maximum highs. Descent always
// tries the left child first, so the index found is the earliest match.
type fillIndex struct {
	bars []market.Bar
	n    int
	min  []float64
	max  []float64
}

func newFillIndex(bars []market.Bar) *fillIndex {
	n := len(bars)
	fi := &fillIndex{
		bars: bars,
		n:    n,
		min:  make([]float64, 4*n),
		max:  make([]float64, 4*n),
	}
	if n > 0 {
		fi.build(1, 0, n-1)
	}
	return fi
}

func (fi *fillIndex) build(node, lo, hi int) {
	if lo == hi {
		fi.min[node] = fi.bars[lo].Low
		fi.max[node] = fi.bars[lo].High
		return
	}
	mid := (lo + hi) / 2
	fi.build(2*node, lo, mid)
	fi.build(2*node+1, mid+1, hi)
	fi.min[node] = min(fi.min[2*node], fi.min[2*node+1])
	fi.max[node] = max(fi.max[2*node], fi.max[2*node+1])
}

func (fi *fillIndex) find(typ Type, gapLow, gapHigh float64, created int) Fill {
	from := created + 1
	if from >= fi.n {
		return unfilled
	}

	var j int
	switch typ {
	case Bullish:
		j = fi.firstLowAtMost(1, 0, fi.n-1, from, gapLow)
	case Bearish:
		j = fi.firstHighAtLeast(1, 0, fi.n-1, from, gapHigh)
	default:
		return unfilled
	}
	if j < 0 {
		return unfilled
	}
	return filledAt(fi.bars, j)
}

// firstLowAtMost returns the smallest index >= from in [lo, hi] whose low
// is <= x, or -1.
func (fi *fillIndex) firstLowAtMost(node, lo, hi, from int, x float64) int {
	if hi < from || fi.min[node] > x {
		return -1
	}
	if lo == hi {
		return lo
	}
	mid := (lo + hi) / 2
	if j := fi.firstLowAtMost(2*node, lo, mid, from, x); j >= 0 {
		return j
	}
	return fi.firstLowAtMost(2*node+1, mid+1, hi, from, x)
}

// firstHighAtLeast returns the smallest index >= from in [lo, hi] whose
// high is >= x, or -1.
func (fi *fillIndex) firstHighAtLeast(node, lo, hi, from int, x float64) int {
	if hi < from || fi.max[node] < x {
		return -1
	}
	if lo == hi {
		return lo
	}
	mid := (lo + hi) / 2
	if j := fi.firstHighAtLeast(2*node, lo, mid, from, x); j >= 0 {
		return j
	}
	return fi.firstHighAtLeast(2*node+1, mid+1, hi, from, x)
}
