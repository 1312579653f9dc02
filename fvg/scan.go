package fvg

import (
	"fmt"

	"github.com/rustyeddy/fvg/market"
)

// Scan returns every gap in bars in creation order. At each index i >= 2
// the bar two back (left) is compared with bar i (right):
//
//	bullish: left.High < right.Low  -> [left.High, right.Low]
//	bearish: left.Low > right.High  -> [right.High, left.Low]
//
// Both checks run at every index and, should both hold, the bullish gap is
// emitted first. The fill of each gap is resolved before it is appended.
//
// Bars are validated first; a series that fails market.Validate is
// rejected rather than scanned. Fewer than three bars yields no gaps.
func Scan(bars []market.Bar) ([]Gap, error) {
	if err := market.Validate(bars); err != nil {
		return nil, fmt.Errorf("fvg scan: %w", err)
	}
	if len(bars) < 3 {
		return nil, nil
	}

	idx := newFillIndex(bars)

	var gaps []Gap
	for i := 2; i < len(bars); i++ {
		left, right := bars[i-2], bars[i]

		if left.High < right.Low {
			gaps = append(gaps, newGap(idx, bars[i], Bullish, left.High, right.Low, i))
		}
		if left.Low > right.High {
			gaps = append(gaps, newGap(idx, bars[i], Bearish, right.High, left.Low, i))
		}
	}
	return gaps, nil
}

func newGap(idx *fillIndex, created market.Bar, typ Type, low, high float64, i int) Gap {
	f := idx.find(typ, low, high, i)
	return Gap{
		Timestamp: created.Time,
		Type:      typ,
		GapLow:    low,
		GapHigh:   high,
		Filled:    f.Filled,
		FillTime:  f.Time,
	}
}
