package fvg

import (
	"time"
)

// Bucket is one histogram bin, [Start, End) except for the last bin which
// also includes End.
type Bucket struct {
	Start float64
	End   float64
	Count int
}

// FillDurations returns minutes-to-fill for each filled gap, in gap order.
func FillDurations(gaps []Gap) []float64 {
	var out []float64
	for _, g := range gaps {
		if d, ok := g.TimeToFill(); ok {
			out = append(out, d.Minutes())
		}
	}
	return out
}

// DurationHistogram bins the fill durations of gaps into equal-width
// buckets spanning the observed minimum to maximum. When every duration is
// equal the span is widened by half a minute each side. It returns nil when
// no gap is filled or bins < 1.
func DurationHistogram(gaps []Gap, bins int) []Bucket {
	mins := FillDurations(gaps)
	if len(mins) == 0 || bins < 1 {
		return nil
	}

	lo, hi := mins[0], mins[0]
	for _, m := range mins[1:] {
		lo = min(lo, m)
		hi = max(hi, m)
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bucket, bins)
	for i := range out {
		out[i].Start = lo + float64(i)*width
		out[i].End = lo + float64(i+1)*width
	}
	out[bins-1].End = hi

	for _, m := range mins {
		k := int((m - lo) / width)
		if k >= bins {
			k = bins - 1
		}
		out[k].Count++
	}
	return out
}

// PeriodCount is the number of gaps created in the week ending on
// PeriodEnd (a Sunday, UTC).
type PeriodCount struct {
	PeriodEnd time.Time
	Count     int
}

// WeeklyFrequency counts gaps per Monday–Sunday week, labelled by the
// Sunday. Weeks between the first and last gap with no gaps are included
// with a zero count.
func WeeklyFrequency(gaps []Gap) []PeriodCount {
	if len(gaps) == 0 {
		return nil
	}

	counts := make(map[time.Time]int)
	first, last := weekEnding(gaps[0].Timestamp), weekEnding(gaps[0].Timestamp)
	for _, g := range gaps {
		w := weekEnding(g.Timestamp)
		counts[w]++
		if w.Before(first) {
			first = w
		}
		if w.After(last) {
			last = w
		}
	}

	var out []PeriodCount
	for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
		out = append(out, PeriodCount{PeriodEnd: w, Count: counts[w]})
	}
	return out
}

func weekEnding(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, (7-int(day.Weekday()))%7)
}
