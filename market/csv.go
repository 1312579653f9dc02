package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LoadStats counts the rows ReadCSV skipped.
type LoadStats struct {
	Rows       int
	Dropped    int // missing or NaN OHLC
	Duplicates int // same timestamp as an earlier row, first one wins
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadCSV reads bars from a CSV file. See ReadCSV.
func LoadCSV(path string) ([]Bar, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, err
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV parses an OHLCV CSV with a header row. Column names are matched
// case-insensitively; the time column may be called time, timestamp,
// datetime or date and volume is optional. Rows with missing OHLC values
// are dropped. The result is sorted by time with duplicate timestamps
// removed.
func ReadCSV(r io.Reader) ([]Bar, LoadStats, error) {
	var stats LoadStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("csv: empty input")
		}
		return nil, stats, fmt.Errorf("csv header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, stats, err
	}

	var bars []Bar
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, stats, fmt.Errorf("csv line %d: %w", line, err)
		}
		stats.Rows++

		ts, err := parseTime(field(rec, cols.time))
		if err != nil {
			return nil, stats, fmt.Errorf("csv line %d: %w", line, err)
		}

		var ohlc [4]float64
		ok := true
		for k, idx := range [4]int{cols.open, cols.high, cols.low, cols.close} {
			v, perr := parseFloat(field(rec, idx))
			if perr != nil {
				ok = false
				break
			}
			ohlc[k] = v
		}
		if !ok {
			stats.Dropped++
			continue
		}

		var vol float64
		if cols.volume >= 0 {
			if v, perr := parseFloat(field(rec, cols.volume)); perr == nil {
				vol = v
			}
		}

		bars = append(bars, Bar{
			Time:   ts,
			Open:   ohlc[0],
			High:   ohlc[1],
			Low:    ohlc[2],
			Close:  ohlc[3],
			Volume: vol,
		})
	}

	bars, stats.Duplicates = SortDedup(bars)
	return bars, stats, nil
}

// SortDedup sorts bars by time and removes later bars that repeat a
// timestamp. It returns the cleaned slice and the number removed.
func SortDedup(bars []Bar) ([]Bar, int) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})

	out := bars[:0]
	dups := 0
	for i, b := range bars {
		if i > 0 && b.Time.Equal(out[len(out)-1].Time) {
			dups++
			continue
		}
		out = append(out, b)
	}
	return out, dups
}

type columns struct {
	time, open, high, low, close, volume int
}

func mapColumns(header []string) (columns, error) {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "time", "timestamp", "datetime", "date":
			if c.time < 0 {
				c.time = i
			}
		case "open", "o":
			c.open = i
		case "high", "h":
			c.high = i
		case "low", "l":
			c.low = i
		case "close", "c":
			c.close = i
		case "volume", "v":
			c.volume = i
		}
	}

	var missing []string
	for name, idx := range map[string]int{"time": c.time, "open": c.open, "high": c.high, "low": c.low, "close": c.close} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return c, fmt.Errorf("csv header missing columns: %s", strings.Join(missing, ", "))
	}
	return c, nil
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %q", s)
	}
	return v, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
