package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rustyeddy/fvg/fvg"
)

// GapHeader is the column layout of a gap CSV.
var GapHeader = []string{"Timestamp", "Type", "Gap_Low", "Gap_High", "Filled", "Fill_Time"}

// CSVJournal writes one gap CSV per run plus the chart series derived from
// it: a fill-duration histogram and weekly gap counts.
type CSVJournal struct {
	dir  string
	bins int
}

// NewCSV creates dir if needed. bins is the histogram bucket count.
func NewCSV(dir string, bins int) (*CSVJournal, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &CSVJournal{dir: dir, bins: bins}, nil
}

// GapsPath is where RecordGaps writes the gap list of r.
func (j *CSVJournal) GapsPath(r Run) string {
	return filepath.Join(j.dir, r.prefix()+"_fvgs.csv")
}

func (j *CSVJournal) RecordGaps(r Run, gaps []fvg.Gap) error {
	rows := make([][]string, 0, len(gaps))
	for _, g := range gaps {
		fill := ""
		if g.FillTime != nil {
			fill = g.FillTime.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			g.Timestamp.UTC().Format(time.RFC3339),
			g.Type.String(),
			f(g.GapLow),
			f(g.GapHigh),
			strconv.FormatBool(g.Filled),
			fill,
		})
	}
	if err := writeCSV(j.GapsPath(r), GapHeader, rows); err != nil {
		return err
	}

	hist := fvg.DurationHistogram(gaps, j.bins)
	rows = rows[:0]
	for _, b := range hist {
		rows = append(rows, []string{f(b.Start), f(b.End), strconv.Itoa(b.Count)})
	}
	histPath := filepath.Join(j.dir, r.prefix()+"_fvg_duration_hist.csv")
	if err := writeCSV(histPath, []string{"bin_start", "bin_end", "count"}, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, p := range fvg.WeeklyFrequency(gaps) {
		rows = append(rows, []string{p.PeriodEnd.Format("2006-01-02"), strconv.Itoa(p.Count)})
	}
	freqPath := filepath.Join(j.dir, r.prefix()+"_fvg_frequency.csv")
	return writeCSV(freqPath, []string{"period_end", "count"}, rows)
}

// RecordInsights is a no-op; see JSONJournal.
func (j *CSVJournal) RecordInsights(Run, fvg.Insights) error { return nil }

func (j *CSVJournal) Close() error { return nil }

func writeCSV(path string, header []string, rows [][]string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(fh)
	if err := w.Write(header); err != nil {
		fh.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fh.Close()
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
