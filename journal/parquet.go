package journal

import (
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/rustyeddy/fvg/fvg"
)

// GapRow is the Parquet layout of a gap. Times are unix milliseconds;
// FillTime is null for unfilled gaps.
type GapRow struct {
	Timestamp int64   `parquet:"Timestamp"`
	Type      string  `parquet:"Type"`
	GapLow    float64 `parquet:"Gap_Low"`
	GapHigh   float64 `parquet:"Gap_High"`
	Filled    bool    `parquet:"Filled"`
	FillTime  int64   `parquet:"Fill_Time,optional"`
}

func toRow(g fvg.Gap) GapRow {
	row := GapRow{
		Timestamp: g.Timestamp.UnixMilli(),
		Type:      g.Type.String(),
		GapLow:    g.GapLow,
		GapHigh:   g.GapHigh,
		Filled:    g.Filled,
	}
	if g.FillTime != nil {
		row.FillTime = g.FillTime.UnixMilli()
	}
	return row
}

// Gap converts a row back to a gap.
func (row GapRow) Gap() (fvg.Gap, error) {
	typ, err := fvg.ParseType(row.Type)
	if err != nil {
		return fvg.Gap{}, err
	}
	g := fvg.Gap{
		Timestamp: time.UnixMilli(row.Timestamp).UTC(),
		Type:      typ,
		GapLow:    row.GapLow,
		GapHigh:   row.GapHigh,
		Filled:    row.Filled,
	}
	if row.Filled && row.FillTime != 0 {
		ft := time.UnixMilli(row.FillTime).UTC()
		g.FillTime = &ft
	}
	return g, nil
}

// ParquetJournal writes each run's gap list as a Parquet file.
type ParquetJournal struct {
	dir string
}

func NewParquet(dir string) (*ParquetJournal, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &ParquetJournal{dir: dir}, nil
}

// GapsPath is where RecordGaps writes the gap list of r.
func (j *ParquetJournal) GapsPath(r Run) string {
	return filepath.Join(j.dir, r.prefix()+"_fvgs.parquet")
}

func (j *ParquetJournal) RecordGaps(r Run, gaps []fvg.Gap) error {
	rows := make([]GapRow, len(gaps))
	for i, g := range gaps {
		rows[i] = toRow(g)
	}
	return parquet.WriteFile(j.GapsPath(r), rows)
}

// RecordInsights is a no-op; see JSONJournal.
func (j *ParquetJournal) RecordInsights(Run, fvg.Insights) error { return nil }

func (j *ParquetJournal) Close() error { return nil }

// ReadParquetGaps loads a gap file written by ParquetJournal.
func ReadParquetGaps(path string) ([]fvg.Gap, error) {
	rows, err := parquet.ReadFile[GapRow](path)
	if err != nil {
		return nil, err
	}
	gaps := make([]fvg.Gap, len(rows))
	for i, row := range rows {
		if gaps[i], err = row.Gap(); err != nil {
			return nil, err
		}
	}
	return gaps, nil
}
