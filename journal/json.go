package journal

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rustyeddy/fvg/fvg"
)

// JSONJournal writes each run's insight report as an indented JSON file.
type JSONJournal struct {
	dir string
}

func NewJSON(dir string) (*JSONJournal, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &JSONJournal{dir: dir}, nil
}

// InsightsPath is where RecordInsights writes the report of r.
func (j *JSONJournal) InsightsPath(r Run) string {
	return filepath.Join(j.dir, r.prefix()+"_insights.json")
}

// RecordGaps is a no-op; gap lists go to the CSV, Parquet and SQLite journals.
func (j *JSONJournal) RecordGaps(Run, []fvg.Gap) error { return nil }

func (j *JSONJournal) RecordInsights(r Run, ins fvg.Insights) error {
	fh, err := os.Create(j.InsightsPath(r))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(fh)
	enc.SetIndent("", "    ")
	if err := enc.Encode(ins); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func (j *JSONJournal) Close() error { return nil }
