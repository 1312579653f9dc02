package journal

import (
	"database/sql"
	"encoding/json"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/fvg/fvg"
)

// SQLite keeps every run, its gaps and its insight report in one database
// so past scans can be listed and compared.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordGaps(r Run, gaps []fvg.Gap) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertRun(tx, r); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO gaps
		(run_id, seq, timestamp, type, gap_low, gap_high, filled, fill_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, g := range gaps {
		var fill sql.NullTime
		if g.FillTime != nil {
			fill = sql.NullTime{Time: g.FillTime.UTC(), Valid: true}
		}
		if _, err := stmt.Exec(
			r.ID, i, g.Timestamp.UTC(), g.Type.String(),
			g.GapLow, g.GapHigh, g.Filled, fill,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (j *SQLite) RecordInsights(r Run, ins fvg.Insights) error {
	report, err := json.Marshal(ins)
	if err != nil {
		return err
	}
	var rate sql.NullFloat64
	if ins.Breakdown != nil {
		rate = sql.NullFloat64{Float64: ins.FillRate, Valid: true}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertRun(tx, r); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO insights (run_id, total, fill_rate, report)
		VALUES (?, ?, ?, ?)`,
		r.ID, ins.Total, rate, string(report),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRun(tx *sql.Tx, r Run) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO runs (run_id, ticker, timeframe, bars, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Ticker, r.Timeframe, r.Bars, r.CreatedAt.UTC(),
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
