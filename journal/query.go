package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rustyeddy/fvg/fvg"
)

// ErrRunNotFound is returned by lookups for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is a run joined with the headline numbers of its report.
// Total and FillRate are unset when no report was recorded.
type RunSummary struct {
	Run
	Total    sql.NullInt64
	FillRate sql.NullFloat64
}

const runSelect = `
	SELECT r.run_id, r.ticker, r.timeframe, r.bars, r.created_at, i.total, i.fill_rate
	FROM runs r
	LEFT JOIN insights i ON i.run_id = r.run_id`

// ListRuns returns recorded runs, newest first. An empty ticker lists all.
func (j *SQLite) ListRuns(ticker string) ([]RunSummary, error) {
	q := runSelect
	var args []any
	if ticker != "" {
		q += ` WHERE r.ticker = ?`
		args = append(args, ticker)
	}
	q += ` ORDER BY r.created_at DESC, r.run_id DESC`

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		rs, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRun returns a single run by ID.
func (j *SQLite) GetRun(runID string) (RunSummary, error) {
	rs, err := scanRun(j.db.QueryRow(runSelect+` WHERE r.run_id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
		}
		return RunSummary{}, err
	}
	return rs, nil
}

// GapsByRun returns the gaps of a run in detection order.
func (j *SQLite) GapsByRun(runID string) ([]fvg.Gap, error) {
	rows, err := j.db.Query(`
		SELECT timestamp, type, gap_low, gap_high, filled, fill_time
		FROM gaps
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fvg.Gap
	for rows.Next() {
		var (
			g    fvg.Gap
			typ  string
			fill sql.NullTime
		)
		if err := rows.Scan(&g.Timestamp, &typ, &g.GapLow, &g.GapHigh, &g.Filled, &fill); err != nil {
			return nil, err
		}
		if g.Type, err = fvg.ParseType(typ); err != nil {
			return nil, err
		}
		g.Timestamp = g.Timestamp.UTC()
		if fill.Valid {
			ft := fill.Time.UTC()
			g.FillTime = &ft
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsightsByRun decodes the stored report of a run.
func (j *SQLite) InsightsByRun(runID string) (fvg.Insights, error) {
	var report string
	err := j.db.QueryRow(`SELECT report FROM insights WHERE run_id = ?`, runID).Scan(&report)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fvg.Insights{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
		}
		return fvg.Insights{}, err
	}

	var ins fvg.Insights
	if err := json.Unmarshal([]byte(report), &ins); err != nil {
		return fvg.Insights{}, fmt.Errorf("decode insights for %q: %w", runID, err)
	}
	return ins, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunSummary, error) {
	var rs RunSummary
	err := s.Scan(
		&rs.ID,
		&rs.Ticker,
		&rs.Timeframe,
		&rs.Bars,
		&rs.CreatedAt,
		&rs.Total,
		&rs.FillRate,
	)
	rs.CreatedAt = rs.CreatedAt.UTC()
	return rs, err
}
