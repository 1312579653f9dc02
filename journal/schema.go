// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	bars INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS gaps (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	seq INTEGER NOT NULL,
	timestamp DATETIME NOT NULL,
	type TEXT NOT NULL,
	gap_low REAL NOT NULL,
	gap_high REAL NOT NULL,
	filled INTEGER NOT NULL,
	fill_time DATETIME,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS insights (
	run_id TEXT PRIMARY KEY REFERENCES runs(run_id),
	total INTEGER NOT NULL,
	fill_rate REAL,
	report TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_ticker ON runs(ticker, timeframe);
`
