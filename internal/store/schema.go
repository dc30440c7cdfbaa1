package store

// schemaVersion is the target schema version for this build.
const schemaVersion = 1

var schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS experiment_runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	category         TEXT NOT NULL,
	model            TEXT NOT NULL,
	cell_key         TEXT NOT NULL,
	shot             INTEGER NOT NULL,
	threshold        REAL NOT NULL,
	provider         TEXT,
	total            INTEGER NOT NULL DEFAULT 0,
	accepted         INTEGER NOT NULL DEFAULT 0,
	unknown          INTEGER NOT NULL DEFAULT 0,
	errors           INTEGER NOT NULL DEFAULT 0,
	duration_seconds REAL NOT NULL DEFAULT 0,
	predictions_path TEXT,
	created_at       TEXT NOT NULL,
	UNIQUE(category, model, cell_key)
);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id          INTEGER PRIMARY KEY REFERENCES experiment_runs(id),
	accuracy        REAL NOT NULL DEFAULT 0,
	macro_precision REAL NOT NULL DEFAULT 0,
	macro_recall    REAL NOT NULL DEFAULT 0,
	macro_f1        REAL NOT NULL DEFAULT 0,
	macro_mcc       REAL NOT NULL DEFAULT 0,
	classified_rate REAL NOT NULL DEFAULT 0,
	payload         TEXT,
	created_at      TEXT NOT NULL
);
`
