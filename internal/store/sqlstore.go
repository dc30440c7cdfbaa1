package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// ErrDuplicateRun is returned when a cell key is saved twice for the same
// category and model.
var ErrDuplicateRun = errors.New("run already persisted for this cell")

// SqlStore persists runs with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .aperture) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SqlStore) Close() error { return s.db.Close() }

func (s *SqlStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// SaveRun inserts a write-once run row. A duplicate (category, model,
// cell_key) yields ErrDuplicateRun.
func (s *SqlStore) SaveRun(r *Run) (int64, error) {
	if r == nil {
		return 0, errors.New("run is nil")
	}
	res, err := s.db.Exec(
		`INSERT INTO experiment_runs(category, model, cell_key, shot, threshold, provider,
		        total, accepted, unknown, errors, duration_seconds, predictions_path, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Category, r.Model, r.CellKey, r.Shot, r.Threshold, r.Provider,
		r.Total, r.Accepted, r.Unknown, r.Errors, r.DurationSeconds,
		r.PredictionsPath, nowUTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("%w: %s/%s/%s", ErrDuplicateRun, r.Category, r.Model, r.CellKey)
		}
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// GetRun fetches one run by cell key, nil when absent.
func (s *SqlStore) GetRun(category, model, cellKey string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, category, model, cell_key, shot, threshold, provider,
		        total, accepted, unknown, errors, duration_seconds, predictions_path, created_at
		 FROM experiment_runs WHERE category = ? AND model = ? AND cell_key = ?`,
		category, model, cellKey,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run for a category and model, shot-then-threshold
// ordered.
func (s *SqlStore) ListRuns(category, model string) ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, category, model, cell_key, shot, threshold, provider,
		        total, accepted, unknown, errors, duration_seconds, predictions_path, created_at
		 FROM experiment_runs WHERE category = ? AND model = ?
		 ORDER BY shot, threshold`,
		category, model,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveMetrics attaches the scored summary to a run, write-once per run.
func (s *SqlStore) SaveMetrics(m *RunMetrics) error {
	if m == nil {
		return errors.New("metrics is nil")
	}
	_, err := s.db.Exec(
		`INSERT INTO run_metrics(run_id, accuracy, macro_precision, macro_recall,
		        macro_f1, macro_mcc, classified_rate, payload, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Accuracy, m.MacroPrecision, m.MacroRecall,
		m.MacroF1, m.MacroMCC, m.ClassifiedRate, m.Payload, nowUTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "PRIMARY KEY constraint failed") {
			return fmt.Errorf("%w: metrics for run %d", ErrDuplicateRun, m.RunID)
		}
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

// GetMetrics fetches a run's metrics, nil when absent.
func (s *SqlStore) GetMetrics(runID int64) (*RunMetrics, error) {
	var m RunMetrics
	var payload sql.NullString
	err := s.db.QueryRow(
		`SELECT run_id, accuracy, macro_precision, macro_recall, macro_f1,
		        macro_mcc, classified_rate, payload, created_at
		 FROM run_metrics WHERE run_id = ?`, runID,
	).Scan(&m.RunID, &m.Accuracy, &m.MacroPrecision, &m.MacroRecall,
		&m.MacroF1, &m.MacroMCC, &m.ClassifiedRate, &payload, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	m.Payload = nullStr(payload)
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var provider, predictions sql.NullString
	err := row.Scan(&r.ID, &r.Category, &r.Model, &r.CellKey, &r.Shot, &r.Threshold,
		&provider, &r.Total, &r.Accepted, &r.Unknown, &r.Errors,
		&r.DurationSeconds, &predictions, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Provider = nullStr(provider)
	r.PredictionsPath = nullStr(predictions)
	return &r, nil
}
