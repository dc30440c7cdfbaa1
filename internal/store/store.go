// Package store persists experiment runs and their metrics in SQLite.
package store

// DefaultDBPath is the store location relative to the working directory.
const DefaultDBPath = ".aperture/aperture.db"

// Run is one persisted grid cell. Runs are write-once: a second save for
// the same (category, model, cell_key) fails.
type Run struct {
	ID              int64   `json:"id"`
	Category        string  `json:"category"`
	Model           string  `json:"model"`
	CellKey         string  `json:"cell_key"`
	Shot            int     `json:"shot"`
	Threshold       float64 `json:"threshold"`
	Provider        string  `json:"provider"`
	Total           int     `json:"total"`
	Accepted        int     `json:"accepted"`
	Unknown         int     `json:"unknown"`
	Errors          int     `json:"errors"`
	DurationSeconds float64 `json:"duration_seconds"`
	PredictionsPath string  `json:"predictions_path"`
	CreatedAt       string  `json:"created_at"`
}

// RunMetrics is the scored summary attached to a run after ground-truth
// reconciliation. Payload carries the full metrics JSON.
type RunMetrics struct {
	RunID          int64   `json:"run_id"`
	Accuracy       float64 `json:"accuracy"`
	MacroPrecision float64 `json:"macro_precision"`
	MacroRecall    float64 `json:"macro_recall"`
	MacroF1        float64 `json:"macro_f1"`
	MacroMCC       float64 `json:"macro_mcc"`
	ClassifiedRate float64 `json:"classified_rate"`
	Payload        string  `json:"payload"`
	CreatedAt      string  `json:"created_at"`
}
