// Package classify scores query embeddings against a support set and applies
// the accept/reject decision rule.
package classify

// Unknown is the abstention label: produced when the best class score falls
// below the threshold, and used as the collapsed super-label on the ground
// truth side.
const Unknown = "Unknown"

// Status of a single classification.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
)

// Tier buckets the margin between the best and second-best class.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// LabelScore pairs a class label with its mean similarity, for diagnostics.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Query identifies one image to classify. Truth carries the folder-derived
// label when the caller knows it; it is diagnostic only and never influences
// the decision.
type Query struct {
	ID    string
	Path  string
	Truth string
}

// Result is one classification outcome. Scores always enumerates exactly the
// classes with at least one embedding in the run's support set.
type Result struct {
	QueryID   string             `json:"query_id"`
	Path      string             `json:"path,omitempty"`
	Truth     string             `json:"truth,omitempty"`
	Predicted string             `json:"predicted"`
	BestScore float64            `json:"best_score"`
	Margin    float64            `json:"margin"`
	Tier      Tier               `json:"confidence_tier"`
	Status    Status             `json:"status"`
	Scores    map[string]float64 `json:"class_scores"`
	Reason    string             `json:"rejection_reason,omitempty"`
	Top3      []LabelScore       `json:"top3,omitempty"`
	Err       string             `json:"error,omitempty"`
}

// Accepted reports whether the query was classified (not abstained, not errored).
func (r *Result) Accepted() bool { return r.Status == StatusAccepted }
