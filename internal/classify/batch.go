package classify

import (
	"context"

	"aperture/internal/embed"
	"aperture/internal/logging"
	"aperture/internal/support"
)

// Tally summarizes a batch: how many queries were accepted, abstained, or
// failed to embed.
type Tally struct {
	Accepted int `json:"accepted"`
	Unknown  int `json:"unknown"`
	Errors   int `json:"errors"`
}

// Add counts one result into the tally.
func (t *Tally) Add(r *Result) {
	switch r.Status {
	case StatusAccepted:
		t.Accepted++
	case StatusError:
		t.Errors++
	default:
		t.Unknown++
	}
}

// Batch classifies every query against the set. A query whose embedding
// fails becomes an error-kind result and the batch continues; the only error
// returned is context cancellation. The accepted/unknown/error tally is
// logged at the end.
func Batch(ctx context.Context, cache *embed.Cache, queries []Query, set *support.Set, threshold float64) ([]Result, Tally, error) {
	logger := logging.New("classify")

	results := make([]Result, 0, len(queries))
	var tally Tally

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return results, tally, err
		}

		vec, err := cache.Extract(ctx, q.Path)
		var result Result
		if err != nil {
			if ctx.Err() != nil {
				return results, tally, ctx.Err()
			}
			logger.Warn("query embedding failed", "query", q.ID, "error", err)
			result = Result{
				QueryID:   q.ID,
				Predicted: Unknown,
				Status:    StatusError,
				Tier:      TierLow,
				Scores:    map[string]float64{},
				Err:       err.Error(),
			}
		} else {
			result = Classify(q.ID, vec, set, threshold)
		}
		result.Path = q.Path
		result.Truth = q.Truth
		tally.Add(&result)
		results = append(results, result)
	}

	logger.Info("batch complete",
		"queries", len(queries),
		"accepted", tally.Accepted, "unknown", tally.Unknown, "errors", tally.Errors)
	return results, tally, nil
}
