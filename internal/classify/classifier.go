package classify

import (
	"fmt"
	"math"
	"sort"

	"aperture/internal/support"
)

// Margin cutoffs for the confidence tiers. Fixed by policy: a margin above
// 0.2 is high confidence, above 0.1 medium, otherwise low.
const (
	MarginHigh   = 0.2
	MarginMedium = 0.1
)

// ReasonNoSimilarities is the rejection reason for an empty support set.
const ReasonNoSimilarities = "no similarities computed"

// Classify scores query against every class of the support set and applies
// the threshold decision rule:
//
//  1. class score = mean cosine similarity against the class's embeddings
//  2. classes sorted by score descending, ties broken by class name
//  3. margin = best - second (0 with fewer than two classes)
//  4. best < threshold => Unknown/rejected with a numeric reason
//
// It never returns an error: degenerate vectors score 0 and an empty set
// yields a rejected Unknown result.
func Classify(queryID string, query []float32, set *support.Set, threshold float64) Result {
	result := Result{
		QueryID: queryID,
		Scores:  make(map[string]float64),
	}

	var ranked []LabelScore
	if set != nil {
		for _, label := range set.Labels() {
			feats := set.Features[label]
			if len(feats) == 0 {
				continue
			}
			sum := 0.0
			for _, feat := range feats {
				sum += cosine(query, feat)
			}
			score := sum / float64(len(feats))
			result.Scores[label] = score
			ranked = append(ranked, LabelScore{Label: label, Score: score})
		}
	}

	if len(ranked) == 0 {
		result.Predicted = Unknown
		result.Status = StatusRejected
		result.Tier = TierLow
		result.Reason = ReasonNoSimilarities
		return result
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Label < ranked[j].Label
	})

	best := ranked[0]
	result.BestScore = best.Score
	if len(ranked) > 1 {
		result.Margin = best.Score - ranked[1].Score
	}
	result.Tier = tierFor(result.Margin)

	top := len(ranked)
	if top > 3 {
		top = 3
	}
	result.Top3 = append(result.Top3, ranked[:top]...)

	if best.Score < threshold {
		result.Predicted = Unknown
		result.Status = StatusRejected
		result.Reason = fmt.Sprintf("best score %.4f < threshold %.2f", best.Score, threshold)
		return result
	}

	result.Predicted = best.Label
	result.Status = StatusAccepted
	return result
}

// tierFor maps a margin to its confidence tier.
func tierFor(margin float64) Tier {
	switch {
	case margin > MarginHigh:
		return TierHigh
	case margin > MarginMedium:
		return TierMedium
	default:
		return TierLow
	}
}

// cosine returns the cosine similarity of two vectors. Mismatched lengths,
// zero norms, and NaN/Inf components all score 0 rather than erroring: one
// degenerate support vector must not sink a whole class.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}
