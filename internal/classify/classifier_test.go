package classify

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"aperture/internal/support"
)

// twoClassSet builds a support set with near-orthogonal prototypes:
// Class_0 holds e0a/e0b, Class_1 holds e1a, with cos(e0a, e0a) = 1.0 and
// cos(e0a, e1a) = 0.3.
func twoClassSet() *support.Set {
	e0a := []float32{1, 0}
	e0b := []float32{1, 0}
	// cos(e0a, e1a) = 0.3
	e1a := []float32{0.3, float32(math.Sqrt(1 - 0.09))}
	return &support.Set{
		Shot: 2,
		Examples: map[string][]support.Example{
			"Class_0": {{Label: "Class_0", Path: "e0a"}, {Label: "Class_0", Path: "e0b"}},
			"Class_1": {{Label: "Class_1", Path: "e1a"}},
		},
		Features: map[string][][]float32{
			"Class_0": {e0a, e0b},
			"Class_1": {e1a},
		},
	}
}

func TestClassifyAcceptsExactMatch(t *testing.T) {
	set := twoClassSet()
	got := Classify("q", []float32{1, 0}, set, 0.9)

	if got.Predicted != "Class_0" {
		t.Errorf("Predicted = %q, want Class_0", got.Predicted)
	}
	if got.Status != StatusAccepted {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Tier != TierHigh {
		t.Errorf("Tier = %q, want high (margin %.2f)", got.Tier, got.Margin)
	}
	if math.Abs(got.BestScore-1.0) > 1e-6 {
		t.Errorf("BestScore = %f, want 1.0", got.BestScore)
	}
	if math.Abs(got.Margin-0.7) > 1e-6 {
		t.Errorf("Margin = %f, want 0.7", got.Margin)
	}
	if len(got.Scores) != 2 {
		t.Errorf("Scores = %v, want exactly the 2 support classes", got.Scores)
	}
}

func TestClassifyRejectsBelowThreshold(t *testing.T) {
	set := twoClassSet()
	// Orthogonal to Class_0, weakly similar to Class_1.
	got := Classify("q", []float32{0, 1}, set, 0.99)

	if got.Predicted != Unknown {
		t.Errorf("Predicted = %q, want Unknown", got.Predicted)
	}
	if got.Status != StatusRejected {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Reason == "" {
		t.Error("rejection reason must carry the numeric comparison")
	}
}

func TestClassifyEmptySet(t *testing.T) {
	set := &support.Set{
		Examples: map[string][]support.Example{},
		Features: map[string][][]float32{},
	}
	got := Classify("q", []float32{1, 0}, set, 0.5)

	if got.Predicted != Unknown || got.Status != StatusRejected {
		t.Errorf("empty set => Unknown/rejected, got %q/%q", got.Predicted, got.Status)
	}
	if len(got.Scores) != 0 {
		t.Errorf("Scores = %v, want empty", got.Scores)
	}
	if got.Reason != ReasonNoSimilarities {
		t.Errorf("Reason = %q, want %q", got.Reason, ReasonNoSimilarities)
	}
}

func TestClassifyBoundsAndIdempotence(t *testing.T) {
	set := twoClassSet()
	queries := [][]float32{
		{1, 0}, {0, 1}, {-1, 0}, {0.5, 0.5}, {0, 0},
	}
	for _, q := range queries {
		first := Classify("q", q, set, 0.5)
		if first.BestScore < -1-1e-9 || first.BestScore > 1+1e-9 {
			t.Errorf("BestScore %f outside [-1, 1] for query %v", first.BestScore, q)
		}
		if first.Margin < 0 {
			t.Errorf("Margin %f negative for query %v", first.Margin, q)
		}
		second := Classify("q", q, set, 0.5)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Classify not idempotent (-first +second):\n%s", diff)
		}
	}
}

func TestClassifyThresholdMonotonicity(t *testing.T) {
	set := twoClassSet()
	query := []float32{0.9, float32(math.Sqrt(1 - 0.81))}

	thresholds := []float64{0.1, 0.3, 0.5, 0.7, 0.9, 0.99}
	var acceptedAt []bool
	for _, th := range thresholds {
		res := Classify("q", query, set, th)
		acceptedAt = append(acceptedAt, res.Accepted())
	}
	// Once rejection starts it must persist at every higher threshold.
	for i := 1; i < len(acceptedAt); i++ {
		if acceptedAt[i] && !acceptedAt[i-1] {
			t.Errorf("accepted at t=%.2f but rejected at t=%.2f", thresholds[i], thresholds[i-1])
		}
	}
}

func TestClassifyTieBreakByClassName(t *testing.T) {
	proto := []float32{1, 0}
	set := &support.Set{
		Examples: map[string][]support.Example{
			"Zebra": {{Label: "Zebra", Path: "z"}},
			"Aloe":  {{Label: "Aloe", Path: "a"}},
		},
		Features: map[string][][]float32{
			"Zebra": {proto},
			"Aloe":  {proto},
		},
	}
	got := Classify("q", []float32{1, 0}, set, 0.5)
	if got.Predicted != "Aloe" {
		t.Errorf("tie must break to first class name, got %q", got.Predicted)
	}
	if got.Margin != 0 {
		t.Errorf("Margin = %f, want 0 on a tie", got.Margin)
	}
}

func TestClassifySkipsClassWithNoFeatures(t *testing.T) {
	set := twoClassSet()
	set.Features["Class_1"] = nil

	got := Classify("q", []float32{1, 0}, set, 0.5)
	if _, ok := got.Scores["Class_1"]; ok {
		t.Error("class without embeddings must not appear in Scores")
	}
	if got.Margin != 0 {
		t.Errorf("Margin = %f, want 0 with a single scored class", got.Margin)
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		margin float64
		want   Tier
	}{
		{0.25, TierHigh},
		{0.2, TierMedium}, // boundary: high requires strictly greater
		{0.15, TierMedium},
		{0.1, TierLow},
		{0.05, TierLow},
		{0, TierLow},
	}
	for _, tt := range tests {
		if got := tierFor(tt.margin); got != tt.want {
			t.Errorf("tierFor(%.2f) = %q, want %q", tt.margin, got, tt.want)
		}
	}
}

func TestCosineDegenerateInputs(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"zero vector", []float32{0, 0}, []float32{1, 0}},
		{"both zero", []float32{0, 0}, []float32{0, 0}},
		{"length mismatch", []float32{1}, []float32{1, 0}},
		{"empty", nil, nil},
		{"nan component", []float32{float32(math.NaN()), 1}, []float32{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); got != 0 {
				t.Errorf("cosine = %f, want 0", got)
			}
		})
	}
}

func TestCosineKnownValues(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("cosine identical = %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("cosine opposite = %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("cosine orthogonal = %f", got)
	}
}
