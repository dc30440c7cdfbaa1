package groundtruth

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"aperture/internal/classify"
)

func result(id, predicted string) classify.Result {
	status := classify.StatusAccepted
	if predicted == classify.Unknown {
		status = classify.StatusRejected
	}
	return classify.Result{QueryID: id, Predicted: predicted, Status: status}
}

func TestCompareCounts(t *testing.T) {
	mapping := map[string]Record{
		"a.jpg": {ImageID: "a.jpg", Label: "Class_0"},
		"b.jpg": {ImageID: "b.jpg", Label: "Class_0"},
		"c.jpg": {ImageID: "c.jpg", Label: "Class_1"},
	}
	results := []classify.Result{
		result("a.jpg", "Class_0"),  // match
		result("b.jpg", "Class_1"),  // mismatch
		result("c.jpg", "class_1"),  // match, case-insensitive
		result("d.jpg", "Class_0"),  // missing ground truth
	}

	comparisons, summary := Compare(results, mapping)
	if len(comparisons) != 4 {
		t.Fatalf("comparisons = %d, want 4", len(comparisons))
	}
	if summary.TotalPredictions != 4 || summary.MatchCount != 2 || summary.MismatchCount != 2 {
		t.Errorf("summary counts = %+v", summary)
	}
	if summary.MissingGroundTruth != 1 {
		t.Errorf("MissingGroundTruth = %d, want 1", summary.MissingGroundTruth)
	}
	if math.Abs(summary.Accuracy-50) > 1e-9 {
		t.Errorf("Accuracy = %f, want 50", summary.Accuracy)
	}

	missing := comparisons[3]
	if missing.Truth != classify.Unknown || missing.Match {
		t.Errorf("missing truth => Unknown/false, got %+v", missing)
	}
}

func TestCompareUnknownEquivalence(t *testing.T) {
	mapping := map[string]Record{
		"f.jpg": {ImageID: "f.jpg", Label: "unknown_fence"},
		"r.jpg": {ImageID: "r.jpg", Label: "unknown_road"},
	}
	results := []classify.Result{
		result("f.jpg", classify.Unknown),
		result("r.jpg", classify.Unknown),
	}

	comparisons, summary := Compare(results, mapping)
	for _, c := range comparisons {
		if !c.Match {
			t.Errorf("Unknown prediction vs %q should match", c.Truth)
		}
	}
	if summary.MatchCount != 2 {
		t.Errorf("MatchCount = %d, want 2", summary.MatchCount)
	}
}

func TestCompareClassStats(t *testing.T) {
	mapping := map[string]Record{
		"a.jpg": {ImageID: "a.jpg", Label: "Class_0"},
		"b.jpg": {ImageID: "b.jpg", Label: "Class_0"},
		"c.jpg": {ImageID: "c.jpg", Label: "Class_0"},
	}
	results := []classify.Result{
		result("a.jpg", "Class_0"),
		result("b.jpg", "Class_1"),
		result("c.jpg", "Class_1"),
	}

	_, summary := Compare(results, mapping)
	want := &ClassStats{
		Total:       3,
		Correct:     1,
		Incorrect:   2,
		PredictedAs: map[string]int{"Class_1": 2},
	}
	if diff := cmp.Diff(want, summary.ClassStats["Class_0"]); diff != "" {
		t.Errorf("Class_0 stats (-want +got):\n%s", diff)
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	mapping := map[string]Record{"a.jpg": {ImageID: "a.jpg", Label: "Class_0"}}
	_, summary := Compare([]classify.Result{result("a.jpg", "Class_0")}, mapping)

	dir := t.TempDir()
	path, err := WriteSummary(dir, summary)
	if err != nil {
		t.Fatalf("WriteSummary() = %v", err)
	}
	if filepath.Base(path) != "comparison_summary.json" {
		t.Errorf("summary path = %q", path)
	}

	loaded, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary() = %v", err)
	}
	if diff := cmp.Diff(summary, loaded); diff != "" {
		t.Errorf("round trip (-wrote +read):\n%s", diff)
	}
}
