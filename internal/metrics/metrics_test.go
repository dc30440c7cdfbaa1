package metrics

import (
	"math"
	"testing"

	"aperture/internal/groundtruth"
)

func comparison(predicted, truth string) groundtruth.Comparison {
	return groundtruth.Comparison{
		Predicted: predicted,
		Truth:     truth,
		Match:     groundtruth.Match(predicted, truth),
	}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %f, want %f", name, got, want)
	}
}

func TestSummarizeContingency(t *testing.T) {
	comparisons := []groundtruth.Comparison{
		comparison("Class_0", "Class_0"),
		comparison("Class_0", "Class_0"),
		comparison("Class_1", "Class_0"),
		comparison("Class_0", "Class_1"),
		comparison("Class_1", "Class_1"),
	}

	s := Summarize(comparisons)
	cm := s.PerClass["Class_0"]
	if cm == nil {
		t.Fatal("no metrics for Class_0")
	}
	if cm.TP != 2 || cm.FP != 1 || cm.FN != 1 || cm.TN != 1 {
		t.Errorf("Class_0 contingency = TP=%d FP=%d FN=%d TN=%d", cm.TP, cm.FP, cm.FN, cm.TN)
	}
	approx(t, "precision", cm.Precision, 2.0/3.0*100)
	approx(t, "recall", cm.Recall, 2.0/3.0*100)
	approx(t, "specificity", cm.Specificity, 50)
	approx(t, "fallout", cm.Fallout, 50)
	approx(t, "f1", cm.F1, 2.0/3.0*100)
	if cm.Support != 3 {
		t.Errorf("support = %d, want 3", cm.Support)
	}

	// MCC over TP=2 FP=1 FN=1 TN=1: (2*1-1*1)/sqrt(3*3*2*2)
	approx(t, "mcc", cm.MCC, 1.0/6.0)
	approx(t, "accuracy", s.Accuracy, 60)
	approx(t, "classified_rate", s.ClassifiedRate, 100)
}

func TestConfusionIdentity(t *testing.T) {
	comparisons := []groundtruth.Comparison{
		comparison("Class_0", "Class_0"),
		comparison("Class_1", "Class_0"),
		comparison("Unknown", "Class_1"),
		comparison("Class_2", "Class_2"),
		comparison("Class_0", "unknown_fence"),
	}

	s := Summarize(comparisons)
	for label, cm := range s.PerClass {
		if got := cm.TP + cm.FP + cm.FN + cm.TN; got != len(comparisons) {
			t.Errorf("%s: TP+FP+FN+TN = %d, want %d", label, got, len(comparisons))
		}
	}
}

func TestZeroDenominatorIsZero(t *testing.T) {
	// Class_1 is never predicted, so its precision denominator is 0.
	comparisons := []groundtruth.Comparison{
		comparison("Class_0", "Class_1"),
		comparison("Class_0", "Class_1"),
	}

	s := Summarize(comparisons)
	c1 := s.PerClass["Class_1"]
	approx(t, "precision", c1.Precision, 0)
	approx(t, "recall", c1.Recall, 0)
	approx(t, "f1", c1.F1, 0)
	approx(t, "mcc", c1.MCC, 0)

	// Class_0 is never the truth, so recall and fallout behave the same way.
	c0 := s.PerClass["Class_0"]
	approx(t, "recall", c0.Recall, 0)
	approx(t, "specificity", c0.Specificity, 0)
}

func TestMacroExcludesUnknown(t *testing.T) {
	comparisons := []groundtruth.Comparison{
		comparison("Class_0", "Class_0"),
		comparison("Unknown", "Unknown"),
		comparison("Unknown", "Unknown"),
	}

	s := Summarize(comparisons)
	if _, ok := s.PerClass["Unknown"]; !ok {
		t.Fatal("Unknown should still get a per-class entry")
	}
	// Class_0 is perfect; if Unknown leaked into the macro average these
	// would not be 100.
	approx(t, "macro_precision", s.MacroPrecision, 100)
	approx(t, "macro_recall", s.MacroRecall, 100)
	approx(t, "macro_f1", s.MacroF1, 100)
	approx(t, "macro_mcc", s.MacroMCC, 1)
	approx(t, "classified_rate", s.ClassifiedRate, 1.0/3.0*100)
}

func TestMacroBounds(t *testing.T) {
	comparisons := []groundtruth.Comparison{
		comparison("Class_0", "Class_1"),
		comparison("Class_1", "Class_0"),
		comparison("Class_0", "Class_0"),
		comparison("Unknown", "Class_1"),
	}

	s := Summarize(comparisons)
	for name, v := range map[string]float64{
		"macro_precision": s.MacroPrecision,
		"macro_recall":    s.MacroRecall,
		"macro_f1":        s.MacroF1,
	} {
		if v < 0 || v > 100 {
			t.Errorf("%s = %f, out of [0, 100]", name, v)
		}
	}
}

func TestWeightedAverages(t *testing.T) {
	// Class_0 has support 3 and perfect scores, Class_1 support 1 and zero.
	comparisons := []groundtruth.Comparison{
		comparison("Class_0", "Class_0"),
		comparison("Class_0", "Class_0"),
		comparison("Class_0", "Class_0"),
		comparison("Class_0", "Class_1"),
	}

	s := Summarize(comparisons)
	approx(t, "weighted_recall", s.WeightedRecall, 75)
	approx(t, "macro_recall", s.MacroRecall, 50)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.Accuracy != 0 || len(s.PerClass) != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}
