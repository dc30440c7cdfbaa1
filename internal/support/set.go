// Package support loads per-class reference images and their embeddings for
// a given shot count.
package support

import "sort"

// Example is one reference image inside a support set.
type Example struct {
	Label string
	Path  string
}

// Set holds the per-class reference examples for one shot count, plus the
// embeddings extracted for them. Classes whose every extraction failed have
// an empty embedding list and are skipped by the classifier.
type Set struct {
	Shot     int
	Examples map[string][]Example   // class label -> ordered examples
	Features map[string][][]float32 // class label -> embeddings (may be shorter than Examples)

	// Short lists classes that had fewer images than requested; Excluded
	// counts images dropped by failed extraction. Both are informational.
	Short    []string
	Excluded int
}

// Labels returns the class labels in sorted order.
func (s *Set) Labels() []string {
	labels := make([]string, 0, len(s.Examples))
	for label := range s.Examples {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Size returns the total number of reference images across classes.
func (s *Set) Size() int {
	n := 0
	for _, examples := range s.Examples {
		n += len(examples)
	}
	return n
}

// Empty reports whether the set has no class with at least one embedding.
func (s *Set) Empty() bool {
	for _, feats := range s.Features {
		if len(feats) > 0 {
			return false
		}
	}
	return true
}
