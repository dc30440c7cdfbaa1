package groundtruth

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNormalize(t *testing.T) {
	grouped := Options{GroupUnknown: true}
	tests := []struct {
		in   string
		opts Options
		want string
	}{
		{"class_3", grouped, "Class_3"},
		{"CLASS_3", grouped, "Class_3"},
		{"Class_12", grouped, "Class_12"},
		{"class-7", grouped, "Class_7"},
		{"unknown_fence", grouped, "Unknown"},
		{"unknown_road", grouped, "Unknown"},
		{"UNKNOWN", grouped, "Unknown"},
		{"unknown_fence", Options{}, "unknown_fence"},
		{"unknown", Options{}, "Unknown"},
		{"Vegetation", grouped, "Vegetation"},
		{" class_1 ", grouped, "Class_1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in, tt.opts); got != tt.want {
				t.Errorf("Normalize(%q, %+v) = %q, want %q", tt.in, tt.opts, got, tt.want)
			}
		})
	}
}

func TestIsUnknown(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Unknown", true},
		{"unknown", true},
		{"unknown_fence", true},
		{"Unknown_Road", true},
		{"unknown-vegetation", true},
		{"Class_0", false},
		{"unknowable", false},
	}
	for _, tt := range tests {
		if got := IsUnknown(tt.in); got != tt.want {
			t.Errorf("IsUnknown(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		predicted, truth string
		want             bool
	}{
		{"Class_0", "class_0", true},
		{"CLASS_2", "Class_2", true},
		{"Class_0", "Class_1", false},
		{"Unknown", "unknown_fence", true},
		{"unknown_road", "unknown_fence", true},
		{"Unknown", "Unknown", true},
		{"Class_0", "Unknown", false},
		{"Vegetation", "vegetation", true},
	}
	for _, tt := range tests {
		if got := Match(tt.predicted, tt.truth); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.predicted, tt.truth, got, tt.want)
		}
	}
}

func TestBuildMappingGroupsUnknown(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "Class_0"), "a.jpg", "b.jpg")
	writeFiles(t, filepath.Join(root, "unknown_fence"), "f.jpg")
	writeFiles(t, filepath.Join(root, "unknown_road"), "r.jpg")

	mapping, err := BuildMapping(root, Options{GroupUnknown: true})
	if err != nil {
		t.Fatalf("BuildMapping() = %v", err)
	}
	if len(mapping) != 4 {
		t.Fatalf("mapping has %d entries, want 4", len(mapping))
	}
	if mapping["a.jpg"].Label != "Class_0" {
		t.Errorf("a.jpg label = %q", mapping["a.jpg"].Label)
	}
	for _, id := range []string{"f.jpg", "r.jpg"} {
		if mapping[id].Label != "Unknown" {
			t.Errorf("%s label = %q, want Unknown", id, mapping[id].Label)
		}
	}
}

func TestBuildMappingUngroupedKeepsDistinct(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "unknown_fence"), "f.jpg")
	writeFiles(t, filepath.Join(root, "unknown_road"), "r.jpg")

	mapping, err := BuildMapping(root, Options{GroupUnknown: false})
	if err != nil {
		t.Fatal(err)
	}
	if mapping["f.jpg"].Label != "unknown_fence" || mapping["r.jpg"].Label != "unknown_road" {
		t.Errorf("ungrouped labels collapsed: %v", mapping)
	}
}

func TestBuildMappingNested(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "Class_1", "batch2"), "deep.jpg")

	mapping, err := BuildMapping(root, Options{GroupUnknown: true})
	if err != nil {
		t.Fatal(err)
	}
	if mapping["deep.jpg"].Label != "Class_1" {
		t.Errorf("nested file label = %q, want Class_1", mapping["deep.jpg"].Label)
	}
}

func TestCollectQueries(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "Class_0"), "b.jpg", "a.jpg")
	writeFiles(t, filepath.Join(root, "unknown_fence"), "f.jpg")

	queries, err := CollectQueries(root, Options{GroupUnknown: true})
	if err != nil {
		t.Fatalf("CollectQueries() = %v", err)
	}
	if len(queries) != 3 {
		t.Fatalf("queries = %d, want 3", len(queries))
	}
	if queries[0].ID != "a.jpg" || queries[1].ID != "b.jpg" || queries[2].ID != "f.jpg" {
		t.Errorf("queries not sorted by id: %+v", queries)
	}
	if queries[0].Truth != "Class_0" || queries[2].Truth != "Unknown" {
		t.Errorf("truth labels wrong: %+v", queries)
	}
	if queries[0].Path != filepath.Join(root, "Class_0", "a.jpg") {
		t.Errorf("path = %q", queries[0].Path)
	}
}

func TestBuildMappingMissingRoot(t *testing.T) {
	if _, err := BuildMapping(filepath.Join(t.TempDir(), "nope"), Options{}); err == nil {
		t.Error("BuildMapping should fail on a missing root")
	}
}
