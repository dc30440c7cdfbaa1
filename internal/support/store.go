package support

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aperture/internal/embed"
	"aperture/internal/logging"
)

// imageExtensions are the accepted reference image extensions.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tiff": true, ".webp": true,
}

// Store resolves support-set folders and extracts their embeddings.
//
// Two physical layouts exist in the wild:
//
//	<root>/shot<k>/<class>/*.jpg    (shot folder above classes)
//	<root>/<class>/shot<k>/*.jpg    (shot folder under each class)
//
// Load resolves the first and falls back to the second.
type Store struct {
	root  string
	cache *embed.Cache
}

// NewStore creates a store over the support root using cache for embeddings.
func NewStore(root string, cache *embed.Cache) *Store {
	return &Store{root: root, cache: cache}
}

// Load builds the support set for shot count k. A class with fewer than k
// images contributes all it has and is recorded in Set.Short (warned, never
// fatal). An error is returned only when neither layout yields any class.
func (s *Store) Load(shot int) (*Set, error) {
	logger := logging.New("support")

	classDirs, err := s.resolveLayout(shot)
	if err != nil {
		return nil, err
	}

	set := &Set{
		Shot:     shot,
		Examples: make(map[string][]Example),
		Features: make(map[string][][]float32),
	}

	for label, dir := range classDirs {
		images, err := listImages(dir)
		if err != nil {
			logger.Warn("class folder unreadable, skipping", "class", label, "dir", dir, "error", err)
			continue
		}
		if len(images) == 0 {
			logger.Warn("class has no images for this shot", "class", label, "shot", shot)
			set.Short = append(set.Short, label)
			continue
		}
		if len(images) < shot {
			logger.Warn("class has fewer images than requested",
				"class", label, "have", len(images), "want", shot)
			set.Short = append(set.Short, label)
		}
		if len(images) > shot {
			images = images[:shot]
		}
		for _, img := range images {
			set.Examples[label] = append(set.Examples[label], Example{Label: label, Path: img})
		}
	}
	sort.Strings(set.Short)

	if len(set.Examples) == 0 {
		return nil, fmt.Errorf("no support classes under %s for shot %d", s.root, shot)
	}
	return set, nil
}

// ExtractFeatures fills set.Features from the embedding cache. A failed
// extraction excludes only that image from its class; the failure is logged
// and counted in set.Excluded.
func (s *Store) ExtractFeatures(ctx context.Context, set *Set) error {
	logger := logging.New("support")

	for _, label := range set.Labels() {
		for _, example := range set.Examples[label] {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := s.cache.Extract(ctx, example.Path)
			if err != nil {
				logger.Warn("support image excluded",
					"class", label, "path", example.Path, "error", err)
				set.Excluded++
				continue
			}
			set.Features[label] = append(set.Features[label], vec)
		}
	}
	return nil
}

// resolveLayout returns class label -> directory for the shot, trying the
// shot-above-classes layout first.
func (s *Store) resolveLayout(shot int) (map[string]string, error) {
	shotDir := filepath.Join(s.root, fmt.Sprintf("shot%d", shot))
	if dirs, err := subdirs(shotDir); err == nil && len(dirs) > 0 {
		classDirs := make(map[string]string, len(dirs))
		for _, d := range dirs {
			classDirs[filepath.Base(d)] = d
		}
		return classDirs, nil
	}

	// Fallback: <root>/<class>/shot<k>
	classParents, err := subdirs(s.root)
	if err != nil {
		return nil, fmt.Errorf("support root %s: %w", s.root, err)
	}
	classDirs := make(map[string]string)
	for _, parent := range classParents {
		candidate := filepath.Join(parent, fmt.Sprintf("shot%d", shot))
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			classDirs[filepath.Base(parent)] = candidate
		}
	}
	if len(classDirs) == 0 {
		return nil, fmt.Errorf("no shot%d layout under %s", shot, s.root)
	}
	return classDirs, nil
}

// subdirs lists immediate subdirectories of dir.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// listImages returns the sorted image files directly inside dir.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if imageExtensions[ext] {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}
