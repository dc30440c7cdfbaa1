// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output and logs. Keep raw codes for CSV/JSON
// fields, map keys, and equality comparisons.
package display

import "strings"

// --- Classification statuses ---

var statuses = map[string]string{
	"accepted": "Accepted",
	"rejected": "Rejected (below threshold)",
	"error":    "Error (no embedding)",
}

// Status returns the human-readable name for a classification status code.
// Unknown codes are returned as-is.
func Status(code string) string {
	if name, ok := statuses[code]; ok {
		return name
	}
	return code
}

// --- Confidence tiers ---

var tiers = map[string]string{
	"high":   "High confidence",
	"medium": "Medium confidence",
	"low":    "Low confidence",
}

// Tier returns the human-readable name for a confidence tier.
func Tier(code string) string {
	if name, ok := tiers[code]; ok {
		return name
	}
	return code
}

// TierWithMargin returns "High confidence (margin 0.31)" format for CLI output.
func TierWithMargin(code, margin string) string {
	return Tier(code) + " (margin " + margin + ")"
}

// Label humanizes a class label for display: "Class_3" becomes "Class 3",
// "unknown_fence" becomes "Unknown (fence)". Canonical labels pass through.
func Label(label string) string {
	lower := strings.ToLower(label)
	if rest, ok := strings.CutPrefix(lower, "unknown_"); ok {
		return "Unknown (" + rest + ")"
	}
	if rest, ok := strings.CutPrefix(lower, "class_"); ok {
		return "Class " + rest
	}
	return label
}

// CellKey formats a grid cell for humans: "shot_5_threshold_0.70" becomes
// "5-shot @ 0.70".
func CellKey(key string) string {
	parts := strings.Split(key, "_")
	if len(parts) == 4 && parts[0] == "shot" && parts[2] == "threshold" {
		return parts[1] + "-shot @ " + parts[3]
	}
	return key
}
