// Package embed defines the embedding provider boundary and the process-wide
// embedding cache. The backbone itself (CLIP, DINO, ResNet, a remote vision
// model) is an external collaborator behind the Provider interface.
package embed

import (
	"context"
	"fmt"
)

// Provider produces a fixed-length feature vector for an image file.
// Implementations must be safe for concurrent use.
type Provider interface {
	// ID names the backbone. It becomes part of the cache key, so two
	// providers with the same ID must produce identical vectors.
	ID() string

	// Extract returns the embedding for the image at path. It returns a
	// *Error for unreadable input or backbone failures.
	Extract(ctx context.Context, path string) ([]float32, error)
}

// Error is a per-image embedding failure. It is always recovered by
// excluding the image; it never aborts a support set or a batch.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embed %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
