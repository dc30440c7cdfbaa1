package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// StubDims is the vector length produced by the stub provider.
const StubDims = 8

// Stub is a deterministic offline provider: the vector for a path is a pure
// function of the path, so runs are reproducible without a backbone. Fixed
// vectors and failures can be planted per path for tests and calibration.
type Stub struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]error
	delay   time.Duration
	calls   int
}

// NewStub creates an empty stub provider.
func NewStub() *Stub {
	return &Stub{
		vectors: make(map[string][]float32),
		fail:    make(map[string]error),
	}
}

// ID returns "stub".
func (s *Stub) ID() string { return "stub" }

// SetVector plants a fixed vector for path.
func (s *Stub) SetVector(path string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[path] = vec
}

// FailWith makes Extract fail for path.
func (s *Stub) FailWith(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[path] = err
}

// SetDelay makes every extraction sleep, for timeout tests.
func (s *Stub) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls reports how many extractions ran.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Extract returns the planted vector for path, or a unit vector derived from
// an FNV hash of the path.
func (s *Stub) Extract(ctx context.Context, path string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	delay := s.delay
	planted, hasPlanted := s.vectors[path]
	failErr, hasFail := s.fail[path]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hasFail {
		return nil, &Error{Path: path, Err: failErr}
	}
	if hasPlanted {
		return planted, nil
	}
	return hashVector(path), nil
}

// hashVector derives a deterministic unit vector from a string.
func hashVector(s string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	seed := h.Sum64()

	vec := make([]float32, StubDims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1.0
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Unit returns a StubDims-length one-hot vector, a convenience for tests that
// need orthogonal class prototypes.
func Unit(axis int) []float32 {
	vec := make([]float32, StubDims)
	vec[axis%StubDims] = 1
	return vec
}

var _ Provider = (*Stub)(nil)

// ErrUnreadable is a stock failure for planting unreadable-image errors.
var ErrUnreadable = fmt.Errorf("unreadable image")
