package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aperture/internal/classify"
	"aperture/internal/grid"
	"aperture/internal/logging"
)

// SessionState tracks the lifecycle of a sweep session.
type SessionState string

const (
	StateRunning SessionState = "running"
	StateDone    SessionState = "done"
	StateError   SessionState = "error"
)

// SweepConfig is everything a session needs to run a grid sweep.
type SweepConfig struct {
	Runner     *grid.Runner
	Shots      []int
	Thresholds []float64
	Queries    []classify.Query

	// Persist, when set, runs after a successful sweep (predictions to
	// disk, run rows into the store). A persist failure fails the session.
	Persist func(*grid.Summary) error
}

// Session holds one grid sweep driven over MCP tool calls. The sweep runs in
// a background goroutine; tools poll its state.
type Session struct {
	ID         string
	Shots      []int
	Thresholds []float64

	mu      sync.Mutex
	state   SessionState
	summary *grid.Summary
	err     error
	doneCh  chan struct{}
	cancel  context.CancelFunc
}

// NewSession validates the sweep config, spawns the runner goroutine, and
// returns immediately.
func NewSession(ctx context.Context, cfg SweepConfig) (*Session, error) {
	if cfg.Runner == nil {
		return nil, errors.New("sweep runner is required")
	}
	if len(cfg.Shots) == 0 || len(cfg.Thresholds) == 0 {
		return nil, errors.New("shots and thresholds are required")
	}
	if len(cfg.Queries) == 0 {
		return nil, errors.New("no query images to classify")
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:         fmt.Sprintf("sweep-%d", time.Now().UnixNano()),
		Shots:      cfg.Shots,
		Thresholds: cfg.Thresholds,
		state:      StateRunning,
		doneCh:     make(chan struct{}),
		cancel:     cancel,
	}
	go s.run(sctx, cfg)
	return s, nil
}

func (s *Session) run(ctx context.Context, cfg SweepConfig) {
	defer close(s.doneCh)
	logger := logging.New("mcp-session")

	summary, err := cfg.Runner.Run(ctx, cfg.Shots, cfg.Thresholds, cfg.Queries)
	if err == nil && cfg.Persist != nil {
		err = cfg.Persist(summary)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	if err != nil {
		s.state = StateError
		s.err = err
		logger.Error("sweep session failed", "session_id", s.ID, "error", err)
		return
	}
	s.state = StateDone
	logger.Info("sweep session complete", "session_id", s.ID, "runs", len(summary.Runs))
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Summary returns the sweep summary, nil while still running.
func (s *Session) Summary() *grid.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Err returns the session failure, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done closes when the sweep goroutine finishes.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Cancel stops the sweep. Completed cells stay persisted.
func (s *Session) Cancel() { s.cancel() }
