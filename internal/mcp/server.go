// Package mcp exposes the classification pipeline as MCP tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"aperture/internal/classify"
	"aperture/internal/config"
	"aperture/internal/embed"
	"aperture/internal/grid"
	"aperture/internal/groundtruth"
	"aperture/internal/logging"
	"aperture/internal/metrics"
	"aperture/internal/store"
	"aperture/internal/support"
)

// Server wraps the MCP SDK server around one configured category.
type Server struct {
	MCPServer *sdkmcp.Server
	Config    *config.Run
	Cache     *embed.Cache
	Store     *store.SqlStore // optional; nil disables list_runs persistence

	mu      sync.Mutex
	session *Session
}

// NewServer builds the server and registers the pipeline tools. The cache
// wraps the provider with the configured per-image timeout.
func NewServer(cfg *config.Run, provider embed.Provider, st *store.SqlStore) *Server {
	s := &Server{
		Config: cfg,
		Cache:  embed.NewCache(provider, time.Duration(cfg.EmbedTimeout)*time.Second),
		Store:  st,
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "aperture", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "classify_image",
		Description: "Classify one image against the category's support set at a given shot count and threshold.",
	}, s.handleClassifyImage)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_sweep",
		Description: "Start a shot x threshold grid sweep over the ground-truth query set. Returns a session ID; poll with sweep_status.",
	}, s.handleStartSweep)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "sweep_status",
		Description: "Poll a running sweep. Returns per-cell tallies and skipped shots when done.",
	}, s.handleSweepStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "score_run",
		Description: "Score one persisted grid cell against ground truth: comparison counts plus confusion-matrix metrics.",
	}, s.handleScoreRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List persisted experiment runs for the configured category and model.",
	}, s.handleListRuns)
}

// --- Tool input/output types ---

type classifyImageInput struct {
	ImagePath string  `json:"image_path" jsonschema:"path to the query image"`
	Shot      int     `json:"shot" jsonschema:"support images per class"`
	Threshold float64 `json:"threshold" jsonschema:"minimum accepted similarity"`
}

type classifyImageOutput struct {
	Predicted string                `json:"predicted_label"`
	Status    string                `json:"status"`
	BestScore float64               `json:"best_score"`
	Margin    float64               `json:"margin"`
	Tier      string                `json:"confidence_tier"`
	Reason    string                `json:"rejection_reason,omitempty"`
	Scores    map[string]float64    `json:"class_scores"`
	Top3      []classify.LabelScore `json:"top3,omitempty"`
}

type startSweepInput struct {
	Shots      string `json:"shots,omitempty" jsonschema:"comma-separated shot counts; defaults to the configured grid"`
	Thresholds string `json:"thresholds,omitempty" jsonschema:"comma-separated thresholds; defaults to the configured grid"`
	Parallel   int    `json:"parallel,omitempty" jsonschema:"worker pool size per shot"`
	Force      bool   `json:"force,omitempty" jsonschema:"cancel any running sweep and start fresh"`
}

type startSweepOutput struct {
	SessionID string `json:"session_id"`
	Queries   int    `json:"queries"`
	Cells     int    `json:"cells"`
	Status    string `json:"status"`
}

type cellStatus struct {
	Accepted        int     `json:"accepted"`
	Unknown         int     `json:"unknown"`
	Errors          int     `json:"errors"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type sweepStatusInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_sweep"`
}

type sweepStatusOutput struct {
	Status  string                `json:"status"`
	Runs    map[string]cellStatus `json:"runs,omitempty"`
	Skipped []grid.SkippedShot    `json:"skipped,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type scoreRunInput struct {
	CellKey   string  `json:"cell_key,omitempty" jsonschema:"cell key, e.g. shot_5_threshold_0.70"`
	Shot      int     `json:"shot" jsonschema:"shot count of the cell"`
	Threshold float64 `json:"threshold" jsonschema:"threshold of the cell"`
}

type scoreRunOutput struct {
	Comparison *groundtruth.Summary `json:"comparison"`
	Metrics    *metrics.Summary     `json:"metrics"`
}

type listRunsInput struct{}

type listRunsOutput struct {
	Runs []*store.Run `json:"runs"`
}

// --- Tool handlers ---

func (s *Server) handleClassifyImage(ctx context.Context, _ *sdkmcp.CallToolRequest, input classifyImageInput) (*sdkmcp.CallToolResult, classifyImageOutput, error) {
	if input.ImagePath == "" {
		return nil, classifyImageOutput{}, fmt.Errorf("image_path is required")
	}
	if input.Shot < 1 {
		return nil, classifyImageOutput{}, fmt.Errorf("shot must be positive")
	}

	supStore := support.NewStore(s.Config.SupportRoot(), s.Cache)
	set, err := supStore.Load(input.Shot)
	if err != nil {
		return nil, classifyImageOutput{}, fmt.Errorf("load support set: %w", err)
	}
	if err := supStore.ExtractFeatures(ctx, set); err != nil {
		return nil, classifyImageOutput{}, err
	}

	vec, err := s.Cache.Extract(ctx, input.ImagePath)
	if err != nil {
		return nil, classifyImageOutput{}, fmt.Errorf("embed query: %w", err)
	}

	r := classify.Classify(input.ImagePath, vec, set, input.Threshold)
	return nil, classifyImageOutput{
		Predicted: r.Predicted,
		Status:    string(r.Status),
		BestScore: r.BestScore,
		Margin:    r.Margin,
		Tier:      string(r.Tier),
		Reason:    r.Reason,
		Scores:    r.Scores,
		Top3:      r.Top3,
	}, nil
}

func (s *Server) handleStartSweep(ctx context.Context, _ *sdkmcp.CallToolRequest, input startSweepInput) (*sdkmcp.CallToolResult, startSweepOutput, error) {
	logger := logging.New("mcp-session")

	shots := s.Config.Shots
	if input.Shots != "" {
		var err error
		if shots, err = config.ParseShots(input.Shots); err != nil {
			return nil, startSweepOutput{}, err
		}
	}
	thresholds := s.Config.Thresholds
	if input.Thresholds != "" {
		var err error
		if thresholds, err = config.ParseThresholds(input.Thresholds); err != nil {
			return nil, startSweepOutput{}, err
		}
	}
	parallel := input.Parallel
	if parallel < 1 {
		parallel = s.Config.Parallel
	}

	opts := groundtruth.Options{GroupUnknown: s.Config.GroupUnknownEnabled()}
	queries, err := groundtruth.CollectQueries(s.Config.GroundTruthRoot(), opts)
	if err != nil {
		return nil, startSweepOutput{}, fmt.Errorf("collect queries: %w", err)
	}

	s.mu.Lock()
	if s.session != nil {
		select {
		case <-s.session.Done():
			logger.Info("replacing finished session", "old_id", s.session.ID)
		default:
			if !input.Force {
				id := s.session.ID
				s.mu.Unlock()
				return nil, startSweepOutput{}, fmt.Errorf("a sweep is already running (id=%s)", id)
			}
			logger.Warn("force-replacing active session", "old_id", s.session.ID)
			s.session.Cancel()
		}
		s.session = nil
	}
	s.mu.Unlock()

	runner := &grid.Runner{
		Store:    support.NewStore(s.Config.SupportRoot(), s.Cache),
		Cache:    s.Cache,
		Parallel: parallel,
	}
	sess, err := NewSession(context.Background(), SweepConfig{
		Runner:     runner,
		Shots:      shots,
		Thresholds: thresholds,
		Queries:    queries,
		Persist:    s.persistSummary,
	})
	if err != nil {
		return nil, startSweepOutput{}, fmt.Errorf("start sweep: %w", err)
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	return nil, startSweepOutput{
		SessionID: sess.ID,
		Queries:   len(queries),
		Cells:     len(shots) * len(thresholds),
		Status:    string(StateRunning),
	}, nil
}

func (s *Server) handleSweepStatus(_ context.Context, _ *sdkmcp.CallToolRequest, input sweepStatusInput) (*sdkmcp.CallToolResult, sweepStatusOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, sweepStatusOutput{}, err
	}

	out := sweepStatusOutput{Status: string(sess.State())}
	if sessErr := sess.Err(); sessErr != nil {
		out.Error = sessErr.Error()
	}
	if summary := sess.Summary(); summary != nil {
		out.Skipped = summary.Skipped
		out.Runs = make(map[string]cellStatus, len(summary.Runs))
		for key, run := range summary.Runs {
			out.Runs[key] = cellStatus{
				Accepted:        run.Tally.Accepted,
				Unknown:         run.Tally.Unknown,
				Errors:          run.Tally.Errors,
				DurationSeconds: run.ExecutionSeconds(),
			}
		}
	}
	return nil, out, nil
}

func (s *Server) handleScoreRun(_ context.Context, _ *sdkmcp.CallToolRequest, input scoreRunInput) (*sdkmcp.CallToolResult, scoreRunOutput, error) {
	cell := grid.Cell{Shot: input.Shot, Threshold: input.Threshold}
	if input.CellKey != "" && input.CellKey != cell.Key() {
		return nil, scoreRunOutput{}, fmt.Errorf("cell_key %q does not match shot=%d threshold=%.2f", input.CellKey, input.Shot, input.Threshold)
	}

	results, err := grid.ReadPredictions(grid.PredictionsPath(s.Config.PredictionsRoot(), cell))
	if err != nil {
		return nil, scoreRunOutput{}, err
	}

	opts := groundtruth.Options{GroupUnknown: s.Config.GroupUnknownEnabled()}
	mapping, err := groundtruth.BuildMapping(s.Config.GroundTruthRoot(), opts)
	if err != nil {
		return nil, scoreRunOutput{}, err
	}

	comparisons, summary := groundtruth.Compare(results, mapping)
	return nil, scoreRunOutput{
		Comparison: summary,
		Metrics:    metrics.Summarize(comparisons),
	}, nil
}

func (s *Server) handleListRuns(_ context.Context, _ *sdkmcp.CallToolRequest, _ listRunsInput) (*sdkmcp.CallToolResult, listRunsOutput, error) {
	if s.Store == nil {
		return nil, listRunsOutput{}, fmt.Errorf("no run store configured (set db in the config)")
	}
	runs, err := s.Store.ListRuns(s.Config.Category, s.Config.Model)
	if err != nil {
		return nil, listRunsOutput{}, err
	}
	return nil, listRunsOutput{Runs: runs}, nil
}

// persistSummary writes predictions to disk and, when a store is configured,
// records one run row per completed cell. Rows are write-once: a cell
// already persisted keeps its existing row and the sweep still succeeds.
func (s *Server) persistSummary(summary *grid.Summary) error {
	paths, err := grid.WriteSummary(s.Config.PredictionsRoot(), summary)
	if err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	if s.Store == nil {
		return nil
	}
	logger := logging.New("mcp")
	for key, run := range summary.Runs {
		record := &store.Run{
			Category:        s.Config.Category,
			Model:           s.Config.Model,
			CellKey:         key,
			Shot:            run.Cell.Shot,
			Threshold:       run.Cell.Threshold,
			Provider:        s.Cache.ID(),
			Total:           len(run.Results),
			Accepted:        run.Tally.Accepted,
			Unknown:         run.Tally.Unknown,
			Errors:          run.Tally.Errors,
			DurationSeconds: run.ExecutionSeconds(),
			PredictionsPath: paths[key],
		}
		if _, err := s.Store.SaveRun(record); err != nil {
			if errors.Is(err, store.ErrDuplicateRun) {
				logger.Warn("cell already persisted, keeping existing run", "cell", key)
				continue
			}
			return fmt.Errorf("save run %s: %w", key, err)
		}
	}
	return nil
}

// Shutdown cancels any active session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Cancel()
		s.session = nil
	}
}

// SessionID returns the current session's ID, or empty string if none.
func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session.ID
	}
	return ""
}

func (s *Server) getSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fmt.Errorf("no active session (call start_sweep first)")
	}
	if s.session.ID != id {
		return nil, fmt.Errorf("session_id mismatch: have %s, got %s", s.session.ID, id)
	}
	return s.session, nil
}
