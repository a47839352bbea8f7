package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"emis/internal/config"
	"emis/internal/infrastructure"
	"emis/internal/operations"
	"emis/internal/study"
	api "emis/pkg/contracts/api/v1"
	"emis/pkg/contracts/domain"
	"emis/pkg/contracts/events"
)

// RunExecutor is the slice of the run manager the study service uses.
type RunExecutor interface {
	Execute(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error)
	GetRun(runID string) (*operations.RunState, error)
	ListRuns() []*operations.RunState
	CancelRun(runID string) error
}

// SnapshotSource serves the observer view of run progress.
type SnapshotSource interface {
	GetSnapshot(runID string) (*events.RunSnapshot, bool)
	GetAllSnapshots() []*events.RunSnapshot
}

// StudyService orchestrates study runs: it resolves market ids,
// overlays request parameters onto the configured defaults, enforces
// one in-flight run per market, and drives the manager asynchronously.
type StudyService struct {
	executor  RunExecutor
	snapshots SnapshotSource
	cfg       *config.Config
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]string // market id -> run id
}

// NewStudyService creates a study service over the run manager
func NewStudyService(executor RunExecutor, snapshots SnapshotSource, cfg *config.Config, logger *slog.Logger) *StudyService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &StudyService{
		executor:  executor,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "study_service")),
		active:    make(map[string]string),
	}
}

// StartRun validates the request, reserves the markets, and launches
// the run in the background. The response acknowledges acceptance; run
// progress flows through the WebSocket snapshots.
func (s *StudyService) StartRun(ctx context.Context, req *api.StudyRunRequest) (*api.StudyRunResponse, error) {
	markets, err := config.ParseMarkets(strings.Join(req.Markets, ","))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMarket, err)
	}

	params := s.buildParams(req)
	runID := uuid.New().String()

	if err := s.reserve(markets, runID); err != nil {
		return nil, err
	}

	traceID := infrastructure.GetTraceID(ctx)
	runReq := operations.RunRequest{
		ID:      runID,
		Markets: markets,
		Params:  params,
		TraceID: traceID,
	}

	s.logger.InfoContext(ctx, "study run accepted",
		slog.String("run_id", runID),
		slog.Int("markets", len(markets)),
		slog.Int("window", params.Window),
		slog.Float64("threshold_percentile", params.ThresholdPercentile),
		slog.String("trade_mode", string(params.TradeMode)))

	// The run outlives the request; detach from the request context
	// but keep its values for tracing.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.release(markets)
		if _, err := s.executor.Execute(runCtx, runReq); err != nil {
			s.logger.Error("study run failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()))
		}
	}()

	return &api.StudyRunResponse{
		RunID:   runID,
		Status:  string(operations.RunStatusPending),
		Message: fmt.Sprintf("study run accepted for %d market(s)", len(markets)),
	}, nil
}

// buildParams overlays non-zero request fields onto configured defaults
func (s *StudyService) buildParams(req *api.StudyRunRequest) study.Params {
	params := study.ParamsFromConfig(s.cfg)
	if req.Window > 0 {
		params.Window = req.Window
	}
	if req.ThresholdPercentile > 0 {
		params.ThresholdPercentile = req.ThresholdPercentile
	}
	if req.HoldingPeriod > 0 {
		params.HoldingPeriod = req.HoldingPeriod
	}
	if req.TradeMode != "" {
		params.TradeMode = domain.TradeMode(req.TradeMode)
	}
	params.Refresh = req.RefreshData
	params.Recompute = req.Recompute
	return params
}

// reserve marks the markets as busy or rejects the run when any of
// them already has one in flight.
func (s *StudyService) reserve(markets []config.Market, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range markets {
		if holder, busy := s.active[m.ID]; busy {
			return fmt.Errorf("%w: %s (run %s)", ErrMarketBusy, m.ID, holder)
		}
	}
	for _, m := range markets {
		s.active[m.ID] = runID
	}
	return nil
}

func (s *StudyService) release(markets []config.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		delete(s.active, m.ID)
	}
}

// GetRun returns the observer snapshot of one run
func (s *StudyService) GetRun(ctx context.Context, runID string) (*events.RunSnapshot, error) {
	snapshot, ok := s.snapshots.GetSnapshot(runID)
	if !ok {
		return nil, ErrRunNotFound
	}
	return snapshot, nil
}

// ListRuns returns observer snapshots of all known runs
func (s *StudyService) ListRuns(ctx context.Context) []*events.RunSnapshot {
	return s.snapshots.GetAllSnapshots()
}

// GetResult returns the assembled study result of a finished run
func (s *StudyService) GetResult(ctx context.Context, runID string) (*domain.StudyResult, error) {
	state, err := s.executor.GetRun(runID)
	if err != nil {
		return nil, ErrRunNotFound
	}
	result := state.Result()
	if result == nil {
		return nil, ErrNoResult
	}
	return result, nil
}

// GetLatestResult returns the result of the most recently started run
// that produced one.
func (s *StudyService) GetLatestResult(ctx context.Context) (*domain.StudyResult, error) {
	var (
		latest      *domain.StudyResult
		latestStart time.Time
	)
	for _, state := range s.executor.ListRuns() {
		result := state.Result()
		if result == nil {
			continue
		}
		if latest == nil || state.StartTime.After(latestStart) {
			latest = result
			latestStart = state.StartTime
		}
	}
	if latest == nil {
		return nil, ErrNoResult
	}
	return latest, nil
}

// CancelRun aborts a running study run
func (s *StudyService) CancelRun(ctx context.Context, runID string) error {
	err := s.executor.CancelRun(runID)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "study run cancelled", slog.String("run_id", runID))
		return nil
	case err == operations.ErrRunNotFound:
		return ErrRunNotFound
	case err == operations.ErrRunCompleted:
		return ErrRunFinished
	default:
		return err
	}
}
