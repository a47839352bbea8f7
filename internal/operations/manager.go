package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"emis/internal/infrastructure"
	"emis/internal/study"
)

// Manager owns study run execution: it drives the fixed step sequence
// over the pipeline, enforces per-step timeouts, retries transient
// failures, and keeps observers current through the broadcaster.
type Manager struct {
	pipeline    *study.Pipeline
	steps       []Step
	config      *Config
	broadcaster *StatusBroadcaster
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger

	mu      sync.RWMutex
	runs    map[string]*RunState
	cancels map[string]context.CancelFunc
}

// NewManager creates a run manager executing the given steps in order
func NewManager(pipeline *study.Pipeline, steps []Step, cfg *Config, broadcaster *StatusBroadcaster, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *Manager {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Manager{
		pipeline:    pipeline,
		steps:       steps,
		config:      cfg,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "run_manager")),
		runs:        make(map[string]*RunState),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Execute runs the full step sequence for the requested markets. It
// blocks until the run reaches a terminal state and returns the
// response; callers wanting asynchronous execution run it in a
// goroutine and observe progress through the broadcaster.
func (m *Manager) Execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if len(req.Markets) == 0 {
		return nil, NewValidationError("", "no markets requested")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := NewRunState(req.ID)
	state.AttachRun(m.pipeline.NewRun(req.ID, req.Markets, req.Params))
	for _, step := range m.steps {
		state.SetStep(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	m.mu.Lock()
	if _, exists := m.runs[req.ID]; exists {
		m.mu.Unlock()
		return nil, NewValidationError("", fmt.Sprintf("run %s already exists", req.ID))
	}
	m.runs[req.ID] = state
	m.cancels[req.ID] = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.cancels, req.ID)
		m.mu.Unlock()
	}()

	marketIDs := make([]string, len(req.Markets))
	for i, mkt := range req.Markets {
		marketIDs[i] = mkt.ID
	}

	m.broadcaster.CreateRun(req.ID, req.TraceID, m.steps, marketIDs)
	m.broadcaster.StartRun(req.ID, req.TraceID)
	state.Start()

	m.logger.InfoContext(runCtx, "study run started",
		slog.String("run_id", req.ID),
		slog.Any("markets", marketIDs),
		slog.Int("window", req.Params.Window),
		slog.Float64("threshold_percentile", req.Params.ThresholdPercentile))

	runStart := time.Now()
	runErr := m.executeSteps(runCtx, req, state)
	duration := time.Since(runStart)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			state.Cancel()
			m.broadcaster.CancelRun(req.ID, req.TraceID)
		} else {
			state.Fail(runErr)
			m.broadcaster.FailRun(req.ID, req.TraceID, runErr)
		}
		m.logger.ErrorContext(runCtx, "study run failed",
			slog.String("run_id", req.ID),
			slog.Duration("duration", duration),
			slog.String("error", runErr.Error()))
	} else {
		state.Complete()
		m.broadcaster.CompleteRun(req.ID, req.TraceID, "Study run completed")
		m.logger.InfoContext(runCtx, "study run completed",
			slog.String("run_id", req.ID),
			slog.Duration("duration", duration))
	}

	infrastructure.RecordStudyRunMetrics(runCtx, m.metrics, req.ID, duration, runErr == nil, runErr)

	resp := m.buildResponse(state)
	return resp, runErr
}

func (m *Manager) executeSteps(ctx context.Context, req RunRequest, state *RunState) error {
	for _, step := range m.steps {
		if err := ctx.Err(); err != nil {
			return NewCancellationError(step.ID())
		}

		stepState := state.GetStep(step.ID())

		if err := step.Validate(state); err != nil {
			stepState.Fail(err)
			m.broadcaster.FailStep(req.ID, req.TraceID, step.ID(), err)
			return err
		}

		stepState.Start()
		m.broadcaster.StartStep(req.ID, req.TraceID, step.ID(), "")

		stepStart := time.Now()
		err := m.executeWithRetry(ctx, req, step, state)
		stepDuration := time.Since(stepStart)

		infrastructure.RecordStudyStepMetrics(ctx, m.metrics, req.ID, step.ID(), stepDuration, err == nil)

		if err != nil {
			stepState.Fail(err)
			m.broadcaster.FailStep(req.ID, req.TraceID, step.ID(), err)
			return err
		}

		stepState.Complete()
		m.broadcaster.CompleteStep(req.ID, req.TraceID, step.ID(), "", stepState.Metadata)

		m.logger.DebugContext(ctx, "step completed",
			slog.String("run_id", req.ID),
			slog.String("step", step.ID()),
			slog.Duration("duration", stepDuration))
	}

	return nil
}

// executeWithRetry runs one step under its timeout, retrying with
// exponential backoff when the step reports a retryable failure.
func (m *Manager) executeWithRetry(ctx context.Context, req RunRequest, step Step, state *RunState) error {
	timeout := m.config.GetStepTimeout(step.ID())
	delay := m.config.RetryConfig.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= m.config.RetryConfig.MaxAttempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err := step.Execute(stepCtx, state)
		cancel()

		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = NewTimeoutError(step.ID(), timeout.String())
		}
		lastErr = err

		if !IsRetryable(err) || attempt == m.config.RetryConfig.MaxAttempts {
			return err
		}

		m.logger.WarnContext(ctx, "step failed, retrying",
			slog.String("run_id", req.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return NewCancellationError(step.ID())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * m.config.RetryConfig.Multiplier)
		if delay > m.config.RetryConfig.MaxDelay {
			delay = m.config.RetryConfig.MaxDelay
		}
	}

	return lastErr
}

func (m *Manager) buildResponse(state *RunState) *RunResponse {
	clone := state.Clone()
	resp := &RunResponse{
		ID:       clone.ID,
		Status:   clone.Status,
		Duration: clone.Duration(),
		Steps:    clone.Steps,
		Result:   clone.Result(),
	}
	if clone.Err != nil {
		resp.Error = clone.Err.Error()
	}
	return resp
}

// GetRun returns a snapshot of a run's state
func (m *Manager) GetRun(runID string) (*RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.runs[runID]
	if !exists {
		return nil, ErrRunNotFound
	}
	return state.Clone(), nil
}

// ListRuns returns snapshots of all known runs
func (m *Manager) ListRuns() []*RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*RunState, 0, len(m.runs))
	for _, state := range m.runs {
		states = append(states, state.Clone())
	}
	return states
}

// CancelRun cancels a running study run
func (m *Manager) CancelRun(runID string) error {
	m.mu.RLock()
	state, exists := m.runs[runID]
	cancel := m.cancels[runID]
	m.mu.RUnlock()

	if !exists {
		return ErrRunNotFound
	}
	if state.IsTerminal() {
		return ErrRunCompleted
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// CleanupOldRuns drops terminal runs older than the retention period
func (m *Manager) CleanupOldRuns() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, state := range m.runs {
		if !state.IsTerminal() {
			continue
		}
		if state.EndTime != nil && time.Since(*state.EndTime) > m.config.SnapshotRetention {
			delete(m.runs, id)
		}
	}
	m.broadcaster.CleanupOldRuns(m.config.SnapshotRetention)
}
