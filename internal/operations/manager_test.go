package operations

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emis/internal/config"
	"emis/internal/study"
)

// stubStep executes a scripted sequence of results, one per attempt.
type stubStep struct {
	BaseStep
	mu          sync.Mutex
	validateErr error
	results     []error
	attempts    int
	block       chan struct{}
}

func newStubStep(id string, results ...error) *stubStep {
	return &stubStep{BaseStep: NewBaseStep(id, id), results: results}
}

func (s *stubStep) Validate(state *RunState) error {
	return s.validateErr
}

func (s *stubStep) Execute(ctx context.Context, state *RunState) error {
	s.mu.Lock()
	attempt := s.attempts
	s.attempts++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if attempt < len(s.results) {
		return s.results[attempt]
	}
	return nil
}

func (s *stubStep) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func managerFixture(t *testing.T, steps ...Step) (*Manager, *recordingHub) {
	t.Helper()
	hub := &recordingHub{}
	broadcaster := NewStatusBroadcaster(hub, slog.Default())
	t.Cleanup(broadcaster.Stop)

	pipeline := study.NewPipeline(nil, nil, slog.Default())
	cfg := NewConfig()
	cfg.RetryConfig.InitialDelay = time.Millisecond
	cfg.RetryConfig.MaxDelay = 5 * time.Millisecond
	mgr := NewManager(pipeline, steps, cfg, broadcaster, nil, slog.Default())
	return mgr, hub
}

func stubRequest(id string) RunRequest {
	return RunRequest{
		ID:      id,
		Markets: []config.Market{{ID: "us", Name: "United States", Benchmark: "^GSPC", Tickers: []string{"AAPL"}}},
		Params:  study.Params{Window: 60, ThresholdPercentile: 90},
	}
}

func TestManagerExecuteSuccess(t *testing.T) {
	first := newStubStep("first")
	second := newStubStep("second")
	mgr, hub := managerFixture(t, first, second)

	resp, err := mgr.Execute(context.Background(), stubRequest("run-1"))
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, RunStatusCompleted, resp.Status)
	assert.Equal(t, 1, first.attemptCount())
	assert.Equal(t, 1, second.attemptCount())
	assert.Equal(t, StepStatusCompleted, resp.Steps["first"].Status)
	assert.Equal(t, StepStatusCompleted, resp.Steps["second"].Status)

	snapshot := hub.last()
	require.NotNil(t, snapshot)
	assert.Equal(t, "completed", snapshot.Status)
	assert.Equal(t, []string{"us"}, snapshot.Markets)
}

func TestManagerRetriesRetryableFailures(t *testing.T) {
	flaky := newStubStep("flaky",
		NewExecutionError("flaky", errors.New("connection reset"), true),
		NewExecutionError("flaky", errors.New("connection reset"), true),
		nil)
	mgr, _ := managerFixture(t, flaky)

	resp, err := mgr.Execute(context.Background(), stubRequest("run-2"))
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, resp.Status)
	assert.Equal(t, 3, flaky.attemptCount())
}

func TestManagerStopsOnNonRetryableFailure(t *testing.T) {
	broken := newStubStep("broken", NewExecutionError("broken", errors.New("degenerate matrix"), false))
	never := newStubStep("never")
	mgr, hub := managerFixture(t, broken, never)

	resp, err := mgr.Execute(context.Background(), stubRequest("run-3"))
	require.Error(t, err)

	assert.Equal(t, RunStatusFailed, resp.Status)
	assert.Equal(t, 1, broken.attemptCount())
	assert.Equal(t, 0, never.attemptCount())
	assert.Equal(t, StepStatusFailed, resp.Steps["broken"].Status)
	assert.Equal(t, StepStatusPending, resp.Steps["never"].Status)

	snapshot := hub.last()
	assert.Equal(t, "failed", snapshot.Status)
	assert.NotEmpty(t, snapshot.Error)
}

func TestManagerExhaustsRetries(t *testing.T) {
	alwaysDown := newStubStep("down",
		NewExecutionError("down", errors.New("unreachable"), true),
		NewExecutionError("down", errors.New("unreachable"), true),
		NewExecutionError("down", errors.New("unreachable"), true))
	mgr, _ := managerFixture(t, alwaysDown)

	resp, err := mgr.Execute(context.Background(), stubRequest("run-4"))
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, resp.Status)
	assert.Equal(t, 3, alwaysDown.attemptCount())
}

func TestManagerValidationFailureSkipsExecution(t *testing.T) {
	invalid := newStubStep("invalid")
	invalid.validateErr = NewValidationError("invalid", "missing input")
	mgr, _ := managerFixture(t, invalid)

	resp, err := mgr.Execute(context.Background(), stubRequest("run-5"))
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, resp.Status)
	assert.Equal(t, 0, invalid.attemptCount())
}

func TestManagerRejectsEmptyMarkets(t *testing.T) {
	mgr, _ := managerFixture(t, newStubStep("noop"))

	_, err := mgr.Execute(context.Background(), RunRequest{ID: "run-6"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no markets")
}

func TestManagerRejectsDuplicateRunID(t *testing.T) {
	mgr, _ := managerFixture(t, newStubStep("noop"))

	_, err := mgr.Execute(context.Background(), stubRequest("run-7"))
	require.NoError(t, err)

	_, err = mgr.Execute(context.Background(), stubRequest("run-7"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestManagerGeneratesRunID(t *testing.T) {
	mgr, _ := managerFixture(t, newStubStep("noop"))

	req := stubRequest("")
	resp, err := mgr.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
}

func TestManagerCancelRun(t *testing.T) {
	blocking := newStubStep("blocking")
	blocking.block = make(chan struct{})
	mgr, hub := managerFixture(t, blocking)

	done := make(chan *RunResponse, 1)
	go func() {
		resp, _ := mgr.Execute(context.Background(), stubRequest("run-8"))
		done <- resp
	}()

	require.Eventually(t, func() bool {
		state, err := mgr.GetRun("run-8")
		return err == nil && state.Status == RunStatusRunning
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, mgr.CancelRun("run-8"))

	select {
	case resp := <-done:
		assert.Equal(t, RunStatusCancelled, resp.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}

	snapshot := hub.last()
	assert.Equal(t, "cancelled", snapshot.Status)

	assert.ErrorIs(t, mgr.CancelRun("run-8"), ErrRunCompleted)
}

func TestManagerGetRunNotFound(t *testing.T) {
	mgr, _ := managerFixture(t, newStubStep("noop"))

	_, err := mgr.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, mgr.CancelRun("missing"), ErrRunNotFound)
}

func TestManagerListRuns(t *testing.T) {
	mgr, _ := managerFixture(t, newStubStep("noop"))

	_, err := mgr.Execute(context.Background(), stubRequest("run-a"))
	require.NoError(t, err)
	_, err = mgr.Execute(context.Background(), stubRequest("run-b"))
	require.NoError(t, err)

	runs := mgr.ListRuns()
	assert.Len(t, runs, 2)
}
