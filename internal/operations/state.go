package operations

import (
	"sync"
	"time"

	"emis/internal/study"
	"emis/pkg/contracts/domain"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState represents the complete state of one study run execution.
// The study carrier holds the per-market intermediate products the
// steps hand to each other; the step states track progress.
type RunState struct {
	mu sync.RWMutex

	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Step states keyed by step ID
	Steps map[string]*StepState `json:"steps"`

	// Error if the run failed
	Err error `json:"error,omitempty"`

	run    *study.Run
	result *domain.StudyResult
}

// NewRunState creates a new run state
func NewRunState(id string) *RunState {
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
	}
}

// Start marks the run as running
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	r.setTerminal(RunStatusCompleted, nil)
}

// Fail marks the run as failed
func (r *RunState) Fail(err error) {
	r.setTerminal(RunStatusFailed, err)
}

// Cancel marks the run as cancelled
func (r *RunState) Cancel() {
	r.setTerminal(RunStatusCancelled, nil)
}

func (r *RunState) setTerminal(status RunStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = status
	if err != nil {
		r.Err = err
	}
}

// GetStep returns the state of a specific step
func (r *RunState) GetStep(stepID string) *StepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Steps[stepID]
}

// SetStep updates the state of a specific step
func (r *RunState) SetStep(stepID string, state *StepState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Steps[stepID] = state
}

// AttachRun binds the study run carrier the steps operate on
func (r *RunState) AttachRun(run *study.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run = run
}

// Run returns the study run carrier
func (r *RunState) Run() *study.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run
}

// SetResult stores the assembled study result
func (r *RunState) SetResult(result *domain.StudyResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
}

// Result returns the assembled study result, nil until the backtest
// step has run.
func (r *RunState) Result() *domain.StudyResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Duration returns the duration of the run execution
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// IsTerminal reports whether the run has finished
func (r *RunState) IsTerminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// HasFailures returns true if any step has failed
func (r *RunState) HasFailures() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, step := range r.Steps {
		if step.Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the run state for external callers.
// The study carrier and result are shared references; the carrier is
// internally synchronized and the result is frozen on assembly.
func (r *RunState) Clone() *RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &RunState{
		ID:        r.ID,
		Status:    r.Status,
		StartTime: r.StartTime,
		Steps:     make(map[string]*StepState),
		Err:       r.Err,
		run:       r.run,
		result:    r.result,
	}

	if r.EndTime != nil {
		endTime := *r.EndTime
		clone.EndTime = &endTime
	}

	for k, v := range r.Steps {
		v.mu.RLock()
		stepCopy := &StepState{
			ID:        v.ID,
			Name:      v.Name,
			Status:    v.Status,
			StartTime: v.StartTime,
			EndTime:   v.EndTime,
			Progress:  v.Progress,
			Message:   v.Message,
			Error:     v.Error,
			Metadata:  make(map[string]interface{}, len(v.Metadata)),
		}
		for mk, mv := range v.Metadata {
			stepCopy.Metadata[mk] = mv
		}
		v.mu.RUnlock()
		clone.Steps[k] = stepCopy
	}

	return clone
}
