package operations

import (
	"log/slog"
	"sync"
	"time"

	"emis/pkg/contracts/events"
)

// StatusBroadcaster is the single authority for run status updates.
// It maintains the complete snapshot of every run and rebroadcasts the
// whole snapshot to observers on each change; observers never have to
// reconstruct state from deltas.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	runs    map[string]*events.RunSnapshot
	hub     SnapshotHub
	logger  *slog.Logger
	updates chan updateRequest
	stop    chan struct{}
}

type updateRequest struct {
	runID      string
	traceID    string
	updateFunc func(*events.RunSnapshot)
	done       chan struct{}
}

// NewStatusBroadcaster creates a new status broadcaster
func NewStatusBroadcaster(hub SnapshotHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		runs:    make(map[string]*events.RunSnapshot),
		hub:     hub,
		logger:  logger.With(slog.String("component", "status_broadcaster")),
		updates: make(chan updateRequest, 100),
		stop:    make(chan struct{}),
	}

	go sb.processUpdates()

	return sb
}

// processUpdates handles all updates sequentially to avoid race conditions
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	sb.mu.Lock()
	defer sb.mu.Unlock()

	snapshot, exists := sb.runs[req.runID]
	if !exists {
		snapshot = &events.RunSnapshot{
			RunID:     req.runID,
			Status:    "pending",
			StartedAt: time.Now(),
			UpdatedAt: time.Now(),
			Steps:     []events.StepSnapshot{},
		}
		sb.runs[req.runID] = snapshot
	}

	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	// Overall progress is the mean of the step progresses
	if len(snapshot.Steps) > 0 {
		totalProgress := 0
		for _, step := range snapshot.Steps {
			totalProgress += step.Progress
		}
		snapshot.Progress = totalProgress / len(snapshot.Steps)
	}

	if snapshot.Status == "completed" || snapshot.Status == "failed" || snapshot.Status == "cancelled" {
		if snapshot.CompletedAt == nil {
			now := time.Now()
			snapshot.CompletedAt = &now
		}
	}

	sb.broadcast(snapshot, req.traceID)
}

func (sb *StatusBroadcaster) broadcast(snapshot *events.RunSnapshot, traceID string) {
	if sb.hub == nil {
		sb.logger.Warn("no websocket hub configured for status broadcast")
		return
	}

	sb.logger.Info("broadcasting run snapshot",
		slog.String("run_id", snapshot.RunID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep),
		slog.Int("steps", len(snapshot.Steps)))

	// Broadcast a copy so observers never see later mutations
	copied := *snapshot
	copied.Steps = append([]events.StepSnapshot(nil), snapshot.Steps...)
	copied.Markets = append([]string(nil), snapshot.Markets...)
	sb.hub.BroadcastRunSnapshot(&copied, traceID)
}

// Update applies one mutation to a run snapshot and rebroadcasts it.
// Updates are serialized; the call returns after the broadcast.
func (sb *StatusBroadcaster) Update(runID, traceID string, updateFunc func(*events.RunSnapshot)) {
	req := updateRequest{
		runID:      runID,
		traceID:    traceID,
		updateFunc: updateFunc,
		done:       make(chan struct{}),
	}

	select {
	case sb.updates <- req:
		<-req.done
	case <-sb.stop:
	}
}

// CreateRun initializes a run snapshot with the given steps and markets
func (sb *StatusBroadcaster) CreateRun(runID, traceID string, steps []Step, markets []string) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		snapshot.Status = "pending"
		snapshot.Progress = 0
		snapshot.Markets = markets
		snapshot.Steps = make([]events.StepSnapshot, len(steps))
		for i, step := range steps {
			snapshot.Steps[i] = events.StepSnapshot{
				ID:     step.ID(),
				Name:   step.Name(),
				Status: "pending",
			}
		}
		snapshot.Message = "Run created"
	})
}

// StartRun marks a run as running
func (sb *StatusBroadcaster) StartRun(runID, traceID string) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		snapshot.Status = "running"
		snapshot.Message = "Run started"
	})
}

// StartStep marks one step as running and makes it the current step
func (sb *StatusBroadcaster) StartStep(runID, traceID, stepID, message string) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "running"
				snapshot.Steps[i].Message = message
				snapshot.CurrentStep = snapshot.Steps[i].Name
				break
			}
		}
	})
}

// CompleteStep marks a step as completed
func (sb *StatusBroadcaster) CompleteStep(runID, traceID, stepID, message string, metadata map[string]interface{}) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "completed"
				snapshot.Steps[i].Progress = 100
				snapshot.Steps[i].Message = message
				if metadata != nil {
					snapshot.Steps[i].Metadata = metadata
				}
				break
			}
		}
	})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(runID, traceID, stepID string, err error) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "failed"
				snapshot.Steps[i].Error = err.Error()
				break
			}
		}
	})
}

// CompleteRun marks a run as completed
func (sb *StatusBroadcaster) CompleteRun(runID, traceID, message string) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		snapshot.Status = "completed"
		snapshot.Progress = 100
		snapshot.CurrentStep = ""
		snapshot.Message = message
		for i := range snapshot.Steps {
			if snapshot.Steps[i].Status == "running" || snapshot.Steps[i].Status == "pending" {
				snapshot.Steps[i].Status = "completed"
				snapshot.Steps[i].Progress = 100
			}
		}
	})
}

// FailRun marks a run as failed
func (sb *StatusBroadcaster) FailRun(runID, traceID string, err error) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		snapshot.Status = "failed"
		snapshot.Error = err.Error()
		snapshot.CurrentStep = ""
	})
}

// CancelRun marks a run as cancelled
func (sb *StatusBroadcaster) CancelRun(runID, traceID string) {
	sb.Update(runID, traceID, func(snapshot *events.RunSnapshot) {
		snapshot.Status = "cancelled"
		snapshot.CurrentStep = ""
		snapshot.Message = "Run cancelled by user"
	})
}

// GetSnapshot returns a copy of the current snapshot for a run
func (sb *StatusBroadcaster) GetSnapshot(runID string) (*events.RunSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshot, exists := sb.runs[runID]
	if !exists {
		return nil, false
	}

	copied := *snapshot
	copied.Steps = append([]events.StepSnapshot(nil), snapshot.Steps...)
	copied.Markets = append([]string(nil), snapshot.Markets...)
	return &copied, true
}

// GetAllSnapshots returns copies of all current run snapshots
func (sb *StatusBroadcaster) GetAllSnapshots() []*events.RunSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshots := make([]*events.RunSnapshot, 0, len(sb.runs))
	for _, snapshot := range sb.runs {
		copied := *snapshot
		copied.Steps = append([]events.StepSnapshot(nil), snapshot.Steps...)
		copied.Markets = append([]string(nil), snapshot.Markets...)
		snapshots = append(snapshots, &copied)
	}

	return snapshots
}

// CleanupOldRuns removes finished runs older than the given age
func (sb *StatusBroadcaster) CleanupOldRuns(maxAge time.Duration) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := time.Now()
	for id, snapshot := range sb.runs {
		if snapshot.Status != "completed" && snapshot.Status != "failed" && snapshot.Status != "cancelled" {
			continue
		}
		if snapshot.CompletedAt != nil && now.Sub(*snapshot.CompletedAt) > maxAge {
			delete(sb.runs, id)
			sb.logger.Info("cleaned up old run snapshot",
				slog.String("run_id", id),
				slog.String("status", snapshot.Status),
				slog.Duration("age", now.Sub(*snapshot.CompletedAt)))
		}
	}
}

// Stop gracefully shuts down the broadcaster
func (sb *StatusBroadcaster) Stop() {
	close(sb.stop)
}
