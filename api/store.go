package api

import (
	"context"
	"sync"
	"time"

	"github.com/taskforge/orchestrator/contracts"
)

// RunSnapshot is a point-in-time, race-free copy of a run's externally
// visible state — the only form of a run's state API handlers ever read
// directly (Design Note "shadow state"): the engine goroutine owns the
// live *contracts.Run and may be mutating it at any moment.
type RunSnapshot struct {
	ID            contracts.RunID
	Project       contracts.ProjectName
	APIStatus     string
	TokensUsed    contracts.TokenCount
	EstimatedCost contracts.Cost
	BatchesRun    int
	PauseReason   string
	Tasks         map[contracts.TaskID]*contracts.Task
	Error         error
}

func snapshotOf(run *contracts.Run, apiStatus, pauseReason string, err error) RunSnapshot {
	tasks := make(map[contracts.TaskID]*contracts.Task, len(run.Tasks))
	for id, t := range run.Tasks {
		cp := *t
		tasks[id] = &cp
	}
	return RunSnapshot{
		ID:            run.ID,
		Project:       run.Project,
		APIStatus:     apiStatus,
		TokensUsed:    run.TokensUsed,
		EstimatedCost: run.EstimatedCost,
		BatchesRun:    len(run.Batches),
		PauseReason:   pauseReason,
		Tasks:         tasks,
		Error:         err,
	}
}

// runEntry is one tracked run: its cancel func and the shadow snapshot API
// handlers actually read. The live *contracts.Run stays engine-owned and
// is never stored here.
type runEntry struct {
	mu          sync.RWMutex
	shadow      RunSnapshot
	cancel      context.CancelFunc
	done        bool
	completedAt time.Time
}

func (e *runEntry) updateShadow(run *contracts.Run, apiStatus, pauseReason string, err error) {
	snap := snapshotOf(run, apiStatus, pauseReason, err)
	e.mu.Lock()
	e.shadow = snap
	e.mu.Unlock()
}

func (e *runEntry) snapshot() RunSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.shadow
}

func (e *runEntry) markDone(run *contracts.Run, apiStatus, pauseReason string, err error) {
	e.updateShadow(run, apiStatus, pauseReason, err)
	e.mu.Lock()
	e.done = true
	e.completedAt = time.Now()
	e.mu.Unlock()
}

func (e *runEntry) isDone() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.done
}

// RunStore is the thread-safe in-memory registry of runs the sidecar is
// tracking, keyed by run ID.
type RunStore struct {
	mu      sync.RWMutex
	entries map[contracts.RunID]*runEntry
	wg      sync.WaitGroup
}

// NewRunStore returns an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{entries: make(map[contracts.RunID]*runEntry)}
}

// Create registers a new run entry with an initial snapshot, rejecting a
// duplicate run ID.
func (s *RunStore) Create(run *contracts.Run, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[run.ID]; exists {
		return ErrRunExists
	}

	entry := &runEntry{cancel: cancel}
	entry.shadow = snapshotOf(run, run.Status.String(), "", nil)
	s.entries[run.ID] = entry
	s.wg.Add(1)
	return nil
}

// get returns the entry for runID, or nil if untracked.
func (s *RunStore) get(runID contracts.RunID) *runEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[runID]
}

// GetSnapshot returns the current shadow snapshot for runID.
func (s *RunStore) GetSnapshot(runID contracts.RunID) (RunSnapshot, bool) {
	entry := s.get(runID)
	if entry == nil {
		return RunSnapshot{}, false
	}
	return entry.snapshot(), true
}

// UpdateProgress refreshes runID's shadow snapshot from run's live state.
// Called from the StateStore decorator every time the engine persists
// (i.e. after every task and batch status transition).
func (s *RunStore) UpdateProgress(runID contracts.RunID, run *contracts.Run) {
	entry := s.get(runID)
	if entry == nil {
		return
	}
	entry.updateShadow(run, run.Status.String(), "", nil)
}

// MarkDone records a run's terminal state and releases its WaitGroup slot.
func (s *RunStore) MarkDone(runID contracts.RunID, run *contracts.Run, result contracts.RunResult, err error) {
	entry := s.get(runID)
	if entry == nil {
		return
	}
	status := result.Status.String()
	if status == "" {
		status = run.Status.String()
	}
	entry.markDone(run, status, result.Summary.PauseReason, err)
	s.wg.Done()
}

// Abort cancels a run's context, causing its engine to stop at the next
// ctx.Done() check (§4.6 stop signal).
func (s *RunStore) Abort(runID contracts.RunID) error {
	entry := s.get(runID)
	if entry == nil {
		return contracts.ErrRunNotFound
	}
	if entry.isDone() {
		return contracts.ErrRunCompleted
	}
	entry.cancel()
	return nil
}

// PruneCompleted removes entries that finished more than retention ago.
func (s *RunStore) PruneCompleted(retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		entry.mu.RLock()
		expired := entry.done && entry.completedAt.Before(cutoff)
		entry.mu.RUnlock()
		if expired {
			delete(s.entries, id)
		}
	}
}

// WaitAll blocks until every tracked run has reached a terminal state —
// used for graceful shutdown.
func (s *RunStore) WaitAll() {
	s.wg.Wait()
}

// CancelAll cancels every tracked, not-yet-done run's context.
func (s *RunStore) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if !entry.isDone() {
			entry.cancel()
		}
	}
}

// shadowingStore decorates a contracts.StateStore so every Save also
// refreshes the API-visible shadow snapshot for that run — progress
// updates flow through the existing persist() hook without run.Engine
// needing an API-specific callback of its own.
type shadowingStore struct {
	contracts.StateStore
	runStore *RunStore
	runID    contracts.RunID
}

func (s shadowingStore) Save(ctx context.Context, run *contracts.Run) error {
	if err := s.StateStore.Save(ctx, run); err != nil {
		return err
	}
	s.runStore.UpdateProgress(s.runID, run)
	return nil
}

var _ contracts.StateStore = shadowingStore{}
