package contracts

import "context"

// RunResult is the terminal outcome of a RunEngine invocation (§4.6 step 5).
type RunResult struct {
	Status  RunStatus
	Summary RunSummary
}

// RunSummary is the per-metric roll-up emitted at run termination (§4.6 step 5).
type RunSummary struct {
	TasksComplete int
	TasksFailed   int
	TasksSkipped  int
	BatchesRun    int
	TokensUsed    TokenCount
	EstimatedCost Cost
	DurationMs    int64
	PauseReason   string `json:"pause_reason,omitempty"`
}

// RunEngine coordinates the execution of a run's tasks through the batch
// scheduler, TaskEngine, and BatchEngine (§4.6).
//
// Run takes the run's state as given (reverting running tasks first when
// resume is set), loops dispatching batches until the run reaches a terminal
// status (complete/failed) or pauses for lack of progress, and persists state
// after every transition.
//
// Returns nil when the run settles as complete, paused, or failed through
// task outcomes or a failed integration gate — the RunStatus is recorded on
// the returned RunResult and on run. Returns a non-nil error for
// ErrInvalidInput (nil run), ErrDAGInvalid/ErrDAGCycle (manifest validation
// failure), StateStore or event-log write failures, errors from batch
// building, dispatch, or finalization (the run is then marked failed),
// ErrNoProgress (pending tasks, none ready, none blocked), or context
// cancellation.
type RunEngine interface {
	Run(ctx context.Context, run *Run, resume bool) (RunResult, error)
}
