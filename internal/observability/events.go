package observability

import "github.com/taskforge/orchestrator/contracts"

// Event is the envelope every controller/task event record shares.
type Event struct {
	Event     string             `json:"event"`
	Timestamp contracts.Timestamp `json:"ts"`
	RunID     contracts.RunID    `json:"run_id"`
	Data      any                `json:"data,omitempty"`
}

// BlockedTask names one pending task and its unmet dependencies inside a
// RunPaused event (§4.6 step 3, scenario F).
type BlockedTask struct {
	TaskID    contracts.TaskID             `json:"task_id"`
	UnmetDeps []contracts.BlockedDependency `json:"unmet_deps"`
}

// RunPausedData is the payload of a run.paused event.
type RunPausedData struct {
	Reason       string        `json:"reason"`
	BlockedTasks []BlockedTask `json:"blocked_tasks,omitempty"`
}

// StoppedData is the payload of a run.stopped event (§5 cancellation).
type StoppedData struct {
	Stopped    int    `json:"stopped"`
	Errors     int    `json:"errors"`
	Containers string `json:"containers"` // "stopped"|"left"
}

// MergeConflictData is the payload of a batch.merge_conflict event.
type MergeConflictData struct {
	BatchID   contracts.BatchID `json:"batch_id"`
	Conflicts map[string]string `json:"conflicts"`
}
