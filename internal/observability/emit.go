package observability

import "github.com/taskforge/orchestrator/contracts"

// Emitter appends typed envelopes to a LogSink, stamping event name,
// timestamp and run id so call sites only supply the payload.
type Emitter struct {
	sink  contracts.LogSink
	clock contracts.Clock
	runID contracts.RunID
}

// NewEmitter binds a LogSink, Clock and run id for one run's event stream.
func NewEmitter(sink contracts.LogSink, clock contracts.Clock, runID contracts.RunID) *Emitter {
	return &Emitter{sink: sink, clock: clock, runID: runID}
}

func (e *Emitter) emit(name string, data any) (int64, error) {
	return e.sink.Append(Event{
		Event:     name,
		Timestamp: e.clock.Now(),
		RunID:     e.runID,
		Data:      data,
	})
}

// RunStarted records run.started.
func (e *Emitter) RunStarted() (int64, error) {
	return e.emit("run.started", nil)
}

// RunPaused records run.paused with the scenario-F blocked-dependency shape.
func (e *Emitter) RunPaused(reason string, blocked []BlockedTask) (int64, error) {
	return e.emit("run.paused", RunPausedData{Reason: reason, BlockedTasks: blocked})
}

// RunCompleted records run.completed with the final summary.
func (e *Emitter) RunCompleted(summary contracts.RunSummary) (int64, error) {
	return e.emit("run.completed", summary)
}

// RunFailed records run.failed.
func (e *Emitter) RunFailed(reason string) (int64, error) {
	return e.emit("run.failed", map[string]string{"reason": reason})
}

// RunStopped records run.stopped (§5 cancellation).
func (e *Emitter) RunStopped(d StoppedData) (int64, error) {
	return e.emit("run.stopped", d)
}

// TaskStarted records task.started.
func (e *Emitter) TaskStarted(taskID contracts.TaskID, attempt int) (int64, error) {
	return e.emit("task.started", map[string]any{"task_id": taskID, "attempt": attempt})
}

// TaskCompleted records task.completed.
func (e *Emitter) TaskCompleted(taskID contracts.TaskID, status contracts.TaskStatus) (int64, error) {
	return e.emit("task.completed", map[string]any{"task_id": taskID, "status": status.String()})
}

// TaskFailed records task.failed.
func (e *Emitter) TaskFailed(taskID contracts.TaskID, reason string) (int64, error) {
	return e.emit("task.failed", map[string]any{"task_id": taskID, "reason": reason})
}

// BatchStarted records batch.started.
func (e *Emitter) BatchStarted(batchID contracts.BatchID, taskIDs []contracts.TaskID) (int64, error) {
	return e.emit("batch.started", map[string]any{"batch_id": batchID, "task_ids": taskIDs})
}

// BatchCompleted records batch.completed.
func (e *Emitter) BatchCompleted(batchID contracts.BatchID, status contracts.BatchStatus) (int64, error) {
	return e.emit("batch.completed", map[string]any{"batch_id": batchID, "status": status.String()})
}

// BatchMergeConflict records batch.merge_conflict (§4.5 step 1 failure path).
func (e *Emitter) BatchMergeConflict(batchID contracts.BatchID, conflicts map[string]string) (int64, error) {
	return e.emit("batch.merge_conflict", MergeConflictData{BatchID: batchID, Conflicts: conflicts})
}
