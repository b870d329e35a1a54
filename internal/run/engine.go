// Package run implements RunEngine: the top-level run lifecycle — resume,
// status-set computation, the batch dispatch loop, stop-signal handling, and
// summary emission (§4.6).
package run

import (
	"context"
	"sort"
	"time"

	"github.com/taskforge/orchestrator/contracts"
	"github.com/taskforge/orchestrator/internal/audit"
	"github.com/taskforge/orchestrator/internal/batch"
	"github.com/taskforge/orchestrator/internal/observability"
)

// BatchDispatcher is the narrow capability this package needs from
// BatchEngine — declared locally so this package doesn't depend on
// internal/batch's concrete Engine, only its StopReason vocabulary (Design
// Note "Capability injection" applied between internal packages).
type BatchDispatcher interface {
	RunBatch(ctx context.Context, run *contracts.Run, b *contracts.Batch, persist func() error) error
	FinalizeBatch(ctx context.Context, run *contracts.Run, b *contracts.Batch, doctorCommand string, doctorTimeout time.Duration, persist func() error) (batch.StopReason, error)
}

// Engine implements contracts.RunEngine.
type Engine struct {
	scheduler   contracts.Scheduler
	depResolver contracts.DependencyResolver
	dispatcher  BatchDispatcher
	store       contracts.StateStore
	clock       contracts.Clock
	logs        contracts.LogSink
}

// Deps bundles Engine's capability dependencies.
type Deps struct {
	Scheduler   contracts.Scheduler
	DepResolver contracts.DependencyResolver
	Dispatcher  BatchDispatcher
	Store       contracts.StateStore
	Clock       contracts.Clock
	Logs        contracts.LogSink
}

// New returns a RunEngine.
func New(d Deps) *Engine {
	return &Engine{
		scheduler:   d.Scheduler,
		depResolver: d.DepResolver,
		dispatcher:  d.Dispatcher,
		store:       d.Store,
		clock:       d.Clock,
		logs:        d.Logs,
	}
}

// Run drives run through the §4.6 dispatch loop to a terminal or paused
// status. On resume, running tasks and batches are first reverted per
// resetRunningTasks (the crash-recovery contract).
func (e *Engine) Run(ctx context.Context, run *contracts.Run, resume bool) (contracts.RunResult, error) {
	if run == nil {
		return contracts.RunResult{}, contracts.ErrInvalidInput
	}
	if err := e.depResolver.Validate(run); err != nil {
		run.Status = contracts.RunStatusFailed
		return contracts.RunResult{}, err
	}

	emitter := observability.NewEmitter(e.logs, e.clock, run.ID)
	runStart := e.clock.Now()

	if resume {
		e.resetRunningTasks(run)
	}

	run.Status = contracts.RunStatusRunning
	audit.Log("event=run_started run_id=%s project=%s resume=%t", run.ID, run.Project, resume)
	if _, err := emitter.RunStarted(); err != nil {
		return contracts.RunResult{}, err
	}
	if err := e.store.Save(ctx, run); err != nil {
		return contracts.RunResult{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return e.stop(ctx, run, emitter)
		default:
		}

		ready := e.scheduler.ReadyCandidates(run)
		if len(ready) == 0 {
			if done, result, err := e.settleNoCandidates(ctx, run, emitter, runStart); done {
				return result, err
			}
		}

		maxParallel := run.Policy.MaxParallel
		if maxParallel <= 0 {
			maxParallel = 1
		}
		ids, err := e.scheduler.BuildGreedyBatch(ctx, run, ready, maxParallel)
		if err != nil {
			run.Status = contracts.RunStatusFailed
			_, _ = emitter.RunFailed(err.Error())
			_ = e.store.Save(ctx, run)
			return contracts.RunResult{Status: run.Status}, err
		}

		b := &contracts.Batch{ID: contracts.BatchID(len(run.Batches) + 1), TaskIDs: ids}
		run.Batches = append(run.Batches, b)

		if _, err := emitter.BatchStarted(b.ID, b.TaskIDs); err != nil {
			return contracts.RunResult{}, err
		}
		persist := func() error { return e.store.Save(ctx, run) }

		if err := e.dispatcher.RunBatch(ctx, run, b, persist); err != nil {
			run.Status = contracts.RunStatusFailed
			_, _ = emitter.RunFailed(err.Error())
			_ = e.store.Save(ctx, run)
			return contracts.RunResult{Status: run.Status}, err
		}

		doctorTimeout := time.Duration(run.Policy.DoctorTimeoutSeconds) * time.Second
		if doctorTimeout <= 0 {
			doctorTimeout = 10 * time.Minute
		}
		stopReason, err := e.dispatcher.FinalizeBatch(ctx, run, b, run.Policy.DoctorCommand, doctorTimeout, persist)
		if err != nil {
			run.Status = contracts.RunStatusFailed
			_, _ = emitter.RunFailed(err.Error())
			_ = e.store.Save(ctx, run)
			return contracts.RunResult{Status: run.Status}, err
		}
		if _, err := emitter.BatchCompleted(b.ID, b.Status); err != nil {
			return contracts.RunResult{}, err
		}

		if stopReason != batch.StopNone {
			summary := e.buildSummary(run, runStart, "")
			_, _ = emitter.RunFailed(string(stopReason))
			if err := e.store.Save(ctx, run); err != nil {
				return contracts.RunResult{}, err
			}
			return contracts.RunResult{Status: run.Status, Summary: summary}, nil
		}
	}
}

// settleNoCandidates handles the empty-ready-set branch of the dispatch
// loop: either the run is done (every task success-equivalent terminal, or
// some task reached a non-recoverable terminal status) or no progress is
// possible and the run pauses (§4.6 step 3, scenario F).
func (e *Engine) settleNoCandidates(ctx context.Context, run *contracts.Run, emitter *observability.Emitter, runStart contracts.Timestamp) (bool, contracts.RunResult, error) {
	blocked := e.scheduler.BlockedTasks(run)
	pending := pendingTasks(run)

	if len(pending) == 0 {
		status := contracts.RunStatusComplete
		// run.Status is already failed when a block-mode budget breach hit.
		if hasNonRecoverableFailure(run) || run.Status == contracts.RunStatusFailed {
			status = contracts.RunStatusFailed
		}
		run.Status = status
		summary := e.buildSummary(run, runStart, "")
		if status == contracts.RunStatusComplete {
			_, _ = emitter.RunCompleted(summary)
		} else {
			_, _ = emitter.RunFailed("task_failures")
		}
		if err := e.store.Save(ctx, run); err != nil {
			return true, contracts.RunResult{}, err
		}
		return true, contracts.RunResult{Status: status, Summary: summary}, nil
	}

	// Nothing runs between batch dispatches, so with no ready candidate a
	// directly blocked task also stalls every pending task that depends on it,
	// however indirectly: the run pauses.
	if len(blocked) > 0 {
		blockedTasks := make([]observability.BlockedTask, 0, len(blocked))
		for _, t := range pending {
			deps, ok := blocked[t.ID]
			if !ok {
				continue
			}
			blockedTasks = append(blockedTasks, observability.BlockedTask{TaskID: t.ID, UnmetDeps: deps})
		}
		run.Status = contracts.RunStatusPaused
		audit.Warn("event=run_paused run_id=%s reason=blocked_dependencies blocked_count=%d", run.ID, len(blockedTasks))
		if _, err := emitter.RunPaused("blocked_dependencies", blockedTasks); err != nil {
			return true, contracts.RunResult{}, err
		}
		summary := e.buildSummary(run, runStart, "blocked_dependencies")
		if err := e.store.Save(ctx, run); err != nil {
			return true, contracts.RunResult{}, err
		}
		return true, contracts.RunResult{Status: run.Status, Summary: summary}, nil
	}

	// Pending tasks exist, none is ready, and none has a blocking dependency:
	// the scheduler has nothing to build a batch from.
	return true, contracts.RunResult{}, contracts.ErrNoProgress
}

func (e *Engine) stop(ctx context.Context, run *contracts.Run, emitter *observability.Emitter) (contracts.RunResult, error) {
	audit.Log("event=run_stop_signal run_id=%s", run.ID)
	_, _ = emitter.RunStopped(observability.StoppedData{Containers: "left"})
	if err := e.store.Save(ctx, run); err != nil {
		return contracts.RunResult{}, err
	}
	return contracts.RunResult{Status: run.Status}, ctx.Err()
}

// resetRunningTasks reverts every `running` task to `pending` (preserving
// attempts and validator_results per the decided Open Question) and marks
// every `running` batch `failed` with a synthetic completion time — the
// crash-recovery contract (§4.6 step 1).
func (e *Engine) resetRunningTasks(run *contracts.Run) {
	now := e.clock.Now()
	for _, t := range run.Tasks {
		if t.Status == contracts.TaskRunning {
			t.Status = contracts.TaskPending
			audit.Log("event=task_reset_on_resume run_id=%s task_id=%s attempts=%d", run.ID, t.ID, t.Attempts)
		}
	}
	for _, b := range run.Batches {
		if b.Status == contracts.BatchRunning {
			b.Status = contracts.BatchFailed
			b.CompletedAt = now
		}
	}
}

func (e *Engine) buildSummary(run *contracts.Run, runStart contracts.Timestamp, pauseReason string) contracts.RunSummary {
	summary := contracts.RunSummary{
		BatchesRun:    len(run.Batches),
		TokensUsed:    run.TokensUsed,
		EstimatedCost: run.EstimatedCost,
		DurationMs:    int64(e.clock.Now() - runStart),
		PauseReason:   pauseReason,
	}
	for _, t := range run.Tasks {
		switch t.Status {
		case contracts.TaskComplete, contracts.TaskValidated:
			summary.TasksComplete++
		case contracts.TaskSkipped:
			summary.TasksSkipped++
		case contracts.TaskFailed, contracts.TaskNeedsHumanReview, contracts.TaskRescopeRequired, contracts.TaskNeedsRescope:
			summary.TasksFailed++
		}
	}
	return summary
}

func pendingTasks(run *contracts.Run) []*contracts.Task {
	var out []*contracts.Task
	for _, t := range run.Tasks {
		if t.Status == contracts.TaskPending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// hasNonRecoverableFailure reports whether any task landed in a terminal
// status that is not success-equivalent, which fails the run even though no
// pending task remains (§4.6 step 4).
func hasNonRecoverableFailure(run *contracts.Run) bool {
	for _, t := range run.Tasks {
		if t.Status.IsTerminal() && !t.Status.IsSuccessEquivalent() {
			return true
		}
	}
	return false
}

var _ contracts.RunEngine = (*Engine)(nil)
