// Package batch implements BatchEngine: dispatching a batch of tasks under
// a concurrency cap, then the temp-merge / integration-doctor / fast-forward
// / archive gating sequence (§4.5).
package batch

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskforge/orchestrator/contracts"
	"github.com/taskforge/orchestrator/internal/audit"
	"github.com/taskforge/orchestrator/internal/paths"
)

// TaskRunner runs one task's full per-task lifecycle for a batch dispatch.
// Satisfied by *task.Engine; declared narrowly here so this package doesn't
// import internal/task (Design Note "Capability injection" applied between
// internal packages, not just external ones).
type TaskRunner interface {
	RunTask(ctx context.Context, run *contracts.Run, task *contracts.Task, persist func() error) error
}

// StopReason names why finalizeBatch halted without completing the batch.
type StopReason string

const (
	StopNone                    StopReason = ""
	StopIntegrationDoctorFailed StopReason = "integration_doctor_failed"
	StopFastForwardFailed       StopReason = "fast_forward_failed"
)

// Engine implements the BatchEngine component.
type Engine struct {
	vcs   contracts.VCS
	tasks TaskRunner
	clock contracts.Clock
	paths *paths.Context
}

// Deps bundles Engine's capability dependencies.
type Deps struct {
	VCS   contracts.VCS
	Tasks TaskRunner
	Clock contracts.Clock
	Paths *paths.Context
}

// New returns a BatchEngine.
func New(d Deps) *Engine {
	return &Engine{vcs: d.VCS, tasks: d.Tasks, clock: d.Clock, paths: d.Paths}
}

// RunBatch transitions batch to running, marks every listed task running,
// and dispatches TaskEngine invocations with a concurrency cap of
// run.Policy.MaxParallel. The engines share a single VCS instance; each
// task's worktree is independent, so dispatch is safely concurrent (§4.5
// step 2) — bounded with golang.org/x/sync/errgroup's SetLimit, the same
// idiom the pack's own task scheduler uses for bounded fan-out.
func (e *Engine) RunBatch(ctx context.Context, run *contracts.Run, batch *contracts.Batch, persist func() error) error {
	batch.Status = contracts.BatchRunning
	batch.StartedAt = e.clock.Now()
	audit.Log("event=batch_started run_id=%s batch=%d tasks=%d", run.ID, batch.ID, len(batch.TaskIDs))
	if err := persist(); err != nil {
		return err
	}

	for _, id := range batch.TaskIDs {
		if t, ok := run.Tasks[id]; ok {
			t.Status = contracts.TaskRunning
			t.BatchID = batch.ID
		}
	}
	if err := persist(); err != nil {
		return err
	}

	maxParallel := run.Policy.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for _, id := range batch.TaskIDs {
		id := id
		task, ok := run.Tasks[id]
		if !ok {
			continue
		}
		g.Go(func() error {
			return e.tasks.RunTask(gctx, run, task, persist)
		})
	}

	return g.Wait()
}

// FinalizeBatch implements the merge/doctor/fast-forward/archive sequence
// (§4.5 finalizeBatch). Returns the stop reason if the batch could not
// complete; StopNone on success.
func (e *Engine) FinalizeBatch(ctx context.Context, run *contracts.Run, batch *contracts.Batch, doctorCommand string, doctorTimeout time.Duration, persist func() error) (StopReason, error) {
	succeeded, _ := partitionResults(run, batch)
	if len(succeeded) == 0 {
		batch.Status = contracts.BatchFailed
		return StopNone, persist()
	}

	for attempt := 0; ; attempt++ {
		branches := make([]string, 0, len(succeeded))
		for _, id := range succeeded {
			branches = append(branches, run.Tasks[id].Branch)
		}

		mergeResult, err := e.vcs.MergeTaskBranches(ctx, contracts.MergeRequest{
			RepoPath: run.RepoPath, MainBranch: run.MainBranch, Branches: branches,
		})
		if err != nil {
			return StopNone, fmt.Errorf("merging batch %d: %w", batch.ID, err)
		}

		if mergeResult.Status == "conflict" {
			shrunken := succeeded[:0:0]
			for _, id := range succeeded {
				task := run.Tasks[id]
				if reason, conflicted := mergeResult.Conflicts[task.Branch]; conflicted {
					task.Status = contracts.TaskNeedsHumanReview
					task.LastError = &contracts.TaskError{Code: "merge_conflict", Message: reason}
					audit.Warn("event=batch_merge_conflict run_id=%s batch=%d task_id=%s", run.ID, batch.ID, task.ID)
					continue
				}
				shrunken = append(shrunken, id)
			}
			if err := persist(); err != nil {
				return StopNone, err
			}
			if len(shrunken) == 0 {
				batch.Status = contracts.BatchFailed
				return StopNone, persist()
			}
			succeeded = shrunken
			continue // retry merge with the shrunken set
		}

		// merged
		if err := e.runIntegrationDoctor(ctx, run.RepoPath, doctorCommand, doctorTimeout); err != nil {
			for _, id := range succeeded {
				task := run.Tasks[id]
				task.Status = contracts.TaskNeedsHumanReview
				task.LastError = &contracts.TaskError{Code: "integration_doctor_failed", Message: err.Error()}
			}
			batch.Status = contracts.BatchFailed
			run.Status = contracts.RunStatusFailed
			audit.Warn("event=integration_doctor_failed run_id=%s batch=%d error=%s", run.ID, batch.ID, err)
			if perr := persist(); perr != nil {
				return StopNone, perr
			}
			return StopIntegrationDoctorFailed, nil
		}

		if err := e.vcs.FastForwardMainToMerge(ctx, run.RepoPath, run.MainBranch, mergeResult.MergeCommit); err != nil {
			batch.Status = contracts.BatchFailed
			run.Status = contracts.RunStatusFailed
			if perr := persist(); perr != nil {
				return StopNone, perr
			}
			return StopFastForwardFailed, nil
		}

		now := e.clock.Now()
		for _, id := range succeeded {
			task := run.Tasks[id]
			task.Status = contracts.TaskComplete
			task.CompletedAt = now
			e.archiveTask(run, task)
		}
		batch.Status = contracts.BatchComplete
		batch.MergeCommit = mergeResult.MergeCommit
		batch.IntegrationDoctorPassed = true
		batch.CompletedAt = now
		audit.Log("event=batch_completed run_id=%s batch=%d merge_commit=%s", run.ID, batch.ID, mergeResult.MergeCommit)
		return StopNone, persist()
	}
}

func (e *Engine) archiveTask(run *contracts.Run, task *contracts.Task) {
	slug := task.Manifest.Name
	active := e.paths.ActiveTaskDir(run.Project, task.ID, slug)
	archived := e.paths.ArchiveTaskDir(run.Project, run.ID, task.ID, slug)
	// Best-effort: the archive move is not modeled as a VCS or StateStore
	// operation, so a failure here is logged, not fatal to the batch — the
	// task has already reached `complete` in durable state.
	if err := moveDir(active, archived); err != nil {
		audit.Warn("event=task_archive_failed run_id=%s task_id=%s error=%s", run.ID, task.ID, err)
	}
}

func (e *Engine) runIntegrationDoctor(ctx context.Context, repoPath, doctorCommand string, timeout time.Duration) error {
	if doctorCommand == "" {
		return nil
	}
	doctorCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(doctorCtx, "sh", "-c", doctorCommand)
	cmd.Dir = repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", contracts.ErrIntegrationDoctor, trimOutput(out))
	}
	return nil
}

func partitionResults(run *contracts.Run, batch *contracts.Batch) (succeeded, failed []contracts.TaskID) {
	for _, id := range batch.TaskIDs {
		task, ok := run.Tasks[id]
		if !ok {
			continue
		}
		// task.Engine leaves a successful task complete (validated on a
		// block-mode budget breach); both are merge candidates.
		if task.Status == contracts.TaskValidated || task.Status == contracts.TaskComplete {
			succeeded = append(succeeded, id)
		} else {
			failed = append(failed, id)
		}
	}
	sort.Slice(succeeded, func(i, j int) bool { return succeeded[i] < succeeded[j] })
	return succeeded, failed
}

func trimOutput(out []byte) string {
	const max = 2000
	if len(out) > max {
		out = out[:max]
	}
	return string(out)
}
