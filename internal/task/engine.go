// Package task implements TaskEngine: the per-task lifecycle state machine
// — workspace prep, the worker attempt loop, validation, compliance,
// rescope, and budget enforcement (§4.4).
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskforge/orchestrator/contracts"
	"github.com/taskforge/orchestrator/internal/audit"
	"github.com/taskforge/orchestrator/internal/paths"
)

// Engine drives one task through its state machine for one batch dispatch.
// One Engine is built per run (internal/engine.Build), but RunBatch fans
// the run's tasks out across a bounded goroutine pool (§4.5 step 2), so
// every mutation of the shared *contracts.Run/*contracts.Task and every
// persist() call — which serializes the whole run, not just one task — is
// guarded by runMu. Only the worker/validator/vcs/compliance I/O calls,
// which touch no shared state beyond a value-copied contracts.WorkerInput
// or return a fresh value, run unguarded and therefore concurrently.
//
// No function below calls another runMu-locking function while already
// holding the lock itself — each acquires runMu for the span of its own
// mutation-and-persist and releases it before handing off.
type Engine struct {
	vcs        contracts.VCS
	worker     contracts.WorkerRunner
	validators contracts.ValidatorRunner
	compliance contracts.CompliancePipeline
	budget     contracts.BudgetTracker
	clock      contracts.Clock
	paths      *paths.Context

	runMu sync.Mutex
}

// Deps bundles Engine's capability dependencies (Design Note "Capability
// injection").
type Deps struct {
	VCS        contracts.VCS
	Worker     contracts.WorkerRunner
	Validators contracts.ValidatorRunner
	Compliance contracts.CompliancePipeline
	Budget     contracts.BudgetTracker
	Clock      contracts.Clock
	Paths      *paths.Context
}

// New returns a TaskEngine.
func New(d Deps) *Engine {
	return &Engine{
		vcs:        d.VCS,
		worker:     d.Worker,
		validators: d.Validators,
		compliance: d.Compliance,
		budget:     d.Budget,
		clock:      d.Clock,
		paths:      d.Paths,
	}
}

// RunTask drives task through workspace prep, the worker attempt loop
// (retrying on resetToPending, plain failure, and timeout alike, up to
// policy.MaxRetries attempts, 0 meaning unlimited), validation and
// compliance, leaving it in a terminal-for-batch status: complete, failed,
// needs_human_review, rescope_required, or validated (a block-mode budget
// breach, which also fails the run). A resetToPending outcome sets the task
// back to pending and retries it within this same call.
//
// persist is called after every status transition that must survive a
// crash before the next one is attempted — mirroring the teacher's
// checkpoint-after-every-transition discipline.
func (e *Engine) RunTask(ctx context.Context, run *contracts.Run, task *contracts.Task, persist func() error) error {
	if run == nil || task == nil || task.Manifest == nil {
		return contracts.ErrInvalidInput
	}

	if err := e.prepareWorkspace(ctx, run, task); err != nil {
		return err
	}

	firstEntryOfAttemptLoop := task.Attempts == 0
	for {
		e.runMu.Lock()
		task.Status = contracts.TaskRunning
		task.Attempts++
		audit.Log("event=task_started run_id=%s task_id=%s attempt=%d", run.ID, task.ID, task.Attempts)
		perr := persist()
		e.runMu.Unlock()
		if perr != nil {
			return perr
		}

		input := contracts.WorkerInput{
			Project:        run.Project,
			RunID:          run.ID,
			TaskID:         task.ID,
			TaskSpec:       task.Manifest,
			WorkspacePath:  task.Workspace,
			TaskEventsPath: task.LogsDir,
		}

		var outcome contracts.WorkerOutcome
		var err error
		if firstEntryOfAttemptLoop {
			if err = e.worker.Prepare(ctx, input); err != nil {
				return e.fail(run, task, "worker_prepare_failed", err, persist)
			}
			outcome, err = e.worker.RunAttempt(ctx, input)
		} else {
			outcome, err = e.worker.ResumeAttempt(ctx, input)
		}
		firstEntryOfAttemptLoop = false
		if err != nil {
			return e.fail(run, task, "worker_error", err, persist)
		}

		if e.budget != nil {
			e.runMu.Lock()
			snapshot := e.budget.RecordUsageUpdates(run, []contracts.UsageEvent{{TaskID: task.ID, Usage: outcome.Usage}})
			breach := e.budget.EvaluateBreaches(snapshot, run.Policy)
			e.runMu.Unlock()
			if len(breach.Breaches) > 0 {
				blocked, err := e.handleBudgetBreach(run, task, breach, persist)
				if err != nil {
					return err
				}
				if blocked {
					// Budget block is fatal to the run; the code change this
					// attempt produced stands as validated, but no further
					// validation/compliance/retry proceeds (§4.4 Budget note).
					return nil
				}
			}
		}

		if outcome.ResetToPending {
			e.runMu.Lock()
			task.Status = contracts.TaskPending
			audit.Log("event=task_reset_to_pending run_id=%s task_id=%s attempt=%d", run.ID, task.ID, task.Attempts)
			perr := persist()
			e.runMu.Unlock()
			if perr != nil {
				return perr
			}
			if run.Policy.MaxRetries > 0 && task.Attempts >= run.Policy.MaxRetries {
				return e.fail(run, task, "max_retries_exceeded", fmt.Errorf("exceeded %d retries", run.Policy.MaxRetries), persist)
			}
			continue
		}

		if !outcome.Success {
			// Transient worker failures and timeouts both count against
			// max_retries and retry in place (§7); only exhausting retries
			// fails the task.
			code := "worker_failed"
			message := outcome.ErrorMessage
			if outcome.Timeout {
				code = "worker_timeout"
				if message == "" {
					message = "timeout"
				}
			}
			terminal, err := e.recordAttemptFailure(run, task, code, message, persist)
			if err != nil {
				return err
			}
			if terminal {
				return nil
			}
			continue
		}

		e.runMu.Lock()
		task.Status = contracts.TaskValidated
		e.runMu.Unlock()
		break
	}

	return e.validateAndFinalize(ctx, run, task, persist)
}

func (e *Engine) prepareWorkspace(ctx context.Context, run *contracts.Run, task *contracts.Task) error {
	e.runMu.Lock()
	alreadyPrepared := task.Workspace != ""
	e.runMu.Unlock()
	if alreadyPrepared {
		return nil // already prepared; idempotent re-entry
	}
	branch := e.vcs.BuildTaskBranchName(task.ID, task.Manifest.Name)
	workspace := e.paths.TaskWorkspace(run.Project, run.ID, task.ID)

	if err := e.vcs.EnsureWorktree(ctx, run.RepoPath, workspace, branch, run.BaseSHA); err != nil {
		return fmt.Errorf("preparing workspace for task %s: %w", task.ID, err)
	}

	e.runMu.Lock()
	task.Branch = branch
	task.Workspace = workspace
	task.LogsDir = e.paths.TaskLogsDir(run.Project, run.ID, task.ID, task.Manifest.Name)
	e.runMu.Unlock()
	return nil
}

// recordAttemptFailure records a transient attempt failure (ordinary
// worker failure or timeout) against task.LastError and reports whether
// max_retries is now exhausted. If exhausted, it has already failed and
// persisted the task via fail; the caller must not persist again.
func (e *Engine) recordAttemptFailure(run *contracts.Run, task *contracts.Task, code, message string, persist func() error) (terminal bool, err error) {
	e.runMu.Lock()
	task.LastError = &contracts.TaskError{Code: code, Message: message}
	audit.Warn("event=task_attempt_failed run_id=%s task_id=%s code=%s attempt=%d", run.ID, task.ID, code, task.Attempts)
	perr := persist()
	e.runMu.Unlock()
	if perr != nil {
		return false, perr
	}
	if run.Policy.MaxRetries > 0 && task.Attempts >= run.Policy.MaxRetries {
		return true, e.fail(run, task, code, fmt.Errorf("%s", message), persist)
	}
	return false, nil
}

func (e *Engine) fail(run *contracts.Run, task *contracts.Task, code string, cause error, persist func() error) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	task.Status = contracts.TaskFailed
	task.LastError = &contracts.TaskError{Code: code, Message: cause.Error()}
	audit.Warn("event=task_failed run_id=%s task_id=%s code=%s error=%s", run.ID, task.ID, code, cause)
	return persist()
}

// handleBudgetBreach records breaches for task. Returns blocked=true if a
// block-mode breach occurred, fatal to the run (§4.4 Budget note).
func (e *Engine) handleBudgetBreach(run *contracts.Run, task *contracts.Task, report contracts.BreachReport, persist func() error) (blocked bool, err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	for _, b := range report.Breaches {
		if b.TaskID != task.ID {
			continue
		}
		if b.Mode == "block" {
			task.Status = contracts.TaskValidated
			run.Status = contracts.RunStatusFailed
			audit.Warn("event=budget_breach run_id=%s task_id=%s mode=block reason=%s", run.ID, task.ID, b.Reason)
			return true, persist()
		}
		audit.Warn("event=budget_breach run_id=%s task_id=%s mode=warn reason=%s", run.ID, task.ID, b.Reason)
	}
	return false, nil
}

func (e *Engine) validateAndFinalize(ctx context.Context, run *contracts.Run, task *contracts.Task, persist func() error) error {
	changedFiles, err := e.vcs.ListChangedFiles(ctx, task.Workspace, run.BaseSHA)
	if err != nil {
		return fmt.Errorf("listing changed files for task %s: %w", task.ID, err)
	}

	if e.compliance != nil {
		result, err := e.compliance.RunForTask(ctx, run, task, changedFiles)
		if err != nil {
			return fmt.Errorf("compliance check for task %s: %w", task.ID, err)
		}

		e.runMu.Lock()
		task.Compliance = &result
		rescopeRequired := result.Rescope.Status == "required"
		if rescopeRequired {
			task.Status = contracts.TaskRescopeRequired
			task.LastError = &contracts.TaskError{Code: "compliance_block", Message: result.Rescope.Reason}
			audit.Warn("event=task_rescope_required run_id=%s task_id=%s reason=%s", run.ID, task.ID, result.Rescope.Reason)
		}
		perr := persist()
		e.runMu.Unlock()
		if perr != nil {
			return perr
		}
		if rescopeRequired {
			return nil
		}
	}

	if e.validators != nil {
		input := contracts.WorkerInput{
			Project: run.Project, RunID: run.ID, TaskID: task.ID,
			TaskSpec: task.Manifest, WorkspacePath: task.Workspace, TaskEventsPath: task.LogsDir,
		}
		for _, kind := range e.validators.Kinds() {
			verdict, err := e.validators.RunValidator(ctx, kind, input)
			if err != nil {
				return fmt.Errorf("validator %s for task %s: %w", kind, task.ID, err)
			}
			if verdict == nil {
				continue
			}

			e.runMu.Lock()
			task.ValidatorResults = append(task.ValidatorResults, contracts.ValidatorResult{
				Kind: kind, Status: verdict.Status, Mode: verdict.Mode,
				Summary: verdict.Summary, ReportPath: verdict.ReportPath,
			})
			blocked := verdict.Status == "fail" && verdict.Mode == "block"
			if blocked {
				task.Status = contracts.TaskNeedsHumanReview
				task.HumanReview = &contracts.HumanReview{Reason: verdict.Summary, Validator: kind, At: e.clock.Now()}
				audit.Warn("event=task_needs_human_review run_id=%s task_id=%s validator=%s", run.ID, task.ID, kind)
			}
			perr := persist()
			e.runMu.Unlock()
			if perr != nil {
				return perr
			}
			if blocked {
				return nil
			}
		}
	}

	e.runMu.Lock()
	task.Status = contracts.TaskComplete
	task.CompletedAt = e.clock.Now()
	audit.Log("event=task_completed run_id=%s task_id=%s", run.ID, task.ID)
	perr := persist()
	e.runMu.Unlock()
	return perr
}
