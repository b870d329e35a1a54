// Package worker implements the default, out-of-process contracts.WorkerRunner
// and contracts.ValidatorRunner: both drive an external command via
// os/exec, the same shelling-out idiom internal/vcs uses for git. The core
// never authors code changes itself — it only ever invokes these contracts
// — so the concrete agent is whatever binary the operator configures.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/taskforge/orchestrator/contracts"
)

// CommandRunner drives a task attempt by invoking bin with a fixed argument
// template, substituting {{task_id}}, {{workspace}}, and {{events_path}}.
type CommandRunner struct {
	bin         string
	args        []string
	attemptTimeout time.Duration
}

// New returns a CommandRunner. An empty bin disables attempts entirely —
// Prepare/RunAttempt then fail fast rather than silently succeeding.
func New(bin string, args []string, attemptTimeout time.Duration) *CommandRunner {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Minute
	}
	return &CommandRunner{bin: bin, args: args, attemptTimeout: attemptTimeout}
}

func (c *CommandRunner) substitute(in contracts.WorkerInput) []string {
	out := make([]string, len(c.args))
	for i, a := range c.args {
		a = strings.ReplaceAll(a, "{{task_id}}", string(in.TaskID))
		a = strings.ReplaceAll(a, "{{workspace}}", in.WorkspacePath)
		a = strings.ReplaceAll(a, "{{events_path}}", in.TaskEventsPath)
		out[i] = a
	}
	return out
}

// Prepare only checks that a command is configured: workspace setup is the
// caller's (task.Engine's) responsibility via contracts.VCS.EnsureWorktree.
func (c *CommandRunner) Prepare(ctx context.Context, in contracts.WorkerInput) error {
	if c.bin == "" {
		return fmt.Errorf("worker: no command configured")
	}
	return nil
}

// RunAttempt invokes the configured command once in in.WorkspacePath and
// reports success purely by exit code.
func (c *CommandRunner) RunAttempt(ctx context.Context, in contracts.WorkerInput) (contracts.WorkerOutcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	cmd := exec.CommandContext(attemptCtx, c.bin, c.substitute(in)...)
	cmd.Dir = in.WorkspacePath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return contracts.WorkerOutcome{
				Success:      false,
				Timeout:      true,
				ErrorMessage: "timeout",
				Output:       stdout.String(),
			}, nil
		}
		return contracts.WorkerOutcome{
			Success:      false,
			ErrorMessage: strings.TrimSpace(stderr.String()),
			Output:       stdout.String(),
		}, nil
	}
	return contracts.WorkerOutcome{
		Success: true,
		Output:  stdout.String(),
	}, nil
}

// ResumeAttempt re-runs the same command; the external agent is
// responsible for detecting and continuing from prior progress via
// in.WorkspacePath's git history.
func (c *CommandRunner) ResumeAttempt(ctx context.Context, in contracts.WorkerInput) (contracts.WorkerOutcome, error) {
	return c.RunAttempt(ctx, in)
}

// Stop is a best-effort no-op: attempts run to completion or timeout since
// CommandRunner does not track in-flight processes across calls.
func (c *CommandRunner) Stop(ctx context.Context, in contracts.WorkerInput) (contracts.StopOutcome, error) {
	return contracts.StopOutcome{}, nil
}

// CleanupTask is a no-op: workspace teardown is contracts.VCS.RemoveWorktree's job.
func (c *CommandRunner) CleanupTask(ctx context.Context, in contracts.WorkerInput) error {
	return nil
}

var _ contracts.WorkerRunner = (*CommandRunner)(nil)
