package worker

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/taskforge/orchestrator/contracts"
)

// ShellValidator runs one shell command per validator kind in a task's
// workspace, the same shelling-out pattern as the integration-doctor check
// in internal/batch, generalized to a named kind/command map.
type ShellValidator struct {
	commands map[string]string // kind -> shell command
	mode     map[string]string // kind -> warn|block
	timeout  time.Duration
}

// NewShellValidator returns a ValidatorRunner over commands, run with
// mode[kind] (default "warn" if unset).
func NewShellValidator(commands, mode map[string]string, timeout time.Duration) *ShellValidator {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ShellValidator{commands: commands, mode: mode, timeout: timeout}
}

// Kinds returns the configured validator kinds, unordered.
func (s *ShellValidator) Kinds() []string {
	kinds := make([]string, 0, len(s.commands))
	for k := range s.commands {
		kinds = append(kinds, k)
	}
	return kinds
}

// RunValidator runs commands[kind] in in.WorkspacePath. A kind with no
// configured command is skipped rather than treated as a failure.
func (s *ShellValidator) RunValidator(ctx context.Context, kind string, in contracts.WorkerInput) (*contracts.ValidatorVerdict, error) {
	command, ok := s.commands[kind]
	if !ok || command == "" {
		return &contracts.ValidatorVerdict{Status: "skip"}, nil
	}

	mode := s.mode[kind]
	if mode == "" {
		mode = "warn"
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = in.WorkspacePath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	status := "pass"
	if err := cmd.Run(); err != nil {
		status = "fail"
		if runCtx.Err() != nil {
			status = "error"
		}
	}

	return &contracts.ValidatorVerdict{
		Status:  status,
		Mode:    mode,
		Summary: strings.TrimSpace(stderr.String()),
	}, nil
}

var _ contracts.ValidatorRunner = (*ShellValidator)(nil)
