// Package paths resolves the on-disk locations the engine reads and writes,
// all rooted under a single home directory (§6.1).
package paths

import (
	"fmt"
	"path/filepath"

	"github.com/taskforge/orchestrator/contracts"
)

// Context resolves state/log/workspace/history locations from a single root.
type Context struct {
	home string
}

// New returns a paths.Context rooted at home.
func New(home string) *Context {
	return &Context{home: home}
}

// Home returns the configured root directory.
func (c *Context) Home() string { return c.home }

// StateDir is the directory holding a project's run-state snapshots.
func (c *Context) StateDir(project contracts.ProjectName) string {
	return filepath.Join(c.home, "state", string(project))
}

// StateFile is the atomic snapshot path for one run.
func (c *Context) StateFile(project contracts.ProjectName, runID contracts.RunID) string {
	return filepath.Join(c.StateDir(project), fmt.Sprintf("run-%s.json", runID))
}

// RunLogsDir is the directory holding a run's controller and per-task logs.
func (c *Context) RunLogsDir(project contracts.ProjectName, runID contracts.RunID) string {
	return filepath.Join(c.home, "logs", string(project), fmt.Sprintf("run-%s", runID))
}

// OrchestratorLog is the run's controller event log.
func (c *Context) OrchestratorLog(project contracts.ProjectName, runID contracts.RunID) string {
	return filepath.Join(c.RunLogsDir(project, runID), "orchestrator.jsonl")
}

// TaskLogsDir is a task's per-task log directory, named by id and slug.
func (c *Context) TaskLogsDir(project contracts.ProjectName, runID contracts.RunID, taskID contracts.TaskID, slug string) string {
	return filepath.Join(c.RunLogsDir(project, runID), "tasks", fmt.Sprintf("%s-%s", taskID, slug))
}

// TaskEventsLog is a single task's event stream.
func (c *Context) TaskEventsLog(project contracts.ProjectName, runID contracts.RunID, taskID contracts.TaskID, slug string) string {
	return filepath.Join(c.TaskLogsDir(project, runID, taskID, slug), "events.jsonl")
}

// WorkspacesDir is the run's workspace root.
func (c *Context) WorkspacesDir(project contracts.ProjectName, runID contracts.RunID) string {
	return filepath.Join(c.home, "workspaces", string(project), fmt.Sprintf("run-%s", runID))
}

// TaskWorkspace is a single task's independent worktree.
func (c *Context) TaskWorkspace(project contracts.ProjectName, runID contracts.RunID, taskID contracts.TaskID) string {
	return filepath.Join(c.WorkspacesDir(project, runID), fmt.Sprintf("task-%s", taskID))
}

// HistoryDir is the project's run/task history directory.
func (c *Context) HistoryDir(project contracts.ProjectName) string {
	return filepath.Join(c.home, "history", string(project))
}

// RunsIndex is the project's append-on-terminal run index.
func (c *Context) RunsIndex(project contracts.ProjectName) string {
	return filepath.Join(c.HistoryDir(project), "runs.json")
}

// TasksLedger is the project's merge-commit-keyed task ledger.
func (c *Context) TasksLedger(project contracts.ProjectName) string {
	return filepath.Join(c.HistoryDir(project), "tasks.json")
}

// ActiveTaskDir and ArchiveTaskDir are the two homes a task's directory
// moves between on archival (§4.5 step 4): active/<id>-slug -> archive/run-<runId>/<id>-slug.
func (c *Context) ActiveTaskDir(project contracts.ProjectName, taskID contracts.TaskID, slug string) string {
	return filepath.Join(c.home, "active", string(project), fmt.Sprintf("%s-%s", taskID, slug))
}

func (c *Context) ArchiveTaskDir(project contracts.ProjectName, runID contracts.RunID, taskID contracts.TaskID, slug string) string {
	return filepath.Join(c.home, "archive", string(project), fmt.Sprintf("run-%s", runID), fmt.Sprintf("%s-%s", taskID, slug))
}
