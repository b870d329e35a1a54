package contracts

import "context"

// =============================================================================
// Scheduling Interfaces
// =============================================================================

// BlockedDependency names one unmet, blocking dependency of a pending task.
type BlockedDependency struct {
	DepID        TaskID `json:"dep_id"`
	DepStatus    string `json:"dep_status"`
	DepLastError string `json:"dep_last_error,omitempty"`
}

// Scheduler computes the next ready batch of tasks and applies lock algebra
// over dependency-satisfied candidates (§4.3).
type Scheduler interface {
	// NormalizeLocks returns the effective NormalizedLocks for a task under
	// the run's configured LockMode (declared vs derived).
	NormalizeLocks(ctx context.Context, run *Run, task *Task) (NormalizedLocks, error)

	// BuildGreedyBatch selects the next set of non-conflicting ready tasks,
	// honoring maxParallel and input-order tie-breaking (§4.3).
	BuildGreedyBatch(ctx context.Context, run *Run, candidates []*Task, maxParallel int) (batch []TaskID, err error)

	// ReadyCandidates returns pending tasks whose dependencies are all in a
	// success-equivalent terminal status, sorted by TaskID.
	ReadyCandidates(run *Run) []*Task

	// BlockedTasks returns pending tasks with at least one blocking
	// dependency (§4.6), keyed by task ID, with the unmet dependency detail.
	BlockedTasks(run *Run) map[TaskID][]BlockedDependency
}

// DependencyResolver builds and validates the task dependency graph.
type DependencyResolver interface {
	// Validate checks the run's task set for cycles and missing dependency
	// references.
	Validate(run *Run) error
}

// =============================================================================
// VCS Interfaces
// =============================================================================

// MergeRequest is the input to VCS.MergeTaskBranches.
type MergeRequest struct {
	RepoPath   string
	MainBranch string
	Branches   []string
}

// MergeResult is the outcome of a temp-merge attempt (§4.2).
type MergeResult struct {
	Status      string            `json:"status"` // merged|conflict
	Merged      []string          `json:"merged"`
	Conflicts   map[string]string `json:"conflicts"` // branch -> reason
	MergeCommit string            `json:"merge_commit,omitempty"`
}

// VCS is the capability the core consumes for all version-control
// primitives (§4.2). Implementations wrap the underlying git binary.
type VCS interface {
	EnsureCleanWorkingTree(ctx context.Context, repoPath string) error
	ResolveRunBaseSha(ctx context.Context, repoPath, mainBranch string) (string, error)
	CheckoutOrCreateBranch(ctx context.Context, workspacePath, branch, baseSha string) error
	HeadSha(ctx context.Context, workspacePath string) (string, error)
	IsAncestor(ctx context.Context, repoPath, ancestor, descendant string) (bool, error)
	ListChangedFiles(ctx context.Context, workspacePath, baseRef string) ([]string, error)
	MergeTaskBranches(ctx context.Context, req MergeRequest) (MergeResult, error)
	FastForwardMainToMerge(ctx context.Context, repoPath, mainBranch, mergeCommit string) error
	BuildTaskBranchName(taskID TaskID, taskName string) string

	// EnsureWorktree creates an independent worktree at workspacePath
	// pointing at repoPath's object database, checked out to branch
	// (creating branch at baseSha if it doesn't exist).
	EnsureWorktree(ctx context.Context, repoPath, workspacePath, branch, baseSha string) error
	// RemoveWorktree tears down a worktree created by EnsureWorktree.
	RemoveWorktree(ctx context.Context, repoPath, workspacePath string) error
}

// =============================================================================
// StateStore Interfaces
// =============================================================================

// StateStore is durable, crash-safe RunState persistence (§4.1).
type StateStore interface {
	Save(ctx context.Context, run *Run) error
	Load(ctx context.Context, project ProjectName, runID RunID) (*Run, error)
	Exists(ctx context.Context, project ProjectName, runID RunID) (bool, error)
	FindLatestRunID(ctx context.Context, project ProjectName) (RunID, bool, error)
}

// =============================================================================
// WorkerRunner / ValidatorRunner Interfaces
// =============================================================================

// WorkerInput carries the per-task context passed to every WorkerRunner call.
type WorkerInput struct {
	Project        ProjectName
	RunID          RunID
	TaskID         TaskID
	TaskSpec       *TaskManifest
	WorkspacePath  string
	TaskEventsPath string
}

// WorkerOutcome is the result of a WorkerRunner.runAttempt/resumeAttempt call.
type WorkerOutcome struct {
	Success        bool
	ResetToPending bool
	Timeout        bool // attempt hit its deadline; counts as a transient failure
	ErrorMessage   string
	Usage          Usage
	Output         string
}

// StopOutcome is the result of WorkerRunner.stop.
type StopOutcome struct {
	Stopped int
	Errors  int
}

// WorkerRunner is the out-of-core capability that drives code changes
// (§1, §6.3). The core never authors code; it only invokes this contract.
type WorkerRunner interface {
	Prepare(ctx context.Context, in WorkerInput) error
	RunAttempt(ctx context.Context, in WorkerInput) (WorkerOutcome, error)
	ResumeAttempt(ctx context.Context, in WorkerInput) (WorkerOutcome, error)
	Stop(ctx context.Context, in WorkerInput) (StopOutcome, error)
	CleanupTask(ctx context.Context, in WorkerInput) error
}

// ValidatorVerdict is one ValidatorRunner call's result, or nil if disabled.
type ValidatorVerdict struct {
	Status     string // pass|fail|error|skip
	Mode       string // warn|block
	Summary    string
	ReportPath string
}

// ValidatorRunner returns one verdict per validator kind (§6.3).
type ValidatorRunner interface {
	RunValidator(ctx context.Context, kind string, in WorkerInput) (*ValidatorVerdict, error)
	Kinds() []string
}

// =============================================================================
// Compliance / Budget Interfaces
// =============================================================================

// CompliancePipeline wraps manifest-enforcement decisions (§6.3, §4.4 step 6).
type CompliancePipeline interface {
	RunForTask(ctx context.Context, run *Run, task *Task, changedFiles []string) (ComplianceResult, error)
}

// UsageEvent is one budget-relevant usage observation, typically emitted per
// WorkerRunner attempt.
type UsageEvent struct {
	TaskID TaskID
	Usage  Usage
}

// UsageSnapshot is the accumulated usage for a run at a point in time.
type UsageSnapshot struct {
	TotalTokens TokenCount
	TotalCost   Cost
	ByTask      map[TaskID]Usage
}

// BudgetBreach names one task/run-level budget violation.
type BudgetBreach struct {
	TaskID TaskID
	Reason string
	Mode   string // warn|block
}

// BreachReport lists budget breaches detected against a snapshot.
type BreachReport struct {
	Breaches []BudgetBreach
}

// BudgetTracker wraps token accounting and breach evaluation (§6.3).
type BudgetTracker interface {
	RecordUsageUpdates(run *Run, events []UsageEvent) UsageSnapshot
	EvaluateBreaches(snapshot UsageSnapshot, policy RunPolicy) BreachReport
}

// =============================================================================
// Control-Plane Interfaces
// =============================================================================

// ScopeReport is the control-plane's derived write-scope for a task,
// consumed only when RunPolicy.LockMode == LockModeDerived (§6.3).
type ScopeReport struct {
	DerivedWriteResources []string        `json:"derived_write_resources"`
	DerivedWritePaths     []string        `json:"derived_write_paths,omitempty"`
	DerivedLocks          NormalizedLocks `json:"derived_locks"`
	Confidence            float64         `json:"confidence"`
	Notes                 []string        `json:"notes,omitempty"`
}

// ControlPlaneHooks are the optional read-only query hooks the core
// consumes for scope derivation and blast-radius reporting (§1, §6.3).
type ControlPlaneHooks interface {
	DeriveTaskWriteScopeReport(ctx context.Context, manifest *TaskManifest, model string) (ScopeReport, error)
	BlastRadius(ctx context.Context, changedComponents []string) ([]string, error)
}

// =============================================================================
// Observability Interfaces
// =============================================================================

// LogSink is the append-only event log capability (§4.7).
type LogSink interface {
	Append(record any) (offset int64, err error)
	Read(cursor int64) (lines []string, nextCursor int64, err error)
}

// Clock abstracts wall-clock time so the engine is deterministically
// testable (Design Note "Capability injection").
type Clock interface {
	Now() Timestamp
}
