package contracts

import (
	"encoding/json"
	"sort"
)

// Cost represents a monetary amount in a given currency.
type Cost struct {
	Amount   float64  `json:"amount"`
	Currency Currency `json:"currency"`
}

// Usage represents token consumption and its associated cost.
type Usage struct {
	Tokens TokenCount `json:"tokens"`
	Cost   Cost       `json:"cost"`
}

// RawLocks is the declared-or-derived read/write resource set before
// normalization (§4.3 normalizeLocks).
type RawLocks struct {
	Reads  []string `json:"reads,omitempty"`
	Writes []string `json:"writes,omitempty"`
}

// NormalizedLocks is a deduplicated, sorted lock set with the invariant
// reads ⊇ writes (a write implies a read). Construct via NormalizeLocks,
// never by hand, so the invariant always holds.
type NormalizedLocks struct {
	Reads  []string `json:"reads"`
	Writes []string `json:"writes"`
}

// NormalizeLocks returns a NormalizedLocks respecting reads ∩ writes = writes.
func NormalizeLocks(raw RawLocks) NormalizedLocks {
	readSet := make(map[string]struct{}, len(raw.Reads)+len(raw.Writes))
	writeSet := make(map[string]struct{}, len(raw.Writes))
	for _, r := range raw.Reads {
		readSet[r] = struct{}{}
	}
	for _, w := range raw.Writes {
		writeSet[w] = struct{}{}
		readSet[w] = struct{}{} // a write implies a read
	}

	reads := make([]string, 0, len(readSet))
	for r := range readSet {
		reads = append(reads, r)
	}
	writes := make([]string, 0, len(writeSet))
	for w := range writeSet {
		writes = append(writes, w)
	}
	sort.Strings(reads)
	sort.Strings(writes)
	return NormalizedLocks{Reads: reads, Writes: writes}
}

// Conflicts reports whether two normalized lock sets conflict: writes_A ∩
// (reads_B ∪ writes_B) ≠ ∅, or the symmetric case.
func (l NormalizedLocks) Conflicts(other NormalizedLocks) bool {
	return intersectsAny(l.Writes, other.Reads) ||
		intersectsAny(l.Writes, other.Writes) ||
		intersectsAny(other.Writes, l.Reads)
}

func intersectsAny(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, x := range b {
		set[x] = struct{}{}
	}
	for _, x := range a {
		if _, ok := set[x]; ok {
			return true
		}
	}
	return false
}

// VerifyConfig names the task's verification commands.
type VerifyConfig struct {
	Doctor string `json:"doctor"`
	Fast   string `json:"fast,omitempty"`
	Lint   string `json:"lint,omitempty"`
}

// TDDMode controls whether a task must show a failing test before a passing one.
type TDDMode string

const (
	TDDModeOff    TDDMode = "off"
	TDDModeStrict TDDMode = "strict"
)

// TaskManifest is the immutable-within-a-run input describing one task.
type TaskManifest struct {
	ID           TaskID       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Dependencies []TaskID     `json:"dependencies,omitempty"`
	Locks        RawLocks     `json:"locks"`
	Files        RawLocks     `json:"files"`
	TDDMode      TDDMode      `json:"tdd_mode"`
	Verify       VerifyConfig `json:"verify"`
	TestPaths    []string     `json:"test_paths,omitempty"`
}

// ValidatorResult is one ValidatorRunner verdict for a task.
type ValidatorResult struct {
	Kind       string `json:"kind"`
	Status     string `json:"status"` // pass|fail|error|skip
	Mode       string `json:"mode"`   // warn|block
	Summary    string `json:"summary,omitempty"`
	ReportPath string `json:"report_path,omitempty"`
}

// HumanReview records why a task was escalated to needs_human_review.
type HumanReview struct {
	Reason    string    `json:"reason"`
	Validator string    `json:"validator,omitempty"`
	At        Timestamp `json:"at"`
}

// TaskError captures the last error observed for a task.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RescopeDecision is the CompliancePipeline's verdict on whether a task must
// narrow its declared write set.
type RescopeDecision struct {
	Status string `json:"status"` // ok|required
	Reason string `json:"reason,omitempty"`
}

// ScopeViolations counts compliance violations by severity.
type ScopeViolations struct {
	WarnCount  int `json:"warn_count"`
	BlockCount int `json:"block_count"`
}

// ComplianceResult is the CompliancePipeline.runForTask outcome (§6.3).
type ComplianceResult struct {
	EffectivePolicy string          `json:"effective_policy"`
	ReportPath      string          `json:"report_path,omitempty"`
	Compliance      string          `json:"compliance"`
	ScopeViolations ScopeViolations `json:"scope_violations"`
	Rescope         RescopeDecision `json:"rescope"`
}

// Task is a single unit of work in a run, tracked through TaskEngine's
// state machine (§4.4).
type Task struct {
	ID                TaskID            `json:"id"`
	Manifest          *TaskManifest     `json:"manifest"`
	Status            TaskStatus        `json:"status"`
	BatchID           BatchID           `json:"batch_id,omitempty"`
	Branch            string            `json:"branch,omitempty"`
	Workspace         string            `json:"workspace,omitempty"`
	LogsDir           string            `json:"logs_dir,omitempty"`
	Attempts          int               `json:"attempts"`
	CheckpointCommits []string          `json:"checkpoint_commits,omitempty"`
	ValidatorResults  []ValidatorResult `json:"validator_results,omitempty"`
	HumanReview       *HumanReview      `json:"human_review,omitempty"`
	TokensUsed        TokenCount        `json:"tokens_used"`
	EstimatedCost     Cost              `json:"estimated_cost"`
	UsageByAttempt    []Usage           `json:"usage_by_attempt,omitempty"`
	LastError         *TaskError        `json:"last_error,omitempty"`
	Compliance        *ComplianceResult `json:"compliance,omitempty"`
	CompletedAt       Timestamp         `json:"completed_at,omitempty"`
}

// Batch is a set of tasks proved non-conflicting under the current lock
// mode, executed and merged together (§4.5).
type Batch struct {
	ID                      BatchID         `json:"id"`
	Status                  BatchStatus     `json:"status"`
	TaskIDs                 []TaskID        `json:"task_ids"`
	Locks                   NormalizedLocks `json:"locks"`
	MergeCommit             string          `json:"merge_commit,omitempty"`
	IntegrationDoctorPassed bool            `json:"integration_doctor_passed"`
	StartedAt               Timestamp       `json:"started_at,omitempty"`
	CompletedAt             Timestamp       `json:"completed_at,omitempty"`
}

// BudgetPolicy is the per-task token budget enforcement config (§6.4 budgets).
type BudgetPolicy struct {
	MaxTokensPerTask TokenCount `json:"max_tokens_per_task"`
	Mode             string     `json:"mode"` // warn|block
}

// ManifestEnforcement controls how compliance violations affect a task.
type ManifestEnforcement string

const (
	EnforcementOff   ManifestEnforcement = "off"
	EnforcementWarn  ManifestEnforcement = "warn"
	EnforcementBlock ManifestEnforcement = "block"
)

// LockMode selects whether the Scheduler uses declared or derived locks.
type LockMode string

const (
	LockModeDeclared LockMode = "declared"
	LockModeDerived  LockMode = "derived"
)

// RunPolicy carries the execution constraints for a run (§6.4).
type RunPolicy struct {
	MaxParallel                int                 `json:"max_parallel"`
	MaxRetries                 int                 `json:"max_retries"` // 0 = unlimited
	DoctorCommand               string              `json:"doctor"`
	DoctorTimeoutSeconds        int                 `json:"doctor_timeout_seconds"`
	Budget                      BudgetPolicy        `json:"budgets"`
	ManifestEnforcement          ManifestEnforcement `json:"manifest_enforcement"`
	LockMode                     LockMode            `json:"lock_mode"`
	CleanupWorkspacesOnSuccess   bool                `json:"cleanup_workspaces_on_success"`
	CleanupContainersOnSuccess   bool                `json:"cleanup_containers_on_success"`
	KeepWorkspaces               bool                `json:"keep_workspaces"`
}

// ControlPlaneSnapshot is optional metadata about the control-plane state
// a run was started against.
type ControlPlaneSnapshot struct {
	ComponentResourcePrefix string `json:"component_resource_prefix,omitempty"`
	FallbackResource        string `json:"fallback_resource,omitempty"`
}

// Run is the top-level durable state for one orchestrator run (§3 Run).
type Run struct {
	ID            RunID                 `json:"id"`
	Project       ProjectName           `json:"project"`
	RepoPath      string                `json:"repo_path"`
	MainBranch    string                `json:"main_branch"`
	BaseSHA       string                `json:"base_sha"`
	StartedAt     Timestamp             `json:"started_at"`
	UpdatedAt     Timestamp             `json:"updated_at"`
	Status        RunStatus             `json:"status"`
	Policy        RunPolicy             `json:"policy"`
	Batches       []*Batch              `json:"batches"`
	Tasks         map[TaskID]*Task      `json:"tasks"`
	TokensUsed    TokenCount            `json:"tokens_used"`
	EstimatedCost Cost                  `json:"estimated_cost"`
	ControlPlane  *ControlPlaneSnapshot `json:"control_plane,omitempty"`

	// Extra holds fields present in a persisted snapshot that this binary's
	// Run struct doesn't recognize, so a newer writer's fields survive an
	// older reader's load-then-save round trip (§6.2 forward compatibility).
	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON writes Run's known fields plus any unrecognized fields
// carried in Extra, so a round trip through an older binary doesn't drop
// data a newer one wrote.
func (r Run) MarshalJSON() ([]byte, error) {
	type alias Run
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes Run's known fields as usual, then stashes any
// remaining object keys it doesn't recognize into Extra.
func (r *Run) UnmarshalJSON(data []byte) error {
	type alias Run
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Run(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	knownBytes, err := json.Marshal(a)
	if err != nil {
		return err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(knownBytes, &known); err != nil {
		return err
	}
	for k := range known {
		delete(raw, k)
	}
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// NewRun constructs a Run with its required invariants satisfied:
// UpdatedAt == StartedAt at creation, Status == running, Tasks initialized.
func NewRun(id RunID, project ProjectName, repoPath, mainBranch string, policy RunPolicy, now Timestamp) *Run {
	return &Run{
		ID:         id,
		Project:    project,
		RepoPath:   repoPath,
		MainBranch: mainBranch,
		StartedAt:  now,
		UpdatedAt:  now,
		Status:     RunStatusRunning,
		Policy:     policy,
		Tasks:      make(map[TaskID]*Task),
	}
}

// NewTask constructs a Task in the pending status from its manifest.
func NewTask(manifest *TaskManifest) *Task {
	return &Task{
		ID:       manifest.ID,
		Manifest: manifest,
		Status:   TaskPending,
	}
}
