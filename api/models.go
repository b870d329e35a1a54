// Package api provides the HTTP API layer for the runtime sidecar.
package api

import (
	"github.com/taskforge/orchestrator/contracts"
)

// ============================================================================
// Request DTOs
// ============================================================================

// StartRunRequest is the request body for POST /api/v1/runs.
type StartRunRequest struct {
	ID         string            `json:"id,omitempty"`
	Project    string            `json:"project"`
	RepoPath   string            `json:"repo_path"`
	MainBranch string            `json:"main_branch"`
	Policy     PolicyDTO         `json:"policy"`
	Tasks      []TaskManifestDTO `json:"tasks"`
}

// BudgetDTO is the wire shape of a per-task token budget policy.
type BudgetDTO struct {
	MaxTokensPerTask int64  `json:"max_tokens_per_task"`
	Mode             string `json:"mode"`
}

// PolicyDTO represents execution constraints for a run.
type PolicyDTO struct {
	MaxParallel          int       `json:"max_parallel"`
	MaxRetries           int       `json:"max_retries"`
	Doctor               string    `json:"doctor"`
	DoctorTimeoutSeconds int       `json:"doctor_timeout_seconds"`
	Budget               BudgetDTO `json:"budgets"`
	ManifestEnforcement  string    `json:"manifest_enforcement"`
	LockMode             string    `json:"lock_mode"`
}

// LocksDTO is the wire shape of a declared read/write resource set.
type LocksDTO struct {
	Reads  []string `json:"reads,omitempty"`
	Writes []string `json:"writes,omitempty"`
}

// VerifyDTO is the wire shape of a task's verification commands.
type VerifyDTO struct {
	Doctor string `json:"doctor"`
	Fast   string `json:"fast,omitempty"`
	Lint   string `json:"lint,omitempty"`
}

// TaskManifestDTO represents one submitted task.
type TaskManifestDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Locks        LocksDTO  `json:"locks"`
	Files        LocksDTO  `json:"files"`
	TDDMode      string    `json:"tdd_mode,omitempty"`
	Verify       VerifyDTO `json:"verify"`
	TestPaths    []string  `json:"test_paths,omitempty"`
}

// CostDTO represents a monetary cost.
type CostDTO struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// RunResponse is the response body for run-related endpoints.
type RunResponse struct {
	ID            string                   `json:"id"`
	Project       string                   `json:"project"`
	Status        string                   `json:"status"`
	Tasks         map[string]TaskStatusDTO `json:"tasks,omitempty"`
	TokensUsed    int64                    `json:"tokens_used"`
	EstimatedCost CostDTO                  `json:"estimated_cost"`
	BatchesRun    int                      `json:"batches_run"`
	PauseReason   string                   `json:"pause_reason,omitempty"`
	Error         *ErrorDTO                `json:"error,omitempty"`
}

// TaskStatusDTO represents the status of a single task.
type TaskStatusDTO struct {
	Status        string  `json:"status"`
	Attempts      int     `json:"attempts"`
	BatchID       int64   `json:"batch_id,omitempty"`
	Branch        string  `json:"branch,omitempty"`
	TokensUsed    int64   `json:"tokens_used"`
	EstimatedCost CostDTO `json:"estimated_cost"`
	LastError     string  `json:"last_error,omitempty"`
}

// ErrorDTO represents an error in the response.
type ErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================================================
// Converters: Request DTO → contracts
// ============================================================================

// ToRunPolicy converts PolicyDTO to contracts.RunPolicy.
func (p *PolicyDTO) ToRunPolicy() contracts.RunPolicy {
	return contracts.RunPolicy{
		MaxParallel:          p.MaxParallel,
		MaxRetries:           p.MaxRetries,
		DoctorCommand:        p.Doctor,
		DoctorTimeoutSeconds: p.DoctorTimeoutSeconds,
		Budget: contracts.BudgetPolicy{
			MaxTokensPerTask: contracts.TokenCount(p.Budget.MaxTokensPerTask),
			Mode:             p.Budget.Mode,
		},
		ManifestEnforcement: contracts.ManifestEnforcement(p.ManifestEnforcement),
		LockMode:            contracts.LockMode(p.LockMode),
	}
}

// ToManifest converts TaskManifestDTO to contracts.TaskManifest.
func (t *TaskManifestDTO) ToManifest() *contracts.TaskManifest {
	deps := make([]contracts.TaskID, len(t.Dependencies))
	for i, dep := range t.Dependencies {
		deps[i] = contracts.TaskID(dep)
	}
	tdd := contracts.TDDMode(t.TDDMode)
	if tdd == "" {
		tdd = contracts.TDDModeOff
	}
	return &contracts.TaskManifest{
		ID:           contracts.TaskID(t.ID),
		Name:         t.Name,
		Dependencies: deps,
		Locks:        contracts.RawLocks{Reads: t.Locks.Reads, Writes: t.Locks.Writes},
		Files:        contracts.RawLocks{Reads: t.Files.Reads, Writes: t.Files.Writes},
		TDDMode:      tdd,
		Verify:       contracts.VerifyConfig{Doctor: t.Verify.Doctor, Fast: t.Verify.Fast, Lint: t.Verify.Lint},
		TestPaths:    t.TestPaths,
	}
}

// ============================================================================
// Converters: contracts → Response DTO
// ============================================================================

func taskToDTO(task *contracts.Task) TaskStatusDTO {
	dto := TaskStatusDTO{
		Status:        task.Status.String(),
		Attempts:      task.Attempts,
		BatchID:       int64(task.BatchID),
		Branch:        task.Branch,
		TokensUsed:    int64(task.TokensUsed),
		EstimatedCost: CostDTO{Amount: task.EstimatedCost.Amount, Currency: string(task.EstimatedCost.Currency)},
	}
	if task.LastError != nil {
		dto.LastError = task.LastError.Message
	}
	return dto
}

// SnapshotToResponse converts a RunSnapshot to RunResponse. This is the
// thread-safe way to build API responses: it never touches the live Run
// the engine goroutine may still be mutating.
func SnapshotToResponse(snap *RunSnapshot) *RunResponse {
	resp := &RunResponse{
		ID:            string(snap.ID),
		Project:       string(snap.Project),
		Status:        snap.APIStatus,
		TokensUsed:    int64(snap.TokensUsed),
		EstimatedCost: CostDTO{Amount: snap.EstimatedCost.Amount, Currency: string(snap.EstimatedCost.Currency)},
		BatchesRun:    snap.BatchesRun,
		PauseReason:   snap.PauseReason,
	}

	if len(snap.Tasks) > 0 {
		resp.Tasks = make(map[string]TaskStatusDTO, len(snap.Tasks))
		for id, task := range snap.Tasks {
			resp.Tasks[string(id)] = taskToDTO(task)
		}
	}

	if snap.Error != nil {
		httpErr := MapError(snap.Error)
		resp.Error = &ErrorDTO{Code: string(httpErr.Code), Message: snap.Error.Error()}
	}

	return resp
}
