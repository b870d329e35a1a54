package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskforge/orchestrator/config"
	"github.com/taskforge/orchestrator/contracts"
	"github.com/taskforge/orchestrator/internal/engine"
	"github.com/taskforge/orchestrator/internal/scheduler"
)

// maxRequestBodySize limits the size of incoming request bodies (4MB).
const maxRequestBodySize = 4 * 1024 * 1024

// runRetention controls how long completed runs are kept in memory.
const runRetention = time.Hour

// Handlers contains the HTTP handler methods for the API.
type Handlers struct {
	store     *RunStore
	stateHome string
}

// NewHandlers creates a new Handlers instance. stateHome roots every run's
// durable state/logs/workspaces (§6.1).
func NewHandlers(store *RunStore, stateHome string) *Handlers {
	return &Handlers{store: store, stateHome: stateHome}
}

// HandleStartRun handles POST /api/v1/runs.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	limitedReader := io.LimitReader(r.Body, maxRequestBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		WriteError(w, fmt.Errorf("failed to read request body: %w", contracts.ErrInvalidInput))
		return
	}
	if len(body) > maxRequestBodySize {
		WriteError(w, fmt.Errorf("request body too large (max %d bytes): %w", maxRequestBodySize, contracts.ErrInvalidInput))
		return
	}

	var req StartRunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, fmt.Errorf("invalid JSON: %w", contracts.ErrInvalidInput))
		return
	}

	if err := validateStartRunRequest(&req); err != nil {
		WriteError(w, err)
		return
	}

	runID := req.ID
	if runID == "" {
		runID = string(engine.NewRunID())
	}

	policy := req.Policy.ToRunPolicy()
	run := contracts.NewRun(contracts.RunID(runID), contracts.ProjectName(req.Project), req.RepoPath, req.MainBranch, policy, contracts.Timestamp(time.Now().UnixMilli()))
	for _, taskDTO := range req.Tasks {
		manifest := taskDTO.ToManifest()
		run.Tasks[manifest.ID] = contracts.NewTask(manifest)
	}

	if err := scheduler.NewDependencyResolver().Validate(run); err != nil {
		WriteError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := h.store.Create(run, cancel); err != nil {
		cancel()
		WriteError(w, err)
		return
	}

	h.store.PruneCompleted(runRetention)

	go h.runEngine(ctx, run, runConfigFromPolicy(req.Policy))

	snap, _ := h.store.GetSnapshot(run.ID)
	resp := SnapshotToResponse(&snap)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, resp)
}

// HandleGetStatus handles GET /api/v1/runs/{id}.
func (h *Handlers) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		WriteError(w, fmt.Errorf("missing run ID: %w", contracts.ErrInvalidInput))
		return
	}

	snap, exists := h.store.GetSnapshot(contracts.RunID(runID))
	if !exists {
		WriteError(w, fmt.Errorf("run %s: %w", runID, contracts.ErrRunNotFound))
		return
	}

	resp := SnapshotToResponse(&snap)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// HandleAbort handles POST /api/v1/runs/{id}/abort.
func (h *Handlers) HandleAbort(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		WriteError(w, fmt.Errorf("missing run ID: %w", contracts.ErrInvalidInput))
		return
	}

	if err := h.store.Abort(contracts.RunID(runID)); err != nil {
		WriteError(w, err)
		return
	}

	snap, exists := h.store.GetSnapshot(contracts.RunID(runID))
	if !exists {
		WriteError(w, fmt.Errorf("run %s: %w", runID, contracts.ErrRunNotFound))
		return
	}

	resp := SnapshotToResponse(&snap)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// HandleEnqueueTask handles POST /api/v1/runs/{id}/tasks.
// V1: Returns 501 Not Implemented.
func (h *Handlers) HandleEnqueueTask(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST /api/v1/runs")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotImplemented)
	writeJSON(w, ErrorDTO{
		Code:    string(CodeNotImplemented),
		Message: "dynamic task addition not supported; submit all tasks in StartRun",
	})
}

// runEngine builds a run.Engine scoped to run and drives it to completion
// in the caller's goroutine.
//
// RACE SAFETY NOTE: the engine freely mutates run.Tasks and run.Status
// while this runs. API handlers never read run directly — only the shadow
// snapshot RunStore maintains, refreshed via shadowingStore on every
// engine persist.
func (h *Handlers) runEngine(ctx context.Context, run *contracts.Run, cfg *config.RunConfig) {
	built := engine.Build(cfg, h.stateHome, run.Project, run.ID, func(s contracts.StateStore) contracts.StateStore {
		return shadowingStore{StateStore: s, runStore: h.store, runID: run.ID}
	})

	result, err := built.RunEngine.Run(ctx, run, false)
	h.store.MarkDone(run.ID, run, result, err)
}

func runConfigFromPolicy(p PolicyDTO) *config.RunConfig {
	return &config.RunConfig{
		Doctor:               p.Doctor,
		MaxParallel:          p.MaxParallel,
		MaxRetries:           p.MaxRetries,
		DoctorTimeoutSeconds: p.DoctorTimeoutSeconds,
		ManifestEnforcement:  p.ManifestEnforcement,
		Budgets: config.BudgetsConfig{
			MaxTokensPerTask: p.Budget.MaxTokensPerTask,
			Mode:             p.Budget.Mode,
		},
	}
}

// validateStartRunRequest validates a StartRunRequest.
func validateStartRunRequest(req *StartRunRequest) error {
	if req.Project == "" {
		return fmt.Errorf("project is required: %w", contracts.ErrInvalidInput)
	}
	if req.RepoPath == "" {
		return fmt.Errorf("repo_path is required: %w", contracts.ErrInvalidInput)
	}
	if req.MainBranch == "" {
		return fmt.Errorf("main_branch is required: %w", contracts.ErrInvalidInput)
	}
	if req.Policy.MaxParallel <= 0 {
		return fmt.Errorf("policy.max_parallel must be > 0: %w", contracts.ErrInvalidInput)
	}
	if len(req.Tasks) == 0 {
		return fmt.Errorf("at least one task is required: %w", contracts.ErrInvalidInput)
	}

	seen := make(map[string]bool, len(req.Tasks))
	for _, task := range req.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task.id is required: %w", contracts.ErrInvalidInput)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task.id: %s: %w", task.ID, contracts.ErrInvalidInput)
		}
		seen[task.ID] = true
		if task.Verify.Doctor == "" {
			return fmt.Errorf("task %s: verify.doctor is required: %w", task.ID, contracts.ErrInvalidInput)
		}
	}

	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}
