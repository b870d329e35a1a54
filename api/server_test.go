package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskforge/orchestrator/contracts"
)

// ============================================================================
// RunStore Tests
// ============================================================================

func TestRunStore_CreateGetSnapshot(t *testing.T) {
	store := NewRunStore()
	run := contracts.NewRun("test-run-1", "proj", "/repo", "main", contracts.RunPolicy{MaxParallel: 1}, 0)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Create(run, cancel); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	snap, exists := store.GetSnapshot("test-run-1")
	if !exists {
		t.Fatal("expected run to exist")
	}
	if snap.ID != "test-run-1" {
		t.Errorf("expected ID 'test-run-1', got '%s'", snap.ID)
	}

	_, exists = store.GetSnapshot("non-existent")
	if exists {
		t.Error("expected non-existent run to not exist")
	}
}

func TestRunStore_CreateDuplicateID(t *testing.T) {
	store := NewRunStore()
	run := contracts.NewRun("dup-1", "proj", "/repo", "main", contracts.RunPolicy{MaxParallel: 1}, 0)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Create(run, cancel); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	err := store.Create(run, cancel)
	if err == nil {
		t.Fatal("expected error for duplicate ID")
	}
}

func TestRunStore_Abort(t *testing.T) {
	store := NewRunStore()
	run := contracts.NewRun("abort-1", "proj", "/repo", "main", contracts.RunPolicy{MaxParallel: 1}, 0)
	ctx, cancel := context.WithCancel(context.Background())

	if err := store.Create(run, cancel); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Abort("abort-1"); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("expected context to be cancelled")
	}

	if err := store.Abort("non-existent"); err == nil {
		t.Error("expected error for non-existent run")
	}
}

func TestRunStore_AbortCompleted(t *testing.T) {
	store := NewRunStore()
	run := contracts.NewRun("abort-2", "proj", "/repo", "main", contracts.RunPolicy{MaxParallel: 1}, 0)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Create(run, cancel); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	store.MarkDone(run.ID, run, contracts.RunResult{Status: contracts.RunStatusComplete}, nil)

	if err := store.Abort("abort-2"); err == nil {
		t.Error("expected error aborting a completed run")
	}
}

func TestRunStore_UpdateProgressRefreshesShadow(t *testing.T) {
	store := NewRunStore()
	run := contracts.NewRun("prog-1", "proj", "/repo", "main", contracts.RunPolicy{MaxParallel: 1}, 0)
	run.Tasks["A"] = contracts.NewTask(&contracts.TaskManifest{ID: "A"})
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.Create(run, cancel)

	run.Tasks["A"].Status = contracts.TaskComplete
	run.TokensUsed = 42
	store.UpdateProgress(run.ID, run)

	snap, _ := store.GetSnapshot(run.ID)
	if snap.TokensUsed != 42 {
		t.Errorf("tokens used = %d, want 42", snap.TokensUsed)
	}
	if snap.Tasks["A"].Status != contracts.TaskComplete {
		t.Errorf("task status = %v, want complete", snap.Tasks["A"].Status)
	}
}

// ============================================================================
// Handler Tests
// ============================================================================

func validStartRunBody(id string) string {
	return `{
		"id": "` + id + `",
		"project": "proj",
		"repo_path": "/repo",
		"main_branch": "main",
		"policy": {"max_parallel": 1, "doctor": "true", "budgets": {"max_tokens_per_task": 0, "mode": "warn"}},
		"tasks": [{"id": "A", "name": "a", "verify": {"doctor": "true"}}]
	}`
}

func TestHandleStartRun_Success(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(validStartRunBody("test-run")))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp RunResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "test-run" {
		t.Errorf("expected ID 'test-run', got '%s'", resp.ID)
	}
}

func TestHandleStartRun_InvalidJSON(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString("{invalid json"))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleStartRun_DAGCycle(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	reqBody := `{
		"project": "proj", "repo_path": "/repo", "main_branch": "main",
		"policy": {"max_parallel": 1, "doctor": "true"},
		"tasks": [
			{"id": "A", "verify": {"doctor": "true"}, "dependencies": ["B"]},
			{"id": "B", "verify": {"doctor": "true"}, "dependencies": ["A"]}
		]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStartRun_DuplicateID(t *testing.T) {
	server := NewServer(":0", t.TempDir())
	body := validStartRunBody("dup-run")

	req1 := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(body))
	w1 := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w1, req1)
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first request failed: %d: %s", w1.Code, w1.Body.String())
	}

	req2 := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(body))
	w2 := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w2, req2)
	if w2.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestHandleGetStatus_NotFound(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	req := httptest.NewRequest("GET", "/api/v1/runs/non-existent", nil)
	req.SetPathValue("id", "non-existent")
	w := httptest.NewRecorder()
	server.Handlers().HandleGetStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleAbort_AlreadyCompleted(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	run := contracts.NewRun("completed-run", "proj", "/repo", "main", contracts.RunPolicy{MaxParallel: 1}, 0)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Store().Create(run, cancel)
	server.Store().MarkDone(run.ID, run, contracts.RunResult{Status: contracts.RunStatusComplete}, nil)

	req := httptest.NewRequest("POST", "/api/v1/runs/completed-run/abort", nil)
	req.SetPathValue("id", "completed-run")
	w := httptest.NewRecorder()
	server.Handlers().HandleAbort(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStartRun_MissingDoctor(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	reqBody := `{
		"project": "proj", "repo_path": "/repo", "main_branch": "main",
		"policy": {"max_parallel": 1},
		"tasks": [{"id": "A"}]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStartRun_ZeroMaxParallel(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	reqBody := `{
		"project": "proj", "repo_path": "/repo", "main_branch": "main",
		"policy": {"max_parallel": 0},
		"tasks": [{"id": "A", "verify": {"doctor": "true"}}]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleEnqueueTask_NotImplemented(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	req := httptest.NewRequest("POST", "/api/v1/runs/any/tasks", nil)
	req.SetPathValue("id", "any")
	w := httptest.NewRecorder()
	server.Handlers().HandleEnqueueTask(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected status 501, got %d", w.Code)
	}

	allow := w.Header().Get("Allow")
	if allow != "POST /api/v1/runs" {
		t.Errorf("expected Allow header 'POST /api/v1/runs', got '%s'", allow)
	}
}

// ============================================================================
// Integration Tests
// ============================================================================

// TestServer_FullCycle exercises submit → poll → terminal status without a
// git repository at /repo, so preparing the single task's worktree fails and
// the run reaches failed — still proving the full HTTP/engine
// wiring end to end.
func TestServer_FullCycle(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(validStartRunBody("full-cycle")))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("StartRun failed: %d - %s", w.Code, w.Body.String())
	}

	done := make(chan struct{})
	var final RunResponse
	go func() {
		for i := 0; i < 200; i++ {
			time.Sleep(10 * time.Millisecond)

			req := httptest.NewRequest("GET", "/api/v1/runs/full-cycle", nil)
			req.SetPathValue("id", "full-cycle")
			w := httptest.NewRecorder()
			server.Handlers().HandleGetStatus(w, req)

			var resp RunResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Status == contracts.RunStatusFailed.String() || resp.Status == contracts.RunStatusComplete.String() {
				final = resp
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to reach a terminal status")
	}

	if strings.TrimSpace(final.Status) == "" {
		t.Error("expected a non-empty terminal status")
	}
}

func TestServer_AbortRunning(t *testing.T) {
	server := NewServer(":0", t.TempDir())

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(validStartRunBody("abort-test")))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("StartRun failed: %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/runs/abort-test/abort", nil)
	req.SetPathValue("id", "abort-test")
	w = httptest.NewRecorder()
	server.Handlers().HandleAbort(w, req)

	if w.Code != http.StatusOK && w.Code != http.StatusConflict {
		t.Fatalf("Abort failed unexpectedly: %d - %s", w.Code, w.Body.String())
	}
}
