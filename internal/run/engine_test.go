package run

import (
	"context"
	"testing"
	"time"

	"github.com/taskforge/orchestrator/contracts"
	"github.com/taskforge/orchestrator/internal/batch"
	"github.com/taskforge/orchestrator/internal/scheduler"
)

type memStore struct {
	saved *contracts.Run
}

func (m *memStore) Save(ctx context.Context, run *contracts.Run) error { m.saved = run; return nil }
func (m *memStore) Load(ctx context.Context, project contracts.ProjectName, runID contracts.RunID) (*contracts.Run, error) {
	return m.saved, nil
}
func (m *memStore) Exists(ctx context.Context, project contracts.ProjectName, runID contracts.RunID) (bool, error) {
	return m.saved != nil, nil
}
func (m *memStore) FindLatestRunID(ctx context.Context, project contracts.ProjectName) (contracts.RunID, bool, error) {
	if m.saved == nil {
		return "", false, nil
	}
	return m.saved.ID, true, nil
}

type memLogSink struct {
	records []any
}

func (m *memLogSink) Append(record any) (int64, error) {
	m.records = append(m.records, record)
	return int64(len(m.records)), nil
}
func (m *memLogSink) Read(cursor int64) ([]string, int64, error) { return nil, cursor, nil }

type tickClock struct{ t contracts.Timestamp }

func (c *tickClock) Now() contracts.Timestamp { c.t++; return c.t }

type completingDispatcher struct{}

func (completingDispatcher) RunBatch(ctx context.Context, r *contracts.Run, b *contracts.Batch, persist func() error) error {
	for _, id := range b.TaskIDs {
		r.Tasks[id].Status = contracts.TaskValidated
	}
	return persist()
}

func (completingDispatcher) FinalizeBatch(ctx context.Context, r *contracts.Run, b *contracts.Batch, doctorCommand string, doctorTimeout time.Duration, persist func() error) (batch.StopReason, error) {
	for _, id := range b.TaskIDs {
		r.Tasks[id].Status = contracts.TaskComplete
	}
	b.Status = contracts.BatchComplete
	return batch.StopNone, persist()
}

func newRun(policy contracts.RunPolicy) *contracts.Run {
	r := contracts.NewRun("run-1", "proj", "/repo", "main", policy, 0)
	return r
}

func TestEngine_Run_CompletesAllTasks(t *testing.T) {
	run := newRun(contracts.RunPolicy{MaxParallel: 2})
	run.Tasks["001"] = contracts.NewTask(&contracts.TaskManifest{ID: "001"})
	run.Tasks["002"] = contracts.NewTask(&contracts.TaskManifest{ID: "002", Dependencies: []contracts.TaskID{"001"}})

	sched := scheduler.New(nil, "")
	e := New(Deps{
		Scheduler:   sched,
		DepResolver: fakeResolver{},
		Dispatcher:  completingDispatcher{},
		Store:       &memStore{},
		Clock:       &tickClock{},
		Logs:        &memLogSink{},
	})

	result, err := e.Run(context.Background(), run, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != contracts.RunStatusComplete {
		t.Fatalf("status = %v, want complete", result.Status)
	}
	if result.Summary.TasksComplete != 2 {
		t.Fatalf("tasks complete = %d, want 2", result.Summary.TasksComplete)
	}
	if result.Summary.BatchesRun != 2 {
		t.Fatalf("batches run = %d, want 2 (dependency forces two batches)", result.Summary.BatchesRun)
	}
}

type fakeResolver struct{}

func (fakeResolver) Validate(run *contracts.Run) error { return nil }

func TestEngine_Run_PausesOnBlockedDependency(t *testing.T) {
	run := newRun(contracts.RunPolicy{MaxParallel: 2})
	run.Tasks["001"] = contracts.NewTask(&contracts.TaskManifest{ID: "001"})
	run.Tasks["001"].Status = contracts.TaskRescopeRequired
	run.Tasks["002"] = contracts.NewTask(&contracts.TaskManifest{ID: "002", Dependencies: []contracts.TaskID{"001"}})

	sched := scheduler.New(nil, "")
	logs := &memLogSink{}
	e := New(Deps{
		Scheduler:   sched,
		DepResolver: fakeResolver{},
		Dispatcher:  completingDispatcher{},
		Store:       &memStore{},
		Clock:       &tickClock{},
		Logs:        logs,
	})

	result, err := e.Run(context.Background(), run, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != contracts.RunStatusPaused {
		t.Fatalf("status = %v, want paused", result.Status)
	}
	if result.Summary.PauseReason != "blocked_dependencies" {
		t.Fatalf("pause reason = %q", result.Summary.PauseReason)
	}
	if len(logs.records) == 0 {
		t.Fatalf("expected at least one emitted event")
	}
}

func TestEngine_Run_ResumeResetsRunningTasks(t *testing.T) {
	run := newRun(contracts.RunPolicy{MaxParallel: 1})
	task := contracts.NewTask(&contracts.TaskManifest{ID: "001"})
	task.Status = contracts.TaskRunning
	task.Attempts = 2
	run.Tasks["001"] = task
	run.Batches = append(run.Batches, &contracts.Batch{ID: 1, Status: contracts.BatchRunning, TaskIDs: []contracts.TaskID{"001"}})

	sched := scheduler.New(nil, "")
	e := New(Deps{
		Scheduler:   sched,
		DepResolver: fakeResolver{},
		Dispatcher:  completingDispatcher{},
		Store:       &memStore{},
		Clock:       &tickClock{},
		Logs:        &memLogSink{},
	})

	result, err := e.Run(context.Background(), run, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != contracts.RunStatusComplete {
		t.Fatalf("status = %v, want complete", result.Status)
	}
	if run.Batches[0].Status != contracts.BatchFailed {
		t.Fatalf("original batch status = %v, want failed (reset on resume)", run.Batches[0].Status)
	}
	if task.Attempts != 2 {
		t.Fatalf("attempts = %d, want preserved at 2", task.Attempts)
	}
}

func TestEngine_Run_NilRunIsInvalidInput(t *testing.T) {
	e := New(Deps{
		Scheduler:   scheduler.New(nil, ""),
		DepResolver: fakeResolver{},
		Dispatcher:  completingDispatcher{},
		Store:       &memStore{},
		Clock:       &tickClock{},
		Logs:        &memLogSink{},
	})
	if _, err := e.Run(context.Background(), nil, false); err != contracts.ErrInvalidInput {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestEngine_Run_StopSignalReturnsContextError(t *testing.T) {
	run := newRun(contracts.RunPolicy{MaxParallel: 1})
	run.Tasks["001"] = contracts.NewTask(&contracts.TaskManifest{ID: "001"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(Deps{
		Scheduler:   scheduler.New(nil, ""),
		DepResolver: fakeResolver{},
		Dispatcher:  completingDispatcher{},
		Store:       &memStore{},
		Clock:       &tickClock{},
		Logs:        &memLogSink{},
	})

	if _, err := e.Run(ctx, run, false); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}
