package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/taskforge/orchestrator/contracts"
)

func taskWithLocks(id contracts.TaskID, deps []contracts.TaskID, writes []string) *contracts.Task {
	return &contracts.Task{
		ID:     id,
		Status: contracts.TaskPending,
		Manifest: &contracts.TaskManifest{
			ID:           id,
			Dependencies: deps,
			Locks:        contracts.RawLocks{Writes: writes},
		},
	}
}

func TestScheduler_BuildGreedyBatch(t *testing.T) {
	s := New(nil, "")
	run := &contracts.Run{ID: "run-1", Policy: contracts.RunPolicy{LockMode: contracts.LockModeDeclared}}

	tests := []struct {
		name        string
		candidates  []*contracts.Task
		maxParallel int
		want        []contracts.TaskID
	}{
		{
			name: "disjoint writes both accepted",
			candidates: []*contracts.Task{
				taskWithLocks("001", nil, []string{"src/001.txt"}),
				taskWithLocks("002", nil, []string{"src/002.txt"}),
			},
			maxParallel: 2,
			want:        []contracts.TaskID{"001", "002"},
		},
		{
			name: "conflicting writes only first accepted",
			candidates: []*contracts.Task{
				taskWithLocks("001", nil, []string{"src/shared.txt"}),
				taskWithLocks("002", nil, []string{"src/shared.txt"}),
			},
			maxParallel: 2,
			want:        []contracts.TaskID{"001"},
		},
		{
			name: "stops at max parallel",
			candidates: []*contracts.Task{
				taskWithLocks("001", nil, []string{"a"}),
				taskWithLocks("002", nil, []string{"b"}),
				taskWithLocks("003", nil, []string{"c"}),
			},
			maxParallel: 2,
			want:        []contracts.TaskID{"001", "002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.BuildGreedyBatch(context.Background(), run, tt.candidates, tt.maxParallel)
			if err != nil {
				t.Fatalf("BuildGreedyBatch: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestScheduler_BuildGreedyBatch_InvalidMaxParallel(t *testing.T) {
	s := New(nil, "")
	run := &contracts.Run{ID: "run-1"}
	_, err := s.BuildGreedyBatch(context.Background(), run, nil, 0)
	if !errors.Is(err, contracts.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestScheduler_ReadyCandidates(t *testing.T) {
	s := New(nil, "")
	run := &contracts.Run{
		ID: "run-1",
		Tasks: map[contracts.TaskID]*contracts.Task{
			"001": {ID: "001", Status: contracts.TaskComplete, Manifest: &contracts.TaskManifest{ID: "001"}},
			"002": {ID: "002", Status: contracts.TaskPending, Manifest: &contracts.TaskManifest{ID: "002", Dependencies: []contracts.TaskID{"001"}}},
			"003": {ID: "003", Status: contracts.TaskPending, Manifest: &contracts.TaskManifest{ID: "003", Dependencies: []contracts.TaskID{"missing"}}},
		},
	}

	ready := s.ReadyCandidates(run)
	if len(ready) != 1 || ready[0].ID != "002" {
		t.Fatalf("ready = %v, want [002]", ready)
	}
}

func TestScheduler_BlockedTasks(t *testing.T) {
	s := New(nil, "")
	run := &contracts.Run{
		ID: "run-1",
		Tasks: map[contracts.TaskID]*contracts.Task{
			"001": {ID: "001", Status: contracts.TaskRescopeRequired, Manifest: &contracts.TaskManifest{ID: "001"}},
			"002": {ID: "002", Status: contracts.TaskPending, Manifest: &contracts.TaskManifest{ID: "002", Dependencies: []contracts.TaskID{"001"}}},
		},
	}

	blocked := s.BlockedTasks(run)
	deps, ok := blocked["002"]
	if !ok || len(deps) != 1 {
		t.Fatalf("blocked[002] = %v", deps)
	}
	if deps[0].DepID != "001" || deps[0].DepStatus != "rescope_required" {
		t.Fatalf("unexpected dep detail: %+v", deps[0])
	}
}

func TestScheduler_BlockedTasks_NeedsRescopeTreatedAsBlocking(t *testing.T) {
	s := New(nil, "")
	run := &contracts.Run{
		ID: "run-1",
		Tasks: map[contracts.TaskID]*contracts.Task{
			"001": {ID: "001", Status: contracts.TaskNeedsRescope, Manifest: &contracts.TaskManifest{ID: "001"}},
			"002": {ID: "002", Status: contracts.TaskPending, Manifest: &contracts.TaskManifest{ID: "002", Dependencies: []contracts.TaskID{"001"}}},
		},
	}

	blocked := s.BlockedTasks(run)
	if _, ok := blocked["002"]; !ok {
		t.Fatalf("expected 002 to be blocked by a needs_rescope dependency")
	}
}

func TestScheduler_BlockedTasks_SkippedDependencySatisfies(t *testing.T) {
	s := New(nil, "")
	run := &contracts.Run{
		ID: "run-1",
		Tasks: map[contracts.TaskID]*contracts.Task{
			"001": {ID: "001", Status: contracts.TaskSkipped, Manifest: &contracts.TaskManifest{ID: "001"}},
			"002": {ID: "002", Status: contracts.TaskPending, Manifest: &contracts.TaskManifest{ID: "002", Dependencies: []contracts.TaskID{"001"}}},
		},
	}

	if len(s.BlockedTasks(run)) != 0 {
		t.Fatalf("expected no blocked tasks when dependency is skipped")
	}
	ready := s.ReadyCandidates(run)
	if len(ready) != 1 || ready[0].ID != "002" {
		t.Fatalf("expected 002 ready when its dependency is skipped, got %v", ready)
	}
}
