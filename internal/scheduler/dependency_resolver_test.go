package scheduler

import (
	"errors"
	"testing"

	"github.com/taskforge/orchestrator/contracts"
)

func runWithDeps(deps map[contracts.TaskID][]contracts.TaskID) *contracts.Run {
	run := &contracts.Run{ID: "run-1", Tasks: make(map[contracts.TaskID]*contracts.Task)}
	for id, d := range deps {
		run.Tasks[id] = &contracts.Task{
			ID:       id,
			Manifest: &contracts.TaskManifest{ID: id, Dependencies: d},
		}
	}
	return run
}

func TestDependencyResolver_Validate(t *testing.T) {
	dr := NewDependencyResolver()

	tests := []struct {
		name    string
		run     *contracts.Run
		wantErr error
	}{
		{
			name:    "nil run",
			run:     nil,
			wantErr: contracts.ErrInvalidInput,
		},
		{
			name: "empty run is valid",
			run:  &contracts.Run{ID: "run-1"},
		},
		{
			name: "linear chain is valid",
			run: runWithDeps(map[contracts.TaskID][]contracts.TaskID{
				"001": nil,
				"002": {"001"},
				"003": {"002"},
			}),
		},
		{
			name: "missing dependency",
			run: runWithDeps(map[contracts.TaskID][]contracts.TaskID{
				"002": {"001"},
			}),
			wantErr: contracts.ErrDepNotFound,
		},
		{
			name: "self cycle",
			run: runWithDeps(map[contracts.TaskID][]contracts.TaskID{
				"001": {"001"},
			}),
			wantErr: contracts.ErrDAGCycle,
		},
		{
			name: "longer cycle",
			run: runWithDeps(map[contracts.TaskID][]contracts.TaskID{
				"001": {"003"},
				"002": {"001"},
				"003": {"002"},
			}),
			wantErr: contracts.ErrDAGCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dr.Validate(tt.run)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
