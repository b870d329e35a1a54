// Package scheduler implements the writer/reader lock algebra and greedy
// batch selection over dependency-satisfied candidates (§4.3).
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/taskforge/orchestrator/contracts"
)

// scheduler implements contracts.Scheduler.
//
// Thread-safety: stateless; callers externally synchronize access to the
// Run they pass in, same as the teacher's scheduler.
type scheduler struct {
	hooks contracts.ControlPlaneHooks // optional; nil when lock mode is declared
	model string
}

// New returns a Scheduler. hooks may be nil; it is only consulted when a
// run's LockMode is LockModeDerived.
func New(hooks contracts.ControlPlaneHooks, model string) contracts.Scheduler {
	return &scheduler{hooks: hooks, model: model}
}

// NormalizeLocks returns the effective NormalizedLocks for a task under the
// run's configured LockMode. In declared mode this is exactly
// NormalizeLocks(task.Manifest.Locks); the surface-lock overlay is never
// applied post-hoc in declared mode (decided Open Question, see DESIGN.md).
func (s *scheduler) NormalizeLocks(ctx context.Context, run *contracts.Run, task *contracts.Task) (contracts.NormalizedLocks, error) {
	if run == nil || task == nil || task.Manifest == nil {
		return contracts.NormalizedLocks{}, contracts.ErrInvalidInput
	}

	if run.Policy.LockMode != contracts.LockModeDerived || s.hooks == nil {
		return contracts.NormalizeLocks(task.Manifest.Locks), nil
	}

	report, err := s.hooks.DeriveTaskWriteScopeReport(ctx, task.Manifest, s.model)
	if err != nil {
		return contracts.NormalizedLocks{}, fmt.Errorf("deriving write scope for task %s: %w", task.ID, err)
	}
	return report.DerivedLocks, nil
}

// BuildGreedyBatch selects the next set of non-conflicting ready tasks,
// honoring maxParallel and input-order tie-breaking (§4.3).
//
// Iterates candidates in input order; accepts a candidate if its effective
// lock set doesn't conflict with any already-accepted task's lock set.
// Stops once len(batch) == maxParallel.
func (s *scheduler) BuildGreedyBatch(ctx context.Context, run *contracts.Run, candidates []*contracts.Task, maxParallel int) ([]contracts.TaskID, error) {
	if run == nil {
		return nil, contracts.ErrInvalidInput
	}
	if maxParallel <= 0 {
		return nil, fmt.Errorf("max parallel must be positive, got %d: %w", maxParallel, contracts.ErrInvalidInput)
	}

	var batch []contracts.TaskID
	var accepted []contracts.NormalizedLocks

	for _, task := range candidates {
		if len(batch) >= maxParallel {
			break
		}

		locks, err := s.NormalizeLocks(ctx, run, task)
		if err != nil {
			return nil, err
		}

		conflict := false
		for _, a := range accepted {
			if locks.Conflicts(a) {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		batch = append(batch, task.ID)
		accepted = append(accepted, locks)
	}

	return batch, nil
}

// ReadyCandidates returns pending tasks whose dependencies are all in a
// success-equivalent terminal status, sorted by TaskID for determinism.
func (s *scheduler) ReadyCandidates(run *contracts.Run) []*contracts.Task {
	if run == nil {
		return nil
	}

	var ready []*contracts.Task
	for _, task := range run.Tasks {
		if task.Status != contracts.TaskPending {
			continue
		}
		if s.dependenciesSatisfied(run, task) {
			ready = append(ready, task)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return ready[i].ID < ready[j].ID
	})
	return ready
}

func (s *scheduler) dependenciesSatisfied(run *contracts.Run, task *contracts.Task) bool {
	if task.Manifest == nil {
		return true
	}
	for _, depID := range task.Manifest.Dependencies {
		dep, ok := run.Tasks[depID]
		if !ok {
			return false
		}
		if !dep.Status.IsSuccessEquivalent() {
			return false
		}
	}
	return true
}

// BlockedTasks returns pending tasks with at least one blocking dependency
// (§4.6), keyed by task ID, with the unmet dependency detail. A dependency
// in skipped is treated as satisfied; this is computed fresh from the
// status map on every call, never cached (Design Note "Dependency
// blockedness detection").
func (s *scheduler) BlockedTasks(run *contracts.Run) map[contracts.TaskID][]contracts.BlockedDependency {
	if run == nil {
		return nil
	}

	blocked := make(map[contracts.TaskID][]contracts.BlockedDependency)
	for _, task := range run.Tasks {
		if task.Status != contracts.TaskPending || task.Manifest == nil {
			continue
		}

		var unmet []contracts.BlockedDependency
		for _, depID := range task.Manifest.Dependencies {
			dep, ok := run.Tasks[depID]
			if !ok {
				continue
			}
			if dep.Status.IsBlocking() {
				bd := contracts.BlockedDependency{
					DepID:     depID,
					DepStatus: dep.Status.String(),
				}
				if dep.LastError != nil {
					bd.DepLastError = dep.LastError.Message
				}
				unmet = append(unmet, bd)
			}
		}
		if len(unmet) > 0 {
			sort.Slice(unmet, func(i, j int) bool { return unmet[i].DepID < unmet[j].DepID })
			blocked[task.ID] = unmet
		}
	}
	return blocked
}

var _ contracts.Scheduler = (*scheduler)(nil)
