// Package engine wires the concrete capability implementations
// (internal/vcs, internal/task, internal/batch, internal/scheduler,
// internal/compliance, internal/budget, internal/controlplane,
// internal/statestore, internal/worker) into one run.Engine per the
// options a RunConfig selects (§6.4) — the composition root the teacher's
// orchestration.OrchestratorDeps played for the old domain.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/config"
	"github.com/taskforge/orchestrator/contracts"
	"github.com/taskforge/orchestrator/internal/batch"
	"github.com/taskforge/orchestrator/internal/budget"
	"github.com/taskforge/orchestrator/internal/compliance"
	"github.com/taskforge/orchestrator/internal/controlplane"
	"github.com/taskforge/orchestrator/internal/observability"
	"github.com/taskforge/orchestrator/internal/paths"
	"github.com/taskforge/orchestrator/internal/run"
	"github.com/taskforge/orchestrator/internal/scheduler"
	"github.com/taskforge/orchestrator/internal/statestore"
	"github.com/taskforge/orchestrator/internal/task"
	"github.com/taskforge/orchestrator/internal/vcs"
	"github.com/taskforge/orchestrator/internal/worker"
)

// systemClock adapts time.Now to contracts.Clock.
type systemClock struct{}

func (systemClock) Now() contracts.Timestamp { return contracts.Timestamp(time.Now().UnixMilli()) }

// Built bundles the assembled run engine with the capabilities the caller
// needs directly (state persistence and path resolution).
type Built struct {
	RunEngine contracts.RunEngine
	Store     contracts.StateStore
	Paths     *paths.Context
}

// NewRunID returns a fresh, unique run identifier. Generated with
// google/uuid rather than a timestamp to stay collision-free across
// concurrently submitted runs on the same project, even under clock skew.
func NewRunID() contracts.RunID {
	return contracts.RunID(uuid.NewString())
}

// Build assembles a run.Engine from cfg, rooted at stateHome for durable
// snapshots/logs/workspaces. The engine's event log is scoped to one
// project/run pair, so one *Built serves exactly one run. decorate, if
// non-nil, wraps the durable StateStore before it is handed to the
// run.Engine — callers use this to observe every Save the engine makes
// (e.g. the API layer's shadow-state snapshot) without run.Engine needing
// an API-specific callback of its own.
func Build(cfg *config.RunConfig, stateHome string, project contracts.ProjectName, runID contracts.RunID, decorate func(contracts.StateStore) contracts.StateStore) *Built {
	p := paths.New(stateHome)
	clock := systemClock{}
	var store contracts.StateStore = statestore.New(p)
	if decorate != nil {
		store = decorate(store)
	}

	var hooks contracts.ControlPlaneHooks
	if cfg.ControlPlane.Enabled {
		index := make(controlplane.ComponentIndex, len(cfg.Resources))
		for _, r := range cfg.Resources {
			index[r] = []string{r}
		}
		surface := make(map[string][]string)
		if len(cfg.ControlPlane.SurfacePatterns) > 0 {
			surface[cfg.ControlPlane.ComponentResourcePrefix] = cfg.ControlPlane.SurfacePatterns
		}
		hooks = controlplane.New(controlplane.Deps{
			Source:           controlplane.NewStaticComponentSource(index),
			SurfacePatterns:  surface,
			ResourcePrefix:   cfg.ControlPlane.ComponentResourcePrefix,
			FallbackResource: cfg.ControlPlane.FallbackResource,
		})
	}

	gitVCS := vcs.New("git")
	schedulerImpl := scheduler.New(hooks, "")
	complianceImpl := compliance.New(hooks, "")
	budgetImpl := budget.New()

	workerRunner := worker.New("", nil, 0) // no external agent is configured, so Prepare fails for every task
	validatorRunner := worker.NewShellValidator(map[string]string{"doctor": cfg.Doctor}, map[string]string{"doctor": cfg.ManifestEnforcement}, time.Duration(cfg.DoctorTimeoutSeconds)*time.Second)

	taskEngine := task.New(task.Deps{
		VCS:        gitVCS,
		Worker:     workerRunner,
		Validators: validatorRunner,
		Compliance: complianceImpl,
		Budget:     budgetImpl,
		Clock:      clock,
		Paths:      p,
	})

	batchEngine := batch.New(batch.Deps{
		VCS:   gitVCS,
		Tasks: taskEngine,
		Clock: clock,
		Paths: p,
	})

	runEngine := run.New(run.Deps{
		Scheduler:   schedulerImpl,
		DepResolver: scheduler.NewDependencyResolver(),
		Dispatcher:  batchEngine,
		Store:       store,
		Clock:       clock,
		Logs:        mustLogSink(p, project, runID),
	})

	return &Built{RunEngine: runEngine, Store: store, Paths: p}
}

// mustLogSink opens the run's JSONL event sink; a construction failure
// here means the state home is unwritable, which every other durable
// capability would fail on too, so it is not worth threading as a
// recoverable error through Build's signature.
func mustLogSink(p *paths.Context, project contracts.ProjectName, runID contracts.RunID) contracts.LogSink {
	sink, err := observability.NewJSONLSink(p.OrchestratorLog(project, runID))
	if err != nil {
		return discardSink{}
	}
	return sink
}

type discardSink struct{}

func (discardSink) Append(record any) (int64, error)           { return 0, nil }
func (discardSink) Read(cursor int64) ([]string, int64, error) { return nil, cursor, nil }
