// Package compliance implements CompliancePipeline: comparing a task's
// declared or derived write scope against the files it actually changed,
// and deriving the rescope decision that follows from a violation (§4.4
// step 6, §6.3).
package compliance

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/taskforge/orchestrator/contracts"
)

// Pipeline implements contracts.CompliancePipeline.
type Pipeline struct {
	hooks contracts.ControlPlaneHooks // optional; nil when no control plane is configured
	model string
}

// New returns a Pipeline. hooks may be nil.
func New(hooks contracts.ControlPlaneHooks, model string) *Pipeline {
	return &Pipeline{hooks: hooks, model: model}
}

// RunForTask compares changedFiles against the task's effective write
// scope and reports the resulting enforcement decision.
//
// Under manifest_enforcement=off, every file is allowed and no rescope is
// ever required. Under warn, violations are counted but never block. Under
// block, any write outside the declared (or derived) scope collects into a
// single aggregated violation error (via go-multierror, so every offending
// path is visible, not just the first) and the task is marked
// rescope_required.
func (p *Pipeline) RunForTask(ctx context.Context, run *contracts.Run, task *contracts.Task, changedFiles []string) (contracts.ComplianceResult, error) {
	if run == nil || task == nil || task.Manifest == nil {
		return contracts.ComplianceResult{}, contracts.ErrInvalidInput
	}

	policy := run.Policy.ManifestEnforcement
	result := contracts.ComplianceResult{EffectivePolicy: string(policy)}

	if policy == contracts.EnforcementOff {
		result.Compliance = "pass"
		result.Rescope.Status = "ok"
		return result, nil
	}

	allowed, err := p.effectiveWriteScope(ctx, run, task)
	if err != nil {
		return contracts.ComplianceResult{}, fmt.Errorf("deriving write scope for task %s: %w", task.ID, err)
	}

	var violations *multierror.Error
	for _, f := range changedFiles {
		if !allowed[f] {
			violations = multierror.Append(violations, fmt.Errorf("task %s wrote %s outside its declared scope", task.ID, f))
		}
	}

	if violations == nil {
		result.Compliance = "pass"
		result.Rescope.Status = "ok"
		return result, nil
	}

	count := violations.Len()
	switch policy {
	case contracts.EnforcementWarn:
		result.ScopeViolations.WarnCount = count
		result.Compliance = "warn"
		result.Rescope.Status = "ok"
	case contracts.EnforcementBlock:
		result.ScopeViolations.BlockCount = count
		result.Compliance = "block"
		result.Rescope.Status = "required"
		result.Rescope.Reason = violations.Error()
	}
	return result, nil
}

func (p *Pipeline) effectiveWriteScope(ctx context.Context, run *contracts.Run, task *contracts.Task) (map[string]bool, error) {
	allowed := make(map[string]bool)

	if run.Policy.LockMode == contracts.LockModeDerived && p.hooks != nil {
		report, err := p.hooks.DeriveTaskWriteScopeReport(ctx, task.Manifest, p.model)
		if err != nil {
			return nil, err
		}
		for _, path := range report.DerivedWritePaths {
			allowed[path] = true
		}
		for _, path := range report.DerivedLocks.Writes {
			allowed[path] = true
		}
		return allowed, nil
	}

	for _, path := range task.Manifest.Files.Writes {
		allowed[path] = true
	}
	return allowed, nil
}

var _ contracts.CompliancePipeline = (*Pipeline)(nil)
