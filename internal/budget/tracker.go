// Package budget wraps token accounting and per-task budget breach
// evaluation (§4.4 step budget, §6.3 BudgetTracker).
package budget

import (
	"fmt"

	"github.com/taskforge/orchestrator/contracts"
)

// Tracker implements contracts.BudgetTracker. It is stateless: all
// accumulated usage lives on the Run/Task it's given, matching the
// teacher's in-place-accumulation discipline (internal/cost.budgetEnforcer).
type Tracker struct{}

// New returns a Tracker.
func New() *Tracker { return &Tracker{} }

// RecordUsageUpdates folds a batch of usage events into the run and its
// tasks' running totals, and returns the resulting snapshot.
func (t *Tracker) RecordUsageUpdates(run *contracts.Run, events []contracts.UsageEvent) contracts.UsageSnapshot {
	snapshot := contracts.UsageSnapshot{ByTask: make(map[contracts.TaskID]contracts.Usage, len(run.Tasks))}

	for _, ev := range events {
		task, ok := run.Tasks[ev.TaskID]
		if !ok {
			continue
		}
		task.TokensUsed += ev.Usage.Tokens
		task.EstimatedCost.Amount += ev.Usage.Cost.Amount
		if task.EstimatedCost.Currency == "" {
			task.EstimatedCost.Currency = ev.Usage.Cost.Currency
		}
		task.UsageByAttempt = append(task.UsageByAttempt, ev.Usage)

		run.TokensUsed += ev.Usage.Tokens
		run.EstimatedCost.Amount += ev.Usage.Cost.Amount
		if run.EstimatedCost.Currency == "" {
			run.EstimatedCost.Currency = ev.Usage.Cost.Currency
		}
	}

	for id, task := range run.Tasks {
		snapshot.ByTask[id] = contracts.Usage{Tokens: task.TokensUsed, Cost: task.EstimatedCost}
	}
	snapshot.TotalTokens = run.TokensUsed
	snapshot.TotalCost = run.EstimatedCost
	return snapshot
}

// EvaluateBreaches compares the snapshot's per-task totals against policy's
// max_tokens_per_task, returning one BudgetBreach per task over budget. A
// warn-mode breach is informational only; a block-mode breach is fatal to
// the task per §4.4's budget step (the task is marked validated — the code
// change stands — but the run transitions to failed).
func (t *Tracker) EvaluateBreaches(snapshot contracts.UsageSnapshot, policy contracts.RunPolicy) contracts.BreachReport {
	var report contracts.BreachReport
	if policy.Budget.MaxTokensPerTask <= 0 {
		return report
	}

	for taskID, usage := range snapshot.ByTask {
		if usage.Tokens <= policy.Budget.MaxTokensPerTask {
			continue
		}
		report.Breaches = append(report.Breaches, contracts.BudgetBreach{
			TaskID: taskID,
			Reason: fmt.Sprintf("token usage %d exceeds max_tokens_per_task %d", usage.Tokens, policy.Budget.MaxTokensPerTask),
			Mode:   policy.Budget.Mode,
		})
	}
	return report
}

var _ contracts.BudgetTracker = (*Tracker)(nil)
