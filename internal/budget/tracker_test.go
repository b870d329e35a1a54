package budget

import (
	"testing"

	"github.com/taskforge/orchestrator/contracts"
)

func newTestRun() *contracts.Run {
	run := contracts.NewRun("run-001", "proj", "/repo", "main", contracts.RunPolicy{}, 0)
	run.Tasks["001"] = contracts.NewTask(&contracts.TaskManifest{ID: "001"})
	return run
}

func TestTracker_RecordUsageUpdates(t *testing.T) {
	run := newTestRun()
	tr := New()

	snapshot := tr.RecordUsageUpdates(run, []contracts.UsageEvent{
		{TaskID: "001", Usage: contracts.Usage{Tokens: 100, Cost: contracts.Cost{Amount: 1.5, Currency: "USD"}}},
		{TaskID: "001", Usage: contracts.Usage{Tokens: 50, Cost: contracts.Cost{Amount: 0.5, Currency: "USD"}}},
	})

	if snapshot.TotalTokens != 150 {
		t.Fatalf("TotalTokens = %d, want 150", snapshot.TotalTokens)
	}
	if run.Tasks["001"].TokensUsed != 150 {
		t.Fatalf("task tokens = %d, want 150", run.Tasks["001"].TokensUsed)
	}
	if len(run.Tasks["001"].UsageByAttempt) != 2 {
		t.Fatalf("usage_by_attempt len = %d, want 2", len(run.Tasks["001"].UsageByAttempt))
	}
}

func TestTracker_EvaluateBreaches(t *testing.T) {
	run := newTestRun()
	tr := New()

	snapshot := tr.RecordUsageUpdates(run, []contracts.UsageEvent{
		{TaskID: "001", Usage: contracts.Usage{Tokens: 1000}},
	})

	policy := contracts.RunPolicy{Budget: contracts.BudgetPolicy{MaxTokensPerTask: 500, Mode: "block"}}
	report := tr.EvaluateBreaches(snapshot, policy)
	if len(report.Breaches) != 1 {
		t.Fatalf("breaches = %v, want 1", report.Breaches)
	}
	if report.Breaches[0].Mode != "block" {
		t.Fatalf("mode = %s, want block", report.Breaches[0].Mode)
	}
}

func TestTracker_EvaluateBreaches_NoLimitConfigured(t *testing.T) {
	run := newTestRun()
	tr := New()

	snapshot := tr.RecordUsageUpdates(run, []contracts.UsageEvent{
		{TaskID: "001", Usage: contracts.Usage{Tokens: 1_000_000}},
	})

	report := tr.EvaluateBreaches(snapshot, contracts.RunPolicy{})
	if len(report.Breaches) != 0 {
		t.Fatalf("expected no breaches when max_tokens_per_task is unset, got %v", report.Breaches)
	}
}
