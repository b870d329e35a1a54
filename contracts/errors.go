package contracts

import "errors"

// Sentinel errors for the run-execution engine.
var (
	// Budget errors
	ErrBudgetExceeded = errors.New("budget exceeded")
	ErrBudgetNotSet   = errors.New("budget not set")

	// Task errors
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotReady  = errors.New("task not ready for execution")
	ErrTaskFailed    = errors.New("task execution failed")
	ErrTaskTimeout   = errors.New("task execution timeout")
	ErrTaskCancelled = errors.New("task cancelled")

	// Run errors
	ErrRunNotFound  = errors.New("run not found")
	ErrRunCompleted = errors.New("run already completed")
	ErrRunFailed    = errors.New("run already failed")
	ErrNoProgress   = errors.New("no progress possible: all pending tasks blocked")

	// DAG / dependency errors
	ErrDAGCycle    = errors.New("cycle detected in task dependencies")
	ErrDAGInvalid  = errors.New("invalid DAG structure")
	ErrDepNotFound = errors.New("dependency task not found")

	// VCS errors
	ErrDirtyWorkingTree    = errors.New("dirty working tree")
	ErrFastForwardFailed   = errors.New("fast-forward failed")
	ErrMergeConflict       = errors.New("merge conflict")
	ErrIntegrationDoctor   = errors.New("integration doctor failed")
	ErrBranchNameCollision = errors.New("task branch name collision")

	// StateStore errors
	ErrStateNotFound       = errors.New("state not found")
	ErrStateCorrupt        = errors.New("state corrupt")
	ErrSchemaVersionMismatch = errors.New("schema version mismatch")

	// Compliance / scope errors
	ErrComplianceBlocked = errors.New("compliance policy blocked task")

	// Input validation errors
	ErrInvalidInput = errors.New("invalid input: nil or malformed")
)
