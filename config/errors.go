package config

import "errors"

// Sentinel errors for run configuration validation.
var (
	// ErrConfigEmpty is returned when the config data is empty (zero bytes).
	ErrConfigEmpty = errors.New("run configuration is empty")

	// ErrRepoPathEmpty is returned when repo_path is empty.
	ErrRepoPathEmpty = errors.New("repo_path is required")

	// ErrMainBranchEmpty is returned when main_branch is empty.
	ErrMainBranchEmpty = errors.New("main_branch is required")

	// ErrDoctorEmpty is returned when doctor is empty.
	ErrDoctorEmpty = errors.New("doctor is required")

	// ErrMaxParallelInvalid is returned when max_parallel is not positive.
	ErrMaxParallelInvalid = errors.New("max_parallel must be positive")

	// ErrMaxRetriesInvalid is returned when max_retries is negative.
	ErrMaxRetriesInvalid = errors.New("max_retries must be >= 0 (0 = unlimited)")

	// ErrDoctorTimeoutInvalid is returned when doctor_timeout_seconds is not positive.
	ErrDoctorTimeoutInvalid = errors.New("doctor_timeout_seconds must be positive")

	// ErrEnforcementModeInvalid is returned for an unrecognized manifest_enforcement value.
	ErrEnforcementModeInvalid = errors.New("manifest_enforcement must be one of off|warn|block")

	// ErrBudgetModeInvalid is returned for an unrecognized budgets.mode value.
	ErrBudgetModeInvalid = errors.New("budgets.mode must be one of warn|block")

	// ErrLockModeInvalid is returned for an unrecognized control_plane.lock_mode value.
	ErrLockModeInvalid = errors.New("control_plane.lock_mode must be one of declared|derived")
)
