// Package config provides run configuration loading and validation (§6.4).
package config

// DoctorCanary controls the optional "canary" check that a doctor command
// which currently fails is expected to keep failing, flagging an unexpected
// pass as noteworthy rather than silently accepting a flaky doctor.
type DoctorCanary struct {
	Mode                 string `json:"mode,omitempty"`
	EnvVar               string `json:"env_var,omitempty"`
	WarnOnUnexpectedPass bool   `json:"warn_on_unexpected_pass,omitempty"`
}

// ControlPlaneConfig configures the optional control-plane integration hook.
type ControlPlaneConfig struct {
	Enabled                 bool     `json:"enabled"`
	ComponentResourcePrefix string   `json:"component_resource_prefix,omitempty"`
	FallbackResource        string   `json:"fallback_resource,omitempty"`
	LockMode                string   `json:"lock_mode,omitempty"` // declared|derived
	ScopeMode               string   `json:"scope_mode,omitempty"`
	Checks                  []string `json:"checks,omitempty"`
	SurfacePatterns         []string `json:"surface_patterns,omitempty"`
	SurfaceLocksEnabled     bool     `json:"surface_locks_enabled,omitempty"`
}

// BudgetsConfig is the per-task token budget enforcement config.
type BudgetsConfig struct {
	MaxTokensPerTask int64  `json:"max_tokens_per_task"`
	Mode             string `json:"mode"` // warn|block
}

// RunConfig is the full set of configuration options the engine recognizes
// (§6.4). It is the engine's own typed config contract — not a config-file
// parser; that outer concern is explicitly out of scope (§1).
type RunConfig struct {
	RepoPath             string             `json:"repo_path"`
	MainBranch           string             `json:"main_branch"`
	TasksDir             string             `json:"tasks_dir"`
	Doctor               string             `json:"doctor"`
	MaxParallel          int                `json:"max_parallel"`
	MaxRetries           int                `json:"max_retries"` // 0 = unlimited
	Resources            []string           `json:"resources,omitempty"`
	Budgets              BudgetsConfig      `json:"budgets"`
	ManifestEnforcement  string             `json:"manifest_enforcement"` // off|warn|block
	DoctorTimeoutSeconds int                `json:"doctor_timeout_seconds"`
	DoctorCanary         DoctorCanary       `json:"doctor_canary,omitempty"`
	ControlPlane         ControlPlaneConfig `json:"control_plane,omitempty"`

	CleanupWorkspacesOnSuccess bool `json:"cleanup_workspaces_on_success"`
	CleanupContainersOnSuccess bool `json:"cleanup_containers_on_success"`
}
