package config

import "fmt"

// Validator validates RunConfig values before they drive a run.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of a RunConfig.
// Returns nil if valid, or an error describing the first validation failure.
func (v *Validator) Validate(cfg *RunConfig) error {
	if cfg == nil {
		return ErrConfigEmpty
	}

	if cfg.RepoPath == "" {
		return ErrRepoPathEmpty
	}
	if cfg.MainBranch == "" {
		return ErrMainBranchEmpty
	}
	if cfg.Doctor == "" {
		return ErrDoctorEmpty
	}
	if cfg.MaxParallel <= 0 {
		return fmt.Errorf("max_parallel=%d: %w", cfg.MaxParallel, ErrMaxParallelInvalid)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries=%d: %w", cfg.MaxRetries, ErrMaxRetriesInvalid)
	}
	if cfg.DoctorTimeoutSeconds <= 0 {
		return fmt.Errorf("doctor_timeout_seconds=%d: %w", cfg.DoctorTimeoutSeconds, ErrDoctorTimeoutInvalid)
	}

	if err := v.validateEnforcementMode(cfg.ManifestEnforcement); err != nil {
		return err
	}
	if err := v.validateBudgetMode(cfg.Budgets.Mode); err != nil {
		return err
	}
	if cfg.ControlPlane.Enabled {
		if err := v.validateLockMode(cfg.ControlPlane.LockMode); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateEnforcementMode(mode string) error {
	switch mode {
	case "", "off", "warn", "block":
		return nil
	default:
		return fmt.Errorf("manifest_enforcement=%s: %w", mode, ErrEnforcementModeInvalid)
	}
}

func (v *Validator) validateBudgetMode(mode string) error {
	switch mode {
	case "", "warn", "block":
		return nil
	default:
		return fmt.Errorf("budgets.mode=%s: %w", mode, ErrBudgetModeInvalid)
	}
}

func (v *Validator) validateLockMode(mode string) error {
	switch mode {
	case "", "declared", "derived":
		return nil
	default:
		return fmt.Errorf("control_plane.lock_mode=%s: %w", mode, ErrLockModeInvalid)
	}
}
