package config

import (
	"errors"
	"testing"
)

func baseConfig() *RunConfig {
	return &RunConfig{
		RepoPath:             "/repo",
		MainBranch:           "main",
		TasksDir:             "tasks",
		Doctor:               "make test",
		MaxParallel:          4,
		MaxRetries:           3,
		DoctorTimeoutSeconds: 120,
		ManifestEnforcement:  "warn",
		Budgets:              BudgetsConfig{MaxTokensPerTask: 100000, Mode: "warn"},
	}
}

func TestValidator_Validate_Nil(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(nil); !errors.Is(err, ErrConfigEmpty) {
		t.Fatalf("expected ErrConfigEmpty, got %v", err)
	}
}

func TestValidator_Validate_Valid(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(baseConfig()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidator_Validate_RepoPathEmpty(t *testing.T) {
	cfg := baseConfig()
	cfg.RepoPath = ""
	v := NewValidator()
	if err := v.Validate(cfg); !errors.Is(err, ErrRepoPathEmpty) {
		t.Fatalf("expected ErrRepoPathEmpty, got %v", err)
	}
}

func TestValidator_Validate_MainBranchEmpty(t *testing.T) {
	cfg := baseConfig()
	cfg.MainBranch = ""
	v := NewValidator()
	if err := v.Validate(cfg); !errors.Is(err, ErrMainBranchEmpty) {
		t.Fatalf("expected ErrMainBranchEmpty, got %v", err)
	}
}

func TestValidator_Validate_DoctorEmpty(t *testing.T) {
	cfg := baseConfig()
	cfg.Doctor = ""
	v := NewValidator()
	if err := v.Validate(cfg); !errors.Is(err, ErrDoctorEmpty) {
		t.Fatalf("expected ErrDoctorEmpty, got %v", err)
	}
}

func TestValidator_Validate_MaxParallelInvalid(t *testing.T) {
	for _, n := range []int{0, -1} {
		cfg := baseConfig()
		cfg.MaxParallel = n
		v := NewValidator()
		if err := v.Validate(cfg); !errors.Is(err, ErrMaxParallelInvalid) {
			t.Fatalf("max_parallel=%d: expected ErrMaxParallelInvalid, got %v", n, err)
		}
	}
}

func TestValidator_Validate_MaxRetriesNegative(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxRetries = -1
	v := NewValidator()
	if err := v.Validate(cfg); !errors.Is(err, ErrMaxRetriesInvalid) {
		t.Fatalf("expected ErrMaxRetriesInvalid, got %v", err)
	}
}

func TestValidator_Validate_MaxRetriesZeroIsUnlimitedAndValid(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxRetries = 0
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Fatalf("expected max_retries=0 (unlimited) to be valid, got %v", err)
	}
}

func TestValidator_Validate_DoctorTimeoutInvalid(t *testing.T) {
	cfg := baseConfig()
	cfg.DoctorTimeoutSeconds = 0
	v := NewValidator()
	if err := v.Validate(cfg); !errors.Is(err, ErrDoctorTimeoutInvalid) {
		t.Fatalf("expected ErrDoctorTimeoutInvalid, got %v", err)
	}
}

func TestValidator_Validate_EnforcementModeInvalid(t *testing.T) {
	cfg := baseConfig()
	cfg.ManifestEnforcement = "nonsense"
	v := NewValidator()
	if err := v.Validate(cfg); !errors.Is(err, ErrEnforcementModeInvalid) {
		t.Fatalf("expected ErrEnforcementModeInvalid, got %v", err)
	}
}

func TestValidator_Validate_EnforcementModeEmptyIsValid(t *testing.T) {
	cfg := baseConfig()
	cfg.ManifestEnforcement = ""
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Fatalf("expected empty manifest_enforcement to be valid, got %v", err)
	}
}

func TestValidator_Validate_BudgetModeInvalid(t *testing.T) {
	cfg := baseConfig()
	cfg.Budgets.Mode = "nonsense"
	v := NewValidator()
	if err := v.Validate(cfg); !errors.Is(err, ErrBudgetModeInvalid) {
		t.Fatalf("expected ErrBudgetModeInvalid, got %v", err)
	}
}

func TestValidator_Validate_LockModeInvalidOnlyWhenControlPlaneEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.ControlPlane.LockMode = "nonsense"
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Fatalf("control_plane disabled: expected lock_mode to be unchecked, got %v", err)
	}

	cfg.ControlPlane.Enabled = true
	if err := v.Validate(cfg); !errors.Is(err, ErrLockModeInvalid) {
		t.Fatalf("control_plane enabled: expected ErrLockModeInvalid, got %v", err)
	}
}

func TestValidator_Validate_LockModeDerivedIsValid(t *testing.T) {
	cfg := baseConfig()
	cfg.ControlPlane.Enabled = true
	cfg.ControlPlane.LockMode = "derived"
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Fatalf("expected lock_mode=derived to be valid, got %v", err)
	}
}
