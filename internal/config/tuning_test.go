package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestEmptyTuningConfig(t *testing.T) {
	cfg := EmptyTuningConfig()
	if cfg.StageLim != nil || cfg.MaxCorr != nil || len(cfg.IterLim) != 0 {
		t.Errorf("expected every field nil/empty, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected an all-nil config to validate, got %v", err)
	}
}

func TestLoadTuningConfig_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Fatal("expected an error for a non-.json extension")
	}
}

func TestLoadTuningConfig_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	body, err := json.Marshal(map[string]any{
		"max_corr":        25,
		"ev_lim_fraction": 0.9,
	})
	if err != nil {
		t.Fatalf("marshaling fixture: %v", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxCorr == nil || *cfg.MaxCorr != 25 {
		t.Errorf("expected max_corr 25, got %v", cfg.MaxCorr)
	}
	if cfg.EvLimFraction == nil || *cfg.EvLimFraction != 0.9 {
		t.Errorf("expected ev_lim_fraction 0.9, got %v", cfg.EvLimFraction)
	}
	if cfg.IterLim != nil {
		t.Errorf("expected iter_lim to stay nil when omitted, got %v", cfg.IterLim)
	}
}

func TestTuningConfig_ValidateRejectsMismatchedStageLim(t *testing.T) {
	cfg := EmptyTuningConfig()
	cfg.IterLim = []int{1, 2, 3} // StageLim defaults to 5.
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an IterLim length mismatched with the default StageLim")
	}
}

func TestTuningConfig_ValidateRejectsBadEvLimFraction(t *testing.T) {
	bad := 1.5
	cfg := EmptyTuningConfig()
	cfg.EvLimFraction = &bad
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for ev_lim_fraction outside (0,1]")
	}
}

func TestTuningConfig_ValidateRejectsSmallMaxCorr(t *testing.T) {
	small := 1
	cfg := EmptyTuningConfig()
	cfg.MaxCorr = &small
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for max_corr below 2")
	}
}

func TestWithDefaults(t *testing.T) {
	if got := WithDefaultFloat(nil, 3.5); got != 3.5 {
		t.Errorf("expected default 3.5, got %v", got)
	}
	v := 9.0
	if got := WithDefaultFloat(&v, 3.5); got != 9.0 {
		t.Errorf("expected overridden value 9.0, got %v", got)
	}
	if got := WithDefaultInt(nil, 7); got != 7 {
		t.Errorf("expected default 7, got %v", got)
	}
	n := 2
	if got := WithDefaultInt(&n, 7); got != 2 {
		t.Errorf("expected overridden value 2, got %v", got)
	}
}
