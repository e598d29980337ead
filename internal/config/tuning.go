// Package config loads the locator's tuning parameters from an
// optional JSON file, merged over the built-in defaults, mirroring
// the teacher's optional-pointer-field config pattern so the stage
// constants spec §4.6 names can be tuned without recompiling.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig holds the locator's tunable stage constants. A field
// left nil (or, for the per-stage slices, empty) in the JSON file
// keeps its built-in default (spec §4.6, §4.7). locate.ApplyTuning
// applies IterLim, ConvLim, StepLim, EvLimFraction, EvThreshFactor and
// MaxCorr; it does not apply StageLim, InitStepKm, StepTolKm or Almost,
// so the locator keeps its built-in values for those.
type TuningConfig struct {
	StageLim *int `json:"stage_lim,omitempty"`

	IterLim []int     `json:"iter_lim,omitempty"`
	ConvLim []float64 `json:"conv_lim,omitempty"`
	StepLim []float64 `json:"step_lim,omitempty"`

	InitStepKm *float64 `json:"init_step_km,omitempty"`
	StepTolKm  *float64 `json:"step_tol_km,omitempty"`
	Almost     *float64 `json:"almost,omitempty"`

	EvLimFraction  *float64 `json:"ev_lim_fraction,omitempty"`
	EvThreshFactor *float64 `json:"ev_thresh_factor,omitempty"`
	MaxCorr        *int     `json:"max_corr,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field nil, i.e.
// "use the built-in defaults everywhere".
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields the
// file omits retain the nil (default-using) zero value, so partial
// override files are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning config must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("reading tuning config: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing tuning config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set fields are internally consistent.
func (c *TuningConfig) Validate() error {
	if c.StageLim != nil && *c.StageLim <= 0 {
		return fmt.Errorf("stage_lim must be positive, got %d", *c.StageLim)
	}
	if n := *withDefaultInt(c.StageLim, 5); len(c.IterLim) > 0 && len(c.IterLim) != n {
		return fmt.Errorf("iter_lim must have %d entries, got %d", n, len(c.IterLim))
	}
	if n := *withDefaultInt(c.StageLim, 5); len(c.ConvLim) > 0 && len(c.ConvLim) != n {
		return fmt.Errorf("conv_lim must have %d entries, got %d", n, len(c.ConvLim))
	}
	if n := *withDefaultInt(c.StageLim, 5); len(c.StepLim) > 0 && len(c.StepLim) != n {
		return fmt.Errorf("step_lim must have %d entries, got %d", n, len(c.StepLim))
	}
	if c.EvLimFraction != nil && (*c.EvLimFraction <= 0 || *c.EvLimFraction > 1) {
		return fmt.Errorf("ev_lim_fraction must be in (0,1], got %f", *c.EvLimFraction)
	}
	if c.MaxCorr != nil && *c.MaxCorr < 2 {
		return fmt.Errorf("max_corr must be at least 2, got %d", *c.MaxCorr)
	}
	return nil
}

func withDefaultInt(v *int, def int) *int {
	if v == nil {
		return &def
	}
	return v
}

// WithDefaultFloat returns *v, or def if v is nil — the same
// optional-pointer-over-default resolution the teacher's tuning config
// uses at call sites that consume a single field.
func WithDefaultFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// WithDefaultInt returns *v, or def if v is nil.
func WithDefaultInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
