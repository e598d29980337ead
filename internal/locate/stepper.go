package locate

import (
	"github.com/banshee-data/hypocenter/internal/config"
	"github.com/banshee-data/hypocenter/internal/refdata"
	"github.com/banshee-data/hypocenter/internal/ttime"
)

// Stage constants driving the locator's outer stage/iteration loop
// (spec §4.6, §9). Stage 0 is the coarse search; stages 1-4 tighten
// convergence and step-length bounds as the solution settles.
const (
	StageLim   = 5
	InitStepKm = 50.0
	StepTolKm  = 20.0  // below this, a trial step is "effectively zero".
	Almost     = 1.1   // proximity factor for NEARLY_CONVERGED classification.
	unstableRatio = 2.0 // dispersion growth factor beyond which a stalled stage is UNSTABLE_SOLUTION rather than DID_NOT_CONVERGE.
)

// IterLim, ConvLim and StepLim are indexed by stage (spec §4.6).
var (
	IterLim = [StageLim]int{15, 20, 20, 20, 20}
	ConvLim = [StageLim]float64{1.0, 0.1, 0.1, 0.1, 0.1} // km
	StepLim = [StageLim]float64{200, 50, 20, 20, 20}      // km
)

// ApplyTuning overrides the package-level stage constants from an
// optional TuningConfig, falling back to the built-in defaults above
// for any field the config leaves nil (spec §4.6's externalized
// tuning, per the teacher's internal/config merge-over-defaults
// pattern). It must be called, if at all, before any location run
// starts; the core itself never mutates these package-level arrays.
func ApplyTuning(cfg *config.TuningConfig) {
	if cfg == nil {
		return
	}
	if len(cfg.IterLim) == StageLim {
		copy(IterLim[:], cfg.IterLim)
	}
	if len(cfg.ConvLim) == StageLim {
		copy(ConvLim[:], cfg.ConvLim)
	}
	if len(cfg.StepLim) == StageLim {
		copy(StepLim[:], cfg.StepLim)
	}
	if cfg.MaxCorr != nil {
		maxCorr = *cfg.MaxCorr
	}
	if cfg.EvLimFraction != nil {
		evLimFraction = *cfg.EvLimFraction
	}
	if cfg.EvThreshFactor != nil {
		evThreshFactor = *cfg.EvThreshFactor
	}
}

// maxDampAttempts bounds the makeStep damping-retry loop (spec §4.6's
// "until giving up"); the spec leaves the exact retry count
// unspecified, so this is a documented stand-in chosen to let the
// damping oscillator (jiggleDamp) complete at least one full period.
const maxDampAttempts = 8

// LocatorContext carries the per-event/per-locator toggles and the
// damping oscillator state that spec §9 requires NOT live as
// process-global mutable state. A new LocatorContext is constructed
// per Event location run.
type LocatorContext struct {
	Tectonic    bool
	RSTT        bool
	DeCorrelate bool
	DebugLevel  int

	// Cratons and ZoneStats are the immutable reference-data
	// collaborators spec §5 allows to be shared read-only across
	// events; either may be nil when no such reference data is loaded.
	Cratons   *refdata.Cratons
	ZoneStats *refdata.ZoneStatistics

	damp float64 // step-damping factor; starts at 0.45 (spec §4.6).
}

// NewLocatorContext builds a LocatorContext with the damping
// oscillator at its initial value.
func NewLocatorContext(tectonic, rstt, deCorrelate bool, debugLevel int, cratons *refdata.Cratons, zoneStats *refdata.ZoneStatistics) *LocatorContext {
	return &LocatorContext{
		Tectonic:    tectonic,
		RSTT:        rstt,
		DeCorrelate: deCorrelate,
		DebugLevel:  debugLevel,
		Cratons:     cratons,
		ZoneStats:   zoneStats,
		damp:        0.45,
	}
}

// jiggleDamp advances the damping oscillator one step: a slow ramp up
// from 0.45, with a sharp reset down once it climbs past 0.66484375,
// so repeated damped retries within one makeStep call don't converge
// on a single fixed damping factor (spec §4.6).
func (c *LocatorContext) jiggleDamp() {
	if c.damp <= 0.66484375 {
		c.damp += 0.0390625
	} else {
		c.damp -= 0.21875
	}
}

// Stepper orchestrates one location iteration: setDir refreshes the
// phase identification, weighted residuals and steepest-descent
// direction; makeStep line-searches along that direction and applies
// the accepted step to the Hypocenter (spec §4.6).
type Stepper struct {
	Groups []*PickGroup
	Hypo   *Hypocenter
	Oracle ttime.Oracle
	ID     *PhaseID
	R      *Restimator
	DC     DeCorr
	Ctx    *LocatorContext

	otherWeight  float64
	stickyWeight float64

	wres          []*Wres
	rawWres       []*Wres // per-pick Wres before decorrelation projection, kept for Close-out importances (spec §4.8 step 7).
	dir           []float64
	dispersion    float64
	changed       bool
	preStepMedian float64
}

// RawWres returns the most recent setDir call's pre-decorrelation,
// per-pick weighted residuals (the Bayesian depth row included when
// active), for Close-out's data-importance rebuild.
func (s *Stepper) RawWres() []*Wres { return s.rawWres }

// Wres returns the most recent setDir call's (possibly decorrelated)
// weighted residuals.
func (s *Stepper) Wres() []*Wres { return s.wres }

// Dispersion returns the most recently computed rank-sum penalty.
func (s *Stepper) Dispersion() float64 { return s.dispersion }

// NewStepper builds a Stepper bound to the given Event state.
func NewStepper(groups []*PickGroup, hypo *Hypocenter, oracle ttime.Oracle, ctx *LocatorContext) *Stepper {
	return &Stepper{
		Groups: groups,
		Hypo:   hypo,
		Oracle: oracle,
		ID:     &PhaseID{},
		R:      NewRestimator(nil),
		Ctx:    ctx,
	}
}

// setDir refreshes the hypocenter's Bayesian depth weight (if
// reWeight), re-identifies phases (or, with reID false, re-scores the
// existing identification), optionally decorrelates the resulting
// weighted residuals, and recomputes the rank-sum dispersion and
// steepest-descent direction (spec §4.6 step 1).
func (s *Stepper) setDir(otherWeight, stickyWeight float64, reID, reWeight bool) (StatusCode, error) {
	s.otherWeight = otherWeight
	s.stickyWeight = stickyWeight

	// reWeight refreshes the tectonic classification and, when no
	// analyst-set Bayesian prior is in force, pulls one from the
	// zone-statistics table; the depth-weight multiplier then
	// distinguishes an analyst prior (1x) from a zone-statistics prior
	// (3x, looser trust), and tectonic itself is the one toggle spec §9
	// allows setDir to mutate.
	if reWeight {
		if s.Ctx.Cratons != nil {
			s.Ctx.Tectonic = s.Ctx.Cratons.InAny(s.Hypo.Lat, s.Hypo.Lon)
		}
		if !s.Hypo.BayesActive && s.Ctx.ZoneStats != nil {
			if depth, spread, ok := s.Ctx.ZoneStats.BayesPrior(s.Hypo.Lat, s.Hypo.Lon); ok {
				s.Hypo.BayesDepth = depth
				s.Hypo.BayesSpread = spread
				s.Hypo.BayesActive = true
				s.Hypo.BayesFromZoneStats = true
			}
		}
		if s.Hypo.BayesActive && s.Hypo.BayesSpread > 0 {
			mult := 1.0
			if s.Hypo.BayesFromZoneStats {
				mult = 3.0
			}
			s.Hypo.BayesWeight = mult / s.Hypo.BayesSpread
		}
	}

	usedStations := 0
	for _, g := range s.Groups {
		if len(g.UsedPicks()) > 0 {
			usedStations++
		}
	}
	if usedStations < 3 {
		return StatusInsufficientData, nil
	}

	for _, g := range s.Groups {
		g.UpdateGeometry(s.Hypo.Trig)
		for _, p := range g.UsedPicks() {
			p.RecomputeTravelTime(s.Hypo.OriginTime)
		}
	}

	changed, pickWres, err := s.ID.DoID(s.Groups, s.Hypo, s.Oracle, otherWeight, stickyWeight, reID, reWeight, s.Ctx.Tectonic, s.Ctx.RSTT)
	if err != nil {
		// ttime.Oracle only names one error sentinel (ErrBadDepth, spec
		// §7); any other Oracle failure is surfaced the same way since
		// the status model has no separate "oracle failure" code.
		return StatusBadDepth, err
	}
	s.changed = changed

	dof := s.Hypo.DOF()
	wres := pickWres
	if s.Hypo.BayesActive {
		deriv := make([]float64, dof)
		if dof == 3 {
			deriv[2] = 1
		}
		wres = append(wres, &Wres{
			IsDepth:  true,
			Residual: s.Hypo.BayesDepth - s.Hypo.DepthKm,
			Weight:   s.Hypo.BayesWeight,
			Deriv:    deriv,
		})
	}

	s.rawWres = wres

	if s.Ctx.DeCorrelate {
		var picks []*Wres
		var depthRow *Wres
		for _, w := range wres {
			if w.IsDepth {
				depthRow = w
			} else {
				picks = append(picks, w)
			}
		}
		projected, derr := s.DC.Project(picks, dof)
		if derr != nil {
			return StatusSingularMatrix, derr
		}
		if depthRow != nil {
			projected = append(projected, depthRow)
		}
		wres = projected
	}

	s.wres = wres
	s.R.SetData(wres)
	s.preStepMedian = s.R.Median()
	s.R.DeMedianRes()
	s.R.DeMedianDesign()
	s.dispersion = s.R.Penalty()
	s.dir = s.R.Steepest(dof)

	return StatusSuccess, nil
}

// makeStep line-searches along the direction setDir last computed,
// applies the accepted step and the one origin-time shift, and
// re-evaluates setDir with fixed (non-re-identifying, non-reweighting)
// parameters to judge whether dispersion improved. On a worse outcome
// it restores the pre-step Hypocenter, jiggles the damping oscillator,
// and retries with a shortened step, until either a step is accepted,
// a PHASEID_CHANGED is detected, or the retry budget is exhausted
// (spec §4.6 step 3-5).
func (s *Stepper) makeStep(stage, iter int) (StatusCode, error) {
	snapshot := s.Hypo.Snapshot(stage, iter, StatusSuccess)

	startLen := s.Hypo.StepLen
	if startLen < StepTolKm {
		startLen = InitStepKm
	}

	baseDispersion := s.dispersion
	preMedian := s.preStepMedian
	dir := s.dir
	wres := s.wres
	stepMax := StepLim[stage]
	convLim := ConvLim[stage]

	lastDispersion := baseDispersion

	for attempt := 0; attempt < maxDampAttempts; attempt++ {
		ls := NewLinearStep(wres, dir)
		result := ls.Search(startLen, 1e-3, stepMax)

		delH, delZ := s.Hypo.ApplyStep(result.StepLen, dir)
		s.Hypo.ApplyOriginShift(preMedian)

		status, err := s.setDir(s.otherWeight, s.stickyWeight, false, false)
		if err != nil {
			s.Hypo.Restore(snapshot)
			return status, err
		}
		if status != StatusSuccess {
			s.Hypo.Restore(snapshot)
			return status, nil
		}
		if s.changed {
			return StatusPhaseIDChanged, nil
		}

		lastDispersion = s.dispersion
		if s.dispersion < baseDispersion {
			// Movement below the stage's convergence limit means this
			// stage has settled even though the step was accepted.
			if delH <= convLim && delZ <= convLim {
				return StatusNearlyConverged, nil
			}
			return StatusSuccess, nil
		}

		s.Hypo.Restore(snapshot)
		s.Ctx.jiggleDamp()
		startLen = result.StepLen * s.Ctx.damp
		if startLen < 1e-3 {
			break
		}
	}

	// Retry budget exhausted without an accepted step. Restore the
	// pre-step state and refresh setDir one more time so the Stepper's
	// cached wres/dir/dispersion are consistent with the Hypocenter the
	// caller now sees.
	s.Hypo.Restore(snapshot)
	if status, err := s.setDir(s.otherWeight, s.stickyWeight, false, false); err != nil || status != StatusSuccess {
		if err != nil {
			return status, err
		}
		return status, nil
	}

	if baseDispersion <= 0 {
		return StatusDidNotConverge, nil
	}
	ratio := lastDispersion / baseDispersion
	switch {
	case ratio <= Almost*(1+convLim/baseDispersion):
		return StatusNearlyConverged, nil
	case ratio > unstableRatio:
		return StatusUnstableSolution, nil
	default:
		return StatusDidNotConverge, nil
	}
}
