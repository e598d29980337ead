package locate

// StageParams bundles the per-stage phase-ID loosening and
// decorrelation toggle spec §4.6/§7 describes: "stage 1 onward
// progressively loosens the phase-ID (otherWeight from 0.01 to 0.1,
// stickyWeight from 5 to 1, full reID enabled) and may enable
// decorrelation".
type StageParams struct {
	OtherWeight  float64
	StickyWeight float64
	ReID         bool
	DeCorrelate  bool
}

// DefaultStageParams is the per-stage progression this locator uses.
// Stage 0 keeps InitialID's biased starting set (no re-identification,
// tight sticky weight); stages 1-4 progressively loosen otherWeight and
// stickyWeight and turn on full re-identification; decorrelation (when
// the caller's LocatorContext enables it at all) switches on from
// stage 2, once the phase identification has had a chance to settle.
// The exact loosening schedule within [0.01,0.1] and [5,1] is spec
// §4.6's own example range, not separately tabulated per stage, so
// this is a documented monotonic interpolation across stages 1-4.
var DefaultStageParams = [StageLim]StageParams{
	{OtherWeight: 0.01, StickyWeight: 5, ReID: false, DeCorrelate: false},
	{OtherWeight: 0.04, StickyWeight: 3, ReID: true, DeCorrelate: false},
	{OtherWeight: 0.07, StickyWeight: 2, ReID: true, DeCorrelate: true},
	{OtherWeight: 0.1, StickyWeight: 1, ReID: true, DeCorrelate: true},
	{OtherWeight: 0.1, StickyWeight: 1, ReID: true, DeCorrelate: true},
}

// maxPhaseIDResets bounds how many times a single stage may restart
// its iteration counter on PHASEID_CHANGED (spec §7: "the driver
// resets the iteration counter within the stage"), so an
// identification that oscillates forever cannot hang the run.
const maxPhaseIDResets = 10

// LocateResult is the terminal outcome of a full RunLocator call: the
// final status, the stage/iteration at which it terminated, and the
// per-iteration movement stageMovement reports, summed over the run
// (used by SetExitCode).
type LocateResult struct {
	Status    StatusCode
	Stage     int
	Iter      int
	DelH      float64
	DelZ      float64
	Stepper   *Stepper
	CloseOut  *CloseOutResult
}

// RunLocator drives the full location: InitialID once, then up to
// StageLim stages, each up to its ITERLIM iterations, calling
// Stepper.setDir/makeStep per spec §2's control-flow summary. On
// termination it runs Close-out and returns the combined result.
func RunLocator(e *Event) (*LocateResult, error) {
	if err := e.InitialID(); err != nil {
		return nil, err
	}

	stepper := NewStepper(e.Groups, e.Hypo, e.Oracle, e.Ctx)

	var totalDelH, totalDelZ float64
	var lastStatus StatusCode
	var lastStage, lastIter int

	for stage := 0; stage < StageLim; stage++ {
		params := DefaultStageParams[stage]
		e.Ctx.DeCorrelate = e.allowDeCorrelate && params.DeCorrelate

		status, err := stepper.setDir(params.OtherWeight, params.StickyWeight, params.ReID, true)
		if err != nil {
			return nil, err
		}
		if status != StatusSuccess {
			lastStatus, lastStage, lastIter = status, stage, 0
			e.recordAudit(stage, 0, status)
			if status == StatusInsufficientData || status == StatusBadDepth {
				break
			}
			continue
		}

		resets := 0
		iter := 0
		for iter < IterLim[stage] {
			status, err := stepper.makeStep(stage, iter)
			if err != nil {
				return nil, err
			}

			delH, delZ := stageMovement(e.Hypo, stepper)
			e.recordAudit(stage, iter, status)
			lastStatus, lastStage, lastIter = status, stage, iter

			switch status {
			case StatusPhaseIDChanged:
				resets++
				if resets >= maxPhaseIDResets {
					lastStatus = StatusDidNotConverge
					iter = IterLim[stage]
					continue
				}
				iter = 0
				continue
			case StatusSuccess:
				totalDelH += delH
				totalDelZ += delZ
				iter++
			default:
				// NEARLY_CONVERGED / DID_NOT_CONVERGE / UNSTABLE_SOLUTION /
				// INSUFFICIENT_DATA / SINGULAR_MATRIX terminate this stage,
				// not the whole run (spec §7).
				totalDelH += delH
				totalDelZ += delZ
				iter = IterLim[stage]
			}
		}
	}

	result := &LocateResult{
		Status:  lastStatus,
		Stage:   lastStage,
		Iter:    lastIter,
		DelH:    totalDelH,
		DelZ:    totalDelZ,
		Stepper: stepper,
	}

	seResid := 0.0
	phUsed := e.UsedPickCount()
	if raw := stepper.RawWres(); len(raw) > 0 {
		r := NewRestimator(raw)
		seResid = r.Spread()
	}
	azimGap, robustGap := e.AzimuthalGaps()
	delMin := e.MinDistanceDeg()

	result.CloseOut = CloseOut(stepper.Wres(), stepper.RawWres(), e.Hypo, seResid, phUsed, e.Ctx.DeCorrelate, azimGap, robustGap, delMin)
	return result, nil
}

// stageMovement reports the Hypocenter's current StepLen as delH and,
// for a 3-component step direction, StepLen·|dir[2]| as delZ (else 0);
// RunLocator sums these into the delH/delZ SetExitCode needs.
func stageMovement(h *Hypocenter, s *Stepper) (delH, delZ float64) {
	delH = h.StepLen
	if dir := s.dir; len(dir) == 3 {
		delZ = h.StepLen * absf(dir[2])
	}
	return delH, delZ
}
