package locate

import (
	"math"
	"testing"
)

// parabolicWres builds two pick rows with opposite-signed derivatives
// so their EstResidual gap is 2*(target-s) under a trial step of
// length s — a V-shaped rank-sum penalty minimized at s = target, the
// minimal fixture needed to exercise the line search's bracket/home-in
// logic (a flat, direction-insensitive fixture would never move).
func parabolicWres(target float64) []*Wres {
	return []*Wres{
		{Residual: target, Weight: 1, Deriv: []float64{1}},
		{Residual: -target, Weight: 1, Deriv: []float64{-1}},
	}
}

func TestLinearStep_EvalMatchesLinearizedResidual(t *testing.T) {
	wres := parabolicWres(5.0)
	ls := NewLinearStep(wres, []float64{1})
	result := ls.Eval(3.0)
	if math.Abs(wres[0].EstResidual-(5.0-3.0)) > 1e-9 {
		t.Errorf("expected EstResidual 2.0, got %v", wres[0].EstResidual)
	}
	if result.StepLen != 3.0 {
		t.Errorf("expected StepLen echoed back, got %v", result.StepLen)
	}
}

func TestLinearStep_SearchConvergesTowardTarget(t *testing.T) {
	wres := parabolicWres(5.0)
	ls := NewLinearStep(wres, []float64{1})
	result := ls.Search(1.0, 0.01, 50.0)

	if result.StepLen < 0 || result.StepLen > 50 {
		t.Fatalf("expected step length within search bounds, got %v", result.StepLen)
	}
	// The residual at the chosen step should be smaller in magnitude
	// than the residual at zero step (search should move toward target).
	r0 := ls.Eval(0)
	rResult := ls.Eval(result.StepLen)
	if rResult.ChiSq > r0.ChiSq+1e-6 {
		t.Errorf("expected search to not worsen chiSq: r0=%v rResult=%v", r0.ChiSq, rResult.ChiSq)
	}
}

func TestLinearStep_SearchRespectsStepMax(t *testing.T) {
	wres := parabolicWres(1000.0) // target far beyond any reasonable stepMax.
	ls := NewLinearStep(wres, []float64{1})
	result := ls.Search(1.0, 0.01, 20.0)
	if result.StepLen > 20.0+1e-9 {
		t.Errorf("expected step length capped at stepMax=20, got %v", result.StepLen)
	}
}

func TestLinearStep_SearchFallsBackToZeroWhenWorse(t *testing.T) {
	// target = 0 means any positive step only increases the residual
	// magnitude; search starting "too long" should fall back near zero.
	wres := parabolicWres(0.0)
	ls := NewLinearStep(wres, []float64{1})
	result := ls.Search(10.0, 0.01, 50.0)
	if result.StepLen > 1.0 {
		t.Errorf("expected a small/zero step when the direction doesn't help, got %v", result.StepLen)
	}
}
