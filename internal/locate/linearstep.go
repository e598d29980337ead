package locate

import (
	"sort"
)

// RestResult is the outcome of a LinearStep line search: the accepted
// step length and the linearized median/spread/dispersion at that
// length (spec §4.5).
type RestResult struct {
	StepLen float64
	Median  float64
	Spread  float64
	ChiSq   float64
}

// LinearStep line-searches along a fixed unit direction, evaluating
// the rank-sum penalty of the linearized residuals (residual minus the
// trial step projected through each row's derivative) without moving
// the Hypocenter (spec §4.5).
type LinearStep struct {
	wres []*Wres
	dir  []float64
	r    *Restimator // shares the score table cache.
}

// NewLinearStep binds a LinearStep to the current Wres rows and
// steepest-descent direction.
func NewLinearStep(wres []*Wres, dir []float64) *LinearStep {
	return &LinearStep{wres: wres, dir: dir, r: &Restimator{}}
}

// dotDeriv projects dir onto a row's derivative vector.
func dotDeriv(dir, deriv []float64) float64 {
	var s float64
	n := len(dir)
	if len(deriv) < n {
		n = len(deriv)
	}
	for i := 0; i < n; i++ {
		s += dir[i] * deriv[i]
	}
	return s
}

// Eval computes the linearized RestResult at the given trial step
// length, writing each row's EstResidual as a side effect (spec §4.5,
// §9's Wres.EstResidual scratch field).
func (ls *LinearStep) Eval(stepLen float64) RestResult {
	for _, w := range ls.wres {
		w.EstResidual = w.Residual - stepLen*dotDeriv(ls.dir, w.Deriv)
	}

	var picks []*Wres
	for _, w := range ls.wres {
		if !w.IsDepth {
			picks = append(picks, w)
		}
	}

	var median, spread float64
	if len(picks) >= 2 {
		vals := make([]float64, len(picks))
		for i, w := range picks {
			vals[i] = w.EstResidual
		}
		sort.Float64s(vals)
		median = medianOfSorted(vals)

		devs := make([]float64, len(picks))
		for i, w := range picks {
			devs[i] = absf(w.EstResidual - median)
		}
		sort.Float64s(devs)
		spread = madToSigma * medianOfSorted(devs)
	}

	all := append([]*Wres(nil), ls.wres...)
	sort.Slice(all, func(i, j int) bool {
		return estWeightedValue(all[i], median) < estWeightedValue(all[j], median)
	})
	scores := ls.r.scoresFor(len(all))
	var chiSq float64
	for i, w := range all {
		chiSq += scores[i] * estWeightedValue(w, median)
	}

	return RestResult{StepLen: stepLen, Median: median, Spread: spread, ChiSq: chiSq}
}

func estWeightedValue(w *Wres, median float64) float64 {
	if w.IsDepth {
		return w.EstResidual * w.Weight
	}
	return (w.EstResidual - median) * w.Weight
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// homeFraction is the step-4 homing-in loop's relative tightness
// threshold; Search's stepMin argument is the absolute one (spec §4.5).
const homeFraction = 0.15

// Search runs the messy bisection spec §4.5 describes: geometric
// doubling when the initial step undershoots, halving toward zero when
// it overshoots, then homing in once a bracket containing the minimum
// is found.
func (ls *LinearStep) Search(startLen, stepMin, stepMax float64) RestResult {
	r0 := ls.Eval(0)
	r1 := ls.Eval(startLen)

	var lo, mid, hi RestResult

	if r0.ChiSq >= r1.ChiSq {
		// Too short: double geometrically until chiSq stops improving,
		// or the probe reaches stepMax (accept immediately).
		prev, cur := r0, r1
		for {
			probeLen := cur.StepLen * 2
			if probeLen >= stepMax {
				return ls.Eval(stepMax)
			}
			probe := ls.Eval(probeLen)
			if probe.ChiSq >= cur.ChiSq {
				lo, mid, hi = prev, cur, probe
				break
			}
			prev, cur = cur, probe
		}
	} else {
		// Too long: halve toward zero until chiSq dips below chiSq(s0),
		// bracketing the minimum, or the midpoint reaches stepMin.
		prev := r1
		cand := r1
		for {
			candLen := cand.StepLen / 2
			cand = ls.Eval(candLen)
			if candLen <= stepMin {
				if cand.ChiSq >= r0.ChiSq {
					return ls.Eval(0) // fall back to zero step.
				}
				return cand
			}
			if cand.ChiSq < r0.ChiSq {
				lo, mid, hi = r0, cand, prev
				break
			}
			prev = cand
		}
	}

	for hi.StepLen-lo.StepLen > stepMin && (hi.StepLen-lo.StepLen)/mid.StepLen > homeFraction {
		lowerLen := (lo.StepLen + mid.StepLen) / 2
		lower := ls.Eval(lowerLen)
		if lower.ChiSq < mid.ChiSq {
			hi = mid
			mid = lower
			continue
		}
		upperLen := (mid.StepLen + hi.StepLen) / 2
		upper := ls.Eval(upperLen)
		if upper.ChiSq < mid.ChiSq {
			lo = mid
			mid = upper
			continue
		}
		hi = upper
	}

	return mid
}
