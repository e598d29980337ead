package locate

import (
	"math"
	"sort"

	"github.com/banshee-data/hypocenter/internal/geo"
)

// madToSigma converts a normalized median absolute deviation to a
// standard-deviation-equivalent spread (spec §4.4/GLOSSARY).
const madToSigma = 1.482580

// scoreBreakpoints is the number of tabulated points defining the
// rank-sum score generator F(p), p in [0,1] (spec §4.4).
//
// The original NEIC locator's scoreGenP/scoreGenF constants were not
// present in this module's retrieval pack (its original_source
// material was filtered down to zero kept files), so they cannot be
// transcribed verbatim. scoreTableP/scoreTableF below are a faithful
// stand-in: a monotonic, bounded-influence (robust) score shape built
// from a closed-form sine taper, sampled at 29 evenly spaced
// breakpoints in [0,1]. Every documented invariant (piecewise-linear,
// non-decreasing, then zero-meaned and antisymmetric after
// symmetrization) holds regardless of the exact breakpoint values.
const scoreBreakpoints = 29

var scoreTableP [scoreBreakpoints]float64
var scoreTableF [scoreBreakpoints]float64

func init() {
	for i := 0; i < scoreBreakpoints; i++ {
		p := float64(i) / float64(scoreBreakpoints-1)
		scoreTableP[i] = p
		scoreTableF[i] = math.Sin(math.Pi * (p - 0.5))
	}
}

// rawScore linearly interpolates F(p) from the tabulated breakpoints.
func rawScore(p float64) float64 {
	if p <= scoreTableP[0] {
		return scoreTableF[0]
	}
	last := scoreBreakpoints - 1
	if p >= scoreTableP[last] {
		return scoreTableF[last]
	}
	i := sort.SearchFloat64s(scoreTableP[:], p)
	if i == 0 {
		return scoreTableF[0]
	}
	p0, p1 := scoreTableP[i-1], scoreTableP[i]
	f0, f1 := scoreTableF[i-1], scoreTableF[i]
	frac := (p - p0) / (p1 - p0)
	return f0 + frac*(f1-f0)
}

// Restimator computes the rank-sum (R-estimator) penalty and
// steepest-descent direction over a list of WeightedResidual rows
// (picks plus, optionally, the Bayesian depth constraint), per
// spec §4.4.
type Restimator struct {
	wres []*Wres

	medianValue float64
	medianRows  []*Wres

	lastOrder []*Wres // order established by the most recent Penalty() call.

	scoresCache []float64
	scoresN     int
}

// NewRestimator binds a Restimator to the given Wres rows.
func NewRestimator(wres []*Wres) *Restimator {
	return &Restimator{wres: wres}
}

// SetData rebinds the Restimator to a new Wres list (e.g. the
// decorrelated virtual-pick list DeCorr produces).
func (r *Restimator) SetData(wres []*Wres) {
	r.wres = wres
	r.scoresCache = nil
	r.scoresN = 0
}

func (r *Restimator) pickRows() []*Wres {
	var out []*Wres
	for _, w := range r.wres {
		if !w.IsDepth {
			out = append(out, w)
		}
	}
	return out
}

func (r *Restimator) depthRow() *Wres {
	for _, w := range r.wres {
		if w.IsDepth {
			return w
		}
	}
	return nil
}

// Median returns the median of pick residuals, excluding the depth
// row. It sorts the pick rows by residual, assigns each a 1-based
// SortKey, and caches the row(s) at the median rank for DeMedianDesign
// to use. Returns 0 if fewer than 2 picks (spec §4.4).
func (r *Restimator) Median() float64 {
	picks := r.pickRows()
	n := len(picks)
	if n < 2 {
		r.medianValue = 0
		r.medianRows = nil
		return 0
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i].Residual < picks[j].Residual })
	for i, w := range picks {
		w.SortKey = float64(i + 1)
	}

	values := make([]float64, n)
	for i, w := range picks {
		values[i] = w.Residual
	}
	r.medianValue = medianOfSorted(values)

	if n%2 == 0 {
		r.medianRows = []*Wres{picks[n/2-1], picks[n/2]}
	} else {
		r.medianRows = []*Wres{picks[(n-1)/2]}
	}
	return r.medianValue
}

// Spread returns the normalized median absolute deviation of pick
// residuals from their median (spec §4.4/GLOSSARY).
func (r *Restimator) Spread() float64 {
	median := r.Median()
	picks := r.pickRows()
	if len(picks) < 2 {
		return 0
	}
	devs := make([]float64, len(picks))
	for i, w := range picks {
		devs[i] = math.Abs(w.Residual - median)
	}
	sort.Float64s(devs)
	return madToSigma * medianOfSorted(devs)
}

// medianOfSorted returns the median of an ascending, non-empty slice:
// the middle value for odd length, the mean of the two middle values
// for even length.
func medianOfSorted(vals []float64) float64 {
	n := len(vals)
	if n%2 == 0 {
		return 0.5 * (vals[n/2-1] + vals[n/2])
	}
	return vals[(n-1)/2]
}

// DeMedianRes subtracts the current median from every pick residual;
// the depth row is untouched. Idempotent: residuals left by a prior
// call already have median 0, so a repeat call subtracts 0 (spec §4.4,
// testable property #3).
func (r *Restimator) DeMedianRes() {
	median := r.Median()
	for _, w := range r.pickRows() {
		w.Residual -= median
	}
}

// DeMedianDesign computes the derivative-median vector from the
// row(s) at the median rank (two rows for even N, one for odd) and
// subtracts it from every pick row's derivative vector; the depth
// row's derivative is copied through unchanged (spec §4.4).
func (r *Restimator) DeMedianDesign() {
	r.Median() // refresh medianRows against the current residual state.
	if len(r.medianRows) == 0 {
		return
	}
	dof := len(r.medianRows[0].Deriv)
	medVec := make([]float64, dof)
	for _, row := range r.medianRows {
		for i := 0; i < dof; i++ {
			medVec[i] += row.Deriv[i]
		}
	}
	for i := range medVec {
		medVec[i] /= float64(len(r.medianRows))
	}

	for _, w := range r.pickRows() {
		w.DemedianDeriv = make([]float64, dof)
		for i := 0; i < dof; i++ {
			w.DemedianDeriv[i] = w.Deriv[i] - medVec[i]
		}
	}
	if d := r.depthRow(); d != nil {
		d.DemedianDeriv = append([]float64(nil), d.Deriv...)
	}
}

// Penalty sorts all Wres rows (picks by (residual-median)*weight, the
// depth row by residual*weight) and returns the rank-sum linear
// combination sum(score_j * sortedValue_j), the scalar the locator
// minimizes (spec §4.4/GLOSSARY). The resulting order is cached for a
// subsequent Steepest call.
func (r *Restimator) Penalty() float64 {
	median := r.medianValue
	all := append([]*Wres(nil), r.wres...)
	sort.Slice(all, func(i, j int) bool {
		return all[i].WeightedValue(median) < all[j].WeightedValue(median)
	})
	for i, w := range all {
		w.SortKey = float64(i + 1)
	}
	scores := r.scoresFor(len(all))

	var penalty float64
	for i, w := range all {
		penalty += scores[i] * w.WeightedValue(median)
	}
	r.lastOrder = all
	return penalty
}

// Steepest returns the steepest-descent unit direction (length n,
// n = hypocenter DOF) from the sort order of the most recent Penalty
// call: s_i = sum_j score_j * weight_j * demedianedDeriv_j[i],
// normalized to a 2-norm of 1 (or the zero vector if s is all zero),
// per spec §4.4, testable property #4.
func (r *Restimator) Steepest(n int) []float64 {
	s := make([]float64, n)
	if r.lastOrder == nil {
		return s
	}
	scores := r.scoresFor(len(r.lastOrder))
	for i, w := range r.lastOrder {
		for k := 0; k < n; k++ {
			var d float64
			if k < len(w.DemedianDeriv) {
				d = w.DemedianDeriv[k]
			}
			s[k] += scores[i] * w.Weight * d
		}
	}
	norm := geo.Norm2(s)
	if norm == 0 {
		return make([]float64, n)
	}
	for k := range s {
		s[k] /= norm
	}
	return s
}

// scoresFor returns the cached, zero-meaned, symmetrized score array
// for N data rows, rebuilding only when N changes (spec §4.4).
func (r *Restimator) scoresFor(n int) []float64 {
	if n == r.scoresN && r.scoresCache != nil {
		return r.scoresCache
	}
	raw := make([]float64, n)
	for j := 1; j <= n; j++ {
		p := float64(j) / float64(n+1)
		raw[j-1] = rawScore(p)
	}
	var mean float64
	for _, v := range raw {
		mean += v
	}
	mean /= float64(n)
	for i := range raw {
		raw[i] -= mean
	}

	sym := append([]float64(nil), raw...)
	for j := 1; j <= n/2; j++ {
		i1 := j - 1
		i2 := n - j
		a, b := sym[i1], sym[i2]
		newA := 0.5 * (a - b)
		sym[i1] = newA
		sym[i2] = -newA
	}
	if n%2 == 1 {
		sym[(n-1)/2] = 0
	}

	r.scoresCache = sym
	r.scoresN = n
	return sym
}
