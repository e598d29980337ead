package locate

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hypocenter/internal/geo"
)

// DeCorr tuning constants (spec §4.7). The pack's retrieval material
// gave no numeric values for MAXCORR/EVLIM/EVTHRESH or the pick-pair
// covariance function itself (all three are named but left
// implementation-defined in the source), so these are documented
// calibration stand-ins rather than transcribed constants — chosen to
// satisfy the documented behavior (cap cluster size, retain the
// eigenpairs carrying most of the variance, drop a noise floor).
const corrLengthDeg = 5.0 // angular decay length for station-geometry correlation.

// maxCorr, evLimFraction and evThreshFactor are package-level vars
// (not consts) so ApplyTuning can externalize them per spec §4.6/§4.7's
// MAXCORR/EVLIM/EVTHRESH naming.
var (
	maxCorr        = 20   // cap on pick rows entering the covariance matrix.
	evLimFraction  = 0.95 // retained eigenpairs must capture this fraction of trace.
	evThreshFactor = 0.01 // eigenvalues below this fraction of maxEigen are noise floor.
)

// ErrSingularCovariance is returned when DeCorr's covariance matrix
// fails to eigen-decompose (spec §7, folded into SINGULAR_MATRIX by
// the caller).
var ErrSingularCovariance = errors.New("decorr: covariance eigendecomposition failed")

// DeCorr projects correlated pick residuals into an uncorrelated
// virtual-pick basis via eigen-decomposition of their covariance
// matrix (spec §4.7).
type DeCorr struct{}

// Project runs the full decorrelation pipeline over pick-only Wres
// rows (the depth row, if any, must be appended unchanged by the
// caller — it does not correlate with picks).
func (DeCorr) Project(rows []*Wres, dof int) ([]*Wres, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	rows = capToMaxCorr(rows)
	n := len(rows)
	if n < 2 {
		return rows, nil
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		cov.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			cov.SetSym(i, j, pickCorrelation(rows[i].Pick, rows[j].Pick))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(cov, true); !ok {
		return nil, ErrSingularCovariance
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })

	var trace float64
	for _, v := range vals {
		trace += v
	}
	maxEigen := vals[order[n-1]]

	// Largest m (into the ascending order) such that the trailing
	// eigenpairs [m:] capture evLimFraction of the trace.
	m := 0
	var cum float64
	for i := n - 1; i >= 0; i-- {
		cum += vals[order[i]]
		if cum >= evLimFraction*trace {
			m = i
			break
		}
	}
	// Tighten further (drop more of the small end) until the smallest
	// kept eigenvalue clears the noise floor.
	for m < n-1 && vals[order[m]] > evThreshFactor*maxEigen {
		m++
	}

	var sumDepthDeriv float64
	if dof == 3 {
		for _, w := range rows {
			sumDepthDeriv += w.Deriv[2]
		}
	}

	var out []*Wres
	for i := m; i < n; i++ {
		idx := order[i]
		eigVal := vals[idx]
		if eigVal <= 0 {
			continue
		}
		weight := 1.0 / math.Sqrt(eigVal)

		var resid float64
		deriv := make([]float64, dof)
		for r := 0; r < n; r++ {
			coef := vecs.At(r, idx)
			resid += coef * rows[r].Residual
			for k := 0; k < dof; k++ {
				deriv[k] += coef * rows[r].Deriv[k]
			}
		}

		if dof == 3 && sign(deriv[2]) != sign(sumDepthDeriv) && sumDepthDeriv != 0 {
			resid = -resid
			for k := range deriv {
				deriv[k] = -deriv[k]
			}
		}

		out = append(out, &Wres{Residual: resid, Weight: weight, Deriv: deriv})
	}

	return out, nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	if x > 0 {
		return 1
	}
	return 0
}

// pickCorrelation estimates the shared-error correlation between two
// picks: a fixed 0.3 for picks from the same station with the same
// primary phase group and 0.1 with different groups; otherwise it
// decays with angular station separation and is halved when the
// groups differ (shared travel-time-model error).
func pickCorrelation(a, b *Pick) float64 {
	if a == nil || b == nil || a.Station == nil || b.Station == nil {
		return 0
	}
	sameGroup := primaryGroup(a.PhaseCode) == primaryGroup(b.PhaseCode)

	if a.Station == b.Station {
		if sameGroup {
			return 0.3
		}
		return 0.1
	}

	delta, _ := geo.DeltaAzimuth(a.Station.Trig, b.Station.Trig)
	corr := math.Exp(-delta / corrLengthDeg)
	if !sameGroup {
		corr *= 0.5
	}
	return corr
}

// capToMaxCorr greedily drops the most-correlated row (highest sum of
// absolute off-diagonal correlation to the rest) until the row count
// is at most maxCorr (spec §4.7).
func capToMaxCorr(rows []*Wres) []*Wres {
	for len(rows) > maxCorr {
		n := len(rows)
		worst := -1
		worstSum := -1.0
		for i := 0; i < n; i++ {
			var sum float64
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				sum += math.Abs(pickCorrelation(rows[i].Pick, rows[j].Pick))
			}
			if sum > worstSum {
				worstSum = sum
				worst = i
			}
		}
		rows = append(rows[:worst], rows[worst+1:]...)
	}
	return rows
}
