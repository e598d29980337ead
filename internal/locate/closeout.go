package locate

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hypocenter/internal/geo"
)

// PERPT1D, PERPT2D and PERPT3D are the 90%-confidence scaling factors
// for the marginal 1-DoF, 2-DoF (epicenter-only, held depth) and 3-DoF
// error ellipsoid axes (spec §4.8).
const (
	PERPT1D = 2.0285161
	PERPT2D = 2.6465147
	PERPT3D = 3.0834703
)

// Quality tier limits (spec §6). Three-element arrays bound the four
// letter grades (A/B/C/D); NQUALIM's two elements apply an additional
// phUsed-based downgrade on top of the aveH/seDepth tier.
var (
	HQUALIM = [3]float64{8.5, 16, 60}
	VQUALIM = [3]float64{16, 30, 75}
	NQUALIM = [2]float64{6, 2}
	AQUALIM = [3]float64{42.5, 80, 300}
)

// gt5DelMinLimitKm and gt5 gap limits implement the GT5 ("ground truth
// within 5 km") heuristic (spec §6).
const (
	gt5DelMinLimitKm = 30.0
	gt5AzimGapLimit  = 110.0
	gt5LestGapLimit  = 160.0
)

// EllipseAxis is one semi-axis of the error ellipsoid (spec §4.8).
type EllipseAxis struct {
	SemiKm     float64
	AzimuthDeg float64
	PlungeDeg  float64
}

// CloseOutResult holds the final location statistics (spec §4.8, §6
// output fields).
type CloseOutResult struct {
	Status StatusCode

	SeResid float64
	SeTime  float64
	SeLat   float64
	SeLon   float64
	SeDepth float64

	ErrH float64
	ErrZ float64
	AveH float64

	BayesDepth  float64
	BayesSpread float64
	BayesImport float64

	Ellipsoid [3]EllipseAxis // sorted by SemiKm descending.

	Importances      map[*Pick]float64
	TotalImportance  float64
	AzimGap          float64
	RobustGap        float64
	Quality          string
}

// ErrSingularNormalMatrix mirrors StatusSingularMatrix for callers that
// want a Go error in addition to the status code.
var ErrSingularNormalMatrix = errors.New("closeout: normal matrix not invertible")

// CloseOut computes final location statistics from the post-refinement
// weighted residuals (spec §4.8). demedianRows is the last iteration's
// (possibly decorrelated) Wres list, already demedianed, used for the
// confidence intervals and error ellipsoid. rawPickRows is the
// pre-decorrelation (non-projected) Wres list used for data
// importances; its normal matrix uses a row's DemedianDeriv where a
// Restimator pass has set it, else Deriv, per spec §4.8 step 7's
// explicit "rebuild A with raw (non-projected) weighted derivatives".
func CloseOut(demedianRows []*Wres, rawPickRows []*Wres, hypo *Hypocenter, seResid float64, phUsed int, deCorrelating bool, azimGap, robustGap, delMinDeg float64) *CloseOutResult {
	dof := hypo.DOF()
	res := &CloseOutResult{
		SeResid:     seResid,
		BayesDepth:  hypo.BayesDepth,
		BayesSpread: hypo.BayesSpread,
		AzimGap:     azimGap,
		RobustGap:   robustGap,
		Importances: map[*Pick]float64{},
	}

	if dof == 0 || phUsed < 3 {
		res.Status = StatusInsufficientData
		res.Quality = "D  "
		return res
	}

	comp := 1.0
	if !deCorrelating {
		comp = math.Sqrt(1.22 - 0.309*math.Log10(float64(phUsed)+1))
	}

	a := buildNormalMatrix(demedianRows, dof)
	inv := mat.NewDense(dof, dof, nil)
	if err := inv.Inverse(a); err != nil {
		res.Status = StatusSingularMatrix
		return res
	}

	res.SeTime = PERPT1D / comp * seResid
	res.SeLat = PERPT1D / comp * math.Sqrt(math.Max(inv.At(0, 0), 0))
	if dof >= 2 {
		res.SeLon = PERPT1D / comp * math.Sqrt(math.Max(inv.At(1, 1), 0))
	}
	if dof == 3 {
		res.SeDepth = PERPT1D / comp * math.Sqrt(math.Max(inv.At(2, 2), 0))
	}

	ellipsoid, aveH, status := errorEllipsoid(inv, dof, comp)
	if status != StatusSuccess {
		res.Status = status
		return res
	}
	res.Ellipsoid = ellipsoid
	res.AveH = aveH

	for _, ax := range ellipsoid {
		plunge := ax.PlungeDeg * math.Pi / 180
		h := ax.SemiKm * math.Cos(plunge)
		z := ax.SemiKm * math.Sin(plunge)
		if h > res.ErrH {
			res.ErrH = h
		}
		if math.Abs(z) > res.ErrZ {
			res.ErrZ = math.Abs(z)
		}
	}

	rawA := buildNormalMatrix(rawPickRows, dof)
	rawInv := mat.NewDense(dof, dof, nil)
	if err := rawInv.Inverse(rawA); err == nil {
		for _, w := range rawPickRows {
			if w.IsDepth || w.Pick == nil {
				continue
			}
			c := make([]float64, dof)
			for k := 0; k < dof && k < len(w.Deriv); k++ {
				c[k] = w.Weight * w.Deriv[k]
			}
			imp := quadForm(rawInv, c)
			res.Importances[w.Pick] = imp
			res.TotalImportance += imp
		}
		if dof == 3 {
			res.BayesImport = rawInv.At(2, 2) * hypo.BayesWeight * hypo.BayesWeight
		}
	}

	res.Status = StatusSuccess
	res.Quality = qualityFlags(hypo, res, phUsed, delMinDeg)
	return res
}

// buildNormalMatrix sums c_k c_k^T over all rows, c_k = weight_k *
// demedianed derivative vector (spec §4.8 step 2). Rows that carry no
// DemedianDeriv (e.g. importance rebuilds) fall back to Deriv.
func buildNormalMatrix(rows []*Wres, dof int) *mat.SymDense {
	a := mat.NewSymDense(dof, nil)
	for _, w := range rows {
		deriv := w.DemedianDeriv
		if deriv == nil {
			deriv = w.Deriv
		}
		c := make([]float64, dof)
		for k := 0; k < dof && k < len(deriv); k++ {
			c[k] = w.Weight * deriv[k]
		}
		for i := 0; i < dof; i++ {
			for j := i; j < dof; j++ {
				a.SetSym(i, j, a.At(i, j)+c[i]*c[j])
			}
		}
	}
	return a
}

func quadForm(inv *mat.Dense, c []float64) float64 {
	n := len(c)
	var out float64
	for i := 0; i < n; i++ {
		var row float64
		for j := 0; j < n; j++ {
			row += inv.At(i, j) * c[j]
		}
		out += c[i] * row
	}
	return out
}

// errorEllipsoid eigen-decomposes the inverted normal matrix into the
// 90% confidence ellipsoid (spec §4.8 step 5).
func errorEllipsoid(inv *mat.Dense, dof int, comp float64) ([3]EllipseAxis, float64, StatusCode) {
	var axes [3]EllipseAxis

	if dof == 2 {
		sub := mat.NewSymDense(2, nil)
		sub.SetSym(0, 0, inv.At(0, 0))
		sub.SetSym(0, 1, inv.At(0, 1))
		sub.SetSym(1, 1, inv.At(1, 1))

		var es mat.EigenSym
		if ok := es.Factorize(sub, false); !ok {
			return axes, 0, StatusEllipsoidFailed
		}
		vals := es.Values(nil)
		a := PERPT2D / comp * math.Sqrt(math.Max(vals[1], 0))
		b := PERPT2D / comp * math.Sqrt(math.Max(vals[0], 0))
		axes[0] = EllipseAxis{SemiKm: a, PlungeDeg: 0}
		axes[1] = EllipseAxis{SemiKm: b, PlungeDeg: 0}
		axes[2] = EllipseAxis{SemiKm: 0, PlungeDeg: 90}
		aveH := PERPT1D * math.Sqrt(a*b) / PERPT2D
		return axes, aveH, StatusSuccess
	}

	full := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			full.SetSym(i, j, inv.At(i, j))
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(full, true); !ok {
		return axes, 0, StatusEllipsoidFailed
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	order := []int{0, 1, 2}
	sort.Slice(order, func(a, b int) bool { return vals[order[a]] > vals[order[b]] })

	for i, idx := range order {
		semi := PERPT3D / comp * math.Sqrt(math.Max(vals[idx], 0))
		ux, uy, uz := vecs.At(0, idx), vecs.At(1, idx), vecs.At(2, idx)
		sgn := sign(uz)
		if sgn == 0 {
			sgn = 1
		}
		az := math.Atan2(sgn*uy, -sgn*ux) * 180 / math.Pi
		if az < 0 {
			az += 360
		}
		plungeArg := sgn * uz
		if plungeArg > 1 {
			plungeArg = 1
		}
		plunge := math.Asin(plungeArg) * 180 / math.Pi
		axes[i] = EllipseAxis{SemiKm: semi, AzimuthDeg: az, PlungeDeg: plunge}
	}

	sub2 := mat.NewSymDense(2, nil)
	sub2.SetSym(0, 0, inv.At(0, 0))
	sub2.SetSym(0, 1, inv.At(0, 1))
	sub2.SetSym(1, 1, inv.At(1, 1))
	var es2 mat.EigenSym
	aveH := 0.0
	if ok := es2.Factorize(sub2, false); ok {
		v2 := es2.Values(nil)
		a := PERPT1D / comp * math.Sqrt(math.Max(v2[1], 0))
		b := PERPT1D / comp * math.Sqrt(math.Max(v2[0], 0))
		aveH = PERPT1D * math.Sqrt(a*b) / PERPT2D
	}

	return axes, aveH, StatusSuccess
}

// qualityFlags builds the three-character quality string (spec §6).
func qualityFlags(hypo *Hypocenter, res *CloseOutResult, phUsed int, delMinDeg float64) string {
	gt5 := phUsed >= 10 &&
		delMinDeg <= gt5DelMinLimitKm/geo.DEG2KM &&
		res.AzimGap < gt5AzimGapLimit &&
		res.RobustGap < gt5LestGapLimit

	var summary byte
	if gt5 {
		summary = 'G'
	} else {
		idx := tierIndex(res.AveH, HQUALIM[:])
		if d := tierIndex(res.SeDepth, VQUALIM[:]); d > idx {
			idx = d
		}
		if float64(phUsed) < NQUALIM[1] {
			idx += 2
		} else if float64(phUsed) < NQUALIM[0] {
			idx++
		}
		aspect := 0.0
		if res.Ellipsoid[1].SemiKm > 1e-9 {
			aspect = res.Ellipsoid[0].SemiKm / res.Ellipsoid[1].SemiKm
		}
		if aIdx := tierIndex(aspect, AQUALIM[:]); aIdx > idx {
			idx = aIdx
		}
		if idx > 3 {
			idx = 3
		}
		summary = "ABCD"[idx]
	}

	var epi byte = ' '
	switch {
	case res.AveH > HQUALIM[2] || phUsed < int(NQUALIM[1]):
		epi = '!'
	case res.AveH > HQUALIM[1] || phUsed < int(NQUALIM[0]):
		epi = '?'
	case res.AveH > HQUALIM[0]:
		epi = '*'
	}

	var depthQ byte
	if hypo.HeldDepth || hypo.HeldLoc {
		depthQ = 'G'
	} else {
		idx := tierIndex(res.SeDepth, VQUALIM[:])
		if idx > 3 {
			idx = 3
		}
		depthQ = "ABCD"[idx]
	}

	return string([]byte{summary, epi, depthQ})
}

// tierIndex returns how many of the ascending limits value exceeds,
// i.e. 0 if value <= limits[0], up to len(limits) if it exceeds all.
func tierIndex(value float64, limits []float64) int {
	idx := 0
	for _, lim := range limits {
		if value > lim {
			idx++
		}
	}
	return idx
}
