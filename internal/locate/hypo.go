package locate

import (
	"math"

	"github.com/banshee-data/hypocenter/internal/geo"
)

// MinDepthKm and MaxDepthKm bound the Hypocenter's depth at all times
// (spec §3 invariant, testable property #1).
const (
	MinDepthKm = 1.0
	MaxDepthKm = 700.0
)

// Hypocenter is the event's current trial solution: origin time,
// epicenter, depth, and the Bayesian depth prior and step-search state
// that ride along with it (spec §3).
type Hypocenter struct {
	OriginTime float64 // epoch-seconds, fractional.
	Lat        float64 // degrees
	Lon        float64 // degrees
	DepthKm    float64

	HeldLoc   bool // analyst-held epicenter+depth; dof = 0.
	HeldDepth bool // analyst-held depth only; dof = 2.

	BayesDepth         float64 // prior depth, km.
	BayesSpread        float64 // prior spread, km.
	BayesWeight        float64 // 1/spread (analyst prior) or 3/spread (zone-statistics prior).
	BayesActive        bool    // true if a Bayesian depth constraint is in force.
	BayesFromZoneStats bool    // true if BayesDepth/BayesSpread came from refdata.ZoneStatistics rather than an analyst prefDepth.

	Trig geo.Trig // cached geocentric trig for (Lat, Lon).

	StepDir []float64 // unit step direction, length = DOF().
	StepLen float64   // current step length.

	Dispersion float64 // running rank-sum penalty (chi-squared analog).
	RMS        float64
}

// NewHypocenter builds a Hypocenter and computes its trig cache.
func NewHypocenter(originTime, lat, lon, depth float64) *Hypocenter {
	h := &Hypocenter{
		OriginTime: originTime,
		Lat:        lat,
		Lon:        lon,
		DepthKm:    clampDepth(depth),
	}
	h.Trig = geo.GeoCen(h.Lat, h.Lon)
	return h
}

func clampDepth(d float64) float64 {
	if d < MinDepthKm {
		return MinDepthKm
	}
	if d > MaxDepthKm {
		return MaxDepthKm
	}
	return d
}

// DOF returns the hypocenter's current degrees of freedom: 0 if the
// whole location is held, 2 if only depth is held, else 3 (spec §3).
func (h *Hypocenter) DOF() int {
	if h.HeldLoc {
		return 0
	}
	if h.HeldDepth {
		return 2
	}
	return 3
}

// HypoAudit is an immutable snapshot of a Hypocenter at a given
// stage/iteration, used for logging and as a rollback target when
// damping fails (spec §3).
type HypoAudit struct {
	Stage int
	Iter  int

	OriginTime float64
	Lat        float64
	Lon        float64
	DepthKm    float64
	Trig       geo.Trig

	StepLen float64
	DelH    float64 // km, epicentral movement on this step.
	DelZ    float64 // km, depth movement on this step.
	RMS     float64
	Status  StatusCode
}

// Snapshot captures the current Hypocenter state as a HypoAudit.
func (h *Hypocenter) Snapshot(stage, iter int, status StatusCode) HypoAudit {
	return HypoAudit{
		Stage:      stage,
		Iter:       iter,
		OriginTime: h.OriginTime,
		Lat:        h.Lat,
		Lon:        h.Lon,
		DepthKm:    h.DepthKm,
		Trig:       h.Trig,
		StepLen:    h.StepLen,
		RMS:        h.RMS,
		Status:     status,
	}
}

// Restore resets the Hypocenter to a prior audit snapshot, the
// rollback path spec §3/§4.6 describes when damping must retry from
// lastHypo.
func (h *Hypocenter) Restore(a HypoAudit) {
	h.OriginTime = a.OriginTime
	h.Lat = a.Lat
	h.Lon = a.Lon
	h.DepthKm = a.DepthKm
	h.Trig = a.Trig
	h.StepLen = a.StepLen
	h.RMS = a.RMS
}

// ApplyStep applies a step of length stepLen along the unit direction
// dir to the Hypocenter's epicenter and depth, per spec §4.6 step 3:
// the step is taken in local Cartesian coordinates (colatitude/
// longitude), with wrap-around handling for a step that overshoots a
// pole, and depth is clamped to [MinDepthKm, MaxDepthKm]. It returns
// the epicentral and depth movement in km (delH, delZ) so the caller
// can populate a HypoAudit and judge convergence.
func (h *Hypocenter) ApplyStep(stepLen float64, dir []float64) (delH, delZ float64) {
	dof := len(dir)
	colatDeg := h.Trig.ColatRad * 180 / math.Pi
	lonDeg := h.Lon

	if dof >= 2 {
		// stepLen*dir[0]/dir[1] are already km displacements (north/colat
		// and east/lon components); DEG2KM (km per degree) converts them
		// to degrees directly, with no further radian scaling.
		dColat := stepLen * dir[0] / geo.DEG2KM
		sinColat := h.Trig.SinColat
		if sinColat < 1e-6 {
			sinColat = 1e-6
		}
		dLon := stepLen * dir[1] / (geo.DEG2KM * sinColat)

		newColat := colatDeg + dColat
		newLon := lonDeg + dLon

		if newColat < 0 {
			newColat = -newColat
			newLon += 180
		}
		if newColat > 180 {
			newColat = 360 - newColat
			newLon += 180
		}
		newLon = geo.WrapLon(newLon)

		delH = stepLen * math.Hypot(dir[0], dir[1])

		// newColat is geocentric (the frame ApplyStep steps in); GeoCen
		// re-applies the flattening correction on its next call, so the
		// geocentric latitude must be converted back to geographic here
		// or the flattening gets applied twice.
		geocentricLat := 90 - newColat
		h.Lat = geo.GeographicLat(geocentricLat)
		h.Lon = newLon
		h.Trig = geo.GeoCen(h.Lat, h.Lon)
	}

	if dof == 3 {
		dz := stepLen * dir[2]
		newDepth := clampDepth(h.DepthKm + dz)
		delZ = math.Abs(newDepth - h.DepthKm)
		h.DepthKm = newDepth
	}

	h.StepLen = stepLen
	h.StepDir = dir
	return delH, delZ
}

// ApplyOriginShift updates origin time by delta seconds exactly once
// per accepted step (spec §9: the source's double-apply of the median
// residual is a bug this reimplementation must not reproduce).
func (h *Hypocenter) ApplyOriginShift(deltaSeconds float64) {
	h.OriginTime += deltaSeconds
}
