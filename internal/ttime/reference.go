package ttime

import (
	"math"
	"sort"

	"github.com/banshee-data/hypocenter/internal/geo"
)

// phaseDef is one candidate phase in the reference model: a constant
// apparent velocity used to turn slant range into travel time, plus
// the metadata spec §4.1 requires an Oracle to report.
type phaseDef struct {
	phase         string
	group         string
	auxGroup      string
	velocityKmS   float64 // apparent velocity along the slant path
	spread        float64
	observability float64
	window        float64
	minDepth      float64 // minimum source depth this phase is offered for
	regional      bool
	maxDelta      float64 // maximum delta (degrees) this phase is offered for
}

var referencePhases = []phaseDef{
	{phase: "Pg", group: "P", auxGroup: "P", velocityKmS: 5.8, spread: 0.8, observability: 0.9, window: 2.0, maxDelta: 12},
	{phase: "Pn", group: "P", auxGroup: "P", velocityKmS: 8.1, spread: 1.0, observability: 0.8, window: 2.5, regional: true, maxDelta: 20},
	{phase: "P", group: "P", auxGroup: "P", velocityKmS: 10.2, spread: 0.9, observability: 1.0, window: 3.0, maxDelta: 180},
	{phase: "pP", group: "P", auxGroup: "P", velocityKmS: 10.1, spread: 1.1, observability: 0.5, window: 3.0, minDepth: 20, maxDelta: 180},
	{phase: "Sg", group: "S", auxGroup: "S", velocityKmS: 3.4, spread: 1.2, observability: 0.7, window: 3.0, maxDelta: 12},
	{phase: "Sn", group: "S", auxGroup: "S", velocityKmS: 4.6, spread: 1.3, observability: 0.6, window: 3.5, regional: true, maxDelta: 20},
	{phase: "S", group: "S", auxGroup: "S", velocityKmS: 5.6, spread: 1.2, observability: 0.9, window: 3.5, maxDelta: 180},
	{phase: "Lg", group: "S", auxGroup: "S", velocityKmS: 3.5, spread: 1.5, observability: 0.4, window: 4.0, maxDelta: 20},
}

// Reference is a deterministic, analytically differentiable
// stand-in for a real travel-time table generator. It is not a
// reimplementation of any particular Earth model (generating the
// travel-time model itself is an explicit Non-goal); it exists so the
// core location engine and the CLI driver have something concrete to
// query in tests and example runs.
type Reference struct{}

// NewReference constructs the reference oracle.
func NewReference() *Reference { return &Reference{} }

var _ Oracle = (*Reference)(nil)

// Arrivals implements Oracle using a slant-range/constant-velocity
// model per candidate phase: travel time = range / velocity, where
// range = sqrt((delta*DEG2KM)^2 + depth^2). Derivatives are the exact
// partials of that formula, so a linearized step against this oracle
// is self-consistent.
func (r *Reference) Arrivals(q Query) ([]Arrival, error) {
	if q.Depth < 0 || q.Depth > 800 {
		return nil, ErrBadDepth
	}

	distKm := q.Delta * geo.DEG2KM
	slant := math.Hypot(distKm, q.Depth)
	if slant < 1e-6 {
		slant = 1e-6
	}

	var out []Arrival
	for _, p := range referencePhases {
		if q.Depth < p.minDepth {
			continue
		}
		if q.Delta > p.maxDelta {
			continue
		}
		if q.NoBack && p.phase == "pP" {
			continue
		}
		t := slant / p.velocityKmS
		dtdd := (distKm / slant) * geo.DEG2KM / p.velocityKmS
		dtdz := (q.Depth / slant) / p.velocityKmS

		out = append(out, Arrival{
			Phase:         p.phase,
			Time:          t,
			RayParam:      dtdd,
			DTDD:          dtdd,
			DTDZ:          dtdz,
			Spread:        p.spread,
			Observability: p.observability,
			Window:        p.window,
			Group:         p.group,
			AuxGroup:      p.auxGroup,
			Regional:      p.regional,
			Usable:        true,
			Disabled:      false,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}
