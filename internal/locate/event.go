package locate

import (
	"math"
	"sort"

	"github.com/banshee-data/hypocenter/internal/ttime"
)

// Event owns every piece of mutable state for a single location run:
// its Stations, Picks, PickGroups, Hypocenter, and audit trail (spec
// §3, §9 — "Event owns Hypocenter, Groups, Picks, and Wres"). Event is
// the tree root that collapses the spec's Event/Hypocenter/Wres cyclic
// references; everything else borrows read-only references, or the
// mutable Hypocenter handle only while stepping.
type Event struct {
	Stations []*Station
	Groups   []*PickGroup
	Hypo     *Hypocenter

	Oracle ttime.Oracle
	Ctx    *LocatorContext

	Audit []HypoAudit

	// allowDeCorrelate is the caller's master decorrelation toggle
	// (e.g. the request's !noSvd flag), captured at construction time.
	// RunLocator ANDs it with each stage's DeCorrelate schedule entry
	// rather than overwriting it, so a caller that disabled
	// decorrelation entirely stays disabled through every stage.
	allowDeCorrelate bool
}

// NewEvent builds an Event from already-grouped picks, computing each
// group's initial delta/azimuth against the starting hypocenter. ctx's
// DeCorrelate field is read once here as the run's master toggle; per
// spec §4.6/§7, RunLocator itself controls which stages actually
// decorrelate.
func NewEvent(groups []*PickGroup, hypo *Hypocenter, oracle ttime.Oracle, ctx *LocatorContext) *Event {
	stations := make([]*Station, 0, len(groups))
	for _, g := range groups {
		stations = append(stations, g.Station)
		g.UpdateGeometry(hypo.Trig)
	}
	return &Event{
		Stations:         stations,
		Groups:           groups,
		Hypo:             hypo,
		Oracle:           oracle,
		Ctx:              ctx,
		allowDeCorrelate: ctx.DeCorrelate,
	}
}

// recordAudit appends a HypoAudit snapshot to the Event's trail.
func (e *Event) recordAudit(stage, iter int, status StatusCode) {
	e.Audit = append(e.Audit, e.Hypo.Snapshot(stage, iter, status))
}

// UsedStationCount returns the number of groups with at least one used
// pick.
func (e *Event) UsedStationCount() int {
	n := 0
	for _, g := range e.Groups {
		if len(g.UsedPicks()) > 0 {
			n++
		}
	}
	return n
}

// UsedPickCount returns the total number of used picks across all
// groups.
func (e *Event) UsedPickCount() int {
	n := 0
	for _, g := range e.Groups {
		n += len(g.UsedPicks())
	}
	return n
}

// MinDistanceDeg returns the smallest delta among groups with at least
// one used pick, or 0 if none are used.
func (e *Event) MinDistanceDeg() float64 {
	min := math.Inf(1)
	for _, g := range e.Groups {
		if len(g.UsedPicks()) == 0 {
			continue
		}
		if g.DeltaDeg < min {
			min = g.DeltaDeg
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

// AzimuthalGaps computes the standard and robust (L-estimator, "skip
// one") azimuthal gaps over the used groups' azimuths (spec §6).
// Azimuths are sorted ascending; the standard gap is the largest
// consecutive gap (wrapping past 360°); the robust gap is the largest
// gap after removing any single azimuth, which tolerates one outlier
// station.
func (e *Event) AzimuthalGaps() (azimGap, robustGap float64) {
	var az []float64
	for _, g := range e.Groups {
		if len(g.UsedPicks()) == 0 {
			continue
		}
		az = append(az, g.AzimuthDeg)
	}
	if len(az) < 2 {
		return 360, 360
	}
	sort.Float64s(az)
	n := len(az)

	gaps := make([]float64, n)
	for i := 0; i < n; i++ {
		next := az[(i+1)%n]
		if i == n-1 {
			next += 360
		}
		gaps[i] = next - az[i]
	}
	for _, g := range gaps {
		if g > azimGap {
			azimGap = g
		}
	}

	if n < 3 {
		return azimGap, azimGap
	}
	for i := 0; i < n; i++ {
		// "Skip one" gap: merge gaps[i] and gaps[i+1] by dropping az[i+1].
		merged := gaps[i] + gaps[(i+1)%n]
		if merged > robustGap {
			robustGap = merged
		}
	}
	return azimGap, robustGap
}

// InitialID runs the one-time first-arrival triage before stage 0
// (spec §4.3).
func (e *Event) InitialID() error {
	id := &InitialID{}
	return id.Run(e.Groups, e.Hypo, e.Oracle, e.Ctx.Tectonic, e.Ctx.RSTT)
}
