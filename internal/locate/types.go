// Package locate implements the iterative non-linear hypocenter
// location engine: phase identification, rank-sum refinement, and
// close-out statistics, per spec.md. It is single-threaded per Event
// (spec §5) and holds no process-global mutable state; every tuning
// toggle lives on a LocatorContext or an Event.
package locate

import (
	"sort"

	"github.com/banshee-data/hypocenter/internal/geo"
)

// AuthorType classifies who (or what) produced a pick, per spec §6.
type AuthorType int

const (
	AuthorUnknown AuthorType = iota
	AuthorLocalHuman
	AuthorLocalAuto
	AuthorContribHuman
	AuthorContribAuto
)

// HumanTrusted reports whether the author type carries analyst trust,
// the distinction spec §4.2 uses for TYPEWEIGHT downweighting and
// surface-wave pre-identification.
func (a AuthorType) HumanTrusted() bool {
	return a == AuthorLocalHuman || a == AuthorContribHuman
}

// Automatic reports whether the author type is a machine picker,
// the distinction spec §4.3 uses for InitialID triage.
func (a AuthorType) Automatic() bool {
	return a == AuthorLocalAuto || a == AuthorContribAuto
}

// Station is an immutable seismic station: identity, geographic
// position, and cached geocentric trig (spec §3).
type Station struct {
	StationCode string
	Network     string
	Location    string
	Lat         float64
	Lon         float64
	ElevationKm float64
	Trig        geo.Trig
}

// NewStation builds a Station and computes its geocentric trig cache.
func NewStation(code, network, location string, lat, lon, elevKm float64) *Station {
	return &Station{
		StationCode: code,
		Network:     network,
		Location:    location,
		Lat:         lat,
		Lon:         lon,
		ElevationKm: elevKm,
		Trig:        geo.GeoCen(lat, lon),
	}
}

// Pick is a single phase-arrival observation at a Station, per spec §3.
type Pick struct {
	Station *Station // owning station; Event owns Stations (spec §9).

	Source    string
	PickID    string
	Channel   string
	Quality   float64 // s
	Affinity  float64 // observer confidence; higher = harder to change.
	Author    AuthorType

	ArrivalTime float64 // epoch-seconds, fractional.

	OriginalPhase string // the input phase label.
	LocatorPhase  string // the requesting locator's preferred phase label.
	PhaseCode     string // current phase identification.

	CmndUse bool // analyst "use this pick" flag.
	Used    bool // current used-in-solution flag.

	SurfWave bool // pre-identified as a surface wave; never re-identified.

	TravelTime float64 // arrivalTime - originTime, recomputed on origin move.
	Residual   float64
	Weight     float64

	// Phase-ID scratch fields (spec §3).
	BestFoM    float64
	AltFoM     float64
	BestIdx    int // index into the cluster's theoretical-arrival list, or -1.
}

// RecomputeTravelTime refreshes TravelTime from the current origin time.
func (p *Pick) RecomputeTravelTime(originTime float64) {
	p.TravelTime = p.ArrivalTime - originTime
}

// PickGroup is all picks from one station, time-sorted, with a cached
// delta/azimuth relative to the current hypocenter (spec §3).
type PickGroup struct {
	Station *Station
	Picks   []*Pick

	DeltaDeg   float64
	AzimuthDeg float64
}

// NewPickGroup builds a PickGroup and sorts its picks by arrival time.
func NewPickGroup(station *Station, picks []*Pick) *PickGroup {
	sorted := make([]*Pick, len(picks))
	copy(sorted, picks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ArrivalTime < sorted[j].ArrivalTime
	})
	return &PickGroup{Station: station, Picks: sorted}
}

// UpdateGeometry recomputes delta/azimuth against the given source
// trig, keeping the invariant from spec §3 ("For each group, delta
// and azimuth match the current hypocenter's (lat,lon) and the
// station's (lat,lon)").
func (g *PickGroup) UpdateGeometry(sourceTrig geo.Trig) {
	g.DeltaDeg, g.AzimuthDeg = geo.DeltaAzimuth(sourceTrig, g.Station.Trig)
}

// UsedPicks returns the picks in this group currently marked used.
func (g *PickGroup) UsedPicks() []*Pick {
	var out []*Pick
	for _, p := range g.Picks {
		if p.Used {
			out = append(out, p)
		}
	}
	return out
}
