package locate

import "github.com/banshee-data/hypocenter/internal/ttime"

// badPFraction is the easy/hard threshold InitialID applies to
// badP/staUsed (spec §4.3).
const badPFraction = 0.1

// crustalMantleP is the "trusted first arrival" phase set (spec §4.3).
var crustalMantleP = map[string]bool{"Pg": true, "Pb": true, "Pn": true, "P": true}

// coreSurfaceExact and coreSurfacePrefix together define the
// core/surface phase family {PK*, P'*, Sc*, Sg, Sb, Sn, Lg} (spec §4.3).
var coreSurfaceExact = map[string]bool{"Sg": true, "Sb": true, "Sn": true, "Lg": true}
var coreSurfacePrefix = []string{"PK", "P'", "Sc"}

func isCrustalMantleP(code string) bool { return crustalMantleP[code] }

func isCoreSurface(code string) bool {
	if coreSurfaceExact[code] {
		return true
	}
	for _, p := range coreSurfacePrefix {
		if len(code) >= len(p) && code[:len(p)] == p {
			return true
		}
	}
	return false
}

// InitialID runs the one-time first-arrival triage spec §4.3 describes,
// disabling or re-identifying each group's first used pick and
// disabling secondary automatic picks, before the first location
// iteration.
type InitialID struct{}

// Run queries the oracle for each group's current geometry and applies
// the easy/hard triage. It mutates picks directly and returns only the
// oracle's error, if any: InitialID produces a biased starting set, not
// a location result.
func (id *InitialID) Run(groups []*PickGroup, hypo *Hypocenter, oracle ttime.Oracle, tectonic, rstt bool) error {
	type firstPair struct {
		group       *PickGroup
		firstPick   *Pick
		firstArival ttime.Arrival
		badP        bool
	}
	var pairs []firstPair
	badP := 0
	staUsed := 0

	for _, g := range groups {
		used := g.UsedPicks()
		if len(used) == 0 || g.DeltaDeg <= 0 {
			continue
		}
		for _, p := range used {
			p.RecomputeTravelTime(hypo.OriginTime)
		}

		q := ttime.Query{
			SourceLat:  hypo.Lat,
			SourceLon:  hypo.Lon,
			Depth:      hypo.DepthKm,
			Elevation:  g.Station.ElevationKm,
			Delta:      g.DeltaDeg,
			Azimuth:    g.AzimuthDeg,
			UsefulOnly: true,
			Tectonic:   tectonic,
			RSTT:       rstt,
		}
		arrivals, err := oracle.Arrivals(q)
		if err != nil {
			return err
		}
		if len(arrivals) == 0 {
			continue
		}

		first := used[0]
		staUsed++

		code := first.PhaseCode
		if code == "" {
			code = first.OriginalPhase
		}
		isBad := first.Author.Automatic() && !isCrustalMantleP(code) && !isCoreSurface(code)
		if isBad {
			badP++
		}
		pairs = append(pairs, firstPair{group: g, firstPick: first, firstArival: arrivals[0], badP: isBad})
	}

	if staUsed == 0 {
		return nil
	}

	easy := float64(badP)/float64(staUsed) < badPFraction

	for _, pr := range pairs {
		code := pr.firstPick.PhaseCode
		if code == "" {
			code = pr.firstPick.OriginalPhase
		}

		if easy {
			if pr.firstPick.Author.Automatic() && !isCrustalMantleP(code) {
				pr.firstPick.Used = false
			}
		} else {
			switch {
			case isCoreSurface(code):
				pr.firstPick.Used = false
			case pr.badP:
				pr.firstPick.PhaseCode = pr.firstArival.Phase
			}
		}

		for _, p := range pr.group.Picks {
			if p == pr.firstPick || !p.Used {
				continue
			}
			if p.Author.Automatic() {
				p.Used = false
			}
		}
	}

	return nil
}
