package locate

import (
	"math"

	"github.com/banshee-data/hypocenter/internal/geo"
	"github.com/banshee-data/hypocenter/internal/ttime"
)

// Phase-ID tuning constants (spec §4.2).
const (
	groupWeight           = 0.5  // GROUPWEIGHT
	typeWeight            = 0.1  // TYPEWEIGHT
	nearStationDeltaLimit = 20.0 // degrees
	nearStationCoeff      = 0.067
	bulandCauchyWeight    = 0.45
	bulandGaussWeight     = 0.55
	ttResNormConst        = 1.001691
	maxPermutationK       = 6 // spec §9: fall back to greedy above this.
)

// PhaseID assigns each used pick in a PickGroup to at most one
// theoretical arrival, per spec §4.2.
type PhaseID struct{}

// cluster is a run of theoretical arrivals whose clustering windows
// overlap.
type cluster struct {
	Arrivals       []ttime.Arrival
	WinMin, WinMax float64
}

// DoID runs phase identification over every group, mutating each used
// pick's PhaseCode/Residual/Weight and appending a Wres per used pick
// whose identification holds up. Returns true iff any pick's
// identification moved (spec §4.2, last line).
//
// reID controls whether a full cluster/permutation search is run
// (true) or whether each pick is matched by stickyAssignment to the
// arrival carrying its current phase code, falling back to the arrival
// nearest in time when the cluster has none (false) — the
// conservative mode early stages run before otherWeight/stickyWeight
// are loosened (spec §7, retry policy).
//
// reWeight controls whether a matched pick's weight is recomputed from
// the theoretical arrival's spread or left unchanged (spec §4.2 step
// 6: "the weight is... 1/max(spread,0.2) (on reweight) or unchanged").
func (id *PhaseID) DoID(groups []*PickGroup, hypo *Hypocenter, oracle ttime.Oracle, otherWeight, stickyWeight float64, reID, reWeight, tectonic, rstt bool) (bool, []*Wres, error) {
	changed := false
	var out []*Wres

	for _, g := range groups {
		used := g.UsedPicks()
		if len(used) == 0 || g.DeltaDeg <= 0 {
			continue
		}

		preIdentifySurfaceWaves(g)

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
			return changed, out, err
		}
		if len(arrivals) == 0 {
			continue
		}

		for _, p := range used {
			if !p.SurfWave {
				continue
			}
			if wres, ok := bindSurfaceWave(p, arrivals, g.AzimuthDeg, hypo.DOF(), reWeight); ok {
				out = append(out, wres)
			}
		}

		clusters := clusterArrivals(arrivals)
		boostPick := firstBoostCandidate(g, clusters)

		for _, cl := range clusters {
			picks := associatePicks(g.Picks, cl.WinMin, cl.WinMax)
			if len(picks) == 0 {
				continue
			}

			var assign map[*Pick]ttime.Arrival
			if reID {
				assign = bestAssignment(picks, cl.Arrivals, boostPick, g.DeltaDeg, otherWeight, stickyWeight)
			} else {
				assign = stickyAssignment(picks, cl.Arrivals, boostPick, g.DeltaDeg, otherWeight, stickyWeight)
			}

			for _, p := range picks {
				arrival, ok := assign[p]
				if !ok {
					continue
				}
				wasCode := p.PhaseCode
				resid := p.TravelTime - arrival.Time
				limit := 2.27*(arrival.Spread-1) + 5

				if math.Abs(resid) > limit {
					first := isFirstUsedPick(g, p)
					p.Used = false
					p.Weight = 0
					if first {
						p.CmndUse = false
					}
					continue
				}

				if arrival.Phase != wasCode {
					changed = true
				}
				p.PhaseCode = arrival.Phase
				p.Residual = resid
				if reWeight || p.Weight == 0 {
					p.Weight = 1.0 / math.Max(arrival.Spread, 0.2)
				}

				out = append(out, &Wres{
					Residual: resid,
					Weight:   p.Weight,
					Deriv:    arrivalDeriv(arrival, g.AzimuthDeg, hypo.DOF()),
					Pick:     p,
				})
			}
		}
	}

	return changed, out, nil
}

// preIdentifySurfaceWaves flags each human-trusted Lg/LR pick as a
// surface wave and fixes its PhaseCode to its original phase (spec
// §4.2 step 1). No theoretical arrival is consulted here; DoID binds
// the flagged picks to an arrival through bindSurfaceWave, and
// clustering/association skip them.
func preIdentifySurfaceWaves(g *PickGroup) {
	for _, p := range g.Picks {
		if p.SurfWave {
			continue
		}
		if (p.OriginalPhase == "Lg" || p.OriginalPhase == "LR") && p.Author.HumanTrusted() {
			p.SurfWave = true
			p.PhaseCode = p.OriginalPhase
		}
	}
}

// bindSurfaceWave finds the first theoretical arrival matching a
// surface-wave pick's phase code, sets its residual/weight, and
// returns a Wres for it — the binding preIdentifySurfaceWaves itself
// cannot make since it runs before the oracle is queried. A
// surface-wave pick is never reconsidered (spec §4.2 step 1), but it
// still needs a fresh Wres every DoID call since the hypocenter (and
// so its travel time) may have moved since the pick was bound.
func bindSurfaceWave(p *Pick, arrivals []ttime.Arrival, azimuthDeg float64, dof int, reWeight bool) (*Wres, bool) {
	var match *ttime.Arrival
	for i := range arrivals {
		if arrivals[i].Phase == p.PhaseCode {
			match = &arrivals[i]
			break
		}
	}
	if match == nil {
		return nil, false
	}

	resid := p.TravelTime - match.Time
	p.Residual = resid
	if reWeight || p.Weight == 0 {
		p.Weight = 1.0 / math.Max(match.Spread, 0.2)
	}

	return &Wres{
		Residual: resid,
		Weight:   p.Weight,
		Deriv:    arrivalDeriv(*match, azimuthDeg, dof),
		Pick:     p,
	}, true
}

// clusterArrivals walks time-sorted arrivals, merging overlapping
// clustering windows (spec §4.2 step 2).
func clusterArrivals(arrivals []ttime.Arrival) []cluster {
	var clusters []cluster
	for _, a := range arrivals {
		lo, hi := a.Time-a.Window, a.Time+a.Window
		if len(clusters) > 0 {
			last := &clusters[len(clusters)-1]
			if lo <= last.WinMax {
				last.Arrivals = append(last.Arrivals, a)
				if hi > last.WinMax {
					last.WinMax = hi
				}
				if lo < last.WinMin {
					last.WinMin = lo
				}
				continue
			}
		}
		clusters = append(clusters, cluster{Arrivals: []ttime.Arrival{a}, WinMin: lo, WinMax: hi})
	}
	return clusters
}

// associatePicks returns the group's used, non-surface-wave picks
// whose travel time falls in [winMin, winMax] (spec §4.2 step 3).
func associatePicks(picks []*Pick, winMin, winMax float64) []*Pick {
	var out []*Pick
	for _, p := range picks {
		if !p.Used || p.SurfWave {
			continue
		}
		if p.TravelTime >= winMin && p.TravelTime <= winMax {
			out = append(out, p)
		}
	}
	return out
}

// firstBoostCandidate returns the earliest used, non-surface-wave pick
// belonging to the first cluster that has any associated picks — the
// recipient of the near-station FoM boost (spec §4.2 step 5).
func firstBoostCandidate(g *PickGroup, clusters []cluster) *Pick {
	for _, cl := range clusters {
		picks := associatePicks(g.Picks, cl.WinMin, cl.WinMax)
		if len(picks) > 0 {
			return picks[0]
		}
	}
	return nil
}

// isFirstUsedPick reports whether p is the earliest used pick in g.
func isFirstUsedPick(g *PickGroup, p *Pick) bool {
	for _, c := range g.Picks {
		if c.Used {
			return c == p
		}
	}
	return false
}

// primaryGroup classifies a phase code into the coarse group PhaseID
// downweights across ("P", "S", "Reg"), or "all" for codes that match
// anything (spec §4.2 "pick's group ≠ all").
func primaryGroup(code string) string {
	switch code {
	case "P", "Pg", "Pb", "Pn", "PKP", "PKPdf", "PKiKP", "PcP", "pP", "sP", "pwP":
		return "P"
	case "S", "Sg", "Sb", "Sn", "ScS", "SKS", "sS":
		return "S"
	case "Lg", "LR":
		return "S"
	case "Reg":
		return "Reg"
	default:
		return "all"
	}
}

// gaussPDF and cauchyPDF are the two mixture components of the
// travel-time residual model (spec §4.2, per-pair figure-of-merit).
func gaussPDF(x, scale float64) float64 {
	z := x / scale
	return math.Exp(-0.5*z*z) / (scale * math.Sqrt(2*math.Pi))
}

func cauchyPDF(x, scale float64) float64 {
	z := x / scale
	return 1.0 / (math.Pi * scale * (1 + z*z))
}

// ttResModel is the Buland mixture travel-time residual density: 0.45
// Cauchy + 0.55 Gaussian, both scaled by spread, divided by the fixed
// normalization constant spec §4.2 specifies.
func ttResModel(resid, spread float64) float64 {
	if spread <= 0 {
		spread = 0.2
	}
	return (bulandCauchyWeight*cauchyPDF(resid, spread) + bulandGaussWeight*gaussPDF(resid, spread)) / ttResNormConst
}

// fom computes the per-pair figure-of-merit for assigning pick p to
// theoretical arrival a, per spec §4.2.
func fom(p *Pick, a ttime.Arrival, boost bool, delta, otherWeight, stickyWeight float64) float64 {
	resid := p.TravelTime - a.Time
	val := ttResModel(resid, a.Spread) * a.Observability

	if a.Disabled {
		val *= 0.5
	}

	currentCode := p.PhaseCode
	if currentCode == "" {
		currentCode = p.OriginalPhase
	}
	pg := primaryGroup(currentCode)

	if a.Phase != currentCode && pg != "all" {
		switch {
		case pg == "Reg" && a.Regional:
			val *= groupWeight
		case pg == a.Group:
			val *= groupWeight
		default:
			val *= otherWeight
			if p.Author.HumanTrusted() && pg != a.Group {
				val *= typeWeight
			}
		}
	}

	if a.Phase == p.OriginalPhase {
		val *= p.Affinity
	}
	if a.Phase == p.PhaseCode && p.PhaseCode != "" {
		val *= stickyWeight
	}

	if boost && delta < nearStationDeltaLimit {
		val *= 1 + nearStationCoeff*(nearStationDeltaLimit-delta)
	}

	return val
}

// bestAssignment implements spec §4.2 step 4: enumerate all
// k-permutations of the larger side taken k at a time (preserving each
// side's time order) and keep the log-sum-maximizing one-to-one
// assignment. Falls back to a greedy nearest-by-residual assignment
// when k exceeds maxPermutationK (spec §9).
func bestAssignment(picks []*Pick, arrivals []ttime.Arrival, boostPick *Pick, delta, otherWeight, stickyWeight float64) map[*Pick]ttime.Arrival {
	k := len(picks)
	if len(arrivals) < k {
		k = len(arrivals)
	}
	if k == 0 {
		return nil
	}

	if k > maxPermutationK {
		return greedyAssignment(picks, arrivals, boostPick, delta, otherWeight, stickyWeight)
	}

	if len(picks) <= len(arrivals) {
		return bestCombination(picks, arrivals, boostPick, delta, otherWeight, stickyWeight, false)
	}
	return bestCombination(arrivals, picks, boostPick, delta, otherWeight, stickyWeight, true)
}

// bestCombination holds the smaller side ("small", already exactly k
// elements in time order) fixed and searches every ordered k-subset of
// the larger side ("big") for the pairing that maximizes the log-sum
// of FoMs. flip indicates big holds the picks (when there are more
// picks than arrivals) rather than the arrivals.
func bestCombination(small, big interface{}, boostPick *Pick, delta, otherWeight, stickyWeight float64, flip bool) map[*Pick]ttime.Arrival {
	var smallPicks []*Pick
	var smallArrivals []ttime.Arrival
	var bigPicks []*Pick
	var bigArrivals []ttime.Arrival

	if flip {
		smallArrivals = small.([]ttime.Arrival)
		bigPicks = big.([]*Pick)
	} else {
		smallPicks = small.([]*Pick)
		bigArrivals = big.([]ttime.Arrival)
	}

	k := len(smallPicks) + len(smallArrivals)
	n := len(bigPicks) + len(bigArrivals)

	best := map[*Pick]ttime.Arrival{}
	bestScore := math.Inf(-1)

	var combine func(start int, chosen []int)
	combine = func(start int, chosen []int) {
		if len(chosen) == k {
			assign := map[*Pick]ttime.Arrival{}
			var score float64
			for i, idx := range chosen {
				var p *Pick
				var a ttime.Arrival
				if flip {
					p = bigPicks[idx]
					a = smallArrivals[i]
				} else {
					p = smallPicks[i]
					a = bigArrivals[idx]
				}
				assign[p] = a
				score += math.Log(math.Max(fom(p, a, p == boostPick, delta, otherWeight, stickyWeight), 1e-300))
			}
			if score > bestScore {
				bestScore = score
				best = assign
			}
			return
		}
		remaining := k - len(chosen)
		for i := start; i <= n-remaining; i++ {
			combine(i+1, append(chosen, i))
		}
	}
	combine(0, nil)

	return best
}

// greedyAssignment bounds the combinatorial search for large clusters
// (spec §9): repeatedly pick the globally-best remaining pick/arrival
// pair by residual magnitude until one side is exhausted.
func greedyAssignment(picks []*Pick, arrivals []ttime.Arrival, boostPick *Pick, delta, otherWeight, stickyWeight float64) map[*Pick]ttime.Arrival {
	usedPick := make([]bool, len(picks))
	usedArrival := make([]bool, len(arrivals))
	assign := map[*Pick]ttime.Arrival{}

	n := len(picks)
	if len(arrivals) < n {
		n = len(arrivals)
	}

	for iter := 0; iter < n; iter++ {
		bestI, bestJ := -1, -1
		bestVal := math.Inf(-1)
		for i, p := range picks {
			if usedPick[i] {
				continue
			}
			for j, a := range arrivals {
				if usedArrival[j] {
					continue
				}
				v := -math.Abs(p.TravelTime - a.Time)
				if v > bestVal {
					bestVal = v
					bestI, bestJ = i, j
				}
			}
		}
		if bestI < 0 {
			break
		}
		usedPick[bestI] = true
		usedArrival[bestJ] = true
		assign[picks[bestI]] = arrivals[bestJ]
	}
	return assign
}

// stickyAssignment matches each pick directly to the theoretical
// arrival sharing its current (or, failing that, original) phase code
// if one exists in the cluster, otherwise the nearest arrival in time.
// Used when reID is false: no figure of merit is compared, so a pick
// keeps its code whenever the cluster holds an arrival with that code;
// otherwise it takes the nearest arrival's code.
func stickyAssignment(picks []*Pick, arrivals []ttime.Arrival, boostPick *Pick, delta, otherWeight, stickyWeight float64) map[*Pick]ttime.Arrival {
	assign := map[*Pick]ttime.Arrival{}
	for _, p := range picks {
		code := p.PhaseCode
		if code == "" {
			code = p.OriginalPhase
		}
		var match *ttime.Arrival
		for i := range arrivals {
			if arrivals[i].Phase == code {
				match = &arrivals[i]
				break
			}
		}
		if match == nil {
			bestDiff := math.Inf(1)
			for i := range arrivals {
				d := math.Abs(arrivals[i].Time - p.TravelTime)
				if d < bestDiff {
					bestDiff = d
					match = &arrivals[i]
				}
			}
		}
		if match != nil {
			assign[p] = *match
		}
	}
	_ = boostPick
	_ = delta
	_ = otherWeight
	_ = stickyWeight
	return assign
}

// arrivalDeriv converts a theoretical arrival's ∂T/∂delta, ∂T/∂depth
// partials into the Wres derivative vector (∂T/∂colat-km, ∂T/∂lon-km,
// ∂T/∂depth-km, partials of the theoretical time), using the group's azimuth
// to split the along-delta partial into its colatitude and longitude
// components (the same local Cartesian frame Hypocenter.ApplyStep
// steps in).
func arrivalDeriv(a ttime.Arrival, azimuthDeg float64, dof int) []float64 {
	dtddPerKm := a.DTDD / geo.DEG2KM // s/° -> s/km
	az := azimuthDeg * math.Pi / 180.0

	// Signs follow directly from Hypocenter.ApplyStep's convention:
	// dColatDeg = step*dir[0]/DEG2KM (dir[0]>0 moves the source south),
	// dLonDeg = step*dir[1]/(DEG2KM*sinColat) (dir[1]>0 moves it east).
	d := make([]float64, dof)
	if dof >= 2 {
		d[0] = dtddPerKm * math.Cos(az)
		d[1] = -dtddPerKm * math.Sin(az)
	}
	if dof == 3 {
		d[2] = a.DTDZ
	}
	return d
}
