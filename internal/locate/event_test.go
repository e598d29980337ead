package locate

import (
	"math"
	"testing"
)

// eventFixture builds groups directly (not through NewEvent, which
// recomputes DeltaDeg/AzimuthDeg from real geometry) so the azimuthal
// gap tests can use exact, hand-picked azimuths.
func eventFixture() (*Event, []*PickGroup) {
	var groups []*PickGroup
	deltas := []float64{25.0, 40.0, 55.0}
	azimuths := []float64{10.0, 120.0, 260.0}
	for i, d := range deltas {
		station := NewStation(string(rune('A'+i)), "XX", "00", float64(i+1)*15, 0, 0)
		pick := &Pick{
			Station:       station,
			OriginalPhase: "P",
			PhaseCode:     "P",
			Author:        AuthorContribAuto,
			Affinity:      1.0,
			Used:          true,
			CmndUse:       true,
			TravelTime:    100.0 + d,
		}
		g := NewPickGroup(station, []*Pick{pick})
		g.DeltaDeg = d
		g.AzimuthDeg = azimuths[i]
		groups = append(groups, g)
	}

	hypo := NewHypocenter(0, 0, 0, 33)
	ctx := NewLocatorContext(false, false, true, 0, nil, nil)
	e := &Event{
		Stations:         []*Station{groups[0].Station, groups[1].Station, groups[2].Station},
		Groups:           groups,
		Hypo:             hypo,
		Oracle:           &fakeOracle{},
		Ctx:              ctx,
		allowDeCorrelate: ctx.DeCorrelate,
	}
	return e, groups
}

func TestEvent_NewEventBuildsStationsAndGeometry(t *testing.T) {
	station := NewStation("AAA", "XX", "00", 10, 0, 0)
	g := NewPickGroup(station, []*Pick{{Station: station, Used: true, CmndUse: true}})
	hypo := NewHypocenter(0, 0, 0, 33)
	ctx := NewLocatorContext(false, false, false, 0, nil, nil)

	e := NewEvent([]*PickGroup{g}, hypo, &fakeOracle{}, ctx)
	if len(e.Stations) != 1 || e.Stations[0] != station {
		t.Fatalf("expected Stations to contain the group's station")
	}
	if g.DeltaDeg == 0 {
		t.Errorf("expected UpdateGeometry to set a nonzero delta for a station 10 degrees north")
	}
}

func TestEvent_NewEventCapturesAllowDeCorrelate(t *testing.T) {
	e, _ := eventFixture()
	if !e.allowDeCorrelate {
		t.Fatalf("expected allowDeCorrelate true from ctx.DeCorrelate")
	}

	ctx := NewLocatorContext(false, false, false, 0, nil, nil)
	e2 := NewEvent(nil, NewHypocenter(0, 0, 0, 33), &fakeOracle{}, ctx)
	if e2.allowDeCorrelate {
		t.Fatalf("expected allowDeCorrelate false when ctx.DeCorrelate is false")
	}
}

func TestEvent_UsedCounts(t *testing.T) {
	e, groups := eventFixture()
	if got := e.UsedStationCount(); got != 3 {
		t.Errorf("expected 3 used stations, got %d", got)
	}
	if got := e.UsedPickCount(); got != 3 {
		t.Errorf("expected 3 used picks, got %d", got)
	}

	groups[0].Picks[0].Used = false
	if got := e.UsedStationCount(); got != 2 {
		t.Errorf("expected 2 used stations after disabling one pick, got %d", got)
	}
	if got := e.UsedPickCount(); got != 2 {
		t.Errorf("expected 2 used picks after disabling one pick, got %d", got)
	}
}

func TestEvent_MinDistanceDeg(t *testing.T) {
	e, _ := eventFixture()
	if got := e.MinDistanceDeg(); got != 25.0 {
		t.Errorf("expected min delta 25.0, got %v", got)
	}

	ctx := NewLocatorContext(false, false, false, 0, nil, nil)
	empty := NewEvent(nil, NewHypocenter(0, 0, 0, 33), &fakeOracle{}, ctx)
	if got := empty.MinDistanceDeg(); got != 0 {
		t.Errorf("expected 0 with no used groups, got %v", got)
	}
}

func TestEvent_AzimuthalGapsBelowTwoUsed(t *testing.T) {
	ctx := NewLocatorContext(false, false, false, 0, nil, nil)
	e := NewEvent(nil, NewHypocenter(0, 0, 0, 33), &fakeOracle{}, ctx)
	azimGap, robustGap := e.AzimuthalGaps()
	if azimGap != 360 || robustGap != 360 {
		t.Errorf("expected 360/360 with fewer than 2 used groups, got %v/%v", azimGap, robustGap)
	}
}

func TestEvent_AzimuthalGapsThreeStations(t *testing.T) {
	// Azimuths 10, 120, 260 -> consecutive gaps 110, 140, 110 (wrap).
	e, _ := eventFixture()
	azimGap, robustGap := e.AzimuthalGaps()
	if math.Abs(azimGap-140) > 1e-9 {
		t.Errorf("expected standard gap 140, got %v", azimGap)
	}
	// Robust gap merges the two largest adjacent gaps: 110+140=250.
	if math.Abs(robustGap-250) > 1e-9 {
		t.Errorf("expected robust gap 250, got %v", robustGap)
	}
}

func TestEvent_AzimuthalGapsIgnoresUnusedGroups(t *testing.T) {
	e, groups := eventFixture()
	groups[1].Picks[0].Used = false // drop the azimuth-120 station.
	azimGap, robustGap := e.AzimuthalGaps()
	// Remaining azimuths 10, 260 -> gaps 250 and 110; standard gap 250.
	if math.Abs(azimGap-250) > 1e-9 {
		t.Errorf("expected standard gap 250 with one group dropped, got %v", azimGap)
	}
	if robustGap != azimGap {
		t.Errorf("expected robust gap to equal standard gap with only 2 used groups, got %v vs %v", robustGap, azimGap)
	}
}
