package locate

import (
	"testing"

	"github.com/banshee-data/hypocenter/internal/ttime"
)

func locatorFixture(nStations int) (*Event, *fakeOracle) {
	var groups []*PickGroup
	deltas := []float64{25.0, 40.0, 55.0, 70.0, 85.0}
	for i := 0; i < nStations; i++ {
		d := deltas[i%len(deltas)]
		station := NewStation(string(rune('A'+i)), "XX", "00", float64(i+1)*12, float64(i)*7, 0)
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
		groups = append(groups, g)
	}

	oracle := &fakeOracle{arrivals: []ttime.Arrival{
		{Phase: "P", Time: 101.0, DTDD: 8.0, DTDZ: 0.05, Spread: 1.2, Observability: 1.0, Window: 5, Group: "P", Usable: true},
	}}

	hypo := NewHypocenter(0, 0, 0, 33)
	ctx := NewLocatorContext(false, false, true, 0, nil, nil)
	e := NewEvent(groups, hypo, oracle, ctx)
	return e, oracle
}

func TestRunLocator_InsufficientDataBelowThreeStations(t *testing.T) {
	e, _ := locatorFixture(2)

	result, err := RunLocator(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusInsufficientData {
		t.Errorf("expected INSUFFICIENT_DATA, got %v", result.Status)
	}
	if result.Stage != 0 || result.Iter != 0 {
		t.Errorf("expected termination at stage 0 iter 0, got stage=%d iter=%d", result.Stage, result.Iter)
	}
}

func TestRunLocator_RunsToCompletionWithEnoughStations(t *testing.T) {
	e, _ := locatorFixture(4)

	result, err := RunLocator(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	switch result.Status {
	case StatusSuccess, StatusNearlyConverged, StatusDidNotConverge, StatusUnstableSolution:
		// all expected terminal statuses for a converging or stalling run.
	default:
		t.Errorf("unexpected terminal status: %v", result.Status)
	}
	if result.Stepper == nil {
		t.Fatal("expected a non-nil Stepper on the result")
	}
	if result.CloseOut == nil {
		t.Fatal("expected RunLocator to always run Close-out")
	}
	if result.CloseOut.Quality == "" {
		t.Errorf("expected a non-empty quality string from Close-out")
	}
}

func TestRunLocator_RespectsAllowDeCorrelateCeiling(t *testing.T) {
	e, _ := locatorFixture(4)
	e.allowDeCorrelate = false

	if _, err := RunLocator(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Ctx.DeCorrelate {
		t.Errorf("expected DeCorrelate to remain false when allowDeCorrelate is false, even in late stages")
	}
}

func TestRunLocator_RecordsAuditTrail(t *testing.T) {
	e, _ := locatorFixture(4)

	if _, err := RunLocator(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.Audit) == 0 {
		t.Errorf("expected at least one audit snapshot to be recorded")
	}
}
