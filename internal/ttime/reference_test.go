package ttime

import "testing"

func TestReferenceArrivals_SortedByTime(t *testing.T) {
	r := NewReference()
	arrivals, err := r.Arrivals(Query{Depth: 33, Delta: 40, Azimuth: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(arrivals) == 0 {
		t.Fatal("expected at least one arrival")
	}
	for i := 1; i < len(arrivals); i++ {
		if arrivals[i].Time < arrivals[i-1].Time {
			t.Fatalf("arrivals not sorted by time at index %d", i)
		}
	}
}

func TestReferenceArrivals_BadDepth(t *testing.T) {
	r := NewReference()
	if _, err := r.Arrivals(Query{Depth: -5, Delta: 10}); err != ErrBadDepth {
		t.Fatalf("expected ErrBadDepth, got %v", err)
	}
	if _, err := r.Arrivals(Query{Depth: 5000, Delta: 10}); err != ErrBadDepth {
		t.Fatalf("expected ErrBadDepth, got %v", err)
	}
}

func TestReferenceArrivals_ShallowSourceOmitsDepthPhase(t *testing.T) {
	r := NewReference()
	arrivals, err := r.Arrivals(Query{Depth: 10, Delta: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range arrivals {
		if a.Phase == "pP" {
			t.Errorf("pP should not be offered for shallow source depth")
		}
	}
}
