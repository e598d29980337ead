package geo

import (
	"math"
	"testing"
)

func TestDeltaAzimuth_SouthPoleStation(t *testing.T) {
	src := GeoCen(10.0, 20.0)
	sta := GeoCen(-90.0, 0.0) // geographic south pole

	delta, az := DeltaAzimuth(src, sta)

	if math.Abs(az-180.0) > 1e-6 {
		t.Errorf("expected azimuth 180, got %v", az)
	}

	wantDelta := 180.0 - src.ColatRad*180.0/math.Pi
	if math.Abs(delta-wantDelta) > 1e-6 {
		t.Errorf("expected delta %v, got %v", wantDelta, delta)
	}
}

func TestDeltaAzimuth_Antipodal(t *testing.T) {
	src := GeoCen(12.3, 45.6)
	sta := GeoCen(-12.3, 45.6-180.0)

	delta, _ := DeltaAzimuth(src, sta)
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		t.Fatalf("expected finite delta for antipodal points, got %v", delta)
	}
	if math.Abs(delta-180.0) > 1.0 {
		t.Errorf("expected delta near 180 for near-antipodal points, got %v", delta)
	}
}

func TestDeltaAzimuth_SamePoint(t *testing.T) {
	src := GeoCen(34.0, -118.0)
	delta, _ := DeltaAzimuth(src, src)
	if math.Abs(delta) > 1e-9 {
		t.Errorf("expected delta 0 for identical points, got %v", delta)
	}
}

func TestWrapLon(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{190, -170},
		{-190, 170},
		{0, 0},
		{180, -180},
		{-180, -180},
	}
	for _, c := range cases {
		got := WrapLon(c.in)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("WrapLon(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
