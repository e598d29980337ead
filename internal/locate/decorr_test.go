package locate

import (
	"math"
	"testing"
)

func decorrRow(residual float64, deriv []float64, station *Station, phase string) *Wres {
	p := &Pick{Station: station, PhaseCode: phase}
	return &Wres{Residual: residual, Weight: 1, Deriv: deriv, Pick: p}
}

func TestDeCorr_ProjectPreservesRowCountWithinCap(t *testing.T) {
	s1 := NewStation("A", "XX", "00", 0, 0, 0)
	s2 := NewStation("B", "XX", "00", 30, 0, 0)
	s3 := NewStation("C", "XX", "00", 60, 0, 0)

	rows := []*Wres{
		decorrRow(0.5, []float64{1, 0, 1}, s1, "P"),
		decorrRow(-0.3, []float64{0, 1, 1}, s2, "P"),
		decorrRow(0.1, []float64{1, 1, 1}, s3, "S"),
	}

	out, err := DeCorr{}.Project(rows, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 || len(out) > len(rows) {
		t.Fatalf("expected between 1 and %d virtual rows, got %d", len(rows), len(out))
	}
	for _, w := range out {
		if w.Weight <= 0 {
			t.Errorf("expected positive projected weight, got %v", w.Weight)
		}
		if len(w.Deriv) != 3 {
			t.Errorf("expected 3-component derivative, got %d", len(w.Deriv))
		}
	}
}

func TestDeCorr_CapToMaxCorrShrinksLargeSets(t *testing.T) {
	var rows []*Wres
	for i := 0; i < maxCorr+10; i++ {
		lat := float64(i)
		s := NewStation("S", "XX", "00", lat, 0, 0)
		rows = append(rows, decorrRow(0.1, []float64{1, 0, 0}, s, "P"))
	}
	capped := capToMaxCorr(rows)
	if len(capped) != maxCorr {
		t.Errorf("expected capped length %d, got %d", maxCorr, len(capped))
	}
}

func TestSign(t *testing.T) {
	if sign(-2) != -1 || sign(2) != 1 || sign(0) != 0 {
		t.Errorf("unexpected sign values")
	}
}

func TestDeCorr_EmptyInput(t *testing.T) {
	out, err := DeCorr{}.Project(nil, 3)
	if err != nil || out != nil {
		t.Errorf("expected nil, nil for empty input, got %v, %v", out, err)
	}
}

func TestDeCorr_SingleRowPassesThrough(t *testing.T) {
	s := NewStation("A", "XX", "00", 0, 0, 0)
	rows := []*Wres{decorrRow(1.0, []float64{1, 0, 0}, s, "P")}
	out, err := DeCorr{}.Project(rows, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || math.Abs(out[0].Residual-1.0) > 1e-9 {
		t.Errorf("expected single row passed through unchanged, got %+v", out)
	}
}
