package locate

import (
	"math"
	"testing"
)

func closeoutRow(deriv []float64, weight float64, pick *Pick) *Wres {
	return &Wres{
		Weight:        weight,
		Deriv:         deriv,
		DemedianDeriv: deriv,
		Pick:          pick,
	}
}

func TestCloseOut_WellDeterminedSystemSucceeds(t *testing.T) {
	station := testStation()
	picks := []*Pick{{Station: station}, {Station: station}, {Station: station}, {Station: station}}

	demedian := []*Wres{
		closeoutRow([]float64{1, 0, 0}, 1, picks[0]),
		closeoutRow([]float64{0, 1, 0}, 1, picks[1]),
		closeoutRow([]float64{0, 0, 1}, 1, picks[2]),
		closeoutRow([]float64{1, 1, 1}, 1, picks[3]),
	}
	raw := []*Wres{
		closeoutRow([]float64{1, 0, 0}, 1, picks[0]),
		closeoutRow([]float64{0, 1, 0}, 1, picks[1]),
		closeoutRow([]float64{0, 0, 1}, 1, picks[2]),
		closeoutRow([]float64{1, 1, 1}, 1, picks[3]),
	}

	hypo := NewHypocenter(0, 0, 0, 33)
	res := CloseOut(demedian, raw, hypo, 0.5, 4, false, 120, 140, 5.0)

	if res.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", res.Status)
	}
	if res.Ellipsoid[0].SemiKm < res.Ellipsoid[1].SemiKm || res.Ellipsoid[1].SemiKm < res.Ellipsoid[2].SemiKm {
		t.Errorf("expected ellipsoid axes sorted descending, got %+v", res.Ellipsoid)
	}
	maxSemi := res.Ellipsoid[0].SemiKm
	if res.ErrH > maxSemi+1e-6 || res.ErrZ > maxSemi+1e-6 {
		t.Errorf("expected errH/errZ bounded by max semi-axis %v, got errH=%v errZ=%v", maxSemi, res.ErrH, res.ErrZ)
	}
	if len(res.Quality) != 3 {
		t.Errorf("expected 3-character quality string, got %q", res.Quality)
	}
	if len(res.Importances) != 4 {
		t.Errorf("expected one importance per pick, got %d", len(res.Importances))
	}
	var sum float64
	for _, v := range res.Importances {
		sum += v
	}
	if math.Abs(sum-res.TotalImportance) > 1e-9 {
		t.Errorf("expected TotalImportance to equal the sum of per-pick importances, got sum=%v total=%v", sum, res.TotalImportance)
	}
}

func TestCloseOut_SingularNormalMatrixReturnsStatus(t *testing.T) {
	station := testStation()
	picks := []*Pick{{Station: station}, {Station: station}, {Station: station}}

	// All rows share the same direction: the 3x3 normal matrix is rank 1.
	rows := []*Wres{
		closeoutRow([]float64{1, 0, 0}, 1, picks[0]),
		closeoutRow([]float64{2, 0, 0}, 1, picks[1]),
		closeoutRow([]float64{0.5, 0, 0}, 1, picks[2]),
	}

	hypo := NewHypocenter(0, 0, 0, 33)
	res := CloseOut(rows, rows, hypo, 0.5, 3, false, 200, 250, 10.0)

	if res.Status != StatusSingularMatrix {
		t.Errorf("expected SINGULAR_MATRIX, got %v", res.Status)
	}
}

func TestCloseOut_InsufficientDataBelowThreeUsed(t *testing.T) {
	hypo := NewHypocenter(0, 0, 0, 33)
	res := CloseOut(nil, nil, hypo, 0, 2, false, 0, 0, 0)
	if res.Status != StatusInsufficientData {
		t.Errorf("expected INSUFFICIENT_DATA, got %v", res.Status)
	}
}

func TestCloseOut_HeldDepthGetsGQualityDepthChar(t *testing.T) {
	station := testStation()
	picks := []*Pick{{Station: station}, {Station: station}, {Station: station}}

	rows := []*Wres{
		closeoutRow([]float64{1, 0}, 1, picks[0]),
		closeoutRow([]float64{0, 1}, 1, picks[1]),
		closeoutRow([]float64{1, 1}, 1, picks[2]),
	}

	hypo := NewHypocenter(0, 0, 0, 33)
	hypo.HeldDepth = true
	res := CloseOut(rows, rows, hypo, 0.5, 3, false, 120, 140, 5.0)

	if res.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", res.Status)
	}
	if res.Quality[2] != 'G' {
		t.Errorf("expected depth-quality char 'G' for held depth, got %q", res.Quality)
	}
}
