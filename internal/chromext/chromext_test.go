package chromext

import (
	"testing"

	"github.com/banshee-data/msflow/internal/peakdata"
)

func buildMS2Map(t *testing.T) *peakdata.SpectralMap {
	t.Helper()
	var m peakdata.SpectralMap
	for i := 0; i < 5; i++ {
		rt := float64(i) * 2.0
		s := peakdata.Spectrum{
			RT:      rt,
			MSLevel: 2,
			PrecursorList: []Precursor{},
			Peaks:   []peakdata.Peak1D{{MZ: 300.0, Intensity: 100 + float64(i)*10}, {MZ: 305.0, Intensity: 50}},
		}
		s.PrecursorList = []peakdata.Precursor{{MZ: 500.25}}
		s.SortPeaks()
		m.Spectra = append(m.Spectra, s)
	}
	m.UpdateRanges()
	return &m
}

type Precursor = peakdata.Precursor

func rtPtr(v float64) *float64 { return &v }

func TestExtractRejectsNonPositiveTolerance(t *testing.T) {
	m := buildMS2Map(t)
	params := DefaultParams()
	params.PrecursorTolerance = MZTolerance{}
	_, err := Extract(m, []Transition{{ID: "t1", PrecursorMZ: 500.25, ProductMZ: 300.0}}, params)
	if err == nil {
		t.Fatalf("expected error for zero precursor tolerance")
	}
}

func TestExtractTophatSumsAllPeaksInWindow(t *testing.T) {
	m := buildMS2Map(t)
	tr := Transition{ID: "t1", PrecursorMZ: 500.25, ProductMZ: 300.0}
	chroms, err := Extract(m, []Transition{tr}, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chroms) != 1 {
		t.Fatalf("expected 1 chromatogram, got %d", len(chroms))
	}
	c := chroms[0]
	if len(c.Points) != 5 {
		t.Fatalf("expected 5 RT points extracted, got %d", len(c.Points))
	}
	if c.Points[0].Intensity != 100 {
		t.Fatalf("expected first point intensity 100 (tophat, excludes 305 product outside window), got %v", c.Points[0].Intensity)
	}
}

func TestExtractRespectsRTWindow(t *testing.T) {
	m := buildMS2Map(t)
	params := DefaultParams()
	params.RTWindow = 4 // [-1, 3] around normalized RT 1
	tr := Transition{ID: "t1", PrecursorMZ: 500.25, ProductMZ: 300.0, NormalizedRT: rtPtr(1)}
	chroms, err := Extract(m, []Transition{tr}, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chroms[0].Points) != 2 {
		t.Fatalf("expected 2 points within the RT window, got %d", len(chroms[0].Points))
	}
}

func TestExtractMissingNormalizedRTFailsWhenWindowRequested(t *testing.T) {
	m := buildMS2Map(t)
	params := DefaultParams()
	params.RTWindow = 4
	tr := Transition{ID: "t1", PrecursorMZ: 500.25, ProductMZ: 300.0}
	_, err := Extract(m, []Transition{tr}, params)
	if err == nil {
		t.Fatalf("expected error when RT window requested without a normalized RT")
	}
}

func TestExtractNegativeRTWindowIsUnrestricted(t *testing.T) {
	m := buildMS2Map(t)
	params := DefaultParams()
	params.RTWindow = -1
	tr := Transition{ID: "t1", PrecursorMZ: 500.25, ProductMZ: 300.0}
	chroms, err := Extract(m, []Transition{tr}, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chroms[0].Points) != 5 {
		t.Fatalf("expected all 5 points with a negative (disabled) RT window, got %d", len(chroms[0].Points))
	}
}

func TestExtractNoMatchingPrecursor(t *testing.T) {
	m := buildMS2Map(t)
	tr := Transition{ID: "t1", PrecursorMZ: 999.0, ProductMZ: 300.0}
	chroms, err := Extract(m, []Transition{tr}, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chroms[0].Points) != 0 {
		t.Fatalf("expected no points for unmatched precursor, got %d", len(chroms[0].Points))
	}
}

func TestExtractBartlettTapersAwayFromCenter(t *testing.T) {
	m := buildMS2Map(t)
	params := DefaultParams()
	params.Shape = ShapeBartlett
	params.ProductTolerance = MZTolerance{Th: 5.0}
	tr := Transition{ID: "t1", PrecursorMZ: 500.25, ProductMZ: 300.0}
	chroms, err := Extract(m, []Transition{tr}, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 305.0 is at the edge of the 5.0-Th window and should contribute
	// near-zero weight, so bartlett total should be well under tophat's.
	tophatParams := params
	tophatParams.Shape = ShapeTophat
	tophatChroms, _ := Extract(m, []Transition{tr}, tophatParams)
	if chroms[0].Points[0].Intensity >= tophatChroms[0].Points[0].Intensity {
		t.Fatalf("expected bartlett-weighted sum < tophat sum when a peak sits near the window edge")
	}
}

func TestExtractTransitionsSortedByProductMZ(t *testing.T) {
	m := buildMS2Map(t)
	transitions := []Transition{
		{ID: "high", PrecursorMZ: 500.25, ProductMZ: 400.0},
		{ID: "low", PrecursorMZ: 500.25, ProductMZ: 300.0},
	}
	chroms, err := Extract(m, transitions, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chroms[0].NativeID != "low" || chroms[1].NativeID != "high" {
		t.Fatalf("expected chromatograms ordered by ascending product m/z, got %s, %s", chroms[0].NativeID, chroms[1].NativeID)
	}
}

func TestExtractMatchesSpecScenario5(t *testing.T) {
	// spec.md §8 scenario 5: precursor 700.0, product 500.0, normalized_rt
	// 3000, rt_window 60, mz_tol 0.05 Th; spectra at RT {2970,2990,3010,3030}
	// each carrying a peak at m/z 500.03 of intensity 100.
	var m peakdata.SpectralMap
	for _, rt := range []float64{2970, 2990, 3010, 3030} {
		s := peakdata.Spectrum{
			RT:      rt,
			MSLevel: 2,
			PrecursorList: []peakdata.Precursor{{MZ: 700.0}},
			Peaks:   []peakdata.Peak1D{{MZ: 500.03, Intensity: 100}},
		}
		s.SortPeaks()
		m.Spectra = append(m.Spectra, s)
	}
	m.UpdateRanges()

	tr := Transition{ID: "T", PrecursorMZ: 700.0, ProductMZ: 500.0, NormalizedRT: rtPtr(3000)}
	params := Params{
		Shape:              ShapeTophat,
		PrecursorTolerance: MZTolerance{Th: 1.0},
		ProductTolerance:   MZTolerance{Th: 0.05},
		RTWindow:           60,
	}
	chroms, err := Extract(&m, []Transition{tr}, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chroms) != 1 {
		t.Fatalf("expected 1 chromatogram, got %d", len(chroms))
	}
	c := chroms[0]
	if c.NativeID != "T" || c.ProductMZ != 500.0 {
		t.Fatalf("unexpected chromatogram identity: %+v", c)
	}
	if len(c.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(c.Points))
	}
	for _, p := range c.Points {
		if p.Intensity != 100 {
			t.Fatalf("expected intensity 100 at every point, got %v at RT %v", p.Intensity, p.RT)
		}
	}
}
