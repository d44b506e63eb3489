package isotope

import (
	"math"
	"testing"
)

func TestPredictEnvelopeMonoisotopicNormalized(t *testing.T) {
	env, err := PredictEnvelope(1500, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(env.Peaks[0].Abundance-1.0) > 1e-9 {
		t.Fatalf("expected monoisotopic peak normalized to 1.0, got %v", env.Peaks[0].Abundance)
	}
	for i, p := range env.Peaks {
		if p.Abundance < 0 {
			t.Fatalf("peak %d has negative abundance %v", i, p.Abundance)
		}
	}
}

func TestPredictEnvelopeRejectsInvalidInput(t *testing.T) {
	if _, err := PredictEnvelope(-5, 3); err == nil {
		t.Fatalf("expected error for non-positive mass")
	}
	if _, err := PredictEnvelope(1000, 0); err == nil {
		t.Fatalf("expected error for maxIsotopes < 1")
	}
}

func TestEnvelopeHeavierMassShiftsApex(t *testing.T) {
	small, _ := PredictEnvelope(800, 6)
	large, _ := PredictEnvelope(8000, 6)
	if large.ApexIndex() < small.ApexIndex() {
		t.Fatalf("expected heavier mass to have apex at same or higher isotope index: small=%d large=%d",
			small.ApexIndex(), large.ApexIndex())
	}
}

func TestFWHMExtentBracketsApex(t *testing.T) {
	env, _ := PredictEnvelope(2000, 8)
	lo, hi := env.FWHMExtent()
	apex := env.ApexIndex()
	if lo > apex || hi < apex {
		t.Fatalf("FWHM extent [%d,%d] does not bracket apex %d", lo, hi, apex)
	}
}

func TestCorrelationPerfectMatch(t *testing.T) {
	env, _ := PredictEnvelope(1200, 4)
	var observed []ObservedIsotope
	for _, p := range env.Peaks {
		observed = append(observed, ObservedIsotope{Index: p.Index, Intensity: p.Abundance * 1000})
	}
	c := env.Correlation(observed)
	if c < 0.999 {
		t.Fatalf("expected near-perfect correlation for scaled match, got %v", c)
	}
}

func TestCorrelationTooFewPoints(t *testing.T) {
	env, _ := PredictEnvelope(1200, 4)
	if c := env.Correlation([]ObservedIsotope{{Index: 0, Intensity: 10}}); c != 0 {
		t.Fatalf("expected 0 correlation with < 2 points, got %v", c)
	}
}

func TestDeconvolveChargeMatchesExpectedSpacing(t *testing.T) {
	charge2 := []float64{500.0, 500.501, 501.002, 501.503}
	z, err := DeconvolveCharge(charge2, 4, 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if z != 2 {
		t.Fatalf("expected charge 2, got %d", z)
	}
}

func TestCompositionIsMonotoneInMass(t *testing.T) {
	small := Composition(800)
	large := Composition(8000)
	for symbol, n1 := range small {
		if large[symbol] < n1 {
			t.Fatalf("element %s count decreased with higher mass: %d (800Da) -> %d (8000Da)", symbol, n1, large[symbol])
		}
	}
}

func TestTrimAndNormalizeDropsLowAbundancePeaksAndRenormalizes(t *testing.T) {
	env, _ := PredictEnvelope(2000, 8)
	trimmed := env.TrimAndNormalize(0.05)
	if len(trimmed.Peaks) == 0 || len(trimmed.Peaks) > len(env.Peaks) {
		t.Fatalf("expected a non-empty, no-larger trimmed peak set, got %d of %d", len(trimmed.Peaks), len(env.Peaks))
	}
	var sum float64
	for _, p := range trimmed.Peaks {
		sum += p.Abundance
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("expected trimmed abundances to sum to 1, got %v", sum)
	}
}

func TestWidenByGaussianKeepsMonoisotopicNormalization(t *testing.T) {
	env, _ := PredictEnvelope(1500, 6)
	widened := env.WidenByGaussian(0.1)
	if math.Abs(widened.Peaks[0].Abundance-1.0) > 1e-9 {
		t.Fatalf("expected widened monoisotopic peak normalized to 1.0, got %v", widened.Peaks[0].Abundance)
	}
}

func TestTailExtentsBracketApexAndShrinkWithLooserThreshold(t *testing.T) {
	env, _ := PredictEnvelope(2000, 10)
	apex := env.ApexIndex()
	tightLo, tightHi := env.TailExtents(0.01)
	looseLo, looseHi := env.TailExtents(0.3)
	if tightLo > apex || tightHi < apex || looseLo > apex || looseHi < apex {
		t.Fatalf("tail extents must bracket the apex: tight=[%d,%d] loose=[%d,%d] apex=%d", tightLo, tightHi, looseLo, looseHi, apex)
	}
	if (looseHi - looseLo) > (tightHi - tightLo) {
		t.Fatalf("looser threshold should not produce a wider window: tight width %d, loose width %d", tightHi-tightLo, looseHi-looseLo)
	}
}

func TestDeconvolveChargeOutOfTolerance(t *testing.T) {
	irregular := []float64{500.0, 500.5, 501.7}
	if _, err := DeconvolveCharge(irregular, 1, 0.001); err == nil {
		t.Fatalf("expected error when no charge matches within tolerance")
	}
}
