package mrmscore

import (
	"math"
	"testing"

	"github.com/banshee-data/msflow/internal/peakdata"
)

func gaussianPoints(rtCenter, amplitude, stddev float64, n int) []peakdata.ChromatogramPoint {
	var points []peakdata.ChromatogramPoint
	for i := 0; i < n; i++ {
		rt := rtCenter - float64(n/2) + float64(i)
		d := rt - rtCenter
		intensity := amplitude * math.Exp(-d*d/(2*stddev*stddev))
		points = append(points, peakdata.ChromatogramPoint{RT: rt, Intensity: intensity})
	}
	return points
}

func TestScoreRejectsEmptyChromatograms(t *testing.T) {
	_, err := Score(nil, nil, DefaultScoreWeights())
	if err == nil {
		t.Fatalf("expected error for no chromatograms")
	}
}

func TestScoreRejectsZeroWeights(t *testing.T) {
	chroms := []peakdata.Chromatogram{{NativeID: "t1", Points: gaussianPoints(100, 1000, 3, 21)}}
	_, err := Score(chroms, nil, ScoreWeights{})
	if err == nil {
		t.Fatalf("expected error for all-zero weights")
	}
}

func TestScoreCoelutingTransitionsScoreHigh(t *testing.T) {
	chroms := []peakdata.Chromatogram{
		{NativeID: "t1", Points: gaussianPoints(100, 1000, 3, 21)},
		{NativeID: "t2", Points: gaussianPoints(100, 500, 3, 21)},
		{NativeID: "t3", Points: gaussianPoints(100, 250, 3, 21)},
	}
	library := []LibraryIntensity{
		{TransitionID: "t1", RelativeIntensity: 1.0},
		{TransitionID: "t2", RelativeIntensity: 0.5},
		{TransitionID: "t3", RelativeIntensity: 0.25},
	}
	comp, err := Score(chroms, library, DefaultScoreWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.LibraryCorrelation < 0.99 {
		t.Errorf("expected near-perfect library correlation for exact-ratio traces, got %v", comp.LibraryCorrelation)
	}
	if comp.Coelution < 0.99 {
		t.Errorf("expected near-perfect coelution for identically-shaped traces, got %v", comp.Coelution)
	}
	if comp.OverallQuality <= 0 {
		t.Errorf("expected positive overall quality, got %v", comp.OverallQuality)
	}
}

func TestScoreMisalignedTransitionsScoreLowerCoelution(t *testing.T) {
	aligned := []peakdata.Chromatogram{
		{NativeID: "t1", Points: gaussianPoints(100, 1000, 3, 21)},
		{NativeID: "t2", Points: gaussianPoints(100, 500, 3, 21)},
	}
	misaligned := []peakdata.Chromatogram{
		{NativeID: "t1", Points: gaussianPoints(100, 1000, 3, 21)},
		{NativeID: "t2", Points: gaussianPoints(115, 500, 3, 21)},
	}
	weights := DefaultScoreWeights()
	alignedComp, err := Score(aligned, nil, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	misalignedComp, err := Score(misaligned, nil, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if misalignedComp.Coelution >= alignedComp.Coelution {
		t.Fatalf("expected misaligned traces to score lower coelution: aligned=%v misaligned=%v",
			alignedComp.Coelution, misalignedComp.Coelution)
	}
}

func TestQCThresholdsPassesAndFails(t *testing.T) {
	good := ScoreComponents{LibraryCorrelation: 0.95, Coelution: 0.9, OverallQuality: 0.9}
	bad := ScoreComponents{LibraryCorrelation: 0.2, Coelution: 0.9, OverallQuality: 0.9}
	thresholds := DefaultQCThresholds()
	if !good.Passes(thresholds) {
		t.Fatalf("expected good scores to pass QC thresholds")
	}
	if bad.Passes(thresholds) {
		t.Fatalf("expected low library correlation to fail QC thresholds")
	}
}

func TestScoreMatchesSpecScenario6(t *testing.T) {
	// spec.md §8 scenario 6: three transitions, library intensities
	// (1.0, 0.5, 0.25), observed picked-peak areas (2000, 1000, 500).
	chroms := []peakdata.Chromatogram{
		{NativeID: "t1", Points: []peakdata.ChromatogramPoint{{RT: 100, Intensity: 2000}}},
		{NativeID: "t2", Points: []peakdata.ChromatogramPoint{{RT: 100, Intensity: 1000}}},
		{NativeID: "t3", Points: []peakdata.ChromatogramPoint{{RT: 100, Intensity: 500}}},
	}
	library := []LibraryIntensity{
		{TransitionID: "t1", RelativeIntensity: 1.0},
		{TransitionID: "t2", RelativeIntensity: 0.5},
		{TransitionID: "t3", RelativeIntensity: 0.25},
	}
	comp, err := Score(chroms, library, DefaultScoreWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(comp.LibraryCorrelation-1.0) > 1e-9 {
		t.Fatalf("expected library correlation 1.0, got %v", comp.LibraryCorrelation)
	}
	if comp.LibraryRMSD > 1e-9 {
		t.Fatalf("expected library RMSD ~0.0, got %v", comp.LibraryRMSD)
	}
	if comp.IntensityScore < 0.9 {
		t.Fatalf("expected var_intensity_score >= 0.9, got %v", comp.IntensityScore)
	}
}

func TestFWHMOfGaussianPeak(t *testing.T) {
	c := peakdata.Chromatogram{Points: gaussianPoints(100, 1000, 5, 41)}
	width, err := FWHM(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Theoretical Gaussian FWHM = 2*sqrt(2*ln2)*sigma ≈ 2.3548*sigma
	want := 2.3548 * 5
	if math.Abs(width-want) > 1.0 {
		t.Fatalf("FWHM = %v, want ~%v", width, want)
	}
}

func TestFWHMRejectsEmptyChromatogram(t *testing.T) {
	if _, err := FWHM(peakdata.Chromatogram{}); err == nil {
		t.Fatalf("expected error for empty chromatogram")
	}
}
