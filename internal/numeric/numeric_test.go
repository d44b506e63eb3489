package numeric

import (
	"math"
	"testing"
)

func TestFuzzyEqualAbsoluteTolerance(t *testing.T) {
	if !FuzzyEqual(1.0, 1.0000001, 0, 1e-6) {
		t.Fatalf("expected near-equal values within abs tolerance to compare equal")
	}
	if FuzzyEqual(1.0, 1.1, 0, 1e-6) {
		t.Fatalf("expected values outside tolerance to compare unequal")
	}
}

func TestFuzzyEqualRelativeTolerance(t *testing.T) {
	if !FuzzyEqual(1000.0, 1005.0, 0.01, 0) {
		t.Fatalf("expected 0.5%% drift within 1%% relative tolerance to compare equal")
	}
	if FuzzyEqual(1000.0, 1200.0, 0.01, 0) {
		t.Fatalf("expected 20%% drift outside 1%% relative tolerance to compare unequal")
	}
}

func TestSavitzkyGolayRejectsEvenFrameSize(t *testing.T) {
	_, err := SavitzkyGolayFilter([]float64{1, 2, 3, 4}, SavitzkyGolayConfig{FrameSize: 4, PolyOrder: 2})
	if err == nil {
		t.Fatalf("expected error for even frame size")
	}
}

func TestSavitzkyGolayPreservesConstantSignal(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 42.0
	}
	out, err := SavitzkyGolayFilter(values, DefaultSavitzkyGolayConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range out {
		if math.Abs(v-42.0) > 1e-6 {
			t.Fatalf("out[%d] = %v, want ~42", i, v)
		}
	}
}

func TestSavitzkyGolayRejectsFrameSizeExceedingInput(t *testing.T) {
	values := []float64{1, 2, 3}
	_, err := SavitzkyGolayFilter(values, DefaultSavitzkyGolayConfig())
	if err == nil {
		t.Fatalf("expected error when frame size exceeds input length")
	}
}

func TestSavitzkyGolayTransientRegionsUseDistinctOffsetRows(t *testing.T) {
	values := []float64{1, 4, 9, 16, 25, 36, 49, 64, 200, 100}
	out, err := SavitzkyGolayFilter(values, SavitzkyGolayConfig{FrameSize: 5, PolyOrder: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{1.0, 4.0, 9.0, 16.0, 25.0, 36.0, 38.8, 104.8, 125.2, 130.6}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Fatalf("out[%d] = %v, want %v (full output %v)", i, out[i], want[i], out)
		}
	}
}

func TestSavitzkyGolayClampsNegativeOutputToZero(t *testing.T) {
	// A sharp downward spike can make the fitted polynomial dip below zero
	// at the trough; the filter must clamp rather than report negative
	// intensity.
	values := []float64{10, 10, 10, 10, 10, -1000, 10, 10, 10, 10, 10}
	out, err := SavitzkyGolayFilter(values, SavitzkyGolayConfig{FrameSize: 5, PolyOrder: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range out {
		if v < 0 {
			t.Fatalf("out[%d] = %v, want clamped to >= 0", i, v)
		}
	}
}

func TestGaussianFilterPreservesConstantSignal(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 7.0
	}
	out, err := GaussianFilter(values, DefaultGaussianFilterConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range out {
		if math.Abs(v-7.0) > 1e-9 {
			t.Fatalf("out[%d] = %v, want ~7", i, v)
		}
	}
}

func TestGaussianFilterRejectsNonPositiveStdDev(t *testing.T) {
	if _, err := GaussianFilter([]float64{1, 2, 3}, GaussianFilterConfig{StdDev: 0}); err == nil {
		t.Fatalf("expected error for zero std dev")
	}
}

func TestBilinearResamplePreservesIntegral(t *testing.T) {
	points := []ResamplePoint{
		{Position: 0.0, Intensity: 10},
		{Position: 0.3, Intensity: 20},
		{Position: 1.1, Intensity: 5},
	}
	out, err := BilinearResample(points, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var inSum, outSum float64
	for _, p := range points {
		inSum += p.Intensity
	}
	for _, p := range out {
		outSum += p.Intensity
	}
	if math.Abs(inSum-outSum) > 1e-9 {
		t.Fatalf("resample changed total intensity: in=%v out=%v", inSum, outSum)
	}
}

func TestBilinearResampleRejectsUnsorted(t *testing.T) {
	points := []ResamplePoint{{Position: 1, Intensity: 1}, {Position: 0, Intensity: 1}}
	if _, err := BilinearResample(points, 0.1); err == nil {
		t.Fatalf("expected error for unsorted input")
	}
}

func TestBilinearResampleEmptyInput(t *testing.T) {
	out, err := BilinearResample(nil, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output for empty input, got %v", out)
	}
}

func TestGridBilinearResample2DRejectsNonPositiveDims(t *testing.T) {
	if _, err := GridBilinearResample2D(nil, AxisMapping{}, AxisMapping{}, 0, 10); err == nil {
		t.Fatalf("expected error for zero rows")
	}
	if _, err := GridBilinearResample2D(nil, AxisMapping{}, AxisMapping{}, 10, -1); err == nil {
		t.Fatalf("expected error for negative cols")
	}
}

func TestGridBilinearResample2DPreservesTotalIntensity(t *testing.T) {
	points := []ScatterPoint2D{
		{RT: 10.3, MZ: 500.7, Intensity: 100},
		{RT: 12.0, MZ: 502.0, Intensity: 50},
	}
	rtMap := AxisMapping{Scale: 1, Offset: 0}
	mzMap := AxisMapping{Scale: 1, Offset: -490}
	grid, err := GridBilinearResample2D(points, rtMap, mzMap, 20, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var total float64
	rows, cols := grid.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			total += grid.At(r, c)
		}
	}
	if math.Abs(total-150) > 1e-9 {
		t.Fatalf("expected splatted total intensity 150, got %v", total)
	}
}

func TestGridBilinearResample2DDropsOutOfBoundsPoints(t *testing.T) {
	points := []ScatterPoint2D{{RT: -5, MZ: -5, Intensity: 100}}
	grid, err := GridBilinearResample2D(points, AxisMapping{Scale: 1}, AxisMapping{Scale: 1}, 10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, cols := grid.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if grid.At(r, c) != 0 {
				t.Fatalf("expected empty grid for an out-of-bounds point, found %v at (%d,%d)", grid.At(r, c), r, c)
			}
		}
	}
}
