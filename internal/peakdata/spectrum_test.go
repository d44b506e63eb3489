package peakdata

import (
	"testing"

	"github.com/banshee-data/msflow/internal/mserr"
)

func TestSpectrumValidateDetectsUnsortedPeaks(t *testing.T) {
	s := Spectrum{RT: 1, MSLevel: 1, Peaks: []Peak1D{{MZ: 200, Intensity: 1}, {MZ: 100, Intensity: 1}}}
	if err := s.Validate(); !mserr.Is(err, mserr.InvalidData) {
		t.Fatalf("expected InvalidData, got %v", err)
	}
}

func TestSpectrumValidateRejectsDuplicateMZ(t *testing.T) {
	s := Spectrum{RT: 1, MSLevel: 1, Peaks: []Peak1D{{MZ: 100, Intensity: 1}, {MZ: 100, Intensity: 1}}}
	if err := s.Validate(); !mserr.Is(err, mserr.InvalidData) {
		t.Fatalf("expected InvalidData for non-strictly-ascending m/z, got %v", err)
	}
}

func TestSpectrumNextPrevMZBoundary(t *testing.T) {
	s := mkSpectrum(1.0, 100, 200, 300)
	if _, err := s.PrevMZ(0); !mserr.Is(err, mserr.NoSuccessor) {
		t.Fatalf("expected NoSuccessor at leftmost peak, got %v", err)
	}
	if _, err := s.NextMZ(2); !mserr.Is(err, mserr.NoSuccessor) {
		t.Fatalf("expected NoSuccessor at rightmost peak, got %v", err)
	}
	if idx, err := s.NextMZ(0); err != nil || idx != 1 {
		t.Fatalf("expected (1, nil), got (%d, %v)", idx, err)
	}
}

func TestChromatogramSortAndIntegral(t *testing.T) {
	c := Chromatogram{Points: []ChromatogramPoint{
		{RT: 3, Intensity: 10},
		{RT: 1, Intensity: 5},
		{RT: 2, Intensity: 20},
	}}
	c.SortByRT()
	for i := 1; i < len(c.Points); i++ {
		if c.Points[i].RT < c.Points[i-1].RT {
			t.Fatalf("points not sorted by RT: %v", c.Points)
		}
	}
	if got, want := c.Integral(), 35.0; got != want {
		t.Fatalf("Integral() = %v, want %v", got, want)
	}
	if apex := c.Apex(); c.Points[apex].Intensity != 20 {
		t.Fatalf("Apex() picked intensity %v, want 20", c.Points[apex].Intensity)
	}
}

func TestChromatogramApexEmpty(t *testing.T) {
	var c Chromatogram
	if apex := c.Apex(); apex != -1 {
		t.Fatalf("expected -1 apex for empty chromatogram, got %d", apex)
	}
}
