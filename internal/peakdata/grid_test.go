package peakdata

import (
	"testing"

	"github.com/banshee-data/msflow/internal/mserr"
)

func buildTestGrid(t *testing.T) (*ProfileGrid, []Peak2D) {
	t.Helper()
	producer := &sliceProducer{spectra: []Spectrum{
		mkSpectrum(1.0, 100, 200),
		mkSpectrum(2.0, 150, 250),
	}}
	var m SpectralMap
	if err := m.LoadFrom(producer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewProfileGrid(&m)
}

func TestProfileGridLen(t *testing.T) {
	g, points := buildTestGrid(t)
	if g.Len() != 4 || len(points) != 4 {
		t.Fatalf("expected 4 points, got grid.Len()=%d len(points)=%d", g.Len(), len(points))
	}
}

func TestProfileGridSkipsNonMS1(t *testing.T) {
	ms2 := mkSpectrum(1.0, 500)
	ms2.MSLevel = 2
	ms2.PrecursorList = []Precursor{{MZ: 500}}
	producer := &sliceProducer{spectra: []Spectrum{mkSpectrum(1.0, 100), ms2}}
	var m SpectralMap
	if err := m.LoadFrom(producer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g, points := NewProfileGrid(&m)
	if g.Len() != 1 || len(points) != 1 {
		t.Fatalf("expected MS2 spectrum excluded, got %d points", g.Len())
	}
}

func TestProfileGridNextPrevMZBoundary(t *testing.T) {
	g, points := buildTestGrid(t)
	// find index of the globally-smallest m/z point (100 at RT=1)
	var minIdx int
	for i, p := range points {
		if p.MZ == 100 {
			minIdx = i
		}
	}
	if _, err := g.PrevMZ(minIdx); !mserr.Is(err, mserr.NoSuccessor) {
		t.Fatalf("expected NoSuccessor at leftmost m/z, got %v", err)
	}
	var maxIdx int
	for i, p := range points {
		if p.MZ == 250 {
			maxIdx = i
		}
	}
	if _, err := g.NextMZ(maxIdx); !mserr.Is(err, mserr.NoSuccessor) {
		t.Fatalf("expected NoSuccessor at rightmost m/z, got %v", err)
	}
}

func TestProfileGridNextPrevRTBoundary(t *testing.T) {
	g, points := buildTestGrid(t)
	var firstRTIdx, lastRTIdx int
	for i, p := range points {
		if p.RT == 1.0 {
			firstRTIdx = i
		}
		if p.RT == 2.0 {
			lastRTIdx = i
		}
	}
	if _, err := g.PrevRT(firstRTIdx); !mserr.Is(err, mserr.NoSuccessor) {
		t.Fatalf("expected NoSuccessor at earliest RT, got %v", err)
	}
	if _, err := g.NextRT(lastRTIdx); !mserr.Is(err, mserr.NoSuccessor) {
		t.Fatalf("expected NoSuccessor at latest RT, got %v", err)
	}
}

func TestProfileGridRangeByMZ(t *testing.T) {
	g, _ := buildTestGrid(t)
	idxs := g.RangeByMZ(140, 210)
	if len(idxs) != 2 {
		t.Fatalf("expected 2 points in [140,210), got %d", len(idxs))
	}
	for _, idx := range idxs {
		mz := g.Point(idx).MZ
		if mz < 140 || mz >= 210 {
			t.Fatalf("point m/z %v out of expected range", mz)
		}
	}
}

func TestProfileGridRangeByRT(t *testing.T) {
	g, _ := buildTestGrid(t)
	idxs := g.RangeByRT(1.0, 1.5)
	if len(idxs) != 2 {
		t.Fatalf("expected 2 points at RT=1.0, got %d", len(idxs))
	}
}

func TestProfileGridEmptyGrid(t *testing.T) {
	var m SpectralMap
	g, points := NewProfileGrid(&m)
	if g.Len() != 0 || len(points) != 0 {
		t.Fatalf("expected empty grid, got %d points", g.Len())
	}
	if got := g.RangeByMZ(0, 100); len(got) != 0 {
		t.Fatalf("expected empty range on empty grid, got %v", got)
	}
}
