// Package chromext implements transition chromatogram extraction (spec
// §4.8's ChromatogramExtractor): given a library of expected precursor/
// product m/z transitions, pull matching intensity traces out of a
// SpectralMap's MS2 spectra across an RT window.
//
// Transition bookkeeping (sorted by m/z, with small per-transition
// metadata) follows the accumulate-then-sort idiom in
// internal/lidar/l2frames/frame_builder.go.
package chromext

import (
	"math"
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
	"github.com/banshee-data/msflow/internal/peakdata"
)

// ExtractionShape selects the extraction kernel applied across the m/z
// tolerance window.
type ExtractionShape string

const (
	ShapeTophat   ExtractionShape = "tophat"   // sum all intensity within the window, unweighted
	ShapeBartlett ExtractionShape = "bartlett" // triangular-weighted sum, peak weight at window center
)

// MZTolerance expresses a tolerance either as an absolute Th window or a
// relative ppm window; exactly one of the two should be non-zero.
type MZTolerance struct {
	Th  float64
	PPM float64
}

// windowAt returns the half-width, in Th, of the tolerance at the given m/z.
func (t MZTolerance) windowAt(mz float64) float64 {
	if t.PPM > 0 {
		return mz * t.PPM / 1e6
	}
	return t.Th
}

// Transition describes one expected precursor -> product m/z pair to
// extract a chromatogram for, e.g. one SRM/MRM transition or one SWATH
// fragment within a precursor isolation window. NormalizedRT is the
// library-predicted elution time; it is optional unless Params.RTWindow
// requests RT-restricted extraction (spec §4.8's coordinate preparation).
type Transition struct {
	ID           string
	PrecursorMZ  float64
	ProductMZ    float64
	NormalizedRT *float64
}

// Params configures the extraction kernel, tolerances, and RT window.
type Params struct {
	Shape              ExtractionShape
	PrecursorTolerance MZTolerance
	ProductTolerance   MZTolerance
	// RTWindow is the full width, in seconds, of the RT window centered on
	// each transition's NormalizedRT. RTWindow > 0 restricts extraction to
	// that window; RTWindow <= 0 means an unrestricted RT range (spec's
	// "rt_extraction_window < 0 disables this filter", extended here to
	// include 0 since a zero-width window has no practical meaning).
	RTWindow float64
}

// DefaultParams returns a tophat extraction with tight, typical
// triple-quadrupole tolerances and an unrestricted RT range.
func DefaultParams() Params {
	return Params{
		Shape:              ShapeTophat,
		PrecursorTolerance: MZTolerance{Th: 0.7},
		ProductTolerance:   MZTolerance{Th: 0.5},
		RTWindow:           -1,
	}
}

// Extract pulls one Chromatogram per transition out of m, restricted to
// MS2 spectra whose precursor m/z matches within PrecursorTolerance and,
// when Params.RTWindow > 0, whose RT falls within that window centered on
// the transition's NormalizedRT. Transitions are processed in ascending
// ProductMZ order, matching the sorted-input assumption the rest of the
// pipeline (e.g. mrmscore) relies on. Fails with InvalidArgument if a
// transition has no NormalizedRT but an RT window was requested.
func Extract(m *peakdata.SpectralMap, transitions []Transition, params Params) ([]peakdata.Chromatogram, error) {
	if params.PrecursorTolerance.Th <= 0 && params.PrecursorTolerance.PPM <= 0 {
		return nil, mserr.New(mserr.InvalidArgument, "chromext.Extract", "precursor tolerance must be positive")
	}
	if params.ProductTolerance.Th <= 0 && params.ProductTolerance.PPM <= 0 {
		return nil, mserr.New(mserr.InvalidArgument, "chromext.Extract", "product tolerance must be positive")
	}

	sorted := append([]Transition(nil), transitions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductMZ < sorted[j].ProductMZ })

	chroms := make([]peakdata.Chromatogram, 0, len(sorted))
	for _, tr := range sorted {
		c, err := extractOne(m, tr, params)
		if err != nil {
			return nil, err
		}
		chroms = append(chroms, c)
	}
	return chroms, nil
}

func extractOne(m *peakdata.SpectralMap, tr Transition, params Params) (peakdata.Chromatogram, error) {
	c := peakdata.Chromatogram{
		NativeID:    tr.ID,
		PrecursorMZ: tr.PrecursorMZ,
		ProductMZ:   tr.ProductMZ,
		Type:        peakdata.ChromSelectedReactionMonitoring,
	}

	var first, last int
	if params.RTWindow > 0 {
		if tr.NormalizedRT == nil {
			return peakdata.Chromatogram{}, mserr.New(mserr.InvalidArgument, "chromext.extractOne",
				"transition "+tr.ID+" has no normalized RT but an RT extraction window was requested")
		}
		half := params.RTWindow / 2
		// SpectraByRT's range is half-open; nudge the upper bound so a
		// spectrum landing exactly on the window's far edge is still kept,
		// matching the spec's inclusive [rt-w/2, rt+w/2] window.
		first, last = m.SpectraByRT(*tr.NormalizedRT-half, math.Nextafter(*tr.NormalizedRT+half, math.Inf(1)))
	} else {
		first, last = 0, len(m.Spectra)
	}

	precHalfWidth := params.PrecursorTolerance.windowAt(tr.PrecursorMZ)
	prodHalfWidth := params.ProductTolerance.windowAt(tr.ProductMZ)

	for idx := first; idx < last; idx++ {
		s := m.Spectra[idx]
		if s.MSLevel < 2 {
			continue
		}
		if !precursorMatches(s, tr.PrecursorMZ, precHalfWidth) {
			continue
		}
		// PeaksByMZ is half-open too; nudge the upper bound so a peak at
		// exactly product m/z + tolerance is inside the window.
		loMZ, hiMZ := tr.ProductMZ-prodHalfWidth, math.Nextafter(tr.ProductMZ+prodHalfWidth, math.Inf(1))
		pFirst, pLast := s.PeaksByMZ(loMZ, hiMZ)
		intensity := extractIntensity(s.Peaks[pFirst:pLast], tr.ProductMZ, prodHalfWidth, params.Shape)
		c.Points = append(c.Points, peakdata.ChromatogramPoint{RT: s.RT, Intensity: intensity})
	}
	return c, nil
}

func precursorMatches(s peakdata.Spectrum, precursorMZ, halfWidth float64) bool {
	for _, p := range s.PrecursorList {
		if absDiff(p.MZ, precursorMZ) <= halfWidth {
			return true
		}
	}
	return false
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// extractIntensity sums peak intensities in the window under the
// configured kernel. Tophat gives every peak equal weight; Bartlett
// applies a triangular taper from 1.0 at the window center to 0 at the
// window edge.
func extractIntensity(peaks []peakdata.Peak1D, centerMZ, halfWidth float64, shape ExtractionShape) float64 {
	var sum float64
	for _, p := range peaks {
		switch shape {
		case ShapeBartlett:
			dist := absDiff(p.MZ, centerMZ)
			weight := 1 - dist/halfWidth
			if weight < 0 {
				weight = 0
			}
			sum += p.Intensity * weight
		default: // ShapeTophat
			sum += p.Intensity
		}
	}
	return sum
}
