package peakdata

import (
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
)

// MetaKey is a small-integer metadata key, following spec §3's
// "mapping from small-integer key to value" rather than a string map,
// to keep per-spectrum metadata cheap to carry through the pipeline.
type MetaKey int

const (
	MetaScanNumber MetaKey = iota
	MetaFilterString
	MetaIonInjectionTime
	MetaTIC
	MetaBasePeakMZ
	MetaBasePeakIntensity
)

// MetaValue is a tagged value for the small per-spectrum metadata map.
type MetaValue struct {
	Float float64
	Int   int64
	Str   string
}

// Spectrum is a single scan: an RT, an MS level, zero or more precursors,
// an m/z-sorted peak list, and a small metadata map (spec §3).
type Spectrum struct {
	RT           float64
	MSLevel      int // >= 1
	PrecursorList []Precursor
	Peaks        []Peak1D // must be strictly ascending by MZ
	Meta         map[MetaKey]MetaValue
}

// Validate enforces the Spectrum invariants from spec §3: peaks strictly
// ascending by m/z, and MSⁿ (n>=2) spectra carry at least one precursor.
func (s *Spectrum) Validate() error {
	for i := 1; i < len(s.Peaks); i++ {
		if s.Peaks[i].MZ <= s.Peaks[i-1].MZ {
			return mserr.New(mserr.InvalidData, "peakdata.Spectrum.Validate",
				"peaks are not strictly ascending by m/z")
		}
	}
	if s.MSLevel >= 2 && len(s.PrecursorList) == 0 {
		return mserr.New(mserr.InvalidData, "peakdata.Spectrum.Validate",
			"MSn spectrum (level >= 2) has no precursor")
	}
	return nil
}

// SortPeaks sorts the peak list ascending by m/z in place. Stable sort
// is used so peaks that compare equal (duplicate m/z, rare but not
// forbidden) keep their original relative order.
func (s *Spectrum) SortPeaks() {
	sort.SliceStable(s.Peaks, func(i, j int) bool { return s.Peaks[i].MZ < s.Peaks[j].MZ })
}

// PeaksByMZ returns the half-open range [first, last) of peak indices
// whose m/z lies in [mzLo, mzHi). O(log P) via binary search over the
// (already sorted) peak slice, per spec §4.1.
func (s *Spectrum) PeaksByMZ(mzLo, mzHi float64) (first, last int) {
	first = sort.Search(len(s.Peaks), func(i int) bool { return s.Peaks[i].MZ >= mzLo })
	last = sort.Search(len(s.Peaks), func(i int) bool { return s.Peaks[i].MZ >= mzHi })
	return first, last
}

// NextMZ returns the index of the first peak with m/z strictly greater
// than the peak at idx, or fails with NoSuccessor at the right boundary.
func (s *Spectrum) NextMZ(idx int) (int, error) {
	if idx < 0 || idx >= len(s.Peaks) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.Spectrum.NextMZ", "index out of range")
	}
	if idx+1 >= len(s.Peaks) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.Spectrum.NextMZ", "already at rightmost peak")
	}
	return idx + 1, nil
}

// PrevMZ returns the index of the peak immediately preceding idx, or
// fails with NoSuccessor at the left boundary.
func (s *Spectrum) PrevMZ(idx int) (int, error) {
	if idx < 0 || idx >= len(s.Peaks) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.Spectrum.PrevMZ", "index out of range")
	}
	if idx-1 < 0 {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.Spectrum.PrevMZ", "already at leftmost peak")
	}
	return idx - 1, nil
}

// ChromatogramType tags what a Chromatogram represents (spec §3, §4.8).
type ChromatogramType string

const (
	ChromSelectedReactionMonitoring ChromatogramType = "selected reaction monitoring"
	ChromBasePeak                  ChromatogramType = "base peak"
	ChromTotalIonCurrent           ChromatogramType = "total ion current"
)

// ChromatogramPoint is a single (rt, intensity) sample of a Chromatogram.
type ChromatogramPoint struct {
	RT        float64
	Intensity float64
}

// Chromatogram is an ordered sequence of (rt, intensity) points with a
// product description and an optional precursor (spec §3).
type Chromatogram struct {
	NativeID     string
	Points       []ChromatogramPoint // ordered ascending by RT
	PrecursorMZ  float64
	ProductMZ    float64
	Type         ChromatogramType
	HasPrecursor bool
	Precursor    Precursor
}

// SortByRT sorts the chromatogram's points ascending by RT in place.
func (c *Chromatogram) SortByRT() {
	sort.SliceStable(c.Points, func(i, j int) bool { return c.Points[i].RT < c.Points[j].RT })
}

// Integral returns the sum of point intensities (a crude trapezoid-free
// integral, sufficient for the intensity-score ratio in spec §4.8).
func (c *Chromatogram) Integral() float64 {
	var sum float64
	for _, p := range c.Points {
		sum += p.Intensity
	}
	return sum
}

// Apex returns the index of the highest-intensity point, or -1 if the
// chromatogram has no points.
func (c *Chromatogram) Apex() int {
	best := -1
	var bestI float64
	for i, p := range c.Points {
		if best == -1 || p.Intensity > bestI {
			best = i
			bestI = p.Intensity
		}
	}
	return best
}
