// Package peakdata implements the in-memory spectral map (spec §4.1,
// component C1): peaks, spectra, chromatograms, and a PeakStore with
// sorted range access by retention time and m/z.
//
// The container shape follows the teacher's L2 frame/point model
// (internal/lidar/l2frames/frame_builder.go): accumulate an unordered
// stream of raw records, sort once, then serve range queries over the
// sorted slice rather than maintaining a balanced tree.
package peakdata

// Peak1D is an m/z-intensity value pair (spec §3). Immutable under
// normal pipeline use; callers that need a different intensity make a
// new Peak1D rather than mutating one found via a query.
type Peak1D struct {
	MZ        float64
	Intensity float64
}

// Peak2D (a.k.a. RawDataPoint2D in spec §3) is a single (rt, mz,
// intensity) observation. Dimension 0 is RT, dimension 1 is m/z.
type Peak2D struct {
	RT        float64
	MZ        float64
	Intensity float64
}

// LessByMZWithinRT orders two Peak2D values by m/z only, for use when
// both points are already known to share (or be compared within) an RT
// neighborhood -- the "by m/z within RT" comparator spec §3 requires.
func LessByMZWithinRT(a, b Peak2D) bool {
	return a.MZ < b.MZ
}

// LessByRTThenMZ orders two Peak2D values by RT, breaking ties by m/z --
// the "by RT then m/z" comparator spec §3 requires. This is the default
// total order used when sorting a SpectralMap's 2D point cloud (e.g.
// ProfileGrid's by-RT index).
func LessByRTThenMZ(a, b Peak2D) bool {
	if a.RT != b.RT {
		return a.RT < b.RT
	}
	return a.MZ < b.MZ
}

// ActivationMethod tags how a precursor ion was fragmented.
type ActivationMethod string

const (
	ActivationUnknown ActivationMethod = ""
	ActivationCID     ActivationMethod = "CID"
	ActivationHCD     ActivationMethod = "HCD"
	ActivationETD     ActivationMethod = "ETD"
)

// UnknownCharge marks a Precursor or Feature whose charge state has not
// been determined.
const UnknownCharge = 0

// Precursor describes the isolation and activation of an MSⁿ scan's
// parent ion (spec §3).
type Precursor struct {
	MZ                       float64
	Charge                   int // UnknownCharge (0) if undetermined
	Activation               ActivationMethod
	IsolationWindowLowerOffset float64 // >= 0
	IsolationWindowUpperOffset float64 // >= 0
}
