package peakdata

import (
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
)

// ProfileGrid is a flattened view of 2D (rt, mz, intensity) profile data
// drawn from a SpectralMap's MS1 spectra, indexed for the four O(1)
// neighbor queries the Extender needs (spec §4.1: next_mz/prev_mz/
// next_rt/prev_rt) plus O(log n) range queries by RT and m/z.
//
// Unlike Spectrum.Peaks (ordered within one scan), ProfileGrid orders
// points across the whole RT x m/z plane, maintaining two parallel sort
// orders (by RT-then-mz, and by mz-then-RT) so neighbor lookups in
// either dimension are direct index arithmetic once a point's position
// in the relevant order is known.
type ProfileGrid struct {
	points []Peak2D

	// byRT is points sorted by LessByRTThenMZ; byMZ is points sorted by
	// (mz, then rt). posInByRT[i] / posInByMZ[i] map an index into
	// `points` (by insertion order) to that point's position in each
	// sorted order, so NextMZ/PrevMZ/NextRT/PrevRT can be answered by
	// simple index +/-1 once the caller already has a `points` index.
	byRT      []int
	byMZ      []int
	posInByRT []int
	posInByMZ []int
}

// NewProfileGrid builds a ProfileGrid from a SpectralMap's MS1 spectra.
// Points are emitted in spectrum order, then indexed for neighbor
// queries; callers get back the resulting []Peak2D so they can track
// indices (e.g. the featurefinder's Flag vector is parallel to this
// slice).
func NewProfileGrid(m *SpectralMap) (*ProfileGrid, []Peak2D) {
	var points []Peak2D
	for _, s := range m.Spectra {
		if s.MSLevel != 1 {
			continue
		}
		for _, p := range s.Peaks {
			points = append(points, Peak2D{RT: s.RT, MZ: p.MZ, Intensity: p.Intensity})
		}
	}
	g := buildProfileGrid(points)
	return g, points
}

func buildProfileGrid(points []Peak2D) *ProfileGrid {
	n := len(points)
	byRT := make([]int, n)
	byMZ := make([]int, n)
	for i := range points {
		byRT[i] = i
		byMZ[i] = i
	}
	sort.SliceStable(byRT, func(i, j int) bool { return LessByRTThenMZ(points[byRT[i]], points[byRT[j]]) })
	sort.SliceStable(byMZ, func(i, j int) bool {
		a, b := points[byMZ[i]], points[byMZ[j]]
		if a.MZ != b.MZ {
			return a.MZ < b.MZ
		}
		return a.RT < b.RT
	})

	posInByRT := make([]int, n)
	posInByMZ := make([]int, n)
	for pos, idx := range byRT {
		posInByRT[idx] = pos
	}
	for pos, idx := range byMZ {
		posInByMZ[idx] = pos
	}

	return &ProfileGrid{
		points:    points,
		byRT:      byRT,
		byMZ:      byMZ,
		posInByRT: posInByRT,
		posInByMZ: posInByMZ,
	}
}

// Len returns the number of points in the grid.
func (g *ProfileGrid) Len() int { return len(g.points) }

// Point returns the point at the given index (an index into the slice
// returned alongside the grid by NewProfileGrid).
func (g *ProfileGrid) Point(idx int) Peak2D { return g.points[idx] }

// NextMZ returns the index of the point with the next-greater m/z
// (ties broken by RT), or fails with NoSuccessor at the boundary.
func (g *ProfileGrid) NextMZ(idx int) (int, error) {
	pos := g.posInByMZ[idx]
	if pos+1 >= len(g.byMZ) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.ProfileGrid.NextMZ", "at rightmost m/z")
	}
	return g.byMZ[pos+1], nil
}

// PrevMZ returns the index of the point with the next-smaller m/z, or
// fails with NoSuccessor at the boundary.
func (g *ProfileGrid) PrevMZ(idx int) (int, error) {
	pos := g.posInByMZ[idx]
	if pos-1 < 0 {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.ProfileGrid.PrevMZ", "at leftmost m/z")
	}
	return g.byMZ[pos-1], nil
}

// NextRT returns the index of the point with the next-greater RT
// (ties broken by m/z), or fails with NoSuccessor.
func (g *ProfileGrid) NextRT(idx int) (int, error) {
	pos := g.posInByRT[idx]
	if pos+1 >= len(g.byRT) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.ProfileGrid.NextRT", "at last RT")
	}
	return g.byRT[pos+1], nil
}

// PrevRT returns the index of the point with the next-smaller RT, or
// fails with NoSuccessor.
func (g *ProfileGrid) PrevRT(idx int) (int, error) {
	pos := g.posInByRT[idx]
	if pos-1 < 0 {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.ProfileGrid.PrevRT", "at first RT")
	}
	return g.byRT[pos-1], nil
}

// RangeByMZ returns indices (into `points`) of every point with m/z in
// [mzLo, mzHi), in ascending-m/z order. O(log n) to locate the bounds.
func (g *ProfileGrid) RangeByMZ(mzLo, mzHi float64) []int {
	lo := sort.Search(len(g.byMZ), func(i int) bool { return g.points[g.byMZ[i]].MZ >= mzLo })
	hi := sort.Search(len(g.byMZ), func(i int) bool { return g.points[g.byMZ[i]].MZ >= mzHi })
	return append([]int(nil), g.byMZ[lo:hi]...)
}

// RangeByRT returns indices of every point with RT in [rtLo, rtHi), in
// ascending-RT order.
func (g *ProfileGrid) RangeByRT(rtLo, rtHi float64) []int {
	lo := sort.Search(len(g.byRT), func(i int) bool { return g.points[g.byRT[i]].RT >= rtLo })
	hi := sort.Search(len(g.byRT), func(i int) bool { return g.points[g.byRT[i]].RT >= rtHi })
	return append([]int(nil), g.byRT[lo:hi]...)
}
