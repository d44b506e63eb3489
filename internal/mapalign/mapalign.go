// Package mapalign implements pose-clustering map alignment (spec §4.7's
// MapAligner): find a consistent (scale, shift) pair that best explains
// candidate feature pairs across two runs, by voting in a 2D scale/shift
// histogram and taking the densest bin.
//
// Deterministic bin and vote ordering follows the teacher's
// DBSCANClusterer.Cluster pattern (internal/lidar/dbscan_clusterer.go):
// sort candidates before voting so replay runs are bit-identical.
package mapalign

import (
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
	"github.com/banshee-data/msflow/internal/obslog"
)

// CandidatePair is a tentative correspondence between a feature's RT in
// the reference map and the same (chemically identified, or just
// RT/mass-proximate) feature's RT in the map being aligned. ReferenceIntensity
// and OtherIntensity give each match's vote weight as the minimum of the two
// feature intensities, per spec's pose-clustering vote rule; they may be left
// zero, in which case every pair votes with equal weight 1.
type CandidatePair struct {
	ReferenceRT        float64
	OtherRT            float64
	ReferenceIntensity float64
	OtherIntensity     float64
}

func (p CandidatePair) voteWeight() float64 {
	if p.ReferenceIntensity == 0 && p.OtherIntensity == 0 {
		return 1
	}
	if p.ReferenceIntensity < p.OtherIntensity {
		return p.ReferenceIntensity
	}
	return p.OtherIntensity
}

// Params configures the pose-clustering vote histogram.
type Params struct {
	ScaleBinWidth float64 // histogram bin width along the scale axis
	ShiftBinWidth float64 // histogram bin width along the shift axis
	MinAnchors    int     // minimum candidates required before attempting pose clustering
}

// DefaultParams returns commonly used pose-clustering bin widths.
func DefaultParams() Params {
	return Params{ScaleBinWidth: 0.01, ShiftBinWidth: 1.0, MinAnchors: 5}
}

// Alignment is a fitted scale/shift pair: OtherRT = Scale*ReferenceRT + Shift.
type Alignment struct {
	Scale      float64
	Shift      float64
	Anchors    []CandidatePair // the pairs voting for the winning bin
	Identity   bool            // true if too few anchors forced an identity fallback
}

// Apply maps a reference-map RT onto the other map's time axis.
func (a Alignment) Apply(referenceRT float64) float64 {
	return a.Scale*referenceRT + a.Shift
}

// Align runs pose clustering over candidate pairs: every pair of
// candidates implies a (scale, shift) hypothesis; each hypothesis casts a
// vote into a 2D histogram bin, and the densest bin's member pairs are
// refit by least squares into the final alignment.
//
// Falls back to the identity alignment (scale 1, shift 0), logging a
// warning via obslog, if fewer than params.MinAnchors candidates are
// given -- pose clustering cannot discriminate signal from noise below
// that count (spec §4.7, §8's degenerate-input behavior).
func Align(candidates []CandidatePair, params Params) (Alignment, error) {
	if params.ScaleBinWidth <= 0 || params.ShiftBinWidth <= 0 {
		return Alignment{}, mserr.New(mserr.InvalidArgument, "mapalign.Align", "bin widths must be positive")
	}
	if len(candidates) < params.MinAnchors {
		obslog.Logf("mapalign: only %d candidates (< MinAnchors %d), falling back to identity alignment",
			len(candidates), params.MinAnchors)
		return Alignment{Scale: 1, Shift: 0, Identity: true}, nil
	}

	sorted := append([]CandidatePair(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ReferenceRT != sorted[j].ReferenceRT {
			return sorted[i].ReferenceRT < sorted[j].ReferenceRT
		}
		return sorted[i].OtherRT < sorted[j].OtherRT
	})

	type hypothesis struct {
		scale, shift, weight float64
		i, j                 int
	}
	var hypotheses []hypothesis
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			dxRef := sorted[j].ReferenceRT - sorted[i].ReferenceRT
			if dxRef == 0 {
				continue
			}
			scale := (sorted[j].OtherRT - sorted[i].OtherRT) / dxRef
			shift := sorted[i].OtherRT - scale*sorted[i].ReferenceRT
			weight := sorted[i].voteWeight()
			if sorted[j].voteWeight() < weight {
				weight = sorted[j].voteWeight()
			}
			hypotheses = append(hypotheses, hypothesis{scale: scale, shift: shift, weight: weight, i: i, j: j})
		}
	}
	if len(hypotheses) == 0 {
		obslog.Logf("mapalign: no usable candidate pairs (all share identical reference RT), falling back to identity")
		return Alignment{Scale: 1, Shift: 0, Identity: true}, nil
	}

	type binKey struct{ scaleBin, shiftBin int }
	votes := make(map[binKey][]hypothesis)
	voteWeight := make(map[binKey]float64)
	var binOrder []binKey
	for _, h := range hypotheses {
		key := binKey{
			scaleBin: int(h.scale / params.ScaleBinWidth),
			shiftBin: int(h.shift / params.ShiftBinWidth),
		}
		if _, ok := votes[key]; !ok {
			binOrder = append(binOrder, key)
		}
		votes[key] = append(votes[key], h)
		voteWeight[key] += h.weight
	}

	// Deterministic winner selection: highest intensity-weighted vote total
	// wins (spec's tie-break rule); ties broken by distance from the
	// identity pose (scale 1, shift 0), then by bin coordinates so replay
	// is reproducible regardless of map iteration order.
	sort.Slice(binOrder, func(i, j int) bool {
		a, b := binOrder[i], binOrder[j]
		if voteWeight[a] != voteWeight[b] {
			return voteWeight[a] > voteWeight[b]
		}
		distA := identityDistance(a.scaleBin, a.shiftBin, params)
		distB := identityDistance(b.scaleBin, b.shiftBin, params)
		if distA != distB {
			return distA < distB
		}
		if a.scaleBin != b.scaleBin {
			return a.scaleBin < b.scaleBin
		}
		return a.shiftBin < b.shiftBin
	})
	winner := votes[binOrder[0]]

	memberIdx := make(map[int]bool)
	for _, h := range winner {
		memberIdx[h.i] = true
		memberIdx[h.j] = true
	}
	var anchors []CandidatePair
	for idx := range memberIdx {
		anchors = append(anchors, sorted[idx])
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].ReferenceRT < anchors[j].ReferenceRT })

	// Fewer than two surviving anchors after filtering down to the winning
	// mode: fall back to identity rather than fit a degenerate line.
	if len(anchors) < 2 {
		obslog.Logf("mapalign: fewer than 2 anchors survived pose-cluster filtering, falling back to identity")
		return Alignment{Scale: 1, Shift: 0, Identity: true}, nil
	}

	scale, shift := fitLeastSquares(anchors)
	return Alignment{Scale: scale, Shift: shift, Anchors: anchors}, nil
}

// identityDistance scores how close a (scale, shift) histogram bin is to
// the identity pose (scale 1, shift 0), used only to break exact vote-weight
// ties deterministically in favor of the more conservative transformation.
func identityDistance(scaleBin, shiftBin int, params Params) float64 {
	scaleCenter := (float64(scaleBin) + 0.5) * params.ScaleBinWidth
	shiftCenter := (float64(shiftBin) + 0.5) * params.ShiftBinWidth
	dScale := scaleCenter - 1
	dShift := shiftCenter
	return dScale*dScale + dShift*dShift
}

func fitLeastSquares(pairs []CandidatePair) (scale, shift float64) {
	n := float64(len(pairs))
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range pairs {
		sumX += p.ReferenceRT
		sumY += p.OtherRT
		sumXY += p.ReferenceRT * p.OtherRT
		sumXX += p.ReferenceRT * p.ReferenceRT
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 1, sumY/n - sumX/n
	}
	scale = (n*sumXY - sumX*sumY) / denom
	shift = (sumY - scale*sumX) / n
	return scale, shift
}
