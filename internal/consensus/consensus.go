// Package consensus implements consensus feature building across aligned
// maps (spec §4.7's ConsensusBuilder): bucket features into overlapping
// RT/m/z cells, find mutual-nearest-neighbor matches within each bucket
// per map pair, then transitively chain pairwise matches into consensus
// groups spanning more than two maps.
//
// The bucket-grid plus nearest-neighbor-within-gate shape mirrors the
// teacher's tracking association step (internal/lidar/tracking.go):
// restrict the candidate pool with a spatial gate before scoring
// candidate pairs, rather than scoring every pair in the dataset.
package consensus

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/msflow/internal/mserr"
	"github.com/google/uuid"
)

// FeatureRef identifies one feature within one source map, carrying just
// enough geometry (RT, m/z, intensity) for bucketing, distance scoring, and
// consensus-intensity aggregation; callers keep their own mapping from
// FeatureRef back to full feature records.
type FeatureRef struct {
	MapIndex     int
	FeatureIndex int
	RT           float64
	MZ           float64
	Intensity    float64
}

// Params configures the bucket grid and match gating.
type Params struct {
	RTBucketWidth float64 // bucket width along RT
	MZBucketWidth float64 // bucket width along m/z
	RTTolerance   float64 // max RT distance for a match
	MZTolerance   float64 // max m/z distance for a match
}

// DefaultParams returns commonly used bucket and gate widths.
func DefaultParams() Params {
	return Params{RTBucketWidth: 30, MZBucketWidth: 0.1, RTTolerance: 15, MZTolerance: 0.05}
}

// Group is a set of mutually-linked features, at most one per source map,
// believed to be the same underlying chemical species observed across runs.
type Group struct {
	Members []FeatureRef
}

// CentroidRT and CentroidMZ report the unweighted mean position of a
// consensus group's members.
func (g Group) CentroidRT() float64 {
	var sum float64
	for _, m := range g.Members {
		sum += m.RT
	}
	return sum / float64(len(g.Members))
}

func (g Group) CentroidMZ() float64 {
	var sum float64
	for _, m := range g.Members {
		sum += m.MZ
	}
	return sum / float64(len(g.Members))
}

// BoundingBox is an axis-aligned RT/m/z extent, used to report the
// positional spread of a consensus group's members. The spread of their
// intensities is carried separately in ConsensusFeature's MinIntensity and
// MaxIntensity.
type BoundingBox struct {
	MinRT, MaxRT float64
	MinMZ, MaxMZ float64
}

// ConsensusFeature summarizes one Group as a single chemical species
// observed across maps: the unweighted centroid position (the arithmetic
// mean of member positions, per spec), an aggregate intensity, the
// positional bounding box its members span, and a quality score
// reflecting how tightly they agree.
type ConsensusFeature struct {
	CentroidRT   float64
	CentroidMZ   float64
	Intensity    float64 // sum of member intensities
	MinIntensity float64
	MaxIntensity float64
	Position     BoundingBox
	Quality      float64 // in [0, 1]; 1 means every member landed at the exact centroid
	Members      []FeatureRef
}

// ToConsensusFeature reduces a Group to its summary ConsensusFeature. The
// centroid is the plain arithmetic mean of member positions (every member
// counts equally, regardless of intensity); intensity is summed separately.
func (g Group) ToConsensusFeature() ConsensusFeature {
	cf := ConsensusFeature{Members: g.Members}
	if len(g.Members) == 0 {
		return cf
	}

	var sumRT, sumMZ float64
	cf.Position = BoundingBox{MinRT: math.Inf(1), MaxRT: math.Inf(-1), MinMZ: math.Inf(1), MaxMZ: math.Inf(-1)}
	cf.MinIntensity = math.Inf(1)
	for _, m := range g.Members {
		sumRT += m.RT
		sumMZ += m.MZ
		cf.Intensity += m.Intensity
		if m.Intensity < cf.MinIntensity {
			cf.MinIntensity = m.Intensity
		}
		if m.Intensity > cf.MaxIntensity {
			cf.MaxIntensity = m.Intensity
		}
		if m.RT < cf.Position.MinRT {
			cf.Position.MinRT = m.RT
		}
		if m.RT > cf.Position.MaxRT {
			cf.Position.MaxRT = m.RT
		}
		if m.MZ < cf.Position.MinMZ {
			cf.Position.MinMZ = m.MZ
		}
		if m.MZ > cf.Position.MaxMZ {
			cf.Position.MaxMZ = m.MZ
		}
	}
	n := float64(len(g.Members))
	cf.CentroidRT = sumRT / n
	cf.CentroidMZ = sumMZ / n
	cf.Quality = agreementQuality(g.Members, cf.CentroidRT, cf.CentroidMZ)
	return cf
}

// agreementQuality scores how tightly a group's members cluster around
// their own centroid: 1 when every member lands exactly on it, decaying
// toward 0 as RMS RT/m/z spread grows relative to a fixed reference scale.
// A singleton group (nothing to compare against) always scores 1.
func agreementQuality(members []FeatureRef, centroidRT, centroidMZ float64) float64 {
	if len(members) <= 1 {
		return 1
	}
	const rtScale, mzScale = 30, 0.05
	var sumSq float64
	for _, m := range members {
		dRT := (m.RT - centroidRT) / rtScale
		dMZ := (m.MZ - centroidMZ) / mzScale
		sumSq += dRT*dRT + dMZ*dMZ
	}
	rms := math.Sqrt(sumSq / float64(len(members)))
	return 1 / (1 + rms)
}

// FileDescription names one source map contributing to a ConsensusMap,
// OpenMS's file-description table: every map index referenced by a
// ConsensusFeature's members must have a corresponding entry here.
type FileDescription struct {
	MapIndex int
	Label    string
}

// ConsensusMap is the document-level result of Build: every consensus
// feature found, the file-description table naming each source map, and a
// document identifier for downstream persistence.
type ConsensusMap struct {
	DocumentID string
	CreatedAt  time.Time
	Features   []ConsensusFeature
	FileDescriptions []FileDescription
}

// BuildMap runs Build and wraps its groups into a ConsensusMap, stamping a
// fresh document identifier and pairing each distinct map index seen in
// features with the corresponding label (by position; labels[i] names the
// map whose FeatureRef.MapIndex == i).
func BuildMap(features []FeatureRef, params Params, labels []string) (ConsensusMap, error) {
	groups, err := Build(features, params)
	if err != nil {
		return ConsensusMap{}, err
	}

	cm := ConsensusMap{
		DocumentID: uuid.NewString(),
		CreatedAt:  time.Now(),
		Features:   make([]ConsensusFeature, 0, len(groups)),
	}
	for _, g := range groups {
		cm.Features = append(cm.Features, g.ToConsensusFeature())
	}

	seen := make(map[int]bool)
	for _, f := range features {
		if seen[f.MapIndex] {
			continue
		}
		seen[f.MapIndex] = true
		label := ""
		if f.MapIndex >= 0 && f.MapIndex < len(labels) {
			label = labels[f.MapIndex]
		}
		cm.FileDescriptions = append(cm.FileDescriptions, FileDescription{MapIndex: f.MapIndex, Label: label})
	}
	sort.Slice(cm.FileDescriptions, func(i, j int) bool {
		return cm.FileDescriptions[i].MapIndex < cm.FileDescriptions[j].MapIndex
	})
	return cm, nil
}

// Build links features across maps into consensus groups. Features are
// first placed in overlapping RT/m/z buckets (each feature lands in the
// bucket set overlapping its own position plus the gate tolerance, so
// matches straddling a bucket boundary are never missed); within each
// pair of maps, mutual-nearest-neighbor matching is run over candidates
// sharing a bucket; and pairwise matches are then unioned transitively so
// a chain A-B, B-C becomes one three-member group.
func Build(features []FeatureRef, params Params) ([]Group, error) {
	if params.RTBucketWidth <= 0 || params.MZBucketWidth <= 0 {
		return nil, mserr.New(mserr.InvalidArgument, "consensus.Build", "bucket widths must be positive")
	}
	if len(features) == 0 {
		return nil, nil
	}

	byMap := make(map[int][]FeatureRef)
	var mapIndices []int
	for _, f := range features {
		if _, ok := byMap[f.MapIndex]; !ok {
			mapIndices = append(mapIndices, f.MapIndex)
		}
		byMap[f.MapIndex] = append(byMap[f.MapIndex], f)
	}
	sort.Ints(mapIndices)

	uf := newUnionFind(len(features))
	idOf := make(map[FeatureRef]int, len(features))
	for i, f := range features {
		idOf[f] = i
	}

	for a := 0; a < len(mapIndices); a++ {
		for b := a + 1; b < len(mapIndices); b++ {
			pairs := mutualNearestNeighbors(byMap[mapIndices[a]], byMap[mapIndices[b]], params)
			for _, p := range pairs {
				uf.union(idOf[p[0]], idOf[p[1]])
			}
		}
	}

	groupsByRoot := make(map[int][]FeatureRef)
	for i, f := range features {
		root := uf.find(i)
		groupsByRoot[root] = append(groupsByRoot[root], f)
	}

	var roots []int
	for r := range groupsByRoot {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	groups := make([]Group, 0, len(roots))
	for _, r := range roots {
		members := groupsByRoot[r]
		sort.Slice(members, func(i, j int) bool {
			if members[i].MapIndex != members[j].MapIndex {
				return members[i].MapIndex < members[j].MapIndex
			}
			return members[i].FeatureIndex < members[j].FeatureIndex
		})
		groups = append(groups, Group{Members: members})
	}
	return groups, nil
}

// mutualNearestNeighbors finds, for features bucketed together across two
// maps, the pairs where each is the other's closest candidate within
// tolerance (a mutual, not merely one-directional, nearest neighbor).
func mutualNearestNeighbors(mapA, mapB []FeatureRef, params Params) [][2]FeatureRef {
	buckets := make(map[bucketKey][]FeatureRef)
	for _, f := range mapB {
		for _, key := range overlappingBuckets(f, params) {
			buckets[key] = append(buckets[key], f)
		}
	}

	bestAToB := make(map[FeatureRef]FeatureRef)
	bestBToA := make(map[FeatureRef]FeatureRef)
	bestDistAToB := make(map[FeatureRef]float64)
	bestDistBToA := make(map[FeatureRef]float64)

	for _, a := range mapA {
		key := homeBucket(a, params)
		for _, b := range buckets[key] {
			d := distance(a, b, params)
			if d > 1.0 {
				continue // outside the normalized gate
			}
			if cur, ok := bestDistAToB[a]; !ok || d < cur {
				bestDistAToB[a] = d
				bestAToB[a] = b
			}
			if cur, ok := bestDistBToA[b]; !ok || d < cur {
				bestDistBToA[b] = d
				bestBToA[b] = a
			}
		}
	}

	var pairs [][2]FeatureRef
	for a, b := range bestAToB {
		if bestBToA[b] == a {
			pairs = append(pairs, [2]FeatureRef{a, b})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0].RT != pairs[j][0].RT {
			return pairs[i][0].RT < pairs[j][0].RT
		}
		return pairs[i][0].MZ < pairs[j][0].MZ
	})
	return pairs
}

// distance returns a gate-normalized distance (each axis scaled by its
// tolerance, combined as a Euclidean norm) so 1.0 marks the gate boundary.
func distance(a, b FeatureRef, params Params) float64 {
	dRT := (a.RT - b.RT) / params.RTTolerance
	dMZ := (a.MZ - b.MZ) / params.MZTolerance
	return math.Sqrt(dRT*dRT + dMZ*dMZ)
}

type bucketKey struct{ rtBucket, mzBucket int }

func homeBucket(f FeatureRef, params Params) bucketKey {
	return bucketKey{
		rtBucket: int(f.RT / params.RTBucketWidth),
		mzBucket: int(f.MZ / params.MZBucketWidth),
	}
}

// overlappingBuckets returns every bucket within tolerance of f's own
// position, so a feature near a bucket boundary still finds candidates
// that landed in the neighboring cell.
func overlappingBuckets(f FeatureRef, params Params) []bucketKey {
	rtSpan := int(params.RTTolerance/params.RTBucketWidth) + 1
	mzSpan := int(params.MZTolerance/params.MZBucketWidth) + 1
	home := homeBucket(f, params)
	var keys []bucketKey
	for dr := -rtSpan; dr <= rtSpan; dr++ {
		for dm := -mzSpan; dm <= mzSpan; dm++ {
			keys = append(keys, bucketKey{rtBucket: home.rtBucket + dr, mzBucket: home.mzBucket + dm})
		}
	}
	return keys
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: make([]int, n)}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
