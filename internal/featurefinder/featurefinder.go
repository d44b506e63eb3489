// Package featurefinder implements the Seeder/Extender/ModelFitter feature
// detection pipeline (spec §4.4's FeatureFinderPipeline, the core C2
// component): locate local-maximum seeds, grow a region of associated
// profile points around each seed, then fit an isotope-aware model to
// judge whether the region is a real chemical feature.
//
// Lifecycle state (the Flag vector) and threshold-driven config follow
// internal/lidar/tracking.go's TrackState/TrackerConfig idiom: a small
// enum tracking each point's role, plus a single params struct with a
// DefaultXConfig constructor.
package featurefinder

import (
	"container/heap"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/msflow/internal/isotope"
	"github.com/banshee-data/msflow/internal/mserr"
	"github.com/banshee-data/msflow/internal/paramtree"
	"github.com/banshee-data/msflow/internal/peakdata"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/optimize"
)

// Flag tags a profile point's role during feature extension, spec §4.4's
// UNUSED/SEED/INSIDE_FEATURE vector.
type Flag int

const (
	FlagUnused Flag = iota
	FlagSeed
	FlagInsideFeature
)

// Params configures every stage of the pipeline.
type Params struct {
	// Seeder
	IntensityThreshold float64 // minimum intensity to seed a feature

	// MZTolerance/RTTolerance are the widths of the symmetric K_mz/K_rt
	// priority kernels, sampled against the distance from the last accepted
	// point. They shape priority only; they do not by themselves bound how
	// far extension can travel (see DistRTUp/Down, DistMZUp/Down below).
	MZTolerance     float64
	RTTolerance     float64
	MinTraceLength  int // minimum number of points before a region is considered
	MaxRegionPoints int // hard cap on region size, a runaway-growth backstop

	// DistRTUp/DistRTDown/DistMZUp/DistMZDown are hard cutoffs, in RT/m/z
	// units, measured from the region's running intensity-weighted
	// centroid -- independent of, and usually much wider than, the
	// tolerance_rt/tolerance_mz kernel widths above. A neighbor whose RT or
	// m/z distance from the centroid exceeds the cutoff in that direction
	// is never explored, regardless of its priority kernel weight.
	DistRTUp   float64
	DistRTDown float64
	DistMZUp   float64
	DistMZDown float64

	// PriorityThreshold is the minimum priority (intensity times both the
	// RT and m/z kernel weight relative to the last accepted point) a
	// candidate must clear to be queued at all.
	PriorityThreshold float64
	// IntensityFactor sets the absolute intensity cutoff, as a fraction of
	// the seed's own intensity: a neighbor whose intensity falls below it
	// is never queued.
	IntensityFactor float64
	// MinIntensityContribution is the minimum fraction of the region's
	// running accepted-intensity sum a popped candidate must carry to be
	// accepted, guarding against drift into noise as the region grows.
	MinIntensityContribution float64

	// ModelFitter
	MaxCharge             int     // highest charge state to test during deconvolution
	MinIsotopeCorrelation float64 // minimum isotope-pattern correlation to accept
}

// DefaultParams returns the SimpleExtender's stock settings, unchanged from
// the reference implementation's defaults (tolerance_rt 2.0, tolerance_mz
// 0.5, dist_mz_up/down 6.0/2.0, dist_rt_up/down 5.0/5.0, intensity_factor
// 0.03, min_intensity_contribution 0.01).
func DefaultParams() Params {
	return Params{
		IntensityThreshold:       1000,
		MZTolerance:              0.5,
		RTTolerance:              2.0,
		MinTraceLength:           3,
		MaxRegionPoints:          5000,
		DistRTUp:                 5.0,
		DistRTDown:               5.0,
		DistMZUp:                 6.0,
		DistMZDown:               2.0,
		PriorityThreshold:        0,
		IntensityFactor:          0.03,
		MinIntensityContribution: 0.01,
		MaxCharge:                4,
		MinIsotopeCorrelation:    0.7,
	}
}

// ParamsFromSnapshot reads every extender:* path registered by
// paramtree.DefaultRegistry, falling back to DefaultParams()'s values for
// anything the snapshot doesn't carry (e.g. a hand-built tree used in a
// test that only overrides one or two paths). The registry has no seeder
// or model-fitter paths, so those fields always take DefaultParams()'s
// values.
func ParamsFromSnapshot(s paramtree.Snapshot) Params {
	d := DefaultParams()
	return Params{
		IntensityThreshold:       d.IntensityThreshold,
		MZTolerance:              s.Float("extender:tolerance_mz", d.MZTolerance),
		RTTolerance:              s.Float("extender:tolerance_rt", d.RTTolerance),
		MinTraceLength:           d.MinTraceLength,
		MaxRegionPoints:          d.MaxRegionPoints,
		DistRTUp:                 s.Float("extender:dist_rt_up", d.DistRTUp),
		DistRTDown:               s.Float("extender:dist_rt_down", d.DistRTDown),
		DistMZUp:                 s.Float("extender:dist_mz_up", d.DistMZUp),
		DistMZDown:               s.Float("extender:dist_mz_down", d.DistMZDown),
		PriorityThreshold:        s.Float("extender:priority_thr", d.PriorityThreshold),
		IntensityFactor:          s.Float("extender:intensity_factor", d.IntensityFactor),
		MinIntensityContribution: s.Float("extender:min_intensity_contrib", d.MinIntensityContribution),
		MaxCharge:                d.MaxCharge,
		MinIsotopeCorrelation:    d.MinIsotopeCorrelation,
	}
}

// Feature is an accepted chemical feature: a bounding region of profile
// points, an estimated monoisotopic RT/m/z, intensity, charge, and the
// isotope-pattern quality score that accepted it.
type Feature struct {
	CentroidRT    float64
	CentroidMZ    float64
	Intensity     float64
	Charge        int
	Quality       float64 // isotope correlation in [-1, 1]
	PointIndices  []int   // indices into the ProfileGrid this feature was built from

	// ElutionSigma is the fitted Gaussian elution peak width in RT units,
	// a diagnostic from fitting the region's summed RT trace; zero if the
	// region had too few distinct RT points to fit.
	ElutionSigma float64
}

// FeatureMap is the document-level result of one Run call: the ordered
// Features it accepted, a stable document identifier for downstream
// persistence and cross-referencing, and the exact parameter values the
// run used (spec's processing-history requirement, so a FeatureMap can
// always be traced back to the Params that produced it).
type FeatureMap struct {
	DocumentID string
	CreatedAt  time.Time
	Features   []Feature
	Params     Params
}

// NewFeatureMap wraps features with a freshly generated document
// identifier, following the teacher's pattern of stamping every persisted
// record with both a generated ID and a creation timestamp at the point
// the record is first assembled, not at insert time.
func NewFeatureMap(features []Feature, params Params) FeatureMap {
	return FeatureMap{
		DocumentID: uuid.NewString(),
		CreatedAt:  time.Now(),
		Features:   features,
		Params:     params,
	}
}

// Flags carries the per-point Flag vector alongside the grid it was
// computed over, so repeated Run calls over the same grid can reuse it.
type Flags struct {
	grid   *peakdata.ProfileGrid
	values []Flag
}

// NewFlags allocates an all-FlagUnused vector sized to grid.
func NewFlags(grid *peakdata.ProfileGrid) *Flags {
	return &Flags{grid: grid, values: make([]Flag, grid.Len())}
}

// Run executes the full Seeder -> Extender -> ModelFitter pipeline over
// grid, returning every accepted Feature in descending intensity order.
func Run(grid *peakdata.ProfileGrid, params Params) ([]Feature, error) {
	if params.IntensityThreshold < 0 {
		return nil, mserr.New(mserr.InvalidArgument, "featurefinder.Run", "intensity threshold must be >= 0")
	}
	flags := NewFlags(grid)
	seeds := seed(grid, flags, params)

	var features []Feature
	for _, s := range seeds {
		if flags.values[s] != FlagSeed {
			continue // already consumed by a previous region's extension
		}
		region := extend(grid, flags, s, params)
		if len(region) < params.MinTraceLength {
			continue
		}
		f, ok := fitModel(grid, region, params)
		if !ok {
			continue
		}
		features = append(features, f)
	}

	sort.Slice(features, func(i, j int) bool { return features[i].Intensity > features[j].Intensity })
	return features, nil
}

// seed marks every local-maximum point (in m/z, within its own spectrum's
// neighbors via the grid's NextMZ/PrevMZ) above IntensityThreshold as
// FlagSeed, and returns their indices sorted by descending intensity so
// Extender processes the strongest candidates first (spec §4.4's seeding
// order requirement).
func seed(grid *peakdata.ProfileGrid, flags *Flags, params Params) []int {
	var seeds []int
	for i := 0; i < grid.Len(); i++ {
		p := grid.Point(i)
		if p.Intensity < params.IntensityThreshold {
			continue
		}
		if !isLocalMZMaximum(grid, i) {
			continue
		}
		flags.values[i] = FlagSeed
		seeds = append(seeds, i)
	}
	sort.Slice(seeds, func(i, j int) bool { return grid.Point(seeds[i]).Intensity > grid.Point(seeds[j]).Intensity })
	return seeds
}

func isLocalMZMaximum(grid *peakdata.ProfileGrid, idx int) bool {
	p := grid.Point(idx)
	if next, err := grid.NextMZ(idx); err == nil && grid.Point(next).Intensity > p.Intensity {
		return false
	}
	if prev, err := grid.PrevMZ(idx); err == nil && grid.Point(prev).Intensity > p.Intensity {
		return false
	}
	return true
}

// extendCandidate is one pending neighbor in the Extender's priority queue:
// a grid point reached from an already-accepted point, weighted by how well
// it matches the expected isotope/elution trace.
type extendCandidate struct {
	idx      int
	priority float64
}

// candidateQueue is a max-priority queue over extendCandidate, breaking
// priority ties by ascending grid index so two runs over the same grid
// visit candidates in the same order regardless of map iteration order
// upstream (spec's determinism requirement for the Extender).
type candidateQueue []extendCandidate

func (q candidateQueue) Len() int { return len(q) }
func (q candidateQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].idx < q[j].idx
}
func (q candidateQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *candidateQueue) Push(x any)        { *q = append(*q, x.(extendCandidate)) }
func (q *candidateQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// extendState tracks the two reference points the Extender measures
// candidates against as a region grows: last_rt/last_mz, the position of
// the single most-recently-accepted point, against which the K_rt/K_mz
// priority kernel is evaluated; and the running intensity-weighted
// centroid, against which the DistRTUp/Down and DistMZUp/Down hard
// cutoffs are evaluated. Both update only when a candidate is accepted.
type extendState struct {
	lastRT, lastMZ         float64
	centroidRT, centroidMZ float64
	intensitySum           float64
}

func (s *extendState) accept(p peakdata.Peak2D) {
	s.centroidRT = (s.centroidRT*s.intensitySum + p.RT*p.Intensity) / (s.intensitySum + p.Intensity)
	s.centroidMZ = (s.centroidMZ*s.intensitySum + p.MZ*p.Intensity) / (s.intensitySum + p.Intensity)
	s.intensitySum += p.Intensity
	s.lastRT, s.lastMZ = p.RT, p.MZ
}

// extend grows a region from seedIdx with a priority-queue frontier mirroring
// the reference SimpleExtender's ray walk: every accepted point radiates
// four single-file rays (m/z up, m/z down, RT up, RT down), and the
// strongest-matching candidate anywhere across every ray shot so far is
// always extended next, rather than whichever point happens to be visited
// first. A ray keeps walking outward past a low-intensity point -- only the
// point itself is dropped from consideration, not the rest of the ray --
// and stops only once a step falls outside the running centroid's
// DistRTUp/Down/DistMZUp/Down box or the grid edge is reached. Extension
// otherwise stops at MaxRegionPoints or when the frontier runs dry; a point
// popped off the frontier is still rejected if it carries too small a
// fraction of the region's running intensity sum (MinIntensityContribution)
// to trust over noise.
func extend(grid *peakdata.ProfileGrid, flags *Flags, seedIdx int, params Params) []int {
	seed := grid.Point(seedIdx)
	minIntensity := seed.Intensity * params.IntensityFactor

	region := []int{seedIdx}
	flags.values[seedIdx] = FlagInsideFeature
	state := &extendState{
		lastRT: seed.RT, lastMZ: seed.MZ,
		centroidRT: seed.RT, centroidMZ: seed.MZ,
		intensitySum: seed.Intensity,
	}

	pq := &candidateQueue{}
	heap.Init(pq)
	queued := map[int]bool{seedIdx: true}
	enqueueRays(grid, flags, pq, queued, seedIdx, state, params, minIntensity)

	for pq.Len() > 0 && len(region) < params.MaxRegionPoints {
		c := heap.Pop(pq).(extendCandidate)
		if flags.values[c.idx] != FlagUnused {
			continue // consumed via a shorter queued path, or reserved as another seed
		}
		p := grid.Point(c.idx)
		if p.Intensity < state.intensitySum*params.MinIntensityContribution {
			continue
		}

		flags.values[c.idx] = FlagInsideFeature
		region = append(region, c.idx)
		state.accept(p)
		enqueueRays(grid, flags, pq, queued, c.idx, state, params, minIntensity)
	}
	return region
}

// enqueueRays walks outward from cur in each of the four grid directions,
// one point at a time, queueing every unvisited point along the way whose
// intensity clears the absolute floor and whose priority
// (intensity * K_rt(rt-last_rt) * K_mz(mz-last_mz)) clears PriorityThreshold.
// Each ray stops once a step lands outside the running centroid's
// DistRTUp/Down/DistMZUp/Down box or the grid edge is reached; a point
// failing the intensity or priority test merely isn't queued; it does not
// end the ray. queued records every index ever pushed so a point already on
// the frontier, or already popped and consumed, is never pushed twice.
func enqueueRays(grid *peakdata.ProfileGrid, flags *Flags, pq *candidateQueue, queued map[int]bool, cur int, state *extendState, params Params, minIntensity float64) {
	steppers := [...]func(int) (int, error){grid.NextMZ, grid.PrevMZ, grid.NextRT, grid.PrevRT}
	for _, step := range steppers {
		idx := cur
		for {
			nIdx, err := step(idx)
			if err != nil {
				break
			}
			p := grid.Point(nIdx)
			if tooFarFromCentroid(p, state, params) {
				break
			}
			idx = nIdx

			if queued[nIdx] || flags.values[nIdx] != FlagUnused || p.Intensity <= minIntensity {
				continue
			}
			kRT := kernelWeight(absDiff(p.RT, state.lastRT), params.RTTolerance)
			kMZ := kernelWeight(absDiff(p.MZ, state.lastMZ), params.MZTolerance)
			priority := p.Intensity * kRT * kMZ
			if priority <= params.PriorityThreshold {
				continue
			}
			queued[nIdx] = true
			heap.Push(pq, extendCandidate{idx: nIdx, priority: priority})
		}
	}
}

// tooFarFromCentroid reports whether p falls outside the running
// intensity-weighted centroid's DistRTUp/Down/DistMZUp/Down box.
func tooFarFromCentroid(p peakdata.Peak2D, state *extendState, params Params) bool {
	deltaRT := p.RT - state.centroidRT
	if deltaRT >= 0 {
		if deltaRT > params.DistRTUp {
			return true
		}
	} else if -deltaRT > params.DistRTDown {
		return true
	}
	deltaMZ := p.MZ - state.centroidMZ
	if deltaMZ >= 0 {
		if deltaMZ > params.DistMZUp {
			return true
		}
	} else if -deltaMZ > params.DistMZDown {
		return true
	}
	return false
}

// kernelWeight is a symmetric Gaussian-shaped falloff from 1 at zero
// distance to ~0.14 at the tolerance boundary, the K_rt/K_mz extension
// kernel weighting a candidate's raw intensity into a priority.
func kernelWeight(dist, tol float64) float64 {
	if tol <= 0 {
		return 0
	}
	r := dist / tol
	return math.Exp(-2 * r * r)
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// fitModel computes the region's intensity-weighted RT centroid and takes
// the lowest-m/z local maximum of its m/z trace as the monoisotopic m/z
// (reported as CentroidMZ), then tries every charge state up to MaxCharge:
// each candidate bins the
// region's m/z trace onto that charge's isotope spacing and scores the
// resulting per-isotope intensities against the averagine prediction.
// The best-scoring charge wins, and the feature is accepted only if its
// correlation clears MinIsotopeCorrelation (spec §4.5's ModelFitter
// acceptance test).
func fitModel(grid *peakdata.ProfileGrid, region []int, params Params) (Feature, bool) {
	var sumI, sumRT float64
	for _, idx := range region {
		p := grid.Point(idx)
		sumI += p.Intensity
		sumRT += p.RT * p.Intensity
	}
	if sumI == 0 {
		return Feature{}, false
	}
	centroidRT := sumRT / sumI

	mzs, mzIntensities := mzTrace(grid, region)
	if len(mzs) == 0 {
		return Feature{}, false
	}

	// monoisotopicMZ anchors every charge trial below: it is a property of
	// the trace's shape alone, not of any assumed charge state.
	monoisotopicMZ := leftmostLocalMaxMZ(mzs, mzIntensities)

	bestCharge := 0
	bestQuality := -1.0
	for charge := 1; charge <= params.MaxCharge; charge++ {
		binned := binIsotopesByCharge(mzs, mzIntensities, monoisotopicMZ, charge)
		if len(binned) == 0 {
			continue
		}
		neutralMass := (monoisotopicMZ - protonMass) * float64(charge)
		env, err := isotope.PredictEnvelope(neutralMass, len(binned))
		if err != nil {
			continue
		}
		observed := make([]isotope.ObservedIsotope, len(binned))
		for i, intensity := range binned {
			observed[i] = isotope.ObservedIsotope{Index: i, Intensity: intensity}
		}
		quality := env.Correlation(observed)
		if quality > bestQuality {
			bestQuality = quality
			bestCharge = charge
		}
	}
	if bestCharge == 0 || bestQuality < params.MinIsotopeCorrelation {
		return Feature{}, false
	}

	rts, rtIntensities := rtTrace(grid, region)
	sigma := fitElutionGaussian(rts, rtIntensities, centroidRT)

	return Feature{
		CentroidRT:   centroidRT,
		CentroidMZ:   monoisotopicMZ,
		Intensity:    sumI,
		Charge:       bestCharge,
		Quality:      bestQuality,
		PointIndices: append([]int(nil), region...),
		ElutionSigma: sigma,
	}, true
}

// rtTrace sums region's intensity onto its distinct RT values, giving the
// elution profile fitElutionGaussian fits against.
func rtTrace(grid *peakdata.ProfileGrid, region []int) (rts, intensities []float64) {
	byRT := make(map[float64]float64)
	for _, idx := range region {
		p := grid.Point(idx)
		byRT[p.RT] += p.Intensity
	}
	rts = make([]float64, 0, len(byRT))
	for rt := range byRT {
		rts = append(rts, rt)
	}
	sort.Float64s(rts)
	intensities = make([]float64, len(rts))
	for i, rt := range rts {
		intensities[i] = byRT[rt]
	}
	return rts, intensities
}

// fitElutionGaussian fits amplitude*exp(-(rt-mu)^2/(2*sigma^2)) to the
// region's RT-summed elution trace (spec §4.4's ModelFitter RT model,
// bi-gaussian/EMG in RT via a nonlinear least-squares routine). gonum's
// optimize package has no dedicated Levenberg-Marquardt method, so the
// 3-parameter fit is driven by Nelder-Mead simplex search instead, seeded
// from moment estimates of the trace. Returns 0 if the region has too few
// distinct RT points to fit (or no RT span or intensity); if the optimizer
// returns no usable result or a zero width, returns the moment-estimate
// seed width (a quarter of the RT span) instead.
func fitElutionGaussian(rts, intensities []float64, centroidRT float64) float64 {
	if len(rts) < 3 {
		return 0
	}
	maxI, rtLo, rtHi := 0.0, rts[0], rts[0]
	for i, rt := range rts {
		if intensities[i] > maxI {
			maxI = intensities[i]
		}
		if rt < rtLo {
			rtLo = rt
		}
		if rt > rtHi {
			rtHi = rt
		}
	}
	span := rtHi - rtLo
	if span <= 0 || maxI <= 0 {
		return 0
	}
	initSigma := span / 4

	residualSumSq := func(x []float64) float64 {
		amp, mu, sigma := x[0], x[1], x[2]
		if sigma <= 0 {
			return math.Inf(1)
		}
		var sumSq float64
		for i, rt := range rts {
			d := rt - mu
			model := amp * math.Exp(-d*d/(2*sigma*sigma))
			r := intensities[i] - model
			sumSq += r * r
		}
		return sumSq
	}

	problem := optimize.Problem{Func: residualSumSq}
	settings := &optimize.Settings{MajorIterations: 200, FuncEvaluations: 2000}
	result, err := optimize.Minimize(problem, []float64{maxI, centroidRT, initSigma}, settings, &optimize.NelderMead{})
	if result == nil || len(result.X) != 3 {
		return initSigma // no result at all: keep best-so-far, the moment estimate
	}
	// Non-convergence within the iteration bound still yields the
	// best-so-far simplex vertex, per spec's LM failure semantics; only a
	// genuinely invalid result falls back to the seed estimate.
	_ = err
	sigma := math.Abs(result.X[2])
	if sigma <= 0 {
		return initSigma
	}
	return sigma
}

const protonMass = 1.007276

// isotopeSpacing is the mass difference between consecutive carbon-13
// isotopes, the same constant isotope.PredictEnvelope spaces its peaks by.
const isotopeSpacing = 1.002

// mzTrace sums region's intensity onto its distinct m/z values, mirroring
// rtTrace's RT-axis reduction but along the m/z axis.
func mzTrace(grid *peakdata.ProfileGrid, region []int) (mzs, intensities []float64) {
	byMZ := make(map[float64]float64)
	for _, idx := range region {
		p := grid.Point(idx)
		byMZ[p.MZ] += p.Intensity
	}
	mzs = make([]float64, 0, len(byMZ))
	for mz := range byMZ {
		mzs = append(mzs, mz)
	}
	sort.Float64s(mzs)
	intensities = make([]float64, len(mzs))
	for i, mz := range mzs {
		intensities[i] = byMZ[mz]
	}
	return mzs, intensities
}

// leftmostLocalMaxMZ returns the m/z of the lowest-m/z local maximum in an
// m/z intensity trace: a sample whose intensity is not exceeded by either
// neighbor. On a continuously-sampled profile region this lands on an
// isotope peak's own apex rather than an arbitrary shoulder sample; on an
// already-centroided, monotonically-decreasing trace (one sample per
// isotope, as a picked spectrum gives) it trivially lands on the first
// sample, which is the monoisotopic peak by construction.
func leftmostLocalMaxMZ(mzs, intensities []float64) float64 {
	for i := range mzs {
		if i > 0 && intensities[i-1] > intensities[i] {
			continue
		}
		if i < len(mzs)-1 && intensities[i+1] > intensities[i] {
			continue
		}
		return mzs[i]
	}
	return mzs[0]
}

// binIsotopesByCharge assigns every sample in an m/z trace to the nearest
// isotope index under a candidate charge's spacing, anchored at
// monoisotopicMZ, and sums the intensities landing in the same index. This
// is what lets both a continuously-sampled profile region (many raw m/z
// columns per isotope peak) and an already-centroided one (one sample per
// isotope) reduce to the same per-isotope intensity vector that
// isotope.PredictEnvelope's output can be correlated against. Samples
// below the monoisotopic m/z are discarded; they belong to no isotope the
// envelope models.
func binIsotopesByCharge(mzs, intensities []float64, monoisotopicMZ float64, charge int) []float64 {
	spacing := isotopeSpacing / float64(charge)
	bins := make(map[int]float64)
	maxIndex := 0
	for i, mz := range mzs {
		k := int(math.Round((mz - monoisotopicMZ) / spacing))
		if k < 0 {
			continue
		}
		bins[k] += intensities[i]
		if k > maxIndex {
			maxIndex = k
		}
	}
	if len(bins) == 0 {
		return nil
	}
	observed := make([]float64, maxIndex+1)
	for k, v := range bins {
		observed[k] = v
	}
	return observed
}
