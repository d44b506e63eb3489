// Package mrmscore implements MRM/SWATH transition-group scoring (spec
// §4.8/§4.9's MRMScorer): library correlation and RMSD against expected
// relative intensities, cross-correlation-based coelution and peak-shape
// agreement between product traces, an elution-model fit quality, a log
// signal-to-noise estimate, an RT deviation score, and a weighted
// composite overall_quality.
//
// The named-components-plus-composite-score shape follows
// internal/lidar/sweep/score_explain.go's ScoreComponents/
// ScoreExplanation pair.
package mrmscore

import (
	"math"
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
	"github.com/banshee-data/msflow/internal/peakdata"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LibraryIntensity is the expected relative intensity of one transition
// within a group, from a spectral library.
type LibraryIntensity struct {
	TransitionID string
	RelativeIntensity float64
}

// ScoreWeights weights each component into the composite score.
type ScoreWeights struct {
	LibraryCorrelation float64
	Coelution          float64
	PeakShape          float64
	ElutionModelFit    float64
	IntensityScore     float64
	LogSNR             float64
	RTScore            float64
}

// DefaultScoreWeights returns equal weighting across all components.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		LibraryCorrelation: 1, Coelution: 1, PeakShape: 1,
		ElutionModelFit: 1, IntensityScore: 1, LogSNR: 1, RTScore: 1,
	}
}

// ScoreComponents holds every individual metric feeding the composite
// overall_quality, each already normalized to a comparable scale.
type ScoreComponents struct {
	LibraryCorrelation float64
	LibraryRMSD        float64
	Coelution          float64
	PeakShape          float64
	ElutionModelFit    float64
	IntensityScore     float64
	LogSNR             float64
	RTScore            float64
	OverallQuality     float64
}

// QCThresholds names the minimum acceptable value for each pass/fail gate
// applied after scoring (spec supplement: MRM QC thresholds).
type QCThresholds struct {
	MinLibraryCorrelation float64
	MinCoelution          float64
	MinOverallQuality     float64
}

// DefaultQCThresholds returns commonly used SRM/MRM acceptance gates.
func DefaultQCThresholds() QCThresholds {
	return QCThresholds{MinLibraryCorrelation: 0.8, MinCoelution: 0.7, MinOverallQuality: 0.6}
}

// Passes reports whether c clears every configured threshold.
func (c ScoreComponents) Passes(t QCThresholds) bool {
	return c.LibraryCorrelation >= t.MinLibraryCorrelation &&
		c.Coelution >= t.MinCoelution &&
		c.OverallQuality >= t.MinOverallQuality
}

// Score computes every ScoreComponents metric for a transition group:
// chroms (one per transition, any order) aligned against library (the
// expected relative intensities, by TransitionID), combined per weights.
func Score(chroms []peakdata.Chromatogram, library []LibraryIntensity, weights ScoreWeights) (ScoreComponents, error) {
	if len(chroms) == 0 {
		return ScoreComponents{}, mserr.New(mserr.InvalidArgument, "mrmscore.Score", "no chromatograms given")
	}

	libByID := make(map[string]float64, len(library))
	for _, l := range library {
		libByID[l.TransitionID] = l.RelativeIntensity
	}

	var observed, expected []float64
	var matchedIntegral, totalIntegral float64
	for _, c := range chroms {
		integral := c.Integral()
		totalIntegral += integral
		rel, ok := libByID[c.NativeID]
		if !ok {
			continue
		}
		observed = append(observed, integral)
		expected = append(expected, rel)
		matchedIntegral += integral
	}

	var comp ScoreComponents
	if len(observed) >= 2 {
		comp.LibraryCorrelation = stat.Correlation(observed, expected, nil)
		comp.LibraryRMSD = rmsdNormalized(observed, expected)
	}

	comp.Coelution, comp.PeakShape = crossCorrelationScores(chroms)
	comp.ElutionModelFit = elutionModelFit(chroms)
	comp.IntensityScore = intensityScore(matchedIntegral, totalIntegral)
	comp.LogSNR = logSignalToNoise(chroms)
	comp.RTScore = rtAgreementScore(chroms)

	wSum := weights.LibraryCorrelation + weights.Coelution + weights.PeakShape +
		weights.ElutionModelFit + weights.IntensityScore + weights.LogSNR + weights.RTScore
	if wSum == 0 {
		return comp, mserr.New(mserr.InvalidArgument, "mrmscore.Score", "score weights sum to zero")
	}
	comp.OverallQuality = (weights.LibraryCorrelation*normalizeUnit(comp.LibraryCorrelation) +
		weights.Coelution*normalizeUnit(comp.Coelution) +
		weights.PeakShape*normalizeUnit(comp.PeakShape) +
		weights.ElutionModelFit*normalizeUnit(comp.ElutionModelFit) +
		weights.IntensityScore*normalizeUnit(comp.IntensityScore) +
		weights.LogSNR*normalizeUnit(comp.LogSNR) +
		weights.RTScore*normalizeUnit(comp.RTScore)) / wSum

	return comp, nil
}

// normalizeUnit clamps a [-1,1]-or-unbounded component score into [0,1]
// so heterogeneous metrics can be weighted-averaged meaningfully.
func normalizeUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func rmsdNormalized(observed, expected []float64) float64 {
	oMax, eMax := maxOf(observed), maxOf(expected)
	if oMax == 0 || eMax == 0 {
		return 1
	}
	var sumSq float64
	for i := range observed {
		d := observed[i]/oMax - expected[i]/eMax
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(observed)))
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := floats.Max(xs)
	if m < 0 {
		return 0
	}
	return m
}

// maxLagSamples bounds how far lagCrossCorrelation searches in either
// direction, so a pair of long, mostly-flat traces -- where almost any
// shift looks plausible -- doesn't drown a real few-sample lag under noise
// from the far tails.
const maxLagSamples = 10

// lagCrossCorrelation searches lags in [-maxLag, maxLag] (b shifted by lag
// relative to a) for the one maximizing the zero-mean, unit-variance
// normalized cross-correlation between a and b, returning that lag and its
// value. This is the single search spec §4.8's two cross-correlation
// metrics both read off of: coelution from the lag, shape from the value.
func lagCrossCorrelation(a, b []float64, maxLag int) (bestLag int, bestValue float64) {
	n := len(a)
	if n == 0 || len(b) != n {
		return 0, 0
	}
	meanA, sdA := meanStddev(a)
	meanB, sdB := meanStddev(b)
	if sdA == 0 || sdB == 0 {
		return 0, 0
	}
	bestValue = math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		var sum float64
		var count int
		for i := 0; i < n; i++ {
			j := i + lag
			if j < 0 || j >= n {
				continue
			}
			sum += (a[i] - meanA) * (b[j] - meanB)
			count++
		}
		if count == 0 {
			continue
		}
		value := sum / (float64(count-1) * sdA * sdB)
		if value > bestValue {
			bestValue = value
			bestLag = lag
		}
	}
	if math.IsInf(bestValue, -1) {
		return 0, 0
	}
	return bestLag, bestValue
}

// crossCorrelationScores runs lagCrossCorrelation over every pair of
// transition traces (resampled to a shared RT grid), then reduces spec
// §4.8's per-pair sums into the [0,1], higher-is-better scale the rest of
// ScoreComponents uses: coelution averages the absolute best-matching lag
// across pairs and inverts it against maxLagSamples (0 lag on every pair
// scores 1, maximum lag on every pair scores 0); shape averages each
// pair's maximum cross-correlation value directly, since that is already
// on a comparable scale.
func crossCorrelationScores(chroms []peakdata.Chromatogram) (coelution, shape float64) {
	if len(chroms) < 2 {
		return 1, 1
	}
	grids := alignToCommonGrid(chroms)
	if len(grids) == 0 || len(grids[0]) < 2 {
		return 0, 0
	}
	maxLag := len(grids[0]) / 4
	if maxLag > maxLagSamples {
		maxLag = maxLagSamples
	}
	if maxLag < 1 {
		maxLag = 1
	}

	var lagSum, valueSum float64
	var n int
	for i := 0; i < len(grids); i++ {
		for j := i + 1; j < len(grids); j++ {
			lag, value := lagCrossCorrelation(grids[i], grids[j], maxLag)
			lagSum += math.Abs(float64(lag))
			valueSum += value
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	meanAbsLag := lagSum / float64(n)
	coelution = normalizeUnit(1 - meanAbsLag/float64(maxLag))
	shape = normalizeUnit(valueSum / float64(n))
	return coelution, shape
}

func meanStddev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean = sum / float64(len(xs))
	var sdSum float64
	for _, v := range xs {
		d := v - mean
		sdSum += d * d
	}
	if len(xs) > 1 {
		stddev = math.Sqrt(sdSum / float64(len(xs)-1))
	}
	return mean, stddev
}

// elutionModelFit scores how Gaussian-like the summed trace (across all
// transitions, resampled to a common grid) looks, as the Pearson
// correlation between the observed summed intensities and a Gaussian
// centered on the trace's intensity-weighted mean index, with a stddev
// estimated from the trace's second moment.
func elutionModelFit(chroms []peakdata.Chromatogram) float64 {
	grids := alignToCommonGrid(chroms)
	if len(grids) == 0 {
		return 0
	}
	n := len(grids[0])
	if n < 3 {
		return 0
	}
	summed := make([]float64, n)
	for _, g := range grids {
		for i, v := range g {
			summed[i] += v
		}
	}

	var weightSum, meanIdx float64
	for i, v := range summed {
		weightSum += v
		meanIdx += float64(i) * v
	}
	if weightSum == 0 {
		return 0
	}
	meanIdx /= weightSum
	var varIdx float64
	for i, v := range summed {
		d := float64(i) - meanIdx
		varIdx += v * d * d
	}
	varIdx /= weightSum
	if varIdx <= 0 {
		return 0
	}
	stddev := math.Sqrt(varIdx)

	model := make([]float64, n)
	peak := summed[int(math.Round(meanIdx))]
	for i := range model {
		d := float64(i) - meanIdx
		model[i] = peak * math.Exp(-d*d/(2*stddev*stddev))
	}
	return stat.Correlation(summed, model, nil)
}

// intensityScore is the ratio of the picked (library-matched) peak area to
// the bulk chromatogram integral across every chromatogram in the group
// (spec §4.8): 1.0 when every bit of extracted signal belongs to a
// transition the library recognizes, lower when unmatched/decoy traces
// carry a meaningful share of the total intensity.
func intensityScore(matchedIntegral, totalIntegral float64) float64 {
	if totalIntegral <= 0 {
		return 0
	}
	return normalizeUnit(matchedIntegral / totalIntegral)
}

// logSignalToNoise estimates log10(apex intensity / noise), where noise
// is the median intensity of every point except the apex itself --
// grounded on the teacher's percentile-based quality summaries
// (stat.Quantile usage in internal/db/db.go).
func logSignalToNoise(chroms []peakdata.Chromatogram) float64 {
	var ratios []float64
	for _, c := range chroms {
		apex := c.Apex()
		if apex < 0 || len(c.Points) < 3 {
			continue
		}
		apexIntensity := c.Points[apex].Intensity
		var noisePoints []float64
		for i, p := range c.Points {
			if i == apex {
				continue
			}
			noisePoints = append(noisePoints, p.Intensity)
		}
		if len(noisePoints) == 0 {
			continue
		}
		sort.Float64s(noisePoints)
		noise := stat.Quantile(0.5, stat.Empirical, noisePoints, nil)
		if noise <= 0 {
			noise = 1e-6
		}
		ratios = append(ratios, math.Log10(apexIntensity/noise))
	}
	if len(ratios) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ratios {
		sum += r
	}
	return sum / float64(len(ratios)) / 3.0 // normalize: log10 ratio of ~3 (1000x) maps near 1.0
}

// rtAgreementScore scores how tightly each transition's apex RT clusters
// around the group's mean apex RT, in [0,1], 1 being perfect agreement.
func rtAgreementScore(chroms []peakdata.Chromatogram) float64 {
	var apexRTs []float64
	for _, c := range chroms {
		apex := c.Apex()
		if apex < 0 {
			continue
		}
		apexRTs = append(apexRTs, c.Points[apex].RT)
	}
	if len(apexRTs) < 2 {
		return 1
	}
	_, stddev := meanStddev(apexRTs)
	// A stddev of 0 is perfect agreement; treat a 5-second spread as the
	// point the score bottoms out near zero.
	return normalizeUnit(1 - stddev/5.0)
}

// alignToCommonGrid resamples every chromatogram's points onto the union
// of all RT values seen (step-held between samples), producing one
// []float64 per chromatogram of equal length, so cross-correlation and
// the elution-model fit can operate on a shared index space rather than
// interpolating pairwise.
func alignToCommonGrid(chroms []peakdata.Chromatogram) [][]float64 {
	rtSet := make(map[float64]bool)
	for _, c := range chroms {
		for _, p := range c.Points {
			rtSet[p.RT] = true
		}
	}
	if len(rtSet) == 0 {
		return nil
	}
	var rts []float64
	for rt := range rtSet {
		rts = append(rts, rt)
	}
	sort.Float64s(rts)

	grids := make([][]float64, len(chroms))
	for ci, c := range chroms {
		byRT := make(map[float64]float64, len(c.Points))
		for _, p := range c.Points {
			byRT[p.RT] = p.Intensity
		}
		g := make([]float64, len(rts))
		for i, rt := range rts {
			g[i] = byRT[rt]
		}
		grids[ci] = g
	}
	return grids
}

// FWHM estimates the full-width-half-maximum, in RT units, of a
// chromatogram's apex peak by walking outward from the apex until
// intensity drops below half the apex value, linearly interpolating the
// crossing point between samples.
func FWHM(c peakdata.Chromatogram) (float64, error) {
	apex := c.Apex()
	if apex < 0 {
		return 0, mserr.New(mserr.InvalidArgument, "mrmscore.FWHM", "chromatogram has no points")
	}
	half := c.Points[apex].Intensity / 2
	left := interpolateCrossing(c.Points, apex, -1, half)
	right := interpolateCrossing(c.Points, apex, 1, half)
	return right - left, nil
}

func interpolateCrossing(points []peakdata.ChromatogramPoint, start, dir int, half float64) float64 {
	i := start
	for i+dir >= 0 && i+dir < len(points) && points[i+dir].Intensity >= half {
		i += dir
	}
	if i+dir < 0 || i+dir >= len(points) {
		return points[i].RT
	}
	a, b := points[i], points[i+dir]
	if a.Intensity == b.Intensity {
		return a.RT
	}
	frac := (a.Intensity - half) / (a.Intensity - b.Intensity)
	return a.RT + frac*(b.RT-a.RT)
}
