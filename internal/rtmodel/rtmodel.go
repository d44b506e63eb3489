// Package rtmodel implements retention-time transformation models (spec
// §4.6's RTTransformation): fitting a named-kind model from a set of
// observed (map1 RT, map2 RT) anchor pairs, applying it to transform new
// RT values, and removing outlier anchors before the fit.
//
// The configuration and registry shape follows internal/config.TuningConfig
// (a typed struct of tunables loaded once) and the MeanStddev helper style
// in internal/lidar/sweep/math.go.
package rtmodel

import (
	"math"
	"math/rand"
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
	"gonum.org/v1/gonum/interp"
)

// Kind names a transformation model.
type Kind string

const (
	KindNone                Kind = "none"
	KindLinear              Kind = "linear"
	KindInterpolatedLinear  Kind = "interpolated_linear"
	KindBSpline             Kind = "b_spline"
	KindLowess              Kind = "lowess"
)

// ExtrapolationPolicy controls how a Transformation behaves for x values
// outside the anchor range it was fit on.
type ExtrapolationPolicy int

const (
	// ExtrapolateLinear extends the tangent at the nearest boundary past the
	// range (the "four-point-linear" policy).
	ExtrapolateLinear ExtrapolationPolicy = iota
	// ExtrapolateClamp holds the boundary value constant past the range
	// (the "two-point-linear" policy).
	ExtrapolateClamp
	// ExtrapolateError fails with mserr.InvalidArgument past the range.
	ExtrapolateError
	// ExtrapolateGlobalLinear extends a single line, ordinary-least-squares
	// fit across every anchor (not just the two nearest the boundary), past
	// the range (the "global-linear" policy).
	ExtrapolateGlobalLinear
)

// Anchor is one observed correspondence between a reference RT (X) and
// the RT it maps from in another run (Y), used to fit a Transformation.
type Anchor struct {
	X, Y float64
}

// Transformation maps an RT value from one run's time axis onto another's.
type Transformation interface {
	Kind() Kind
	Apply(x float64) (float64, error)
	// InverseApply maps a value back from the transformation's output axis
	// to its input axis -- the inverse of Apply, used to project a feature
	// aligned onto a reference map back onto its original run's time axis.
	InverseApply(y float64) (float64, error)
}

// Fit builds a Transformation of the given kind from anchors. Anchors need
// not be pre-sorted; Fit sorts a private copy by X. Fails with
// InvalidArgument if kind requires more anchors than are given (spec §8's
// "RTTransformation requires at least 2 anchors for linear, 4 for spline").
func Fit(kind Kind, anchors []Anchor, policy ExtrapolationPolicy) (Transformation, error) {
	sorted := append([]Anchor(nil), anchors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	switch kind {
	case KindNone:
		return noneTransform{}, nil
	case KindLinear:
		if len(sorted) < 2 {
			return nil, mserr.New(mserr.InvalidArgument, "rtmodel.Fit", "linear transform requires at least 2 anchors")
		}
		slope, intercept := fitLeastSquaresLine(sorted)
		return linearTransform{slope: slope, intercept: intercept, policy: policy}, nil
	case KindInterpolatedLinear:
		if len(sorted) < 2 {
			return nil, mserr.New(mserr.InvalidArgument, "rtmodel.Fit", "interpolated linear transform requires at least 2 anchors")
		}
		return newPiecewiseTransform(sorted, policy, false)
	case KindBSpline:
		if len(sorted) < 4 {
			return nil, mserr.New(mserr.InvalidArgument, "rtmodel.Fit", "b-spline transform requires at least 4 anchors")
		}
		return newPiecewiseTransform(sorted, policy, true)
	case KindLowess:
		if len(sorted) < 3 {
			return nil, mserr.New(mserr.InvalidArgument, "rtmodel.Fit", "lowess transform requires at least 3 anchors")
		}
		return newLowessTransform(sorted, policy), nil
	default:
		return nil, mserr.New(mserr.NotImplemented, "rtmodel.Fit", "unknown transformation kind: "+string(kind))
	}
}

// Description is the serializable form of a fitted Transformation: enough
// to reconstruct it exactly via Fit (the anchors and policy that produced
// it), without needing to marshal each kind's internal fit state. This is
// the analogue of TransformationDescription's string-keyed persistence:
// a transformation is always rebuilt from its inputs, never from a
// snapshot of its coefficients, so refitting and deserializing agree by
// construction.
type Description struct {
	Kind        Kind                `json:"kind"`
	Anchors     []Anchor            `json:"anchors"`
	Policy      ExtrapolationPolicy `json:"policy"`
}

// Serialize captures enough of a Transformation to reconstruct it with
// Deserialize: its kind, the anchors used to fit it, and its
// extrapolation policy.
func Serialize(t Transformation, anchors []Anchor, policy ExtrapolationPolicy) Description {
	return Description{Kind: t.Kind(), Anchors: append([]Anchor(nil), anchors...), Policy: policy}
}

// Deserialize refits a Transformation from a Description, the inverse of
// Serialize.
func Deserialize(d Description) (Transformation, error) {
	return Fit(d.Kind, d.Anchors, d.Policy)
}

type noneTransform struct{}

func (noneTransform) Kind() Kind { return KindNone }
func (noneTransform) Apply(x float64) (float64, error) { return x, nil }
func (noneTransform) InverseApply(y float64) (float64, error) { return y, nil }

type linearTransform struct {
	slope, intercept float64
	policy           ExtrapolationPolicy
}

func (linearTransform) Kind() Kind { return KindLinear }
func (t linearTransform) Apply(x float64) (float64, error) {
	return t.slope*x + t.intercept, nil
}

func (t linearTransform) InverseApply(y float64) (float64, error) {
	if t.slope == 0 {
		return 0, mserr.New(mserr.InvalidArgument, "rtmodel.linearTransform.InverseApply", "transform is not invertible: zero slope")
	}
	return (y - t.intercept) / t.slope, nil
}

func fitLeastSquaresLine(anchors []Anchor) (slope, intercept float64) {
	n := float64(len(anchors))
	var sumX, sumY, sumXY, sumXX float64
	for _, a := range anchors {
		sumX += a.X
		sumY += a.Y
		sumXY += a.X * a.Y
		sumXX += a.X * a.X
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// piecewiseTransform wraps a gonum/interp predictor fit over the anchors,
// with explicit boundary extrapolation handling since gonum/interp
// predictors only guarantee correctness within their fitted domain. A
// second predictor fit over the same anchors with X and Y swapped serves
// InverseApply: for the monotonic RT-alignment curves this package fits,
// inverting the curve is the same shape of problem as fitting it, just
// with the axes relabeled.
type piecewiseTransform struct {
	kind      Kind
	predictor interp.FittablePredictor
	xs, ys    []float64
	policy    ExtrapolationPolicy
	fwdSlope, fwdIntercept float64 // global-linear OLS fit, y from x

	invPredictor           interp.FittablePredictor
	invXs, invYs           []float64
	invSlope, invIntercept float64 // global-linear OLS fit, x from y
}

func newPiecewiseTransform(anchors []Anchor, policy ExtrapolationPolicy, cubic bool) (Transformation, error) {
	xs := make([]float64, len(anchors))
	ys := make([]float64, len(anchors))
	for i, a := range anchors {
		xs[i] = a.X
		ys[i] = a.Y
	}
	newPredictor := func() interp.FittablePredictor { return &interp.PiecewiseLinear{} }
	kind := KindInterpolatedLinear
	if cubic {
		newPredictor = func() interp.FittablePredictor { return &interp.AkimaSpline{} }
		kind = KindBSpline
	}

	predictor := newPredictor()
	if err := predictor.Fit(xs, ys); err != nil {
		return nil, mserr.Wrap(mserr.InvalidData, "rtmodel.newPiecewiseTransform", "fit failed", err)
	}

	inverted := append([]Anchor(nil), anchors...)
	sort.Slice(inverted, func(i, j int) bool { return inverted[i].Y < inverted[j].Y })
	invXs := make([]float64, len(inverted))
	invYs := make([]float64, len(inverted))
	for i, a := range inverted {
		invXs[i] = a.Y
		invYs[i] = a.X
	}
	invPredictor := newPredictor()
	if err := invPredictor.Fit(invXs, invYs); err != nil {
		return nil, mserr.Wrap(mserr.InvalidData, "rtmodel.newPiecewiseTransform", "inverse fit failed", err)
	}

	fwdSlope, fwdIntercept := fitLeastSquaresLine(anchors)
	invSlope, invIntercept := fitLeastSquaresLine(inverted)

	return &piecewiseTransform{
		kind: kind, predictor: predictor, xs: xs, ys: ys, policy: policy,
		fwdSlope: fwdSlope, fwdIntercept: fwdIntercept,
		invPredictor: invPredictor, invXs: invXs, invYs: invYs,
		invSlope: invSlope, invIntercept: invIntercept,
	}, nil
}

func (t *piecewiseTransform) Kind() Kind { return t.kind }

func (t *piecewiseTransform) Apply(x float64) (float64, error) {
	lo, hi := t.xs[0], t.xs[len(t.xs)-1]
	if x < lo || x > hi {
		return extrapolate(x, lo, hi, t.ys[0], t.ys[len(t.ys)-1], t.policy, t.fwdSlope, t.fwdIntercept, func(v float64) float64 {
			return t.predictor.Predict(v)
		})
	}
	return t.predictor.Predict(x), nil
}

func (t *piecewiseTransform) InverseApply(y float64) (float64, error) {
	lo, hi := t.invXs[0], t.invXs[len(t.invXs)-1]
	if y < lo || y > hi {
		return extrapolate(y, lo, hi, t.invYs[0], t.invYs[len(t.invYs)-1], t.policy, t.invSlope, t.invIntercept, func(v float64) float64 {
			return t.invPredictor.Predict(v)
		})
	}
	return t.invPredictor.Predict(y), nil
}

// extrapolate applies the configured policy when x falls outside [lo, hi].
// For ExtrapolateLinear it evaluates the fitted predictor's local slope at
// the nearest boundary and extends it (the tangent, four-point-linear
// policy); eval is expected to be valid at points slightly inside [lo, hi].
// ExtrapolateGlobalLinear ignores eval and the boundary entirely, instead
// extending the single line fit once across every anchor.
func extrapolate(x, lo, hi, yLo, yHi float64, policy ExtrapolationPolicy, globalSlope, globalIntercept float64, eval func(float64) float64) (float64, error) {
	switch policy {
	case ExtrapolateClamp:
		if x < lo {
			return yLo, nil
		}
		return yHi, nil
	case ExtrapolateError:
		return 0, mserr.New(mserr.InvalidArgument, "rtmodel.extrapolate", "x outside fitted anchor range")
	case ExtrapolateGlobalLinear:
		return globalSlope*x + globalIntercept, nil
	default: // ExtrapolateLinear
		const eps = 1e-6
		if x < lo {
			span := hi - lo
			step := span * eps
			if step == 0 {
				step = eps
			}
			slope := (eval(lo+step) - yLo) / step
			return yLo + slope*(x-lo), nil
		}
		span := hi - lo
		step := span * eps
		if step == 0 {
			step = eps
		}
		slope := (yHi - eval(hi-step)) / step
		return yHi + slope*(x-hi), nil
	}
}

// lowessTransform applies locally weighted linear regression at query
// time. Hand-rolled directly over the anchor set rather than via a
// library, matching the teacher's preference for writing its own
// numeric/estimation algorithms (hungarian.go, the Kalman filter in
// tracking.go) directly against primitive slices.
type lowessTransform struct {
	anchors    []Anchor // ascending by X, for Apply
	invAnchors []Anchor // anchors with X/Y swapped, ascending by X(=original Y), for InverseApply
	policy     ExtrapolationPolicy
	// bandwidthFraction is the proportion of anchors included in each
	// local fit window (classic LOWESS span parameter).
	bandwidthFraction      float64
	fwdSlope, fwdIntercept float64 // global-linear OLS fit, y from x
	invSlope, invIntercept float64 // global-linear OLS fit, x from y
}

func newLowessTransform(anchors []Anchor, policy ExtrapolationPolicy) Transformation {
	invAnchors := make([]Anchor, len(anchors))
	for i, a := range anchors {
		invAnchors[i] = Anchor{X: a.Y, Y: a.X}
	}
	sort.Slice(invAnchors, func(i, j int) bool { return invAnchors[i].X < invAnchors[j].X })
	fwdSlope, fwdIntercept := fitLeastSquaresLine(anchors)
	invSlope, invIntercept := fitLeastSquaresLine(invAnchors)
	return &lowessTransform{
		anchors: anchors, invAnchors: invAnchors, policy: policy, bandwidthFraction: 0.3,
		fwdSlope: fwdSlope, fwdIntercept: fwdIntercept,
		invSlope: invSlope, invIntercept: invIntercept,
	}
}

func (t *lowessTransform) Kind() Kind { return KindLowess }

func (t *lowessTransform) Apply(x float64) (float64, error) {
	lo, hi := t.anchors[0].X, t.anchors[len(t.anchors)-1].X
	if x < lo || x > hi {
		yLo, _ := localFit(t.anchors, t.bandwidthFraction, lo)
		yHi, _ := localFit(t.anchors, t.bandwidthFraction, hi)
		return extrapolate(x, lo, hi, yLo, yHi, t.policy, t.fwdSlope, t.fwdIntercept, func(v float64) float64 {
			y, _ := localFit(t.anchors, t.bandwidthFraction, v)
			return y
		})
	}
	return localFit(t.anchors, t.bandwidthFraction, x)
}

func (t *lowessTransform) InverseApply(y float64) (float64, error) {
	lo, hi := t.invAnchors[0].X, t.invAnchors[len(t.invAnchors)-1].X
	if y < lo || y > hi {
		xLo, _ := localFit(t.invAnchors, t.bandwidthFraction, lo)
		xHi, _ := localFit(t.invAnchors, t.bandwidthFraction, hi)
		return extrapolate(y, lo, hi, xLo, xHi, t.policy, t.invSlope, t.invIntercept, func(v float64) float64 {
			x, _ := localFit(t.invAnchors, t.bandwidthFraction, v)
			return x
		})
	}
	return localFit(t.invAnchors, t.bandwidthFraction, y)
}

// localFit fits a tricube-weighted local line to anchors around x (the
// classic LOWESS local regression) and evaluates it at x. Shared by Apply
// and InverseApply, which differ only in which anchor set (forward or
// X/Y-swapped) they pass in.
func localFit(anchors []Anchor, bandwidthFraction, x float64) (float64, error) {
	n := len(anchors)
	k := int(math.Ceil(bandwidthFraction * float64(n)))
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}

	type distAnchor struct {
		a    Anchor
		dist float64
	}
	neighbors := make([]distAnchor, n)
	for i, a := range anchors {
		neighbors[i] = distAnchor{a: a, dist: math.Abs(a.X - x)}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].dist < neighbors[j].dist })
	neighbors = neighbors[:k]
	maxDist := neighbors[k-1].dist
	if maxDist == 0 {
		maxDist = 1
	}

	// Tricube weighting, the standard LOWESS kernel.
	var sumW, sumWX, sumWY, sumWXY, sumWXX float64
	for _, na := range neighbors {
		u := na.dist / maxDist
		w := 0.0
		if u < 1 {
			w = math.Pow(1-u*u*u, 3)
		}
		sumW += w
		sumWX += w * na.a.X
		sumWY += w * na.a.Y
		sumWXY += w * na.a.X * na.a.Y
		sumWXX += w * na.a.X * na.a.X
	}
	denom := sumW*sumWXX - sumWX*sumWX
	if denom == 0 {
		return sumWY / sumW, nil
	}
	slope := (sumW*sumWXY - sumWX*sumWY) / denom
	intercept := (sumWY - slope*sumWX) / sumW
	return slope*x + intercept, nil
}

// RemoveOutliersChauvenet iteratively removes anchors whose Y-residual
// (against a linear fit of the remaining set) fails Chauvenet's
// criterion, refitting after each removal, until no anchor is rejected or
// too few anchors remain to fit (spec §4.6's outlier removal).
func RemoveOutliersChauvenet(anchors []Anchor) []Anchor {
	kept := append([]Anchor(nil), anchors...)
	for len(kept) > 2 {
		slope, intercept := fitLeastSquaresLine(kept)
		residuals := make([]float64, len(kept))
		var sum, sumSq float64
		for i, a := range kept {
			r := a.Y - (slope*a.X + intercept)
			residuals[i] = r
			sum += r
			sumSq += r * r
		}
		n := float64(len(kept))
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance <= 0 {
			break
		}
		stddev := math.Sqrt(variance)

		worst := -1
		worstZ := 0.0
		for i, r := range residuals {
			z := math.Abs(r-mean) / stddev
			// Chauvenet's criterion: reject if expected count of
			// observations this extreme, over n trials, is < 0.5.
			prob := 2 * (1 - normalCDF(z))
			if prob*n < 0.5 && z > worstZ {
				worstZ = z
				worst = i
			}
		}
		if worst == -1 {
			break
		}
		kept = append(kept[:worst], kept[worst+1:]...)
	}
	return kept
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// Registry looks up a Kind by its string name, so callers can select a
// transformation kind from configuration or a CLI flag rather than only
// from the Kind constants directly.
type Registry struct {
	kinds map[string]Kind
}

// NewRegistry builds a Registry preloaded with every known Kind.
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]Kind)}
	for _, k := range []Kind{KindNone, KindLinear, KindInterpolatedLinear, KindBSpline, KindLowess} {
		r.kinds[string(k)] = k
	}
	return r
}

// Lookup resolves name to a Kind, failing with NotImplemented if unknown.
func (r *Registry) Lookup(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return "", mserr.New(mserr.NotImplemented, "rtmodel.Registry.Lookup", "unknown transformation kind: "+name)
	}
	return k, nil
}

// Names returns every registered kind name, sorted for deterministic
// listing (e.g. in a CLI --help usage string).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoveOutliersRANSAC selects the anchor subset with the most inliers to
// a randomly-sampled 2-point line, across iterations trials, where an
// inlier is within inlierDistance of the candidate line. Falls back to
// the full anchor set if fewer than 2 anchors are given.
func RemoveOutliersRANSAC(anchors []Anchor, iterations int, inlierDistance float64, rng *rand.Rand) []Anchor {
	if len(anchors) < 2 {
		return append([]Anchor(nil), anchors...)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	var bestInliers []Anchor
	for iter := 0; iter < iterations; iter++ {
		i, j := rng.Intn(len(anchors)), rng.Intn(len(anchors))
		if i == j {
			continue
		}
		p1, p2 := anchors[i], anchors[j]
		if p2.X == p1.X {
			continue
		}
		slope := (p2.Y - p1.Y) / (p2.X - p1.X)
		intercept := p1.Y - slope*p1.X

		var inliers []Anchor
		for _, a := range anchors {
			predicted := slope*a.X + intercept
			if math.Abs(a.Y-predicted) <= inlierDistance {
				inliers = append(inliers, a)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
		}
	}
	if bestInliers == nil {
		return append([]Anchor(nil), anchors...)
	}
	return bestInliers
}
