// Package numeric provides signal-processing primitives: Savitzky-Golay
// and Gaussian smoothing, intensity-preserving 1D and 2D resampling, and a
// small tolerance comparator. No other package in the module imports it.
//
// Parameters follow the teacher's builder-struct idiom
// (internal/lidar/l3grid/config.go): a plain struct of tunables with a
// DefaultXConfig constructor, rather than functional options.
package numeric

import (
	"math"
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FuzzyEqual reports whether a and b agree within a relative tolerance
// (relTol, applied to the larger magnitude) or an absolute tolerance
// (absTol), whichever is looser. Modeled on the two-tier tolerance check
// in FuzzyStringComparator's numeric comparison path.
func FuzzyEqual(a, b, relTol, absTol float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	if diff <= absTol {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= relTol*scale
}

// SavitzkyGolayConfig configures the polynomial smoothing filter.
type SavitzkyGolayConfig struct {
	FrameSize    int // number of points in the moving window; must be odd, >= 3
	PolyOrder    int // polynomial degree fit within the window; must be < FrameSize
}

// DefaultSavitzkyGolayConfig returns the commonly used quartic, 11-point
// smoothing configuration.
func DefaultSavitzkyGolayConfig() SavitzkyGolayConfig {
	return SavitzkyGolayConfig{FrameSize: 11, PolyOrder: 4}
}

// SavitzkyGolayFilter smooths uniformly-spaced intensity values by, for each
// point, least-squares fitting a degree-PolyOrder polynomial to the points
// in a centered window and evaluating it at the window center. Coefficients
// are derived once per call from the normal equations (an explicit inverse
// of AᵀA) and reused for every
// point, following the teacher's precompute-then-reuse style for expensive
// per-call setup (hungarian.go's cost-matrix caching).
//
// Requires uniformly spaced input (e.g. a resampled profile); the caller is
// responsible for resampling non-uniform data first.
func SavitzkyGolayFilter(values []float64, cfg SavitzkyGolayConfig) ([]float64, error) {
	if cfg.FrameSize < 3 || cfg.FrameSize%2 == 0 {
		return nil, mserr.New(mserr.InvalidArgument, "numeric.SavitzkyGolayFilter", "frame size must be odd and >= 3")
	}
	if cfg.PolyOrder < 0 || cfg.PolyOrder >= cfg.FrameSize {
		return nil, mserr.New(mserr.InvalidArgument, "numeric.SavitzkyGolayFilter", "poly order must be in [0, frameSize)")
	}
	n := len(values)
	if n < cfg.FrameSize {
		return nil, mserr.New(mserr.InvalidArgument, "numeric.SavitzkyGolayFilter", "frame size exceeds input length")
	}

	coeffs, err := savitzkyGolayCoefficients(cfg.FrameSize, cfg.PolyOrder)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	half := cfg.FrameSize / 2
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := lo + cfg.FrameSize
		if hi > n {
			hi = n
			lo = hi - cfg.FrameSize
		}
		var sum float64
		for j := 0; j < cfg.FrameSize; j++ {
			sum += values[lo+j] * coeffs[i-lo][j]
		}
		if sum < 0 {
			sum = 0
		}
		out[i] = sum
	}
	return out, nil
}

// savitzkyGolayCoefficients returns, for every offset of the window center
// from its nominal (frameSize/2) position, the row of filter coefficients
// solving the least-squares fit evaluated at that offset. Interior points
// use the centered row, offset == frameSize/2; left and right transients
// (where the window is clamped against an array boundary) evaluate the
// same per-window polynomial fit at a non-center offset instead, which is
// what keeps those points from collapsing onto the steady-state value.
func savitzkyGolayCoefficients(frameSize, polyOrder int) ([][]float64, error) {
	half := frameSize / 2

	// Design matrix A: A[j][k] = (j - center)^k, for the centered window.
	// The coefficient row for evaluating the fitted polynomial at window
	// position `offset` is row `offset` of the hat matrix
	// H = A (A^T A)^-1 A^T, since A's own rows are indexed by that same
	// window position. Every offset needs its own row: offset == half is
	// the interior (steady-state) case, and every other offset is the
	// transient row for a window clamped against an array boundary.
	a := mat.NewDense(frameSize, polyOrder+1, nil)
	for j := 0; j < frameSize; j++ {
		x := float64(j - half)
		p := 1.0
		for k := 0; k <= polyOrder; k++ {
			a.Set(j, k, p)
			p *= x
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var ataInv mat.Dense
	if err := ataInv.Inverse(&ata); err != nil {
		return nil, mserr.Wrap(mserr.InvalidArgument, "numeric.savitzkyGolayCoefficients",
			"design matrix is singular for the given frame size and poly order", err)
	}

	var hat mat.Dense
	hat.Mul(a, &ataInv)
	var hatRow mat.Dense
	hatRow.Mul(&hat, a.T())

	rows := make([][]float64, frameSize)
	for offset := 0; offset < frameSize; offset++ {
		row := make([]float64, frameSize)
		for j := 0; j < frameSize; j++ {
			row[j] = hatRow.At(offset, j)
		}
		rows[offset] = row
	}
	return rows, nil
}

// GaussianFilterConfig configures Gaussian smoothing over profile data
// binned by a uniform spacing.
type GaussianFilterConfig struct {
	StdDev      float64 // standard deviation of the kernel, in spacing units
	KernelWidth float64 // kernel half-width as a multiple of StdDev (default 4)
}

// DefaultGaussianFilterConfig returns a moderate smoothing configuration.
func DefaultGaussianFilterConfig() GaussianFilterConfig {
	return GaussianFilterConfig{StdDev: 1.0, KernelWidth: 4.0}
}

// GaussianFilter convolves uniformly-spaced values with a truncated,
// renormalized Gaussian kernel. Renormalizing at every position (rather
// than relying on a fixed-sum kernel) keeps edges from darkening, matching
// the boundary handling the Savitzky-Golay filter above gives transients.
func GaussianFilter(values []float64, cfg GaussianFilterConfig) ([]float64, error) {
	if cfg.StdDev <= 0 {
		return nil, mserr.New(mserr.InvalidArgument, "numeric.GaussianFilter", "std dev must be positive")
	}
	width := cfg.KernelWidth
	if width <= 0 {
		width = 4.0
	}
	radius := int(math.Ceil(width * cfg.StdDev))
	kernel := make([]float64, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		kernel[i+radius] = math.Exp(-float64(i*i) / (2 * cfg.StdDev * cfg.StdDev))
	}

	kernelSum := floats.Sum(kernel)
	n := len(values)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i-radius >= 0 && i+radius < n {
			// Full window inside bounds: a single dot product against the
			// whole kernel, normalized by its fixed sum.
			out[i] = floats.Dot(kernel, values[i-radius:i+radius+1]) / kernelSum
			continue
		}
		var sum, weight float64
		for k := -radius; k <= radius; k++ {
			j := i + k
			if j < 0 || j >= n {
				continue
			}
			w := kernel[k+radius]
			sum += values[j] * w
			weight += w
		}
		if weight > 0 {
			out[i] = sum / weight
		}
	}
	return out, nil
}

// ResamplePoint is a single (position, intensity) sample fed into
// BilinearResample.
type ResamplePoint struct {
	Position  float64
	Intensity float64
}

// BilinearResample rebins an ascending-position, non-uniformly-spaced
// profile onto a uniform grid of step spacing, distributing each input
// point's intensity between the two nearest grid nodes in proportion to
// proximity (the complement used in bilinear interpolation). This keeps
// the integral of the resampled signal equal to the integral of the
// input, which downstream Savitzky-Golay/Gaussian smoothing and apex
// picking both assume.
func BilinearResample(points []ResamplePoint, spacing float64) ([]ResamplePoint, error) {
	if spacing <= 0 {
		return nil, mserr.New(mserr.InvalidArgument, "numeric.BilinearResample", "spacing must be positive")
	}
	if len(points) == 0 {
		return nil, nil
	}
	if !sort.SliceIsSorted(points, func(i, j int) bool { return points[i].Position < points[j].Position }) {
		return nil, mserr.New(mserr.InvalidData, "numeric.BilinearResample", "input points must be sorted ascending by position")
	}

	lo := points[0].Position
	hi := points[len(points)-1].Position
	nBins := int(math.Floor((hi-lo)/spacing)) + 1
	if nBins < 1 {
		nBins = 1
	}
	out := make([]ResamplePoint, nBins+1)
	for i := range out {
		out[i].Position = lo + float64(i)*spacing
	}

	for _, p := range points {
		rel := (p.Position - lo) / spacing
		left := int(math.Floor(rel))
		if left < 0 {
			left = 0
		}
		if left >= len(out)-1 {
			out[len(out)-1].Intensity += p.Intensity
			continue
		}
		frac := rel - float64(left)
		out[left].Intensity += p.Intensity * (1 - frac)
		out[left+1].Intensity += p.Intensity * frac
	}
	return out, nil
}

// AxisMapping linearly maps a coordinate (RT or m/z) to a fractional grid
// index: index = Scale*value + Offset. GridBilinearResample2D takes one of
// these per axis rather than inferring bounds from the data, so callers can
// pin the grid to a fixed analytical window shared across many spectra.
type AxisMapping struct {
	Scale  float64
	Offset float64
}

func (m AxisMapping) index(value float64) float64 { return m.Scale*value + m.Offset }

// ScatterPoint2D is one sparse (rt, mz, intensity) observation fed into
// GridBilinearResample2D.
type ScatterPoint2D struct {
	RT        float64
	MZ        float64
	Intensity float64
}

// GridBilinearResample2D projects scattered (rt, mz, intensity) samples onto
// a dense rows-by-cols matrix, splatting each sample's intensity across the
// four grid cells nearest its fractional (row, col) position in proportion
// to bilinear weight. This is the two-dimensional generalization of
// BilinearResample; cells that fall outside the grid are dropped. Only this
// package's tests call it.
func GridBilinearResample2D(points []ScatterPoint2D, rtMap, mzMap AxisMapping, rows, cols int) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, mserr.New(mserr.InvalidArgument, "numeric.GridBilinearResample2D", "rows and cols must be positive")
	}
	grid := mat.NewDense(rows, cols, nil)
	for _, p := range points {
		r := rtMap.index(p.RT)
		c := mzMap.index(p.MZ)
		r0 := int(math.Floor(r))
		c0 := int(math.Floor(c))
		fr := r - float64(r0)
		fc := c - float64(c0)

		for _, cell := range [4]struct {
			row, col int
			weight   float64
		}{
			{r0, c0, (1 - fr) * (1 - fc)},
			{r0, c0 + 1, (1 - fr) * fc},
			{r0 + 1, c0, fr * (1 - fc)},
			{r0 + 1, c0 + 1, fr * fc},
		} {
			if cell.row < 0 || cell.row >= rows || cell.col < 0 || cell.col >= cols || cell.weight == 0 {
				continue
			}
			grid.Set(cell.row, cell.col, grid.At(cell.row, cell.col)+p.Intensity*cell.weight)
		}
	}
	return grid, nil
}
