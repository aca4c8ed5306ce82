package sharpness

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Weights are the coefficients of the combined metric.
type Weights struct {
	Laplacian float64 `json:"laplacian" yaml:"laplacian" validate:"gte=0"`
	Tenengrad float64 `json:"tenengrad" yaml:"tenengrad" validate:"gte=0"`
}

// DefaultWeights returns 0.7 for Laplacian variance and 0.3 for Tenengrad.
func DefaultWeights() Weights {
	return Weights{Laplacian: 0.7, Tenengrad: 0.3}
}

// CombinedScore weighs a Laplacian variance and a Tenengrad value.
// The two metrics are not normalized to a common scale.
func CombinedScore(laplacianVariance, tenengrad float64, w Weights) float64 {
	return w.Laplacian*laplacianVariance + w.Tenengrad*tenengrad
}

// LaplacianVariance returns the squared standard deviation of the Laplacian
// (aperture 1) of a single-channel image.
//
// The value is stddev² from MeanStdDev rather than a direct variance.
//
// Arguments:
//   - gray: A single-channel image. It is not modified.
//
// Returns:
//   - The score, always >= 0.
//   - An error if an OpenCV operation fails.
func LaplacianVariance(gray gocv.Mat) (float64, error) {
	lap := gocv.NewMat()
	defer lap.Close()
	if err := gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault); err != nil {
		return 0, errors.Wrap(err, "laplacian")
	}

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	if err := gocv.MeanStdDev(lap, &mean, &stddev); err != nil {
		return 0, errors.Wrap(err, "mean stddev")
	}

	s := stddev.GetDoubleAt(0, 0)
	return s * s, nil
}

// Tenengrad returns the mean of Gx² + Gy² where Gx and Gy are 3x3 Sobel
// gradients of a single-channel image.
func Tenengrad(gray gocv.Mat) (float64, error) {
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()

	if err := gocv.Sobel(gray, &gx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault); err != nil {
		return 0, errors.Wrap(err, "sobel x")
	}
	if err := gocv.Sobel(gray, &gy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault); err != nil {
		return 0, errors.Wrap(err, "sobel y")
	}

	gx2 := gocv.NewMat()
	defer gx2.Close()
	gy2 := gocv.NewMat()
	defer gy2.Close()
	if err := gocv.Multiply(gx, gx, &gx2); err != nil {
		return 0, errors.Wrap(err, "square x")
	}
	if err := gocv.Multiply(gy, gy, &gy2); err != nil {
		return 0, errors.Wrap(err, "square y")
	}

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	if err := gocv.Add(gx2, gy2, &magnitude); err != nil {
		return 0, errors.Wrap(err, "add")
	}

	return magnitude.Mean().Val1, nil
}

// FFTEnergy returns the mean DFT magnitude over the top-left quadrant of the
// zero-padded spectrum of a single-channel image.
//
// The spectrum is not shifted, so the quadrant holds the lowest frequencies
// including DC. A flat image of intensity c padded to an even size scores 4c.
// Images too small to have a quadrant score 0.
func FFTEnergy(gray gocv.Mat) (float64, error) {
	src := gocv.NewMat()
	defer src.Close()
	if err := gray.ConvertTo(&src, gocv.MatTypeCV64F); err != nil {
		return 0, errors.Wrap(err, "convert")
	}

	rows := gocv.GetOptimalDFTSize(src.Rows())
	cols := gocv.GetOptimalDFTSize(src.Cols())
	qw, qh := cols/2, rows/2
	if qw == 0 || qh == 0 {
		return 0, nil
	}

	padded := gocv.NewMat()
	defer padded.Close()
	if err := gocv.CopyMakeBorder(src, &padded, 0, rows-src.Rows(), 0, cols-src.Cols(), gocv.BorderConstant, color.RGBA{}); err != nil {
		return 0, errors.Wrap(err, "pad")
	}

	imaginary := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV64F)
	defer imaginary.Close()

	planes := gocv.NewMat()
	defer planes.Close()
	if err := gocv.Merge([]gocv.Mat{padded, imaginary}, &planes); err != nil {
		return 0, errors.Wrap(err, "merge")
	}

	spectrum := gocv.NewMat()
	defer spectrum.Close()
	if err := gocv.DFT(planes, &spectrum, gocv.DftForward); err != nil {
		return 0, errors.Wrap(err, "dft")
	}

	parts := gocv.Split(spectrum)
	defer func() {
		for _, p := range parts {
			p.Close()
		}
	}()
	if len(parts) != 2 {
		return 0, errors.Errorf("dft: expected 2 planes, got %d", len(parts))
	}

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	if err := gocv.Magnitude(parts[0], parts[1], &magnitude); err != nil {
		return 0, errors.Wrap(err, "magnitude")
	}

	quadrant := magnitude.Region(image.Rect(0, 0, qw, qh))
	defer quadrant.Close()

	return quadrant.Mean().Val1, nil
}

// LaplacianEnergy returns the sum of |Laplacian| over a single-channel image.
func LaplacianEnergy(gray gocv.Mat) (float64, error) {
	lap := gocv.NewMat()
	defer lap.Close()
	if err := gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault); err != nil {
		return 0, errors.Wrap(err, "laplacian")
	}

	zero := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), lap.Rows(), lap.Cols(), gocv.MatTypeCV64F)
	defer zero.Close()

	abs := gocv.NewMat()
	defer abs.Close()
	if err := gocv.AbsDiff(lap, zero, &abs); err != nil {
		return 0, errors.Wrap(err, "abs")
	}

	return abs.Sum().Val1, nil
}

// Compute scores a single-channel image with a local metric.
func Compute(metric Metric, gray gocv.Mat, w Weights) (float64, error) {
	switch metric {
	case MetricLaplacianVariance:
		return LaplacianVariance(gray)
	case MetricTenengrad:
		return Tenengrad(gray)
	case MetricFFTEnergy:
		return FFTEnergy(gray)
	case MetricLaplacianEnergy:
		return LaplacianEnergy(gray)
	case MetricCombined:
		lv, err := LaplacianVariance(gray)
		if err != nil {
			return 0, err
		}
		tg, err := Tenengrad(gray)
		if err != nil {
			return 0, err
		}
		return CombinedScore(lv, tg, w), nil
	default:
		return 0, errors.Wrapf(ErrUnknownMetric, "%s is not a local metric", metric)
	}
}
