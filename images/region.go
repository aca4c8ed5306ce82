package images

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ExtractRegion crops a kept detection box out of the source image.
//
// The box is accepted only when it lies fully inside the image; boxes that
// cross any border, or that truncate to an empty rectangle, are rejected
// with ok=false. Rejection is not an error, the caller simply skips the box.
//
// The returned Mat is a view that shares pixel data with img. The caller
// must Close it, and must not use it after img is closed.
//
// Arguments:
//   - img: The source image.
//   - box: The kept detection box in pixel units.
//
// Returns:
//   - region: The cropped view. Only valid when ok is true.
//   - ok: Whether the box passed validation.
func ExtractRegion(img gocv.Mat, box Rect) (region gocv.Mat, ok bool) {
	if img.Empty() || !box.Inside(img.Cols(), img.Rows()) {
		return gocv.Mat{}, false
	}

	rect := box.Truncate()
	if rect.Empty() {
		return gocv.Mat{}, false
	}

	return img.Region(rect), true
}

// Grayscale converts a region to a single-channel image.
//
// BGR and BGRA inputs are converted; single-channel inputs pass through
// unchanged as a clone, so the caller always owns and closes the result.
//
// Arguments:
//   - src: The region to convert.
//
// Returns:
//   - The grayscale Mat.
//   - An error if the channel layout is unsupported or conversion fails.
func Grayscale(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), errors.New("grayscale: empty input")
	}

	switch src.Channels() {
	case 1:
		return src.Clone(), nil
	case 3:
		gray := gocv.NewMat()
		if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
			gray.Close()
			return gocv.NewMat(), errors.Wrap(err, "grayscale: convert BGR")
		}
		return gray, nil
	case 4:
		gray := gocv.NewMat()
		if err := gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray); err != nil {
			gray.Close()
			return gocv.NewMat(), errors.Wrap(err, "grayscale: convert BGRA")
		}
		return gray, nil
	default:
		return gocv.NewMat(), errors.Errorf("grayscale: unsupported channel count %d", src.Channels())
	}
}
