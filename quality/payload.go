package quality

import (
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// payloadPath returns a unique absolute JPEG path inside dir.
func payloadPath(dir string) (string, error) {
	return filepath.Abs(filepath.Join(dir, fmt.Sprintf("region-%s.jpg", uuid.NewString())))
}

// writePayload encodes region as a JPEG at path, downscaled so neither side
// exceeds maxSide when maxSide is positive.
func writePayload(region gocv.Mat, path string, maxSide int) error {
	if region.Empty() {
		return errors.New("empty region")
	}

	src := region
	if !region.IsContinuous() {
		src = region.Clone()
		defer src.Close()
	}

	img, err := src.ToImage()
	if err != nil {
		return errors.Wrap(err, "convert region")
	}

	if maxSide > 0 {
		b := img.Bounds()
		if b.Dx() > maxSide || b.Dy() > maxSide {
			img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
		}
	}

	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}

	return nil
}
