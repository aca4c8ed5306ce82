package detector

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// BlobCHW resizes img to the network input and lays it out as planar
// float32 values scaled by opts.Scale. Channels are RGB when opts.SwapRB is
// set, BGR otherwise.
//
// Arguments:
//   - img: A decoded 8-bit image. It is not modified.
//   - opts: The network input options.
//
// Returns:
//   - []float32: 3*InputHeight*InputWidth values, channel-major.
//   - error: Error if the image cannot be converted.
func BlobCHW(img gocv.Mat, opts yolov3.Options) ([]float32, error) {
	src := img
	if !img.IsContinuous() {
		src = img.Clone()
		defer src.Close()
	}

	decoded, err := src.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert image")
	}

	return imageToCHW(decoded, opts), nil
}

func imageToCHW(img image.Image, opts yolov3.Options) []float32 {
	w, h := opts.InputWidth, opts.InputHeight
	resized := resize.Resize(uint(w), uint(h), img, resize.Bilinear)

	plane := w * h
	out := make([]float32, 3*plane)
	scale := float32(opts.Scale)

	first, third := 0, 2
	if !opts.SwapRB {
		first, third = 2, 0
	}

	b := resized.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			out[first*plane+i] = float32(r>>8) * scale
			out[plane+i] = float32(g>>8) * scale
			out[third*plane+i] = float32(bl>>8) * scale
		}
	}

	return out
}
