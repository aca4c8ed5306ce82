package yolov3

import (
	"image"

	"gocv.io/x/gocv"
)

const (
	// DefaultInputSize is the square network input used by the stock YOLOv3 config.
	DefaultInputSize = 416
	// DefaultScale maps 8-bit pixels into [0, 1].
	DefaultScale = 1.0 / 255.0
)

// Options is the input blob configuration for a YOLOv3 network.
type Options struct {
	// Network input width in pixels.
	InputWidth int `json:"input_width" yaml:"inputWidth" validate:"gt=0"`
	// Network input height in pixels.
	InputHeight int `json:"input_height" yaml:"inputHeight" validate:"gt=0"`
	// Multiplier applied to every pixel.
	Scale float64 `json:"scale" yaml:"scale" validate:"gt=0"`
	// Swap the red and blue channels (BGR images into an RGB network).
	SwapRB bool `json:"swap_rb" yaml:"swapRB"`
}

// DefaultOptions returns the 416x416, 1/255, RGB input YOLOv3 is trained on.
func DefaultOptions() Options {
	return Options{
		InputWidth:  DefaultInputSize,
		InputHeight: DefaultInputSize,
		Scale:       DefaultScale,
		SwapRB:      true,
	}
}

// Size returns the network input size.
func (o Options) Size() image.Point {
	return image.Pt(o.InputWidth, o.InputHeight)
}

// Blob builds the 4-D NCHW input blob for img. The caller closes the result.
func (o Options) Blob(img gocv.Mat) gocv.Mat {
	return gocv.BlobFromImage(img, o.Scale, o.Size(), gocv.NewScalar(0, 0, 0, 0), o.SwapRB, false)
}
