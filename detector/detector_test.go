package detector

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-sharpness/config"
	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestImageToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 102, B: 0, A: 255})
		}
	}

	opts := yolov3.Options{InputWidth: 4, InputHeight: 2, Scale: 1.0 / 255.0, SwapRB: true}
	out := imageToCHW(img, opts)
	require.Len(t, out, 3*4*2)

	plane := 8
	assert.InDelta(t, 1.0, out[0], 1e-6)
	assert.InDelta(t, 0.4, out[plane], 1e-6)
	assert.InDelta(t, 0.0, out[2*plane], 1e-6)

	opts.SwapRB = false
	out = imageToCHW(img, opts)
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 1.0, out[2*plane], 1e-6)
}

func TestBlobCHW(t *testing.T) {
	// BGR red.
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), 10, 20, gocv.MatTypeCV8UC3)
	defer img.Close()

	out, err := BlobCHW(img, yolov3.Options{InputWidth: 5, InputHeight: 5, Scale: 1, SwapRB: true})
	require.NoError(t, err)
	require.Len(t, out, 75)
	assert.InDelta(t, 255, out[0], 1e-3)
	assert.InDelta(t, 0, out[50], 1e-3)
}

func TestNewMissingModels(t *testing.T) {
	dir := t.TempDir()

	_, err := NewDarknet(filepath.Join(dir, "yolov3.cfg"), filepath.Join(dir, "yolov3.weights"), yolov3.DefaultOptions(), nil)
	assert.Error(t, err)

	_, err = NewONNXRuntime(ONNXRuntimeOptions{ModelPath: filepath.Join(dir, "yolov3.onnx")}, nil)
	assert.Error(t, err)

	cfg := config.Default().Detection
	cfg.ModelConfig = filepath.Join(dir, "missing.cfg")
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg.Backend = "tflite"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
