package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-sharpness/images/imagestest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newTestMat(t testing.TB, rows, cols int, mt gocv.MatType) gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), rows, cols, mt)
	t.Cleanup(func() { mat.Close() })
	return mat
}

func TestExtractRegion(t *testing.T) {
	img := newTestMat(t, 100, 200, gocv.MatTypeCV8UC3)

	tests := []struct {
		name     string
		box      Rect
		ok       bool
		wantCols int
		wantRows int
	}{
		{"inside", Rect{10.7, 20.2, 50.9, 30.5}, true, 50, 30},
		{"exact image", Rect{0, 0, 200, 100}, true, 200, 100},
		{"crosses right edge", Rect{180, 10, 30, 10}, false, 0, 0},
		{"crosses bottom edge", Rect{10, 95, 10, 10}, false, 0, 0},
		{"negative origin", Rect{-1, 0, 10, 10}, false, 0, 0},
		{"truncates to empty", Rect{5, 5, 0.5, 10}, false, 0, 0},
		{"negative width", Rect{60, 10, -40, 20}, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region, ok := ExtractRegion(img, tt.box)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			defer region.Close()
			assert.Equal(t, tt.wantCols, region.Cols())
			assert.Equal(t, tt.wantRows, region.Rows())
			assert.Equal(t, 3, region.Channels())
		})
	}
}

func TestExtractRegionSharesPixels(t *testing.T) {
	img := newTestMat(t, 20, 20, gocv.MatTypeCV8UC1)

	region, ok := ExtractRegion(img, Rect{5, 5, 4, 4})
	require.True(t, ok)
	defer region.Close()

	region.SetUCharAt(0, 0, 7)
	assert.Equal(t, uint8(7), img.GetUCharAt(5, 5))
}

func TestGrayscale(t *testing.T) {
	t.Run("BGR is converted", func(t *testing.T) {
		src := newTestMat(t, 8, 8, gocv.MatTypeCV8UC3)
		gray, err := Grayscale(src)
		require.NoError(t, err)
		defer gray.Close()
		assert.Equal(t, 1, gray.Channels())
		assert.Equal(t, 8, gray.Rows())
	})

	t.Run("single channel passes through", func(t *testing.T) {
		src := newTestMat(t, 8, 8, gocv.MatTypeCV8UC1)
		gray, err := Grayscale(src)
		require.NoError(t, err)
		defer gray.Close()
		assert.Equal(t, imagestest.Fingerprint(src), imagestest.Fingerprint(gray))
	})

	t.Run("empty input", func(t *testing.T) {
		src := gocv.NewMat()
		defer src.Close()
		gray, err := Grayscale(src)
		defer gray.Close()
		assert.Error(t, err)
	})
}

func TestCollectImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.PNG", "notes.txt", "c.bmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))
	single := filepath.Join(dir, "notes.txt")

	paths, err := CollectImageFiles(dir, single)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PNG"),
		filepath.Join(dir, "b.jpg"),
		filepath.Join(dir, "c.bmp"),
		single,
	}, paths)

	_, err = CollectImageFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
