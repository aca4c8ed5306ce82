// Package overlay - draws scored subject boxes onto the source image.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nvr-ai/go-sharpness/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	blurred  = colorful.Color{R: 1, G: 0, B: 0}
	sharp    = colorful.Color{R: 0, G: 0.8, B: 0}
	unscored = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// Annotation is one box to draw.
type Annotation struct {
	Box   images.Rect
	Score float64
	// Scored is false when the subject failed scoring.
	Scored bool
	Label  string
}

// Options controls drawing.
type Options struct {
	// Scale is the score that maps halfway between red and green.
	Scale float64
	// Thickness of the box outline in pixels.
	Thickness int
	// FontScale for the score text.
	FontScale float64
	// ShowLabel prefixes the text with the class label.
	ShowLabel bool
}

// DefaultOptions returns 2px boxes, 0.5 scale text, and a midpoint of 100.
func DefaultOptions() Options {
	return Options{Scale: 100, Thickness: 2, FontScale: 0.5}
}

// ScoreColor blends from red to green in HCL space as score grows.
// Negative scores, and any score when scale is not positive, are gray.
func ScoreColor(score, scale float64) color.RGBA {
	if score < 0 || scale <= 0 {
		return unscored
	}
	t := score / (score + scale)
	r, g, b := blurred.BlendHcl(sharp, t).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Text returns the label drawn above a box.
func Text(a Annotation, showLabel bool) string {
	text := "Sharpness: n/a"
	if a.Scored {
		text = fmt.Sprintf("Sharpness: %.2f", a.Score)
	}
	if showLabel && a.Label != "" {
		text = a.Label + " " + text
	}
	return text
}

// Draw outlines every annotation on img and writes its score 10 pixels above
// the box.
func Draw(img *gocv.Mat, annotations []Annotation, opts Options) {
	for _, a := range annotations {
		rect := a.Box.Truncate()
		c := unscored
		if a.Scored {
			c = ScoreColor(a.Score, opts.Scale)
		}

		gocv.Rectangle(img, rect, c, opts.Thickness)

		y := rect.Min.Y - 10
		if y < 10 {
			y = rect.Min.Y + 15
		}
		gocv.PutText(img, Text(a, opts.ShowLabel), image.Pt(rect.Min.X, y), gocv.FontHersheySimplex, opts.FontScale, c, 1)
	}
}

// OutputPath returns dir/<name>_sharpness<ext> for the input path.
func OutputPath(dir, input string) string {
	name, ext := splitName(input)
	return filepath.Join(dir, name+"_sharpness"+ext)
}

// OutputPaths returns one distinct output path per input.
//
// The first input with a given file name gets OutputPath. Later inputs whose
// output would collide, compared case-insensitively, get a _2, _3, ...
// suffix, so inputs from different directories never overwrite each other.
func OutputPaths(dir string, inputs []string) []string {
	used := make(map[string]bool, len(inputs))
	out := make([]string, len(inputs))

	for i, input := range inputs {
		path := OutputPath(dir, input)
		name, ext := splitName(input)
		for n := 2; used[strings.ToLower(path)]; n++ {
			path = filepath.Join(dir, fmt.Sprintf("%s_sharpness_%d%s", name, n, ext))
		}
		used[strings.ToLower(path)] = true
		out[i] = path
	}

	return out
}

func splitName(input string) (name, ext string) {
	base := filepath.Base(input)
	ext = filepath.Ext(base)
	name = strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".jpg"
	}
	return name, ext
}

// Save writes img to path, choosing the encoder from the extension.
func Save(path string, img gocv.Mat) error {
	if _, ok := images.FormatFromPath(path); !ok {
		return errors.Errorf("unsupported output format %s", path)
	}
	if !gocv.IMWrite(path, img) {
		return errors.Errorf("failed to write %s", path)
	}
	return nil
}
