// Package yolov3 - decodes raw YOLOv3 detection rows into candidate boxes.
package yolov3

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-sharpness/images"
	"github.com/nvr-ai/go-sharpness/models/postprocess"
)

const (
	// boxColumns is the number of leading box and objectness columns.
	boxColumns = 5
	// MinRowLength is the shortest row that carries at least one class score.
	MinRowLength = boxColumns + 1
)

// Row is a single detection row: normalized center x, center y, width,
// height, objectness, then one score per class.
type Row []float32

// Tensor is one 2-D network output.
type Tensor []Row

// Parse converts raw network output into candidate boxes.
//
// The candidate confidence is the best class score in columns 5 onward and the
// class is its position within that segment. The objectness column is not
// used. Only rows whose confidence is strictly above the threshold are kept.
// Box coordinates are scaled by the source image size and converted from
// center form to corner form.
//
// Rows shorter than MinRowLength, rows whose box or winning score is not
// finite, and rows with a negative width or height are skipped. Output follows tensor order and then row order.
//
// Arguments:
//   - tensors: The raw output tensors of the network.
//   - width: The source image width in pixels.
//   - height: The source image height in pixels.
//   - threshold: The detection confidence threshold.
//
// Returns:
//   - The candidates, unsorted.
func Parse(tensors []Tensor, width, height int, threshold float32) []postprocess.Result {
	var results []postprocess.Result

	for _, t := range tensors {
		for _, row := range t {
			if len(row) < MinRowLength {
				continue
			}

			classID, confidence := argmax(row[boxColumns:])
			if !finite(confidence) || confidence <= threshold {
				continue
			}
			if !allFinite(row[:4]) || row[2] < 0 || row[3] < 0 {
				continue
			}

			cx := float64(row[0]) * float64(width)
			cy := float64(row[1]) * float64(height)
			w := float64(row[2]) * float64(width)
			h := float64(row[3]) * float64(height)

			results = append(results, postprocess.Result{
				Box:   images.NewRectFromCenter(cx, cy, w, h),
				Score: confidence,
				Class: classID,
			})
		}
	}

	return results
}

// argmax returns the index and value of the largest score. The first maximum
// wins on ties.
func argmax(scores []float32) (int, float32) {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, scores[best]
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

func allFinite(values []float32) bool {
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}
