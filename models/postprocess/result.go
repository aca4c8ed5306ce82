// Package postprocess - Postprocessing utilities for detection outputs.
package postprocess

import "github.com/nvr-ai/go-sharpness/images"

// Result represents a single detection candidate.
type Result struct {
	// The bounding box of the result in pixel units.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}

// KeptSet holds indices into the candidate slice that survived suppression,
// in descending confidence order.
type KeptSet []int

// Select returns the kept candidates in kept order.
func (k KeptSet) Select(candidates []Result) []Result {
	out := make([]Result, 0, len(k))
	for _, idx := range k {
		out = append(out, candidates[idx])
	}
	return out
}
