// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-sharpness/images"
)

const (
	// DefaultScoreThreshold is the minimum confidence a candidate needs to be
	// considered for suppression.
	DefaultScoreThreshold float32 = 0.5
	// DefaultIoUThreshold is the overlap above which a candidate is suppressed.
	DefaultIoUThreshold = 0.4
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	ScoreThreshold float32 `json:"score_threshold" yaml:"scoreThreshold"` // Candidates must score above this.
	IoUThreshold   float64 `json:"iou_threshold" yaml:"iouThreshold"`     // Overlap threshold for suppression.
	ClassAware     bool    `json:"class_aware" yaml:"classAware"`         // If true, suppress only within same class.
	TopK           int     `json:"top_k" yaml:"topK"`                     // Maximum kept boxes, 0 keeps all.
}

// DefaultNMSConfig returns 0.5 confidence, 0.4 IoU, class agnostic.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{
		ScoreThreshold: DefaultScoreThreshold,
		IoUThreshold:   DefaultIoUThreshold,
	}
}

// ApplyNMS filters overlapping detections using greedy Non-Maximum Suppression.
//
// Candidates scoring at or below the score threshold are not eligible. The
// eligible ones are stably sorted by descending confidence, so equal scores
// keep their input order. The highest remaining candidate is kept and every
// later candidate whose IoU with it exceeds the IoU threshold is suppressed,
// until no candidate is left unresolved.
//
// Arguments:
//   - candidates: Detections in parser order. They are not reordered.
//   - config: NMS configuration. A nil config uses DefaultNMSConfig.
//
// Returns:
//   - Indices into candidates, confidence descending. Nil when nothing is kept.
func ApplyNMS(candidates []Result, config *NMSConfig) KeptSet {
	if config == nil {
		config = DefaultNMSConfig()
	}

	order := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if c.Score > config.ScoreThreshold {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Score > candidates[order[b]].Score
	})

	kept := make(KeptSet, 0, len(order))
	suppressed := make([]bool, len(order))

	for i, anchorIdx := range order {
		if suppressed[i] {
			continue
		}

		kept = append(kept, anchorIdx)
		if config.TopK > 0 && len(kept) == config.TopK {
			break
		}

		anchor := candidates[anchorIdx]
		for j := i + 1; j < len(order); j++ {
			if suppressed[j] {
				continue
			}
			other := candidates[order[j]]
			if config.ClassAware && anchor.Class != other.Class {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, other.Box) > config.IoUThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}
