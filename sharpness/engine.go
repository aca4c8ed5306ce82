package sharpness

import (
	"context"

	"github.com/nvr-ai/go-sharpness/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Engine scores regions in-process with one local metric.
type Engine struct {
	metric  Metric
	weights Weights
}

// NewEngine creates an engine for a local metric.
//
// Arguments:
//   - metric: Any metric except MetricRemoteQuality.
//   - weights: Coefficients used by MetricCombined.
//
// Returns:
//   - *Engine: The engine.
//   - error: ErrUnknownMetric if the metric is not computed locally.
func NewEngine(metric Metric, weights Weights) (*Engine, error) {
	if !metric.Local() {
		return nil, errors.Wrapf(ErrUnknownMetric, "%s is not a local metric", metric)
	}
	return &Engine{metric: metric, weights: weights}, nil
}

// Metric returns the metric the engine computes.
func (e *Engine) Metric() Metric {
	return e.metric
}

// Score converts the region to grayscale and scores it. The region is not
// modified. On failure the returned value is Unscored.
func (e *Engine) Score(ctx context.Context, region gocv.Mat) (Score, error) {
	if err := ctx.Err(); err != nil {
		return Score{Metric: e.metric, Value: Unscored}, err
	}

	gray, err := images.Grayscale(region)
	defer gray.Close()
	if err != nil {
		return Score{Metric: e.metric, Value: Unscored}, err
	}

	value, err := Compute(e.metric, gray, e.weights)
	if err != nil {
		return Score{Metric: e.metric, Value: Unscored}, errors.Wrap(err, e.metric.String())
	}

	return Score{Metric: e.metric, Value: value}, nil
}
