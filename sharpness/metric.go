// Package sharpness - blur metrics for cropped subject regions.
package sharpness

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Metric selects how a region is scored.
type Metric int

const (
	// MetricLaplacianVariance is the squared standard deviation of the Laplacian.
	MetricLaplacianVariance Metric = iota
	// MetricTenengrad is the mean squared Sobel gradient magnitude.
	MetricTenengrad
	// MetricFFTEnergy is the mean DFT magnitude over the top-left quadrant.
	MetricFFTEnergy
	// MetricLaplacianEnergy is the sum of absolute Laplacian responses.
	MetricLaplacianEnergy
	// MetricCombined is a weighted sum of Laplacian variance and Tenengrad.
	MetricCombined
	// MetricRemoteQuality delegates scoring to the external quality service.
	MetricRemoteQuality
)

// Unscored is the value reported when a region could not be scored.
const Unscored = -1.0

// ErrUnknownMetric is returned when a metric name is not recognized.
var ErrUnknownMetric = errors.New("unknown sharpness metric")

var metricNames = map[Metric]string{
	MetricLaplacianVariance: "laplacian_variance",
	MetricTenengrad:         "tenengrad",
	MetricFFTEnergy:         "fft_energy",
	MetricLaplacianEnergy:   "laplacian_energy",
	MetricCombined:          "combined",
	MetricRemoteQuality:     "remote_quality",
}

// String returns the configuration name of the metric.
func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return "unknown"
}

// Local reports whether the metric is computed in-process.
func (m Metric) Local() bool {
	_, ok := metricNames[m]
	return ok && m != MetricRemoteQuality
}

// ParseMetric returns the metric with the given configuration name.
// Matching ignores case and surrounding whitespace.
func ParseMetric(name string) (Metric, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for m, n := range metricNames {
		if n == want {
			return m, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownMetric, "%q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if _, ok := metricNames[m]; !ok {
		return nil, errors.Wrapf(ErrUnknownMetric, "%d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Score is a sharpness value tagged with the metric that produced it.
type Score struct {
	Metric Metric  `json:"metric" yaml:"metric"`
	Value  float64 `json:"value" yaml:"value"`
}

// Scorer scores a single region. Implementations must not modify the region
// and must be safe to call from multiple goroutines.
type Scorer interface {
	Score(ctx context.Context, region gocv.Mat) (Score, error)
}
