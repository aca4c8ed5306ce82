package pipeline

import (
	"github.com/nvr-ai/go-sharpness/config"
	"github.com/nvr-ai/go-sharpness/detector"
	"github.com/nvr-ai/go-sharpness/logger"
	"github.com/nvr-ai/go-sharpness/models"
	"github.com/nvr-ai/go-sharpness/profiler"
	"github.com/nvr-ai/go-sharpness/quality"
	"github.com/nvr-ai/go-sharpness/sharpness"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Builder assembles a Pipeline with a fluent API.
type Builder struct {
	config   *config.Config
	network  detector.Network
	scorer   sharpness.Scorer
	logger   *logrus.Logger
	profiler *profiler.RuntimeProfiler
	err      error
}

// NewBuilder creates a builder using config.Default until WithConfig is called.
//
// Returns:
//   - *Builder: The builder.
func NewBuilder() *Builder {
	cfg := config.Default()
	return &Builder{config: &cfg}
}

// WithConfig sets thresholds, the metric and the quality client settings.
//
// Arguments:
//   - cfg: A validated configuration.
//
// Returns:
//   - *Builder: The builder.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	if b.HasError() {
		return b
	}
	if cfg == nil {
		b.err = errors.New("nil config")
		return b
	}
	b.config = cfg
	return b
}

// WithNetwork sets the detection network. The pipeline does not close it.
func (b *Builder) WithNetwork(network detector.Network) *Builder {
	if b.HasError() {
		return b
	}
	b.network = network
	return b
}

// WithScorer overrides the scorer that would be built from the configuration.
func (b *Builder) WithScorer(scorer sharpness.Scorer) *Builder {
	if b.HasError() {
		return b
	}
	b.scorer = scorer
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *logrus.Logger) *Builder {
	if b.HasError() {
		return b
	}
	b.logger = logger
	return b
}

// WithProfiler sets the profiler receiving stage timings and scores.
func (b *Builder) WithProfiler(p *profiler.RuntimeProfiler) *Builder {
	if b.HasError() {
		return b
	}
	b.profiler = p
	return b
}

// HasError checks if the builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *Builder) HasError() bool {
	return b.err != nil
}

// Build builds the pipeline.
//
// When no scorer was given, MetricRemoteQuality builds a quality client and
// every other metric builds a local sharpness engine.
//
// Returns:
//   - *Pipeline: The pipeline.
//   - error: The error if any.
func (b *Builder) Build() (*Pipeline, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.network == nil {
		return nil, errors.New("network not configured")
	}

	log := b.logger
	if log == nil {
		log = logger.Discard()
	}

	det := b.config.Detection
	classes, err := classSet(det.Classes)
	if err != nil {
		return nil, err
	}

	scorer := b.scorer
	if scorer == nil {
		scorer, err = newScorer(b.config, log)
		if err != nil {
			return nil, err
		}
	}

	return &Pipeline{
		network:   b.network,
		scorer:    scorer,
		threshold: det.ConfidenceThreshold,
		classes:   classes,
		nms:       det.NMS(),
		logger:    log,
		profiler:  b.profiler,
	}, nil
}

// MustBuild builds the pipeline and panics if there is an error.
//
// Returns:
//   - *Pipeline: The pipeline.
func (b *Builder) MustBuild() *Pipeline {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

func classSet(names []string) (map[int]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	set := make(map[int]bool, len(names))
	for _, name := range names {
		idx, err := models.ClassIndex(name)
		if err != nil {
			return nil, errors.Wrap(err, "detection classes")
		}
		set[idx] = true
	}
	return set, nil
}

func newScorer(cfg *config.Config, log *logrus.Logger) (sharpness.Scorer, error) {
	if cfg.Sharpness.Metric == sharpness.MetricRemoteQuality {
		client, err := quality.NewClient(cfg.Quality, log)
		if err != nil {
			return nil, errors.Wrap(err, "quality client")
		}
		return client, nil
	}

	engine, err := sharpness.NewEngine(cfg.Sharpness.Metric, cfg.Sharpness.Weights())
	if err != nil {
		return nil, errors.Wrap(err, "sharpness engine")
	}
	return engine, nil
}
