// Package pipeline - per-image detection, consolidation and region scoring.
package pipeline

import (
	"context"

	"github.com/nvr-ai/go-sharpness/detector"
	"github.com/nvr-ai/go-sharpness/images"
	"github.com/nvr-ai/go-sharpness/models"
	"github.com/nvr-ai/go-sharpness/models/postprocess"
	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/nvr-ai/go-sharpness/profiler"
	"github.com/nvr-ai/go-sharpness/quality"
	"github.com/nvr-ai/go-sharpness/sharpness"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Profiler stage names.
const (
	StageForward = "forward"
	StageParse   = "parse"
	StageNMS     = "nms"
	StageScore   = "score"
)

// Subject is one kept detection that was scored.
type Subject struct {
	// Box in source image pixels.
	Box images.Rect `json:"box"`
	// Detection confidence.
	Confidence float32 `json:"confidence"`
	// Class index and its label.
	Class int    `json:"class"`
	Label string `json:"label"`
	// Score is sharpness.Unscored when Err is set.
	Score sharpness.Score `json:"score"`
	Err   error           `json:"-"`
	// Error and FailureKind describe Err for JSON reports. FailureKind is a
	// quality.Kind name for remote failures and "local" otherwise.
	Error       string `json:"error,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`
}

func newSubject(c postprocess.Result, score sharpness.Score, err error) Subject {
	s := Subject{
		Box:        c.Box,
		Confidence: c.Score,
		Class:      c.Class,
		Label:      models.Label(c.Class),
		Score:      score,
		Err:        err,
	}
	if err != nil {
		s.Error = err.Error()
		s.FailureKind = "local"
		if kind, ok := quality.KindOf(err); ok {
			s.FailureKind = kind.String()
		}
	}
	return s
}

// Report is the result of one image pass.
type Report struct {
	Path       string              `json:"path,omitempty"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Candidates int                 `json:"candidates"`
	Kept       postprocess.KeptSet `json:"kept"`
	// Rejected counts kept boxes not fully inside the image.
	Rejected int       `json:"rejected"`
	Subjects []Subject `json:"subjects"`
}

// Pipeline runs detection and scoring for single images.
// It is safe for concurrent use when its Network and Scorer are.
type Pipeline struct {
	network   detector.Network
	scorer    sharpness.Scorer
	threshold float32
	classes   map[int]bool
	nms       *postprocess.NMSConfig
	logger    *logrus.Logger
	profiler  *profiler.RuntimeProfiler
}

// Process runs the network on img and scores every kept subject.
//
// Arguments:
//   - ctx: Cancels scoring between and during subjects.
//   - img: A decoded BGR image. It is not modified.
//
// Returns:
//   - *Report: The image report.
//   - error: Error if the forward pass fails or ctx is cancelled.
func (p *Pipeline) Process(ctx context.Context, img gocv.Mat) (*Report, error) {
	if img.Empty() {
		return nil, detector.ErrEmptyImage
	}

	done := p.profiler.StartOperation(StageForward)
	tensors, err := p.network.Forward(img)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "forward")
	}

	return p.ProcessTensors(ctx, img, tensors)
}

// ProcessTensors consolidates precomputed network output for img and scores
// every kept subject in confidence order.
//
// Candidates of classes outside the configured class list are dropped before
// suppression. Per-subject failures are recorded on the subject and never
// stop the pass.
// Kept boxes that are not fully inside the image are counted in Rejected and
// never reach the scorer.
func (p *Pipeline) ProcessTensors(ctx context.Context, img gocv.Mat, tensors []yolov3.Tensor) (*Report, error) {
	report := &Report{Width: img.Cols(), Height: img.Rows()}

	done := p.profiler.StartOperation(StageParse)
	candidates := p.filterClasses(yolov3.Parse(tensors, report.Width, report.Height, p.threshold))
	done()
	report.Candidates = len(candidates)

	done = p.profiler.StartOperation(StageNMS)
	report.Kept = postprocess.ApplyNMS(candidates, p.nms)
	done()

	kept := report.Kept.Select(candidates)
	report.Subjects = make([]Subject, 0, len(kept))
	for _, c := range kept {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		region, ok := images.ExtractRegion(img, c.Box)
		if !ok {
			report.Rejected++
			p.logger.WithFields(logrus.Fields{
				"box":    c.Box.String(),
				"width":  report.Width,
				"height": report.Height,
			}).Debug("box outside image, not scored")
			continue
		}

		done = p.profiler.StartOperation(StageScore)
		score, err := p.scorer.Score(ctx, region)
		done()
		region.Close()

		subject := newSubject(c, score, err)

		fields := logrus.Fields{
			"box":        c.Box.String(),
			"label":      subject.Label,
			"confidence": c.Score,
			"metric":     score.Metric.String(),
		}
		if err != nil {
			p.logger.WithFields(fields).WithError(err).Warn("subject not scored")
		} else {
			p.profiler.RecordMetric(score.Metric.String(), score.Value)
			p.logger.WithFields(fields).WithField("score", score.Value).Debug("subject scored")
		}

		report.Subjects = append(report.Subjects, subject)
	}

	return report, nil
}

func (p *Pipeline) filterClasses(candidates []postprocess.Result) []postprocess.Result {
	if len(p.classes) == 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if p.classes[c.Class] {
			out = append(out, c)
		}
	}
	return out
}

// Close releases the scorer if it holds resources. The network belongs to
// the caller and is not closed.
func (p *Pipeline) Close() error {
	if c, ok := p.scorer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
