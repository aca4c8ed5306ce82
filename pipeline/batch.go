package pipeline

import (
	"context"
	"os"

	"github.com/nvr-ai/go-sharpness/overlay"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// BatchOptions controls ProcessFiles.
type BatchOptions struct {
	// Concurrency bounds the images in flight. Values below 1 mean 1.
	Concurrency int
	// OutputDir receives annotated copies when Overlay is set.
	OutputDir string
	// Overlay enables drawing and writing annotated images.
	Overlay bool
	// Draw configures the overlay.
	Draw overlay.Options
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Path   string
	Report *Report
	// Output is the annotated image path, empty when none was written.
	Output string
	// Err is set when the image could not be read, run or written.
	Err error
}

// ProcessFiles runs every path through the pipeline with bounded concurrency.
//
// A failure on one file is recorded in its FileResult and does not stop the
// others. Results keep the order of paths. Annotated outputs get distinct
// names even when inputs from different directories share a file name.
//
// Arguments:
//   - ctx: Cancels files not yet started and scoring in progress.
//   - paths: Image files.
//   - opts: Batch options.
//
// Returns:
//   - []FileResult: One result per path.
//   - error: ctx.Err() if the batch was cancelled, or an output directory error.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string, opts BatchOptions) ([]FileResult, error) {
	if opts.Overlay {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "output dir")
		}
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	var outputs []string
	if opts.Overlay {
		outputs = overlay.OutputPaths(opts.OutputDir, paths)
	}

	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		results[i].Path = path
		if gctx.Err() != nil {
			results[i].Err = gctx.Err()
			continue
		}

		out := ""
		if opts.Overlay {
			out = outputs[i]
		}
		g.Go(func() error {
			results[i] = p.processFile(gctx, path, out, opts)
			return nil
		})
	}

	_ = g.Wait()
	return results, ctx.Err()
}

func (p *Pipeline) processFile(ctx context.Context, path, out string, opts BatchOptions) FileResult {
	result := FileResult{Path: path}
	log := p.logger.WithField("path", path)

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		result.Err = errors.Errorf("cannot read image %s", path)
		log.WithError(result.Err).Error("image skipped")
		return result
	}

	report, err := p.Process(ctx, img)
	if report != nil {
		report.Path = path
	}
	result.Report = report
	if err != nil {
		result.Err = err
		log.WithError(err).Error("image failed")
		return result
	}

	log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"kept":       len(report.Kept),
		"rejected":   report.Rejected,
		"subjects":   len(report.Subjects),
	}).Info("image processed")

	if !opts.Overlay {
		return result
	}

	annotations := make([]overlay.Annotation, len(report.Subjects))
	for i, s := range report.Subjects {
		annotations[i] = overlay.Annotation{
			Box:    s.Box,
			Score:  s.Score.Value,
			Scored: s.Err == nil,
			Label:  s.Label,
		}
	}
	overlay.Draw(&img, annotations, opts.Draw)

	if err := overlay.Save(out, img); err != nil {
		result.Err = err
		log.WithError(err).Error("overlay not written")
		return result
	}
	result.Output = out

	return result
}
