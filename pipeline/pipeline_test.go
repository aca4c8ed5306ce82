package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/nvr-ai/go-sharpness/config"
	"github.com/nvr-ai/go-sharpness/models/postprocess"
	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/nvr-ai/go-sharpness/overlay"
	"github.com/nvr-ai/go-sharpness/profiler"
	"github.com/nvr-ai/go-sharpness/quality"
	"github.com/nvr-ai/go-sharpness/sharpness"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fakeNetwork struct {
	tensors []yolov3.Tensor
	err     error
	calls   atomic.Int32
}

func (f *fakeNetwork) Forward(gocv.Mat) ([]yolov3.Tensor, error) {
	f.calls.Add(1)
	return f.tensors, f.err
}

func (f *fakeNetwork) Close() error { return nil }

// fakeScorer returns its call number as the score and fails the calls listed in failOn.
type fakeScorer struct {
	mu      sync.Mutex
	regions []image.Point
	failOn  map[int]bool
}

func (f *fakeScorer) Score(_ context.Context, region gocv.Mat) (sharpness.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.regions = append(f.regions, image.Pt(region.Cols(), region.Rows()))
	n := len(f.regions)
	if f.failOn[n] {
		return sharpness.Score{Metric: sharpness.MetricRemoteQuality, Value: sharpness.Unscored},
			&quality.Error{Kind: quality.KindConnect, Err: errors.New("connection refused")}
	}
	return sharpness.Score{Metric: sharpness.MetricTenengrad, Value: float64(n)}, nil
}

func (f *fakeScorer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.regions)
}

// row builds a detection row for a pixel-space box on a 400x400 image.
func row(x, y, w, h float64, score float32) yolov3.Row {
	const size = 400.0
	return yolov3.Row{
		float32((x + w/2) / size), float32((y + h/2) / size),
		float32(w / size), float32(h / size),
		1, 0.1, score,
	}
}

func newImage(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 100, 150, 0), 400, 400, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })
	return img
}

func build(t *testing.T, network *fakeNetwork, scorer sharpness.Scorer) *Pipeline {
	t.Helper()
	p, err := NewBuilder().WithNetwork(network).WithScorer(scorer).Build()
	require.NoError(t, err)
	return p
}

func TestProcessSuppressionScenario(t *testing.T) {
	network := &fakeNetwork{tensors: []yolov3.Tensor{{
		row(10, 10, 100, 100, 0.90),
		row(20, 15, 100, 100, 0.85),
		row(300, 300, 50, 50, 0.60),
		row(200, 10, 20, 20, 0.30),
	}}}
	scorer := &fakeScorer{}
	p := build(t, network, scorer)

	report, err := p.Process(context.Background(), newImage(t))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, postprocess.KeptSet{0, 2}, report.Kept)
	assert.Equal(t, 0, report.Rejected)
	require.Len(t, report.Subjects, 2)

	assert.InDelta(t, 0.90, report.Subjects[0].Confidence, 1e-6)
	assert.InDelta(t, 0.60, report.Subjects[1].Confidence, 1e-6)
	assert.Equal(t, 1, report.Subjects[0].Class)
	assert.Equal(t, "bicycle", report.Subjects[0].Label)
	assert.Equal(t, 1.0, report.Subjects[0].Score.Value)
	assert.Equal(t, 2.0, report.Subjects[1].Score.Value)
	assert.Equal(t, int32(1), network.calls.Load())
}

func TestProcessClassFilter(t *testing.T) {
	network := &fakeNetwork{tensors: []yolov3.Tensor{{
		row(10, 10, 50, 50, 0.9),
		{0.5, 0.5, 0.1, 0.1, 1, 0.95, 0.1}, // person
	}}}

	cfg := config.Default()
	cfg.Detection.Classes = []string{"bicycle"}
	scorer := &fakeScorer{}
	p, err := NewBuilder().WithConfig(&cfg).WithNetwork(network).WithScorer(scorer).Build()
	require.NoError(t, err)

	report, err := p.Process(context.Background(), newImage(t))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	require.Len(t, report.Subjects, 1)
	assert.Equal(t, "bicycle", report.Subjects[0].Label)

	cfg.Detection.Classes = []string{"unicorn"}
	_, err = NewBuilder().WithConfig(&cfg).WithNetwork(network).WithScorer(scorer).Build()
	assert.Error(t, err)
}

func TestProcessRejectsOutOfBounds(t *testing.T) {
	network := &fakeNetwork{tensors: []yolov3.Tensor{{
		row(350, 10, 100, 40, 0.95), // x + w > width
		row(-5, 100, 40, 40, 0.90),  // x < 0
		row(100, 380, 40, 40, 0.85), // y + h > height
		row(100, 100, 40, 40, 0.80),
	}}}
	scorer := &fakeScorer{}
	p := build(t, network, scorer)

	report, err := p.Process(context.Background(), newImage(t))
	require.NoError(t, err)

	assert.Len(t, report.Kept, 4)
	assert.Equal(t, 3, report.Rejected)
	require.Len(t, report.Subjects, 1)
	assert.InDelta(t, 0.80, report.Subjects[0].Confidence, 1e-6)

	require.Equal(t, 1, scorer.calls())
	for _, size := range scorer.regions {
		assert.LessOrEqual(t, size.X, 400)
		assert.LessOrEqual(t, size.Y, 400)
	}
}

func TestProcessScorerFailureContinues(t *testing.T) {
	network := &fakeNetwork{tensors: []yolov3.Tensor{{
		row(10, 10, 50, 50, 0.9),
		row(200, 200, 50, 50, 0.8),
	}}}
	scorer := &fakeScorer{failOn: map[int]bool{1: true}}
	p := build(t, network, scorer)

	report, err := p.Process(context.Background(), newImage(t))
	require.NoError(t, err)
	require.Len(t, report.Subjects, 2)

	first := report.Subjects[0]
	assert.Equal(t, sharpness.Unscored, first.Score.Value)
	kind, ok := quality.KindOf(first.Err)
	require.True(t, ok)
	assert.Equal(t, quality.KindConnect, kind)
	assert.Equal(t, "connect", first.FailureKind)
	assert.Contains(t, first.Error, "connection refused")

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failure_kind":"connect"`)
	assert.Equal(t, 1, strings.Count(string(data), `"failure_kind"`))

	assert.NoError(t, report.Subjects[1].Err)
	assert.Empty(t, report.Subjects[1].FailureKind)
	assert.Equal(t, 2.0, report.Subjects[1].Score.Value)
}

func TestProcessEmpty(t *testing.T) {
	network := &fakeNetwork{tensors: []yolov3.Tensor{{row(10, 10, 50, 50, 0.2)}}}
	scorer := &fakeScorer{}
	p := build(t, network, scorer)

	report, err := p.Process(context.Background(), newImage(t))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Candidates)
	assert.Empty(t, report.Kept)
	assert.Empty(t, report.Subjects)
	assert.Equal(t, 0, scorer.calls())
}

func TestProcessForwardError(t *testing.T) {
	p := build(t, &fakeNetwork{err: errors.New("backend failure")}, &fakeScorer{})

	_, err := p.Process(context.Background(), newImage(t))
	assert.Error(t, err)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = p.Process(context.Background(), empty)
	assert.Error(t, err)
}

func TestProcessCancelled(t *testing.T) {
	network := &fakeNetwork{tensors: []yolov3.Tensor{{row(10, 10, 50, 50, 0.9)}}}
	scorer := &fakeScorer{}
	p := build(t, network, scorer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Process(ctx, newImage(t))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Subjects)
	assert.Equal(t, 0, scorer.calls())
}

func TestProcessWithSharpnessEngine(t *testing.T) {
	img := newImage(t)
	// A bright square with hard edges inside the second box only.
	inner := img.Region(image.Rect(220, 220, 260, 260))
	inner.SetTo(gocv.NewScalar(255, 255, 255, 0))
	inner.Close()

	network := &fakeNetwork{tensors: []yolov3.Tensor{{
		row(10, 10, 80, 80, 0.9),
		row(200, 200, 80, 80, 0.8),
	}}}

	cfg := config.Default()
	cfg.Sharpness.Metric = sharpness.MetricLaplacianVariance
	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})

	p, err := NewBuilder().WithConfig(&cfg).WithNetwork(network).WithProfiler(rp).Build()
	require.NoError(t, err)

	report, err := p.Process(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, report.Subjects, 2)

	assert.InDelta(t, 0, report.Subjects[0].Score.Value, 1e-9)
	assert.Greater(t, report.Subjects[1].Score.Value, 0.0)
	assert.Equal(t, sharpness.MetricLaplacianVariance, report.Subjects[1].Score.Metric)

	stats := rp.Snapshot()
	assert.Equal(t, int64(2), stats.Metrics["laplacian_variance"].Count)
	assert.Equal(t, int64(1), stats.Operations[StageForward].Count)
	assert.Equal(t, int64(2), stats.Operations[StageScore].Count)
}

func TestBuilder(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)

	_, err = NewBuilder().WithConfig(nil).WithNetwork(&fakeNetwork{}).Build()
	assert.Error(t, err)

	p, err := NewBuilder().WithNetwork(&fakeNetwork{}).Build()
	require.NoError(t, err)
	engine, ok := p.scorer.(*sharpness.Engine)
	require.True(t, ok)
	assert.Equal(t, sharpness.MetricCombined, engine.Metric())

	cfg := config.Default()
	cfg.Sharpness.Metric = sharpness.MetricRemoteQuality
	p, err = NewBuilder().WithConfig(&cfg).WithNetwork(&fakeNetwork{}).Build()
	require.NoError(t, err)
	_, ok = p.scorer.(*quality.Client)
	assert.True(t, ok)
	assert.NoError(t, p.Close())

	assert.Panics(t, func() { NewBuilder().MustBuild() })
}

func TestProcessFiles(t *testing.T) {
	dir := t.TempDir()
	img := newImage(t)

	var paths []string
	for _, name := range []string{"one.jpg", "two.png"} {
		path := filepath.Join(dir, name)
		require.True(t, gocv.IMWrite(path, img))
		paths = append(paths, path)
	}
	paths = append(paths, filepath.Join(dir, "missing.jpg"))

	network := &fakeNetwork{tensors: []yolov3.Tensor{{row(10, 10, 50, 50, 0.9)}}}
	scorer := &fakeScorer{}
	p := build(t, network, scorer)

	outDir := filepath.Join(dir, "out")
	results, err := p.ProcessFiles(context.Background(), paths, BatchOptions{
		Concurrency: 2,
		OutputDir:   outDir,
		Overlay:     true,
		Draw:        overlay.DefaultOptions(),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results[:2] {
		assert.Equal(t, paths[i], r.Path)
		require.NoError(t, r.Err)
		require.NotNil(t, r.Report)
		assert.Equal(t, paths[i], r.Report.Path)
		assert.Len(t, r.Report.Subjects, 1)
		assert.Equal(t, overlay.OutputPath(outDir, paths[i]), r.Output)
		assert.FileExists(t, r.Output)
	}

	assert.Error(t, results[2].Err)
	assert.Nil(t, results[2].Report)
	assert.Equal(t, 2, scorer.calls())
}

func TestProcessFilesDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	img := newImage(t)

	var paths []string
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
		path := filepath.Join(dir, sub, "x.jpg")
		require.True(t, gocv.IMWrite(path, img))
		paths = append(paths, path)
	}

	network := &fakeNetwork{tensors: []yolov3.Tensor{{row(10, 10, 50, 50, 0.9)}}}
	p := build(t, network, &fakeScorer{})

	outDir := filepath.Join(dir, "out")
	results, err := p.ProcessFiles(context.Background(), paths, BatchOptions{
		Concurrency: 2,
		OutputDir:   outDir,
		Overlay:     true,
		Draw:        overlay.DefaultOptions(),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.NotEqual(t, results[0].Output, results[1].Output)
	assert.Equal(t, filepath.Join(outDir, "x_sharpness.jpg"), results[0].Output)
	assert.Equal(t, filepath.Join(outDir, "x_sharpness_2.jpg"), results[1].Output)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestProcessFilesCancelled(t *testing.T) {
	p := build(t, &fakeNetwork{}, &fakeScorer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.ProcessFiles(ctx, []string{"a.jpg", "b.jpg"}, BatchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}
