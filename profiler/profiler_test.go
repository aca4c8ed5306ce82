package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMetric(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 3})

	for _, v := range []float64{1, 2, 3, 10} {
		rp.RecordMetric("tenengrad", v)
	}

	m, ok := rp.Snapshot().Metrics["tenengrad"]
	require.True(t, ok)
	assert.Equal(t, 3, m.Samples)
	assert.Equal(t, int64(4), m.Count)
	assert.InDelta(t, 5.0, m.Avg, 1e-9)
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 10.0, m.Max)
}

func TestStartOperation(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})

	done := rp.StartOperation("detect")
	time.Sleep(5 * time.Millisecond)
	done()
	rp.StartOperation("detect")()

	op, ok := rp.Snapshot().Operations["detect"]
	require.True(t, ok)
	assert.Equal(t, int64(2), op.Count)
	assert.GreaterOrEqual(t, op.Max, 5*time.Millisecond)
	assert.LessOrEqual(t, op.Min, op.Max)
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	rp := NewRuntimeProfiler(ProfilingOptions{Logger: logger})
	rp.RecordMetric("fft_energy", 4)
	rp.StartOperation("score")()
	rp.Report()

	out := buf.String()
	assert.Contains(t, out, "profiler report")
	assert.Contains(t, out, `"metric":"fft_energy"`)
	assert.Contains(t, out, `"operation":"score"`)
}

func TestStartStop(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{ReportInterval: time.Millisecond})
	rp.Start()
	rp.Start()
	time.Sleep(5 * time.Millisecond)
	rp.Stop()
	rp.Stop()
}

func TestNilProfiler(t *testing.T) {
	var rp *RuntimeProfiler
	rp.RecordMetric("x", 1)
	rp.StartOperation("y")()
	rp.Start()
	rp.Stop()
	rp.Report()
	assert.Empty(t, rp.Snapshot().Metrics)
}
