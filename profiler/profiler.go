// Package profiler - stage timings and score statistics for the sharpness pipeline.
package profiler

import (
	"context"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RuntimeProfiler tracks per-stage durations and per-metric values.
//
// It is safe for concurrent use. A nil *RuntimeProfiler is valid and records
// nothing, so callers never need to check whether profiling is enabled.
type RuntimeProfiler struct {
	// Configuration
	reportInterval time.Duration
	maxSamples     int
	logger         *logrus.Logger

	// State management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	metrics    map[string]*MetricTracker
	operations map[string]*TimeTracker
}

// MetricTracker tracks statistics for a recorded metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often Start emits a report (default: 10s)
	ReportInterval time.Duration
	// MaxSamples bounds the rolling window per metric and operation (default: 600)
	MaxSamples int
	// Logger receives reports. Nil discards them.
	Logger *logrus.Logger
}

// MetricStats summarizes a metric over its rolling window.
type MetricStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
	Count   int64   `json:"count"`
}

// OperationStats summarizes an operation over its rolling window.
type OperationStats struct {
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// Stats is a point-in-time snapshot of the profiler.
type Stats struct {
	Uptime     time.Duration             `json:"uptime"`
	Goroutines int                       `json:"goroutines"`
	HeapAlloc  uint64                    `json:"heap_alloc"`
	Metrics    map[string]MetricStats    `json:"metrics"`
	Operations map[string]OperationStats `json:"operations"`
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		metrics:        make(map[string]*MetricTracker),
		operations:     make(map[string]*TimeTracker),
	}
}

// Start emits a report every ReportInterval until Stop is called.
// Calling Start more than once has no effect.
func (rp *RuntimeProfiler) Start() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()

		ticker := time.NewTicker(rp.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-rp.ctx.Done():
				return
			case <-ticker.C:
				rp.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the reporter to exit.
func (rp *RuntimeProfiler) Stop() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

// RecordMetric records a metric value.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.metrics[name]
	if !exists {
		tracker = &MetricTracker{min: value, max: value}
		rp.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		// Remove oldest sample
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	if rp == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operations[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		rp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > rp.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Snapshot returns the current statistics.
func (rp *RuntimeProfiler) Snapshot() Stats {
	if rp == nil {
		return Stats{}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.RLock()
	defer rp.mu.RUnlock()

	stats := Stats{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		Metrics:    make(map[string]MetricStats, len(rp.metrics)),
		Operations: make(map[string]OperationStats, len(rp.operations)),
	}

	for name, tracker := range rp.metrics {
		if len(tracker.values) == 0 {
			continue
		}
		stats.Metrics[name] = MetricStats{
			Avg:     tracker.sum / float64(len(tracker.values)),
			Min:     tracker.min,
			Max:     tracker.max,
			Samples: len(tracker.values),
			Count:   tracker.count,
		}
	}

	for name, tracker := range rp.operations {
		if len(tracker.durations) == 0 {
			continue
		}
		stats.Operations[name] = OperationStats{
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
			Count: tracker.count,
		}
	}

	return stats
}

// Report logs the current statistics, one line per metric and operation.
func (rp *RuntimeProfiler) Report() {
	if rp == nil {
		return
	}
	stats := rp.Snapshot()

	rp.logger.WithFields(logrus.Fields{
		"uptime":     stats.Uptime.Truncate(time.Millisecond),
		"goroutines": stats.Goroutines,
		"heap_alloc": stats.HeapAlloc,
	}).Info("profiler report")

	for _, name := range sortedKeys(stats.Metrics) {
		m := stats.Metrics[name]
		rp.logger.WithFields(logrus.Fields{
			"metric":  name,
			"avg":     m.Avg,
			"min":     m.Min,
			"max":     m.Max,
			"samples": m.Samples,
		}).Info("profiler metric")
	}

	for _, name := range sortedKeys(stats.Operations) {
		op := stats.Operations[name]
		rp.logger.WithFields(logrus.Fields{
			"operation": name,
			"avg":       op.Avg.Truncate(time.Microsecond),
			"min":       op.Min.Truncate(time.Microsecond),
			"max":       op.Max.Truncate(time.Microsecond),
			"count":     op.Count,
		}).Info("profiler operation")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
