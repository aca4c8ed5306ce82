// Command sharpness detects subjects in photographs and scores how sharp each
// one is.
//
// Usage:
//
//	sharpness [-config file] [-metric name] [-output-dir dir] [-concurrency n] [-no-overlay] [-json] [-profile] <image|dir>...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/nvr-ai/go-sharpness/config"
	"github.com/nvr-ai/go-sharpness/detector"
	"github.com/nvr-ai/go-sharpness/images"
	"github.com/nvr-ai/go-sharpness/logger"
	"github.com/nvr-ai/go-sharpness/overlay"
	"github.com/nvr-ai/go-sharpness/pipeline"
	"github.com/nvr-ai/go-sharpness/profiler"
	"github.com/nvr-ai/go-sharpness/sharpness"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultOutputDir receives annotated images.
	DefaultOutputDir = "output"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sharpness", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "YAML configuration file")
		metricName  = fs.String("metric", "", "sharpness metric, overrides the configuration")
		outputDir   = fs.String("output-dir", DefaultOutputDir, "directory for annotated images")
		concurrency = fs.Int("concurrency", runtime.NumCPU(), "images processed in parallel")
		noOverlay   = fs.Bool("no-overlay", false, "do not write annotated images")
		jsonOutput  = fs.Bool("json", false, "print reports as JSON lines on stdout")
		profile     = fs.Bool("profile", false, "log stage timings and score statistics at exit")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: sharpness [flags] <image|dir>...\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *metricName != "" {
		m, err := sharpness.ParseMetric(*metricName)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		cfg.Sharpness.Metric = m
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	paths, err := images.CollectImageFiles(fs.Args()...)
	if err != nil {
		log.WithError(err).Error("invalid input")
		return 1
	}
	if len(paths) == 0 {
		log.Warn("no images found")
		return 0
	}

	network, err := detector.New(cfg.Detection, log)
	if err != nil {
		log.WithError(err).Error("cannot load detection network")
		return 1
	}
	defer network.Close()

	var rp *profiler.RuntimeProfiler
	if *profile {
		rp = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Logger: log})
		defer rp.Report()
	}

	p, err := pipeline.NewBuilder().
		WithConfig(cfg).
		WithNetwork(network).
		WithLogger(log).
		WithProfiler(rp).
		Build()
	if err != nil {
		log.WithError(err).Error("cannot build pipeline")
		return 1
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"images":      len(paths),
		"metric":      cfg.Sharpness.Metric.String(),
		"backend":     cfg.Detection.Backend,
		"concurrency": *concurrency,
	}).Info("starting")

	results, err := p.ProcessFiles(ctx, paths, pipeline.BatchOptions{
		Concurrency: *concurrency,
		OutputDir:   *outputDir,
		Overlay:     !*noOverlay,
		Draw:        overlay.DefaultOptions(),
	})
	if err != nil {
		log.WithError(err).Error("batch aborted")
	}

	failed := 0
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		if r.Report == nil {
			continue
		}
		if *jsonOutput {
			if err := enc.Encode(r.Report); err != nil {
				log.WithError(err).Error("cannot encode report")
			}
			continue
		}
		for _, s := range r.Report.Subjects {
			entry := log.WithFields(logrus.Fields{
				"path":       r.Path,
				"label":      s.Label,
				"confidence": fmt.Sprintf("%.2f", s.Confidence),
				"box":        s.Box.String(),
			})
			if s.Err != nil {
				entry.WithError(s.Err).Warn("subject not scored")
				continue
			}
			entry.WithField(s.Score.Metric.String(), fmt.Sprintf("%.2f", s.Score.Value)).Info("subject")
		}
	}

	if failed > 0 || err != nil {
		return 1
	}
	return 0
}
