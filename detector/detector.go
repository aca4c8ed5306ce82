// Package detector - owned detection networks producing raw YOLOv3 rows.
package detector

import (
	"github.com/nvr-ai/go-sharpness/config"
	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Network runs a forward pass over a decoded BGR image.
//
// Implementations serialize Forward internally, so one Network may be shared
// by concurrent pipelines. The owner calls Close exactly once.
type Network interface {
	Forward(img gocv.Mat) ([]yolov3.Tensor, error)
	Close() error
}

// ErrEmptyImage is returned by Forward for an empty input.
var ErrEmptyImage = errors.New("empty image")

// New loads the network selected by cfg.Backend.
//
// Arguments:
//   - cfg: The detection configuration.
//   - logger: The logger.
//
// Returns:
//   - Network: The loaded network, owned by the caller.
//   - error: Error if the backend is unknown or the model cannot be loaded.
func New(cfg config.DetectionConfig, logger *logrus.Logger) (Network, error) {
	switch cfg.Backend {
	case config.BackendDarknet:
		return NewDarknet(cfg.ModelConfig, cfg.ModelWeights, cfg.Input(), logger)
	case config.BackendONNXRuntime:
		return NewONNXRuntime(ONNXRuntimeOptions{
			ModelPath:   cfg.ONNXModel,
			LibraryPath: cfg.ONNXRuntimeLibrary,
			Input:       cfg.Input(),
			Session: SessionOptions{
				Provider:       ExecutionProvider(cfg.ExecutionProvider),
				DeviceID:       cfg.DeviceID,
				IntraOpThreads: cfg.IntraOpThreads,
			},
		}, logger)
	default:
		return nil, errors.Errorf("unknown detection backend %q", cfg.Backend)
	}
}
