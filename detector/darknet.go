package detector

import (
	"os"
	"sync"

	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Darknet runs a Darknet cfg/weights network through OpenCV DNN.
type Darknet struct {
	mu          sync.Mutex
	net         gocv.Net
	outputNames []string
	input       yolov3.Options
	logger      *logrus.Logger
	closed      bool
}

// NewDarknet loads a Darknet network.
//
// Arguments:
//   - cfgPath: Path of the .cfg file.
//   - weightsPath: Path of the .weights file.
//   - input: Network input blob options.
//   - logger: The logger.
//
// Returns:
//   - *Darknet: The network.
//   - error: Error if either file is missing or OpenCV cannot load them.
func NewDarknet(cfgPath, weightsPath string, input yolov3.Options, logger *logrus.Logger) (*Darknet, error) {
	for _, p := range []string{cfgPath, weightsPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, errors.Wrap(err, "darknet model")
		}
	}

	net := gocv.ReadNetFromDarknet(cfgPath, weightsPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load darknet model %s", cfgPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		names = append(names, layer.GetName())
		layer.Close()
	}
	if len(names) == 0 {
		net.Close()
		return nil, errors.Errorf("darknet model %s has no output layers", cfgPath)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"config":  cfgPath,
		"weights": weightsPath,
		"outputs": names,
		"input":   input.Size(),
	}).Info("darknet network loaded")

	return &Darknet{net: net, outputNames: names, input: input, logger: logger}, nil
}

// Forward runs the network on img and returns one tensor per output layer.
func (d *Darknet) Forward(img gocv.Mat) ([]yolov3.Tensor, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("darknet network is closed")
	}

	blob := d.input.Blob(img)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outputs := d.net.ForwardLayers(d.outputNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	tensors := make([]yolov3.Tensor, 0, len(outputs))
	for i, out := range outputs {
		t, err := yolov3.TensorFromMat(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", d.outputNames[i])
		}
		tensors = append(tensors, t)
	}

	return tensors, nil
}

// Close releases the network.
func (d *Darknet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}
