package detector

import (
	"os"
	"sync"

	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// ONNXRuntimeOptions configures an ONNX Runtime network.
type ONNXRuntimeOptions struct {
	// ModelPath is the exported model. Its outputs must be Darknet-layout
	// detection rows of shape (rows, cols) or (1, rows, cols).
	ModelPath string
	// LibraryPath is the onnxruntime shared library. Empty uses the loader default.
	LibraryPath string
	// Input is the network input size and scale.
	Input yolov3.Options
	// Session selects the execution provider and threading.
	Session SessionOptions
}

// ONNXRuntime runs an exported YOLOv3 model through ONNX Runtime.
type ONNXRuntime struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputNames []string
	input       yolov3.Options
	ownsEnv     bool
	closed      bool
}

// NewONNXRuntime creates an ONNX Runtime session.
//
// The runtime environment is initialized on first use. A network that
// initialized it destroys it on Close.
func NewONNXRuntime(opts ONNXRuntimeOptions, logger *logrus.Logger) (*ONNXRuntime, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, errors.Wrap(err, "onnx model")
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if opts.LibraryPath != "" {
			ort.SetSharedLibraryPath(opts.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "initialize onnxruntime")
		}
		ownsEnv = true
	}

	fail := func(err error, msg string) (*ONNXRuntime, error) {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, errors.Wrap(err, msg)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return fail(err, "read model io")
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return fail(errors.Errorf("%d inputs, %d outputs", len(inputs), len(outputs)), "unsupported model")
	}

	outputNames := make([]string, len(outputs))
	for i, o := range outputs {
		outputNames[i] = o.Name
	}

	options, err := newSessionOptions(opts.Session)
	if err != nil {
		return fail(err, "configure session")
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, []string{inputs[0].Name}, outputNames, options)
	if err != nil {
		return fail(err, "create session")
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"model":    opts.ModelPath,
		"input":    inputs[0].Name,
		"outputs":  outputNames,
		"provider": opts.Session.Provider,
	}).Info("onnxruntime network loaded")

	return &ONNXRuntime{
		session:     session,
		inputName:   inputs[0].Name,
		outputNames: outputNames,
		input:       opts.Input,
		ownsEnv:     ownsEnv,
	}, nil
}

// Forward runs the model on img and returns one tensor per model output.
func (o *ONNXRuntime) Forward(img gocv.Mat) ([]yolov3.Tensor, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	data, err := BlobCHW(img, o.input)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, errors.New("onnxruntime network is closed")
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(o.input.InputHeight), int64(o.input.InputWidth)), data)
	if err != nil {
		return nil, errors.Wrap(err, "input tensor")
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, len(o.outputNames))
	if err := o.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	tensors := make([]yolov3.Tensor, 0, len(outputs))
	for i, v := range outputs {
		out, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Wrapf(yolov3.ErrUnsupportedOutput, "output %s is not float32", o.outputNames[i])
		}

		shape := out.GetShape()
		dims := make([]int, len(shape))
		for j, d := range shape {
			dims[j] = int(d)
		}
		backing := append([]float32(nil), out.GetData()...)

		t, err := yolov3.TensorFromDense(tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing)))
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", o.outputNames[i])
		}
		tensors = append(tensors, t)
	}

	return tensors, nil
}

// Close destroys the session.
func (o *ONNXRuntime) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	if err := o.session.Destroy(); err != nil {
		return errors.Wrap(err, "destroy session")
	}
	if o.ownsEnv {
		return ort.DestroyEnvironment()
	}
	return nil
}
