package detector

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ExecutionProvider names an ONNX Runtime execution provider.
type ExecutionProvider string

const (
	// ProviderCPU uses the default CPU kernels.
	ProviderCPU ExecutionProvider = "cpu"
	// ProviderCUDA uses NVIDIA CUDA.
	ProviderCUDA ExecutionProvider = "cuda"
	// ProviderCoreML uses Apple CoreML on macOS.
	ProviderCoreML ExecutionProvider = "coreml"
	// ProviderOpenVINO uses Intel OpenVINO.
	ProviderOpenVINO ExecutionProvider = "openvino"
)

// SessionOptions controls how the ONNX Runtime session executes the model.
type SessionOptions struct {
	// Provider selects the execution provider. Empty means ProviderCPU.
	Provider ExecutionProvider
	// DeviceID selects the accelerator for CUDA and OpenVINO.
	DeviceID int
	// IntraOpThreads bounds threads used inside one node. Zero lets the runtime decide.
	IntraOpThreads int
}

// newSessionOptions builds native session options. The caller destroys them.
func newSessionOptions(opts SessionOptions) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "session options")
	}

	fail := func(err error, msg string) (*ort.SessionOptions, error) {
		options.Destroy()
		return nil, errors.Wrap(err, msg)
	}

	if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		return fail(err, "intra-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fail(err, "graph optimization level")
	}

	switch opts.Provider {
	case "", ProviderCPU:
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fail(err, "cuda options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(opts.DeviceID)}); err != nil {
			return fail(err, "cuda options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fail(err, "enable cuda")
		}
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fail(err, "enable coreml")
		}
	case ProviderOpenVINO:
		config := map[string]string{"device_id": strconv.Itoa(opts.DeviceID)}
		if err := options.AppendExecutionProviderOpenVINO(config); err != nil {
			return fail(err, "enable openvino")
		}
	default:
		return fail(errors.Errorf("%q", opts.Provider), "unknown execution provider")
	}

	return options, nil
}
