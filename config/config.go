// Package config - layered configuration for the sharpness pipeline.
//
// Values are resolved in order: built-in defaults, then the YAML file, then
// environment variables (optionally seeded from a .env file). The result is
// validated before it is returned.
package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/nvr-ai/go-sharpness/logger"
	"github.com/nvr-ai/go-sharpness/models/postprocess"
	"github.com/nvr-ai/go-sharpness/models/yolov3"
	"github.com/nvr-ai/go-sharpness/quality"
	"github.com/nvr-ai/go-sharpness/sharpness"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Backend names a detection network runtime.
type Backend string

const (
	// BackendDarknet runs a Darknet cfg/weights pair through OpenCV DNN.
	BackendDarknet Backend = "darknet"
	// BackendONNXRuntime runs an exported ONNX model through ONNX Runtime.
	BackendONNXRuntime Backend = "onnxruntime"
)

// Environment variables that override file values.
const (
	EnvMetric      = "SHARPNESS_METRIC"
	EnvQualityAddr = "SHARPNESS_QUALITY_ADDR"
	EnvConfidence  = "SHARPNESS_CONFIDENCE"
	EnvNMSIoU      = "SHARPNESS_NMS_IOU"
	EnvLogLevel    = "SHARPNESS_LOG_LEVEL"
)

// Config is the full pipeline configuration.
type Config struct {
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Sharpness SharpnessConfig `json:"sharpness" yaml:"sharpness"`
	Quality   quality.Config  `json:"quality" yaml:"quality"`
	Log       logger.Config   `json:"log" yaml:"log"`
}

// DetectionConfig configures the network and candidate consolidation.
type DetectionConfig struct {
	ConfidenceThreshold float32  `json:"detection_confidence_threshold" yaml:"detectionConfidenceThreshold" validate:"gte=0,lte=1"`
	NMSIoUThreshold     float64  `json:"nms_iou_threshold" yaml:"nmsIoUThreshold" validate:"gte=0,lte=1"`
	ClassAware          bool     `json:"class_aware" yaml:"classAware"`
	TopK                int      `json:"top_k" yaml:"topK" validate:"gte=0"`
	// Classes limits scoring to these labels. Empty scores every class.
	Classes             []string `json:"classes" yaml:"classes" validate:"dive,required"`
	Backend             Backend  `json:"backend" yaml:"backend" validate:"oneof=darknet onnxruntime"`
	ModelConfig         string   `json:"model_config" yaml:"modelConfig" validate:"required_if=Backend darknet"`
	ModelWeights        string   `json:"model_weights" yaml:"modelWeights" validate:"required_if=Backend darknet"`
	ONNXModel           string   `json:"onnx_model" yaml:"onnxModel" validate:"required_if=Backend onnxruntime"`
	ONNXRuntimeLibrary  string   `json:"onnx_runtime_library" yaml:"onnxRuntimeLibrary"`
	ExecutionProvider   string   `json:"execution_provider" yaml:"executionProvider" validate:"omitempty,oneof=cpu cuda coreml openvino"`
	DeviceID            int      `json:"device_id" yaml:"deviceID" validate:"gte=0"`
	IntraOpThreads      int      `json:"intra_op_threads" yaml:"intraOpThreads" validate:"gte=0"`
	InputWidth          int      `json:"input_width" yaml:"inputWidth" validate:"gt=0"`
	InputHeight         int      `json:"input_height" yaml:"inputHeight" validate:"gt=0"`
}

// SharpnessConfig selects and parameterizes the scoring metric.
type SharpnessConfig struct {
	Metric                  sharpness.Metric `json:"metric" yaml:"metric" validate:"gte=0,lte=5"`
	CombinedWeightLaplacian float64          `json:"combined_weight_laplacian" yaml:"combinedWeightLaplacian" validate:"gte=0"`
	CombinedWeightTenengrad float64          `json:"combined_weight_tenengrad" yaml:"combinedWeightTenengrad" validate:"gte=0"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	weights := sharpness.DefaultWeights()
	input := yolov3.DefaultOptions()

	return Config{
		Detection: DetectionConfig{
			ConfidenceThreshold: postprocess.DefaultScoreThreshold,
			NMSIoUThreshold:     postprocess.DefaultIoUThreshold,
			Backend:             BackendDarknet,
			ModelConfig:         "model/yolov3.cfg",
			ModelWeights:        "model/yolov3.weights",
			InputWidth:          input.InputWidth,
			InputHeight:         input.InputHeight,
		},
		Sharpness: SharpnessConfig{
			Metric:                  sharpness.MetricCombined,
			CombinedWeightLaplacian: weights.Laplacian,
			CombinedWeightTenengrad: weights.Tenengrad,
		},
		Quality: quality.DefaultConfig(),
		Log:     logger.DefaultConfig(),
	}
}

// Load resolves the configuration.
//
// Arguments:
//   - path: YAML file to read. Empty skips the file layer.
//   - envFiles: .env files to load into the environment. When none are given
//     ".env" is loaded if present. Variables already set are not overwritten.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: Error if a file cannot be read or parsed, or validation fails.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// NMS returns the suppression settings.
func (d DetectionConfig) NMS() *postprocess.NMSConfig {
	return &postprocess.NMSConfig{
		ScoreThreshold: d.ConfidenceThreshold,
		IoUThreshold:   d.NMSIoUThreshold,
		ClassAware:     d.ClassAware,
		TopK:           d.TopK,
	}
}

// Input returns the network input options.
func (d DetectionConfig) Input() yolov3.Options {
	opts := yolov3.DefaultOptions()
	opts.InputWidth = d.InputWidth
	opts.InputHeight = d.InputHeight
	return opts
}

// Weights returns the combined metric coefficients.
func (s SharpnessConfig) Weights() sharpness.Weights {
	return sharpness.Weights{
		Laplacian: s.CombinedWeightLaplacian,
		Tenengrad: s.CombinedWeightTenengrad,
	}
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Wrap(err, "load env files")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvMetric); ok {
		m, err := sharpness.ParseMetric(v)
		if err != nil {
			return errors.Wrap(err, EnvMetric)
		}
		cfg.Sharpness.Metric = m
	}
	if v, ok := os.LookupEnv(EnvQualityAddr); ok {
		cfg.Quality.Address = v
	}
	if v, ok := os.LookupEnv(EnvConfidence); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return errors.Wrap(err, EnvConfidence)
		}
		cfg.Detection.ConfidenceThreshold = float32(f)
	}
	if v, ok := os.LookupEnv(EnvNMSIoU); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, EnvNMSIoU)
		}
		cfg.Detection.NMSIoUThreshold = f
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}
