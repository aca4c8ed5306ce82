// Package quality - client for the external region quality scoring service.
//
// One request is one TCP connection: the client writes the region to a unique
// temporary JPEG, sends its absolute path as a single line, and reads back a
// single JSON line carrying mean_score_prediction.
package quality

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/nvr-ai/go-sharpness/sharpness"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxReplyBytes bounds the reply line, newline included.
const MaxReplyBytes = 64 << 10

// Config configures the quality client.
type Config struct {
	// Service address, host:port.
	Address string `json:"address" yaml:"address" validate:"required,hostname_port"`
	// Maximum time to establish the connection.
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dialTimeout" validate:"gt=0"`
	// Maximum time from sending the path to receiving the full reply line.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"readTimeout" validate:"gt=0"`
	// Directory for payload files. Empty uses the OS temp dir.
	TempDir string `json:"temp_dir" yaml:"tempDir"`
	// Longest payload side in pixels. 0 sends the region at full size.
	MaxSide int `json:"max_side" yaml:"maxSide" validate:"gte=0"`
	// Extra attempts after a connect failure.
	Retries int `json:"retries" yaml:"retries" validate:"gte=0,lte=10"`
	// Delay before the first retry, doubled for each following one up to one minute.
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retryBackoff" validate:"gte=0"`
	// Requests per second sent to the service, shared by all callers. 0 is unlimited.
	RateLimit float64 `json:"rate_limit" yaml:"rateLimit" validate:"gte=0"`
}

// DefaultConfig returns the settings of a service on localhost:5000.
func DefaultConfig() Config {
	return Config{
		Address:      "localhost:5000",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Reply is the JSON line returned by the service.
type Reply struct {
	MeanScorePrediction *float64 `json:"mean_score_prediction"`
}

// Client scores regions through the quality service. It holds no per-request
// state and may be shared between goroutines.
type Client struct {
	config  Config
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewClient creates a quality client.
//
// Arguments:
//   - config: The client configuration.
//   - logger: The logger. Nil discards log output.
//
// Returns:
//   - *Client: The client.
//   - error: Error if the configuration is unusable.
func NewClient(config Config, logger *logrus.Logger) (*Client, error) {
	if config.Address == "" {
		return nil, errors.New("quality: address is required")
	}
	if config.DialTimeout <= 0 || config.ReadTimeout <= 0 {
		return nil, errors.New("quality: dial and read timeouts must be positive")
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Client{config: config, limiter: limiter, logger: logger}, nil
}

// Score sends region to the service and returns its mean_score_prediction.
//
// The payload file is removed before Score returns. On any failure the value
// is sharpness.Unscored and the error is a *Error describing the failure kind.
func (c *Client) Score(ctx context.Context, region gocv.Mat) (sharpness.Score, error) {
	failed := sharpness.Score{Metric: sharpness.MetricRemoteQuality, Value: sharpness.Unscored}

	path, err := payloadPath(c.config.TempDir)
	if err != nil {
		return failed, newError(KindPayload, err, "payload path")
	}
	defer os.Remove(path)

	if err := writePayload(region, path, c.config.MaxSide); err != nil {
		return failed, &Error{Kind: KindPayload, Err: err}
	}

	value, err := c.requestWithRetry(ctx, path)
	if err != nil {
		return failed, err
	}

	return sharpness.Score{Metric: sharpness.MetricRemoteQuality, Value: value}, nil
}

func (c *Client) requestWithRetry(ctx context.Context, path string) (float64, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var value float64
	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(newError(KindTimeout, err, "rate limit"))
		}

		v, err := c.request(ctx, path)
		if err != nil {
			if kind, _ := KindOf(err); kind != KindConnect {
				return backoff.Permanent(err)
			}
			return err
		}
		value = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"address": c.config.Address,
			"attempt": attempt,
			"backoff": wait,
		}).WithError(err).Debug("retrying quality request")
	}

	policyCtx := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.Retries)), ctx)
	if err := backoff.RetryNotify(op, policyCtx, notify); err != nil {
		if _, ok := KindOf(err); !ok {
			return 0, newError(KindTimeout, err, "waiting to retry")
		}
		return 0, err
	}

	return value, nil
}

// request performs a single round trip.
func (c *Client) request(ctx context.Context, path string) (float64, error) {
	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return 0, newError(classify(ctx, err, KindConnect), err, "dial "+c.config.Address)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
		return 0, newError(KindConnect, err, "set deadline")
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := io.WriteString(conn, path+"\n"); err != nil {
		return 0, newError(classify(ctx, err, KindConnect), err, "send path")
	}

	raw, err := bufio.NewReader(io.LimitReader(conn, MaxReplyBytes+1)).ReadString('\n')
	if len(raw) > MaxReplyBytes {
		return 0, newError(KindProtocol, errors.Errorf("reply exceeds %d bytes", MaxReplyBytes), "read reply")
	}
	line := strings.TrimSpace(raw)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return 0, newError(classify(ctx, err, KindProtocol), err, "read reply")
	}

	var reply Reply
	if err := json.UnmarshalFromString(line, &reply); err != nil {
		return 0, newError(KindProtocol, err, "decode reply")
	}
	if reply.MeanScorePrediction == nil {
		return 0, newError(KindProtocol, errors.New("mean_score_prediction missing"), "decode reply")
	}

	c.logger.WithFields(logrus.Fields{
		"address": c.config.Address,
		"score":   *reply.MeanScorePrediction,
	}).Debug("quality reply")

	return *reply.MeanScorePrediction, nil
}

// classify maps deadline and cancellation failures to KindTimeout and leaves
// everything else as fallback.
func classify(ctx context.Context, err error, fallback Kind) Kind {
	if ctx.Err() != nil {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return fallback
}
