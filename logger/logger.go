// Package logger - logrus construction for the sharpness tools.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures log output.
type Config struct {
	// Level is a logrus level name.
	Level string `json:"level" yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	// File enables rotating file output in addition to stderr.
	File string `json:"file" yaml:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `json:"max_size_mb" yaml:"maxSizeMB" validate:"gte=0"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `json:"max_backups" yaml:"maxBackups" validate:"gte=0"`
	// MaxAgeDays is the number of days rotated files are kept.
	MaxAgeDays int `json:"max_age_days" yaml:"maxAgeDays" validate:"gte=0"`
	// Caller adds file, line and function to every entry.
	Caller bool `json:"caller" yaml:"caller"`
}

// DefaultConfig logs at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// New builds a logger writing to stderr and, when cfg.File is set, to a
// rotating file.
func New(cfg Config) (*logrus.Logger, error) {
	return newWithOutput(cfg, os.Stderr)
}

func newWithOutput(cfg Config, stderr io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&formatter.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		HideKeys:        false,
		NoColors:        cfg.File != "",
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
		},
	})
	log.SetReportCaller(cfg.Caller)

	writers := []io.Writer{stderr}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		})
	}
	log.SetOutput(io.MultiWriter(writers...))

	return log, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
