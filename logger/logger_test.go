package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "debug"

	log, err := newWithOutput(cfg, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("metric", "tenengrad").Debug("scored")
	assert.Contains(t, buf.String(), "scored")
	assert.Contains(t, buf.String(), "tenengrad")
}

func TestNewWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sharpness.log")
	cfg := DefaultConfig()
	cfg.File = file

	log, err := newWithOutput(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	log.Info("written to file")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNewInvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}
