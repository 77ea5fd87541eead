package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srishina/mqttv5.go/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"INFO":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.InfoLevel,
	}
	for level, want := range tests {
		logger := New(config.LogConfig{Level: level})
		assert.Equal(t, want, logger.GetLevel(), "level %q", level)
	}
}

func TestNewOutput(t *testing.T) {
	assert.Equal(t, os.Stderr, New(config.LogConfig{Output: "stderr"}).Out)
	assert.Equal(t, os.Stdout, New(config.LogConfig{Output: "stdout"}).Out)
}

func TestNewJSONFormat(t *testing.T) {
	logger := New(config.LogConfig{Level: "info", Format: "json"})
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithField("packet_id", 7).Info("PUBACK received")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "PUBACK received", entry["msg"])
	assert.Equal(t, float64(7), entry["packet_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewTextFormat(t *testing.T) {
	logger := New(config.Default().Log)
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
