// Package logging builds the logrus logger used across a session from its
// configuration.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srishina/mqttv5.go/config"
)

// New creates a logger for cfg. Unknown levels fall back to info, unknown
// formats to text and unknown outputs to stdout.
func New(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(output(cfg.Output))
	logger.SetLevel(parseLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func output(name string) io.Writer {
	if strings.ToLower(name) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
