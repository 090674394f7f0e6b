package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig selects the level, format and destination of log output
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// DefaultConfig logs info and above as text to stderr
func DefaultConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

var levelMap = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
	"fatal": logrus.FatalLevel,
}

// ParseLevel returns the logrus level for name, falling back to info
func ParseLevel(name string) logrus.Level {
	if level, ok := levelMap[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level
	}
	return logrus.InfoLevel
}

// NewLogger builds a logrus logger from config. A nil config uses
// DefaultConfig; any output other than stdout/stderr is a file path opened
// for append.
func NewLogger(config *LoggingConfig) (*logrus.Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer
	switch config.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(ParseLevel(config.Level))

	switch strings.ToLower(config.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger, nil
}
